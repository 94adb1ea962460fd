package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"pong-arena/internal/api"
	"pong-arena/internal/config"
	"pong-arena/internal/directory"
	"pong-arena/internal/game"
	"pong-arena/internal/lobby"
	"pong-arena/internal/store"
)

func main() {
	// Load .env file from parent directory
	if err := godotenv.Load("../.env"); err != nil {
		// Try current directory as fallback
		_ = godotenv.Load(".env")
	}

	appConfig := config.Load()

	logger, err := newLogger(appConfig.Log)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	if err := run(appConfig, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
	logger.Info("goodbye")
}

func run(appConfig config.AppConfig, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverCfg := appConfig.Server
	matchCfg := appConfig.Match
	storageCfg := appConfig.Storage
	securityCfg := appConfig.Security

	logger.Info("pong arena starting",
		zap.Int("port", serverCfg.Port),
		zap.Int("tick_rate", matchCfg.TickRate),
		zap.Bool("jwt", securityCfg.JWTSecret != ""),
	)

	// Match results
	var recorder lobby.OutcomeRecorder
	if storageCfg.DBPath != "" {
		db, err := store.OpenSQLite(storageCfg.DBPath)
		if err != nil {
			return fmt.Errorf("open results db: %w", err)
		}
		defer db.Close()

		rec := store.NewAsyncRecorder(db, 0, logger)
		rec.Start()
		defer func() {
			rec.Stop()
			st := rec.Stats()
			logger.Info("results recorder stopped",
				zap.Uint64("saved", st.Saved),
				zap.Uint64("failed", st.Failed),
				zap.Uint64("dropped", st.Dropped),
			)
		}()
		recorder = rec

		stored, err := db.CountResults(ctx)
		if err != nil {
			return fmt.Errorf("read results db: %w", err)
		}
		logger.Info("match results persisted", zap.String("db", storageCfg.DBPath), zap.Int("stored", stored))
	} else {
		logger.Warn("DB_PATH empty, match results are not persisted")
	}

	// Presence directory
	var dir directory.Store = directory.NewMemory()
	if storageCfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     storageCfg.RedisAddr,
			Password: storageCfg.RedisPassword,
			DB:       storageCfg.RedisDB,
		})
		defer client.Close()

		rd := directory.NewRedis(client, storageCfg.PresenceTTL, 0)
		if err := rd.Ping(ctx); err != nil {
			return fmt.Errorf("connect redis %s: %w", storageCfg.RedisAddr, err)
		}
		dir = rd
		logger.Info("presence directory on redis", zap.String("addr", storageCfg.RedisAddr))
	}

	// Match journal
	var journal *game.Journal
	if matchCfg.JournalPath != "" {
		j, err := game.OpenJournal(matchCfg.JournalPath, logger)
		if err != nil {
			logger.Warn("match journal disabled", zap.Error(err))
		} else {
			journal = j
			journal.Start()
			defer journal.Stop()
			logger.Info("match journal", zap.String("path", matchCfg.JournalPath))
		}
	}

	if serverCfg.DebugEnabled {
		debugCfg := api.DefaultObservabilityConfig()
		if serverCfg.DebugAddr != "" {
			debugCfg.ListenAddr = serverCfg.DebugAddr
		}
		debugCfg.AllowExternal = serverCfg.DebugExternal
		debugCfg.BasicAuthUser = serverCfg.DebugUser
		debugCfg.BasicAuthPass = serverCfg.DebugPass
		if srv := api.StartDebugServer(debugCfg, logger); srv != nil {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
		}
	}

	hub := api.NewHub(api.HubConfig{
		Directory:        dir,
		Recorder:         recorder,
		Journal:          journal,
		Logger:           logger,
		TickInterval:     matchCfg.TickInterval(),
		MaxConnections:   serverCfg.MaxConnections,
		WSMessagesPerSec: securityCfg.WSMessagesPerSec,
	})

	server := api.NewServer(hub, api.ServerConfig{
		Addr:        ":" + strconv.Itoa(serverCfg.Port),
		CORSOrigins: serverCfg.CORSOrigins,
		RateLimit: api.RateLimitConfig{
			RequestsPerSecond: securityCfg.RateLimitRPS,
			Burst:             securityCfg.RateLimitBurst,
		},
		Auth:   api.NewAuthenticator(securityCfg.JWTSecret),
		Logger: logger,
	})

	logger.Info("server ready", zap.String("ws", fmt.Sprintf("ws://localhost:%d/ws", serverCfg.Port)))
	return server.Start(ctx)
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
