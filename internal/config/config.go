// Package config provides centralized configuration management.
// This is the SINGLE SOURCE OF TRUTH for server, match and storage settings.
//
// Every sub-config has a DefaultX constructor and an XFromEnv variant that
// applies environment overrides. Load assembles the full configuration.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           int
	MaxConnections int      // Hard cap on concurrent WebSocket clients
	CORSOrigins    []string // Allowed browser origins; "*" allows all
	DebugAddr      string   // Loopback address for /metrics and pprof
	DebugEnabled   bool
	DebugExternal  bool     // Allow DebugAddr to bind a non-loopback interface
	DebugUser      string   // Optional basic auth for the debug server
	DebugPass      string
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:           3000,
		MaxConnections: 10_000,
		CORSOrigins:    []string{"*"},
		DebugAddr:      "127.0.0.1:6060",
		DebugEnabled:   true,
	}
}

// ServerFromEnv returns server configuration with environment variable overrides.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Port = p
	}
	if mc := getEnvInt("MAX_CONNECTIONS", 0); mc > 0 {
		cfg.MaxConnections = mc
	}
	if origins := getEnvList("CORS_ORIGINS"); len(origins) > 0 {
		cfg.CORSOrigins = origins
	}
	if addr := os.Getenv("DEBUG_ADDR"); addr != "" {
		cfg.DebugAddr = addr
	}
	if os.Getenv("DISABLE_DEBUG_SERVER") == "true" {
		cfg.DebugEnabled = false
	}
	cfg.DebugExternal = os.Getenv("ALLOW_DEBUG_EXTERNAL") == "true"
	cfg.DebugUser = os.Getenv("DEBUG_USER")
	cfg.DebugPass = os.Getenv("DEBUG_PASS")

	return cfg
}

// =============================================================================
// MATCH CONFIGURATION
// =============================================================================

// MatchConfig holds simulation settings.
type MatchConfig struct {
	TickRate    int    // Simulation steps per second for every live match
	JournalPath string // JSONL match journal; empty disables it
}

// DefaultMatch returns the default match configuration.
func DefaultMatch() MatchConfig {
	return MatchConfig{
		TickRate: 60,
	}
}

// MatchFromEnv returns match configuration with environment variable overrides.
func MatchFromEnv() MatchConfig {
	cfg := DefaultMatch()

	if tr := getEnvInt("TICK_RATE", 0); tr > 0 {
		cfg.TickRate = tr
	}
	cfg.JournalPath = os.Getenv("JOURNAL_PATH")

	return cfg
}

// TickInterval converts the tick rate into a ticker period.
func (c MatchConfig) TickInterval() time.Duration {
	if c.TickRate <= 0 {
		return time.Second / 60
	}
	return time.Second / time.Duration(c.TickRate)
}

// =============================================================================
// STORAGE CONFIGURATION
// =============================================================================

// StorageConfig selects the outcome store and the presence directory.
type StorageConfig struct {
	DBPath        string        // SQLite file for match results; empty disables persistence
	RedisAddr     string        // Presence directory; empty selects the in-memory one
	RedisPassword string
	RedisDB       int
	PresenceTTL   time.Duration // Lifetime of a Redis presence binding
}

// DefaultStorage returns the default storage configuration.
func DefaultStorage() StorageConfig {
	return StorageConfig{
		DBPath:      "pong.db",
		PresenceTTL: 2 * time.Minute,
	}
}

// StorageFromEnv returns storage configuration with environment variable overrides.
func StorageFromEnv() StorageConfig {
	cfg := DefaultStorage()

	if v, ok := os.LookupEnv("DB_PATH"); ok {
		cfg.DBPath = v
	}
	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.RedisDB = getEnvInt("REDIS_DB", 0)
	if ttl := getEnvDuration("PRESENCE_TTL", 0); ttl > 0 {
		cfg.PresenceTTL = ttl
	}

	return cfg
}

// =============================================================================
// SECURITY CONFIGURATION
// =============================================================================

// SecurityConfig holds DoS protection and authentication settings.
type SecurityConfig struct {
	RateLimitRPS     float64 // HTTP requests per second per IP
	RateLimitBurst   int
	WSMessagesPerSec float64 // Inbound WebSocket messages per second per connection
	JWTSecret        string  // HMAC secret; empty trusts the player_id query parameter
}

// DefaultSecurity returns the default security configuration.
func DefaultSecurity() SecurityConfig {
	return SecurityConfig{
		RateLimitRPS:     10,
		RateLimitBurst:   20,
		WSMessagesPerSec: 120,
	}
}

// SecurityFromEnv returns security configuration with environment variable overrides.
func SecurityFromEnv() SecurityConfig {
	cfg := DefaultSecurity()

	if v := getEnvFloat("RATE_LIMIT_RPS", 0); v > 0 {
		cfg.RateLimitRPS = v
	}
	if v := getEnvInt("RATE_LIMIT_BURST", 0); v > 0 {
		cfg.RateLimitBurst = v
	}
	if v := getEnvFloat("WS_MESSAGES_PER_SEC", 0); v > 0 {
		cfg.WSMessagesPerSec = v
	}
	cfg.JWTSecret = os.Getenv("JWT_SECRET")

	return cfg
}

// =============================================================================
// LOGGING CONFIGURATION
// =============================================================================

// LogConfig selects the logger flavour.
type LogConfig struct {
	Level       string // debug, info, warn, error
	Development bool   // console encoder instead of JSON
}

// DefaultLog returns the default logging configuration.
func DefaultLog() LogConfig {
	return LogConfig{Level: "info"}
}

// LogFromEnv returns logging configuration with environment variable overrides.
func LogFromEnv() LogConfig {
	cfg := DefaultLog()

	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		cfg.Level = strings.ToLower(lvl)
	}
	cfg.Development = os.Getenv("APP_ENV") == "development"

	return cfg
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Server   ServerConfig
	Match    MatchConfig
	Storage  StorageConfig
	Security SecurityConfig
	Log      LogConfig
}

// Load returns the complete configuration with environment overrides.
func Load() AppConfig {
	return AppConfig{
		Server:   ServerFromEnv(),
		Match:    MatchFromEnv(),
		Storage:  StorageFromEnv(),
		Security: SecurityFromEnv(),
		Log:      LogFromEnv(),
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
