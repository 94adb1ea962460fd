package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ServerConfig holds everything NewServer needs beyond the hub.
type ServerConfig struct {
	Addr        string
	CORSOrigins []string
	RateLimit   RateLimitConfig
	Auth        *Authenticator
	Logger      *zap.Logger
}

// Server is the HTTP API server with WebSocket support.
// It combines the HTTP router with the hub that owns the lobby.
type Server struct {
	hub         *Hub
	router      *chi.Mux
	rateLimiter *IPRateLimiter
	httpServer  *http.Server
	logger      *zap.Logger
}

// NewServer creates a new API server.
//
// IMPORTANT: The hub does NOT run until Start is called, so tests can
// construct the server and drive Router() and the hub themselves.
func NewServer(hub *Hub, cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		hub:         hub,
		rateLimiter: NewIPRateLimiter(cfg.RateLimit),
		logger:      logger.Named("server"),
	}
	s.router = NewRouter(RouterConfig{
		Hub:         hub,
		Auth:        cfg.Auth,
		RateLimiter: s.rateLimiter,
		CORSOrigins: cfg.CORSOrigins,
		Logger:      logger,
	})
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start runs the hub and serves HTTP until ctx is cancelled, then shuts
// down gracefully. It is the ONLY method that starts goroutines or opens
// network listeners.
func (s *Server) Start(ctx context.Context) error {
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go s.hub.Run(hubCtx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server starting", zap.String("addr", s.httpServer.Addr))
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		stopHub()
		<-s.hub.Done()
		s.rateLimiter.Stop()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("api server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := s.httpServer.Shutdown(shutdownCtx)

	// Hijacked websocket connections are not tracked by Shutdown; stopping
	// the hub closes them and forfeits their matches.
	stopHub()
	<-s.hub.Done()
	s.rateLimiter.Stop()
	return err
}

// Router returns the HTTP handler for use with httptest.
func (s *Server) Router() http.Handler {
	return s.router
}

// Hub returns the hub behind the server.
func (s *Server) Hub() *Hub {
	return s.hub
}
