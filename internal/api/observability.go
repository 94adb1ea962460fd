package api

import (
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"pong-arena/internal/game"
	"pong-arena/internal/lobby"
)

// Metrics with bounded cardinality (no per-player or per-match labels)
var (
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pong_tick_duration_seconds",
		Help:    "Time spent advancing every live match once",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025},
	})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pong_queue_depth",
		Help: "Connections waiting in the matchmaking queue",
	})

	liveMatches = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pong_live_matches",
		Help: "Matches currently in the registry",
	})

	pendingInvites = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pong_pending_invites",
		Help: "Outstanding directed invites",
	})

	matchOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pong_match_outcomes_total",
		Help: "Finished matches by how they ended",
	}, []string{"result"}) // Bounded: "score", "forfeit"

	commandRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pong_command_rejected_total",
		Help: "Inbound commands rejected by the lobby",
	}, []string{"code"})

	journalEvents = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pong_journal_events",
		Help: "Match journal counters",
	}, []string{"state"}) // Bounded: "written", "dropped"

	// DoS detection metrics - use ONLY bounded label values
	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connection_rejected_total",
		Help: "Connections rejected by rate limiter, origin or auth check",
	}, []string{"reason"}) // Bounded: "rate_limit", "origin", "auth", "ws_ip_limit", "ws_total_limit"

	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"}) // endpoint is the route pattern, not the full URL

	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_connections_active",
		Help: "Currently active WebSocket connections",
	})

	wsMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "websocket_messages_total",
		Help: "WebSocket messages by direction",
	}, []string{"direction"}) // Bounded: "in", "out", "dropped"
)

// ObservabilityConfig configures the debug server
type ObservabilityConfig struct {
	Enabled       bool
	ListenAddr    string // Loopback only unless AllowExternal
	AllowExternal bool
	BasicAuthUser string // Optional basic auth
	BasicAuthPass string
}

// DefaultObservabilityConfig returns safe defaults
func DefaultObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1:6060",
	}
}

// NewDebugHandler builds the pprof, metrics and health mux.
func NewDebugHandler(cfg ObservabilityConfig) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if cfg.BasicAuthUser != "" {
		return basicAuthMiddleware(cfg.BasicAuthUser, cfg.BasicAuthPass, mux)
	}
	return mux
}

// StartDebugServer starts the internal observability server in the
// background. It returns nil when the server is disabled.
//
// CRITICAL: pprof must never be reachable from outside the host, so
// non-loopback addresses are rewritten to 127.0.0.1.
func StartDebugServer(cfg ObservabilityConfig, logger *zap.Logger) *http.Server {
	if !cfg.Enabled {
		logger.Info("debug server disabled")
		return nil
	}

	addr := cfg.ListenAddr
	if !cfg.AllowExternal {
		addr = loopbackOnly(addr)
	}
	if addr != cfg.ListenAddr {
		logger.Warn("debug server forced to loopback", zap.String("requested", cfg.ListenAddr), zap.String("addr", addr))
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           NewDebugHandler(cfg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("debug server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("debug server error", zap.Error(err))
		}
	}()
	return srv
}

func loopbackOnly(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "127.0.0.1:6060"
	}
	if host == "localhost" {
		return addr
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return addr
	}
	return net.JoinHostPort("127.0.0.1", port)
}

// basicAuthMiddleware adds basic authentication to the handler
func basicAuthMiddleware(user, pass string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			w.Header().Set("WWW-Authenticate", `Basic realm="debug"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RecordTick records tick timing for metrics
func RecordTick(duration time.Duration) {
	tickDuration.Observe(duration.Seconds())
}

// RecordOutcome counts a finished match.
func RecordOutcome(o game.Outcome) {
	result := "score"
	if o.Forfeit {
		result = "forfeit"
	}
	matchOutcomes.WithLabelValues(result).Inc()
}

// UpdateLobbyStats refreshes the queue, match and invite gauges.
func UpdateLobbyStats(s lobby.Stats) {
	queueDepth.Set(float64(s.Queued))
	liveMatches.Set(float64(s.Matches))
	pendingInvites.Set(float64(s.Invites))
}

// UpdateJournalStats mirrors the journal counters into gauges.
func UpdateJournalStats(s game.JournalStats) {
	journalEvents.WithLabelValues("written").Set(float64(s.Total))
	journalEvents.WithLabelValues("dropped").Set(float64(s.Dropped))
}

// RecordCommandRejected counts a rejected inbound command by error code.
func RecordCommandRejected(code string) {
	commandRejected.WithLabelValues(code).Inc()
}

// RecordConnectionRejected increments the rejection counter
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, endpoint string, status int, duration time.Duration) {
	requestLatency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	requestTotal.WithLabelValues(method, endpoint, http.StatusText(status)).Inc()
}

// UpdateWSConnections updates WebSocket connection count
func UpdateWSConnections(count int) {
	wsConnectionsActive.Set(float64(count))
}

// RecordWSMessage counts one WebSocket message.
func RecordWSMessage(direction string) {
	wsMessagesTotal.WithLabelValues(direction).Inc()
}
