package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type routerHandlers struct {
	hub         *Hub
	rateLimiter *IPRateLimiter
	logger      *zap.Logger
}

// statsResponse is the /api/stats body.
type statsResponse struct {
	Stats
	HTTP RateLimitStats `json:"http_rate_limit"`
}

func (h *routerHandlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.hub.Done():
		writeError(w, http.StatusServiceUnavailable, "hub stopped")
	default:
		writeJSON(w, map[string]string{"status": "ok"})
	}
}

func (h *routerHandlers) handleGetStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	stats, err := h.hub.Stats(ctx)
	if err != nil {
		h.logger.Warn("stats unavailable", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "stats unavailable")
		return
	}
	writeJSON(w, statsResponse{Stats: stats, HTTP: h.rateLimiter.Stats()})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
