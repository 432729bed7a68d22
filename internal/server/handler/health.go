package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// DeployChecker reports whether the market exists.
type DeployChecker interface {
	Deployed(ctx context.Context) (bool, error)
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	market    DeployChecker
	startedAt time.Time
	logger    *slog.Logger
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(market DeployChecker, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{market: market, startedAt: time.Now().UTC(), logger: logger}
}

// HealthCheck reports liveness and whether the market is deployed. A store
// failure turns the response into a 503.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	deployed, err := h.market.Deployed(r.Context())
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: health check failed",
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "degraded",
			"error":  "state store unavailable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"deployed":       deployed,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}
