package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MOSSV2/morphic/internal/kv"
)

// healthCheckTimeout bounds the store ping so a hung Redis connection cannot
// hang the probe.
const healthCheckTimeout = 5 * time.Second

// healthResponse is the health probe body.
type healthResponse struct {
	Status        string `json:"status"`
	Store         string `json:"store"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Timestamp     string `json:"timestamp"`
}

// setHealthCacheHeaders sets appropriate cache-control headers for health endpoints.
// Health checks should never be cached to ensure accurate probe responses.
func setHealthCacheHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
}

// HealthHandler reports service health. The store being down degrades the
// status but does not fail the probe: admission fails open, so the service
// still serves traffic without it.
func HealthHandler(store kv.Store, startTime time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			setHealthCacheHeaders(w)
			sendError(w, "Method not allowed", "METHOD_NOT_ALLOWED", http.StatusMethodNotAllowed)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		resp := healthResponse{
			Status:        "ok",
			Store:         "ok",
			UptimeSeconds: int64(time.Since(startTime).Seconds()),
			Timestamp:     time.Now().UTC().Format(time.RFC3339),
		}
		if err := store.Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.Store = "unavailable"
		}

		setHealthCacheHeaders(w)
		sendJSON(w, http.StatusOK, resp)
	}
}
