package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/MOSSV2/morphic/internal/auth"
	"github.com/MOSSV2/morphic/internal/ratelimit"
)

// DebugUserCallsHandler logs the caller's full counter state and returns a
// short summary. Intended for manual troubleshooting of rate-limit
// complaints; the heavy detail goes to the structured log, not the response.
func DebugUserCallsHandler(authSvc *auth.Service, limiter *ratelimit.Limiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			sendError(w, "Method not allowed", "METHOD_NOT_ALLOWED", http.StatusMethodNotAllowed)
			return
		}

		identity, authenticated := authSvc.Identity(w, r)

		state, err := limiter.DebugState(r.Context(), identity, authenticated)
		if err != nil {
			slog.Error("failed to read counter state", "identity", identity, "error", err)
			sendError(w, "Failed to read counter state", "DEBUG_FAILED", http.StatusInternalServerError)
			return
		}

		slog.Info("user call count",
			"identity", state.Identity,
			"authenticated", state.Authenticated,
			"window_events_stored", len(state.WindowEvents),
			"window_events_valid", state.WindowCount,
			"window_limit", state.WindowLimit,
			"quota_used", len(state.QuotaEvents),
			"quota_limit", state.QuotaLimit,
			"window_events", state.WindowEvents,
			"quota_events", state.QuotaEvents,
		)

		sendJSON(w, http.StatusOK, map[string]interface{}{
			"message":         "Counter state written to the server log",
			"userId":          identity,
			"isAuthenticated": authenticated,
			"windowCount":     state.WindowCount,
			"quotaUsed":       len(state.QuotaEvents),
			"timestamp":       time.Now().UTC().Format(time.RFC3339),
		})
	}
}
