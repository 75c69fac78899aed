package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MOSSV2/morphic/internal/config"
	"github.com/MOSSV2/morphic/internal/ratelimit"
)

// resetRequest is the admin reset body. Purpose is optional; empty clears
// every counter for the identity.
type resetRequest struct {
	Identity string `json:"identity"`
	Purpose  string `json:"purpose"`
}

// AdminResetHandler deletes an identity's counters. Guarded by the ADMIN_TOKEN
// bearer token; the endpoint is disabled when no token is configured.
func AdminResetHandler(cfg *config.Config, limiter *ratelimit.Limiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			sendError(w, "Method not allowed", "METHOD_NOT_ALLOWED", http.StatusMethodNotAllowed)
			return
		}

		if cfg.AdminToken == "" {
			sendError(w, "Admin endpoints are disabled", "ADMIN_DISABLED", http.StatusForbidden)
			return
		}

		token, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(cfg.AdminToken)) != 1 {
			slog.Warn("admin reset rejected - invalid token")
			sendError(w, "Unauthorized", "UNAUTHORIZED", http.StatusUnauthorized)
			return
		}

		var req resetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Identity == "" {
			sendError(w, "Request body must include an identity", "BAD_REQUEST", http.StatusBadRequest)
			return
		}

		if err := limiter.Reset(r.Context(), req.Identity, req.Purpose); err != nil {
			if errors.Is(err, ratelimit.ErrUnknownPurpose) {
				sendError(w, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
				return
			}
			slog.Error("admin reset failed", "identity", req.Identity, "error", err)
			sendError(w, "Failed to reset rate limits", "RESET_FAILED", http.StatusInternalServerError)
			return
		}

		sendJSON(w, http.StatusOK, map[string]string{
			"status":   "ok",
			"identity": req.Identity,
		})
	}
}
