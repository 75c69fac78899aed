package handlers

import (
	"net/http"
	"time"

	"github.com/MOSSV2/morphic/internal/auth"
	"github.com/MOSSV2/morphic/internal/config"
	"github.com/MOSSV2/morphic/internal/ratelimit"
)

// usageResponse mirrors the shape the UI polls for the remaining-requests
// indicator. Quota fields appear only for authenticated identities.
type usageResponse struct {
	UserID            string `json:"userId"`
	ModelID           string `json:"modelId"`
	IsAuthenticated   bool   `json:"isAuthenticated"`
	TotalRequests     int    `json:"totalRequests"`
	RemainingRequests int    `json:"remainingRequests"`
	ResetTime         string `json:"resetTime"`
	QuotaUsed         *int   `json:"quotaUsed,omitempty"`
	QuotaRemaining    *int   `json:"quotaRemaining,omitempty"`
}

// UsageHandler reports the caller's current usage. Read-only: polling this
// endpoint never affects admission state.
func UsageHandler(authSvc *auth.Service, limiter *ratelimit.Limiter, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			sendError(w, "Method not allowed", "METHOD_NOT_ALLOWED", http.StatusMethodNotAllowed)
			return
		}

		identity, authenticated := authSvc.Identity(w, r)

		modelID := r.URL.Query().Get("modelId")
		if modelID == "" {
			modelID = cfg.DefaultModel
		}

		report := limiter.Usage(r.Context(), identity, authenticated)

		resp := usageResponse{
			UserID:            identity,
			ModelID:           modelID,
			IsAuthenticated:   authenticated,
			TotalRequests:     report.TotalRequests,
			RemainingRequests: report.RemainingRequests,
			ResetTime:         report.ResetTime.UTC().Format(time.RFC3339),
		}
		if report.QuotaApplies {
			quotaUsed, quotaRemaining := report.QuotaUsed, report.QuotaRemaining
			resp.QuotaUsed = &quotaUsed
			resp.QuotaRemaining = &quotaRemaining
		}

		sendJSON(w, http.StatusOK, resp)
	}
}
