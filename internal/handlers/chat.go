package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MOSSV2/morphic/internal/auth"
	"github.com/MOSSV2/morphic/internal/config"
	"github.com/MOSSV2/morphic/internal/models"
	"github.com/MOSSV2/morphic/internal/modelusage"
	"github.com/MOSSV2/morphic/internal/ratelimit"
)

// selectedModelCookie holds the UI's model choice as URL-encoded JSON.
const selectedModelCookie = "selectedModel"

// ChatService generates the response for an admitted chat request. The
// implementation (streaming proxy to a model provider) lives outside this
// core; handlers only gate access to it.
type ChatService interface {
	Respond(w http.ResponseWriter, r *http.Request, req *models.ChatRequest, modelID string) error
}

// ChatHandler gates chat requests behind the rate limiter. Admitted requests
// record model usage and are delegated to the chat service; denied requests
// get a 429 with machine-readable reset information.
func ChatHandler(authSvc *auth.Service, limiter *ratelimit.Limiter, tracker *modelusage.Tracker, cfg *config.Config, svc ChatService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			sendError(w, "Method not allowed", "METHOD_NOT_ALLOWED", http.StatusMethodNotAllowed)
			return
		}

		// Share pages are public; never burn quota from them.
		if referer := r.Header.Get("Referer"); strings.Contains(referer, "/share/") {
			sendError(w, "Chat API is not available on share pages", "FORBIDDEN", http.StatusForbidden)
			return
		}

		var req models.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			sendError(w, "Invalid request body", "BAD_REQUEST", http.StatusBadRequest)
			return
		}

		identity, authenticated := authSvc.Identity(w, r)
		model := selectedModel(r, cfg)

		if !model.Enabled {
			sendError(w, "Selected model is not enabled", "MODEL_DISABLED", http.StatusNotFound)
			return
		}
		if model.RequireAuth && !authenticated {
			sendError(w, "This model requires authentication. Please sign in to use it.",
				"AUTH_REQUIRED", http.StatusUnauthorized)
			return
		}

		decision := limiter.Check(r.Context(), identity, authenticated)
		if !decision.Allowed {
			writeRateLimited(w, decision)
			return
		}

		// Usage tracking is best-effort; a failed sample must not fail the chat.
		if err := tracker.Record(r.Context(), model.ID); err != nil {
			slog.Warn("failed to record model usage", "model", model.ID, "error", err)
		}

		if err := svc.Respond(w, r, &req, model.ID); err != nil {
			slog.Error("chat service failed", "model", model.ID, "error", err)
			sendError(w, "Failed to generate response", "CHAT_FAILED", http.StatusInternalServerError)
		}
	}
}

// selectedModel reads the UI's model choice from the cookie, falling back to
// the configured default on any parse trouble.
func selectedModel(r *http.Request, cfg *config.Config) models.Model {
	fallback := models.Model{ID: cfg.DefaultModel, Enabled: true}

	cookie, err := r.Cookie(selectedModelCookie)
	if err != nil || cookie.Value == "" {
		return fallback
	}

	raw := cookie.Value
	if decoded, err := url.QueryUnescape(raw); err == nil {
		raw = decoded
	}

	var model models.Model
	if err := json.Unmarshal([]byte(raw), &model); err != nil || model.ID == "" {
		slog.Warn("failed to parse selected model cookie", "error", err)
		return fallback
	}
	return model
}

func writeRateLimited(w http.ResponseWriter, d ratelimit.Decision) {
	resetTime := d.ResetTime.UTC().Format(time.RFC3339)

	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", resetTime)
	if d.QuotaApplies {
		w.Header().Set("X-RateLimit-Quota-Remaining", strconv.Itoa(d.QuotaRemaining))
	}

	body := models.RateLimitError{
		Error:     "Rate limit exceeded",
		Code:      string(d.Reason),
		ResetTime: resetTime,
		Remaining: d.Remaining,
	}
	switch d.Reason {
	case ratelimit.DenyQuota:
		body.Error = "Lifetime quota exceeded"
		body.Message = "You have used your lifetime request quota."
	default:
		body.Message = "You have exceeded the rolling request limit. Please try again later."
	}
	if d.QuotaApplies {
		quotaRemaining := d.QuotaRemaining
		body.QuotaRemaining = &quotaRemaining
	}

	sendJSON(w, http.StatusTooManyRequests, body)
}
