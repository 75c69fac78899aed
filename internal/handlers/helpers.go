package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/MOSSV2/morphic/internal/models"
)

// sendJSON writes a JSON response with the given status code
func sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// sendError writes a JSON error response
func sendError(w http.ResponseWriter, message, code string, status int) {
	sendJSON(w, status, models.ErrorResponse{
		Error: message,
		Code:  code,
	})
}
