package handlers

import (
	"log/slog"
	"net/http"

	"github.com/MOSSV2/morphic/internal/stats"
)

// StatsHandler serves the analytics snapshot for the dashboard. Unlike the
// admission path, a store outage here is surfaced as an error: silently
// rendering an empty dashboard would mislead operators.
func StatsHandler(agg *stats.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			sendError(w, "Method not allowed", "METHOD_NOT_ALLOWED", http.StatusMethodNotAllowed)
			return
		}

		rng := r.URL.Query().Get("range")
		if rng == "" {
			rng = stats.DefaultRange
		}

		snapshot, err := agg.Snapshot(r.Context(), rng)
		if err != nil {
			slog.Error("failed to compute stats snapshot", "range", rng, "error", err)
			sendError(w, "Failed to fetch statistics", "STATS_FAILED", http.StatusInternalServerError)
			return
		}

		sendJSON(w, http.StatusOK, snapshot)
	}
}
