package server

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hericmr/geosantos-sub000/internal/geosantos"
)

func handleLeaderboard(logger *slog.Logger, store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mode := geosantos.Mode(r.URL.Query().Get("mode"))
		if mode != "" && !mode.Valid() {
			writeError(w, http.StatusBadRequest, "mode must be regions or landmarks")
			return
		}

		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				writeError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = n
		}

		entries, err := store.Leaderboard(r.Context(), mode, limit)
		if err != nil {
			logger.Error("loading leaderboard", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to load leaderboard")
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}
