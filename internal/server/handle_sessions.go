package server

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strings"

	"github.com/hericmr/geosantos-sub000/internal/geosantos"
	"github.com/hericmr/geosantos-sub000/internal/round"
	"github.com/hericmr/geosantos-sub000/internal/session"
)

const maxRounds = 50

type CreateSessionRequest struct {
	PlayerName string         `json:"playerName"`
	Mode       geosantos.Mode `json:"mode,omitempty" enum:"regions,landmarks"`
	Rounds     int            `json:"rounds,omitempty"`
}

type ClickRequest struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type ClickResponse struct {
	Score geosantos.ScoreBreakdown `json:"score"`
	State session.State            `json:"state"`
}

func handleCreateSession(sessions *session.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateSessionRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if len(strings.TrimSpace(req.PlayerName)) > 40 {
			writeError(w, http.StatusBadRequest, "player name too long")
			return
		}
		if req.Rounds < 0 || req.Rounds > maxRounds {
			writeError(w, http.StatusBadRequest, "rounds out of range")
			return
		}

		s, err := sessions.Create(r.Context(), session.CreateRequest{
			PlayerName: req.PlayerName,
			Mode:       req.Mode,
			Rounds:     req.Rounds,
		})
		switch {
		case errors.Is(err, session.ErrInvalidMode):
			writeError(w, http.StatusBadRequest, "mode must be regions or landmarks")
			return
		case errors.Is(err, session.ErrEmptyDeck):
			writeError(w, http.StatusServiceUnavailable, "no map data for mode")
			return
		case err != nil:
			writeError(w, http.StatusInternalServerError, "failed to create session")
			return
		}

		writeJSON(w, http.StatusCreated, s.State())
	}
}

func handleGetSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, sessionFrom(r).State())
	}
}

func handleClick(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ClickRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if !validCoordinate(req.Lat, req.Lng) {
			writeError(w, http.StatusBadRequest, "lat/lng out of range")
			return
		}

		s := sessionFrom(r)
		score, err := s.Click(geosantos.Point{Lat: req.Lat, Lng: req.Lng})
		if status, msg, ok := clickError(err); ok {
			if status >= http.StatusInternalServerError || status == http.StatusUnprocessableEntity {
				logger.Warn("click aborted", "session", s.ID, "error", err)
			}
			writeError(w, status, msg)
			return
		}

		writeJSON(w, http.StatusOK, ClickResponse{Score: score, State: s.State()})
	}
}

// clickError maps engine errors to an HTTP status and message.
func clickError(err error) (int, string, bool) {
	switch {
	case err == nil:
		return 0, "", false
	case errors.Is(err, round.ErrClickInFlight):
		return http.StatusConflict, "click already in flight", true
	case errors.Is(err, round.ErrNotAccepting):
		return http.StatusConflict, "not accepting clicks", true
	case errors.Is(err, round.ErrGeometry):
		return http.StatusUnprocessableEntity, "could not resolve click against target", true
	default:
		return http.StatusInternalServerError, "failed to process click", true
	}
}

func validCoordinate(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

func handlePauseSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := sessionFrom(r)
		s.Pause()
		writeJSON(w, http.StatusOK, s.State())
	}
}

func handleRestartSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := sessionFrom(r)
		if err := s.Restart(); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to restart session")
			return
		}
		writeJSON(w, http.StatusOK, s.State())
	}
}

// handleDeleteSession ends a session. The registry evicts its stream
// subscribers.
func handleDeleteSession(sessions *session.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions.Remove(sessionFrom(r).ID)
		w.WriteHeader(http.StatusNoContent)
	}
}
