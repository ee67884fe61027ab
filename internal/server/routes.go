package server

import (
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/swaggest/swgui/v5emb"

	"github.com/hericmr/geosantos-sub000/internal/handler/health"
)

func addRoutes(r chi.Router, logger *slog.Logger, deps Deps) {
	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("Geosantos API", "/openapi.json", "/docs"))
	r.Mount("/healthz", health.NewHandler(logger, deps.Checks).Routes())

	r.Get("/api/regions", handleRegions(deps.Atlas))
	r.Get("/api/landmarks", handleLandmarks(deps.Atlas))
	r.Get("/api/leaderboard", handleLeaderboard(logger, deps.Store))

	r.Post("/api/sessions", handleCreateSession(deps.Sessions))

	// Per-session routes — {id} resolved by sessionMiddleware.
	r.Route("/api/sessions/{id}", func(r chi.Router) {
		r.Use(sessionMiddleware(deps.Sessions))
		r.Get("/", handleGetSession())
		r.Delete("/", handleDeleteSession(deps.Sessions))
		r.Post("/click", handleClick(logger))
		r.Post("/pause", handlePauseSession())
		r.Post("/restart", handleRestartSession())
		r.Get("/events", handleEvents(deps.Sessions, deps.Broker))
		r.Get("/ws", handleSessionWS(logger, deps.Sessions, deps.Broker))
	})

	if deps.SPADir != "" {
		if info, err := os.Stat(deps.SPADir); err == nil && info.IsDir() {
			logger.Info("serving SPA", "dir", deps.SPADir)
			r.NotFound(handleSPA(deps.SPADir))
		}
	}
}
