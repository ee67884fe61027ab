package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/hericmr/geosantos-sub000/internal/config"
	"github.com/hericmr/geosantos-sub000/internal/database"
	"github.com/hericmr/geosantos-sub000/internal/geo"
	"github.com/hericmr/geosantos-sub000/internal/handler/health"
	"github.com/hericmr/geosantos-sub000/internal/migrations"
	"github.com/hericmr/geosantos-sub000/internal/server"
	"github.com/hericmr/geosantos-sub000/internal/session"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	// --- SQLite ---
	db, err := database.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("connecting to sqlite: %w", err)
	}
	defer db.Close()

	applied, err := migrations.Run(ctx, db)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("connected to sqlite", "path", cfg.DBPath, "migrations_applied", applied)

	// --- Map data ---
	store := server.NewSQLiteStore(db)
	if err := server.SeedDataset(ctx, logger, store); err != nil {
		return fmt.Errorf("seeding dataset: %w", err)
	}
	atlas := geo.NewAtlas()
	if err := server.LoadAtlas(ctx, store, atlas); err != nil {
		return fmt.Errorf("loading atlas: %w", err)
	}
	logger.Info("atlas loaded", "regions", len(atlas.Regions()), "landmarks", len(atlas.Landmarks()))

	// --- Sessions ---
	broker := server.NewBroker()
	sessions := session.NewRegistry(cfg.Session(), atlas, store, broker, logger)
	defer sessions.Close()

	// --- HTTP Server ---
	srv := server.New(cfg.HTTPAddr, logger, server.Deps{
		Sessions: sessions,
		Broker:   broker,
		Store:    store,
		Atlas:    atlas,
		Checks: map[string]health.Checker{
			"sqlite": dbChecker{db},
			"atlas":  atlasChecker(atlas),
		},
		SPADir: cfg.SPADir,
	})

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr)
		return srv.Run(gctx)
	})

	g.Go(func() error {
		return sessions.RunJanitor(gctx, cfg.SweepInterval, cfg.SessionIdleTTL)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		// Closing the sessions ends their event streams so Shutdown is not
		// held up by open SSE and WebSocket connections.
		sessions.Close()
		return srv.Shutdown(context.Background())
	})

	return g.Wait()
}

// dbChecker adapts *sql.DB to health.Checker.
type dbChecker struct{ db *sql.DB }

func (d dbChecker) Check(ctx context.Context) error { return d.db.PingContext(ctx) }

func atlasChecker(atlas *geo.Atlas) health.Checker {
	return health.CheckerFunc(func(context.Context) error {
		if len(atlas.Regions()) == 0 {
			return errors.New("no regions loaded")
		}
		return nil
	})
}
