package server

import (
	"context"
	"errors"

	"github.com/paulmach/orb"

	"github.com/hericmr/geosantos-sub000/internal/geosantos"
)

var ErrNotFound = errors.New("not found")

// RegionRecord is a stored region boundary.
type RegionRecord struct {
	ID    string
	Name  string
	Shape orb.Geometry
}

type LandmarkRecord struct {
	ID       string
	Name     string
	Location geosantos.Point
}

// Store persists the map dataset and the leaderboard.
type Store interface {
	SaveScore(ctx context.Context, e geosantos.LeaderboardEntry) error
	Leaderboard(ctx context.Context, mode geosantos.Mode, limit int) ([]geosantos.LeaderboardEntry, error)

	PutRegion(ctx context.Context, r RegionRecord) error
	PutLandmark(ctx context.Context, l LandmarkRecord) error
	ListRegions(ctx context.Context) ([]RegionRecord, error)
	ListLandmarks(ctx context.Context) ([]LandmarkRecord, error)
	CountRegions(ctx context.Context) (int, error)
}
