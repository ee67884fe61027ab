package server

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"

	"github.com/hericmr/geosantos-sub000/internal/geo"
)

//go:embed data/santos.geojson
var santosGeoJSON []byte

// SeedDataset loads the bundled Santos neighbourhoods and landmarks if the
// store holds no regions yet. Idempotent.
func SeedDataset(ctx context.Context, logger *slog.Logger, store Store) error {
	n, err := store.CountRegions(ctx)
	if err != nil {
		return fmt.Errorf("counting regions: %w", err)
	}
	if n > 0 {
		return nil
	}
	return ImportGeoJSON(ctx, logger, store, santosGeoJSON)
}

// ImportGeoJSON stores every feature of a FeatureCollection: polygons as
// regions, points as landmarks.
func ImportGeoJSON(ctx context.Context, logger *slog.Logger, store Store, data []byte) error {
	staged := geo.NewAtlas()
	if err := staged.LoadGeoJSON(data); err != nil {
		return err
	}

	regions, landmarks := staged.Regions(), staged.Landmarks()
	for _, r := range regions {
		if err := store.PutRegion(ctx, RegionRecord{ID: r.ID, Name: r.Name, Shape: r.Shape}); err != nil {
			return fmt.Errorf("storing region %q: %w", r.ID, err)
		}
	}
	for _, l := range landmarks {
		if err := store.PutLandmark(ctx, LandmarkRecord{ID: l.ID, Name: l.Name, Location: l.Location}); err != nil {
			return fmt.Errorf("storing landmark %q: %w", l.ID, err)
		}
	}

	logger.Info("dataset imported", "regions", len(regions), "landmarks", len(landmarks))
	return nil
}

// LoadAtlas fills atlas from the store.
func LoadAtlas(ctx context.Context, store Store, atlas *geo.Atlas) error {
	regions, err := store.ListRegions(ctx)
	if err != nil {
		return fmt.Errorf("listing regions: %w", err)
	}
	for _, r := range regions {
		if err := atlas.AddRegion(r.ID, r.Name, r.Shape); err != nil {
			return err
		}
	}

	landmarks, err := store.ListLandmarks(ctx)
	if err != nil {
		return fmt.Errorf("listing landmarks: %w", err)
	}
	for _, l := range landmarks {
		atlas.AddLandmark(l.ID, l.Name, l.Location)
	}
	return nil
}
