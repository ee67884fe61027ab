package server

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/hericmr/geosantos-sub000/internal/geosantos"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) SaveScore(ctx context.Context, e geosantos.LeaderboardEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leaderboard (id, player_name, mode, score, rounds, correct, distance, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.PlayerName, string(e.Mode), e.Score, e.Rounds, e.Correct, e.Distance, e.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("inserting leaderboard entry: %w", err)
	}
	return nil
}

// Leaderboard returns the best scores, highest first. An empty mode lists
// every mode.
func (s *SQLiteStore) Leaderboard(ctx context.Context, mode geosantos.Mode, limit int) ([]geosantos.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = defaultLeaderboardLimit
	}
	limit = min(limit, maxLeaderboardLimit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, player_name, mode, score, rounds, correct, distance, created_at
		FROM leaderboard
		WHERE ? = '' OR mode = ?
		ORDER BY score DESC, created_at ASC
		LIMIT ?
	`, string(mode), string(mode), limit)
	if err != nil {
		return nil, fmt.Errorf("querying leaderboard: %w", err)
	}
	defer rows.Close()

	entries := []geosantos.LeaderboardEntry{}
	for rows.Next() {
		var e geosantos.LeaderboardEntry
		var m, createdAt string
		if err := rows.Scan(&e.ID, &e.PlayerName, &m, &e.Score, &e.Rounds, &e.Correct, &e.Distance, &createdAt); err != nil {
			return nil, err
		}
		e.Mode = geosantos.Mode(m)
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			e.CreatedAt = t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) PutRegion(ctx context.Context, r RegionRecord) error {
	data, err := geojson.NewGeometry(r.Shape).MarshalJSON()
	if err != nil {
		return fmt.Errorf("encoding region %q: %w", r.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO regions (id, name, geometry) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, geometry = excluded.geometry
	`, r.ID, r.Name, string(data))
	return err
}

func (s *SQLiteStore) PutLandmark(ctx context.Context, l LandmarkRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO landmarks (id, name, lat, lng) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, lat = excluded.lat, lng = excluded.lng
	`, l.ID, l.Name, l.Location.Lat, l.Location.Lng)
	return err
}

func (s *SQLiteStore) ListRegions(ctx context.Context) ([]RegionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, geometry FROM regions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RegionRecord
	for rows.Next() {
		var r RegionRecord
		var data string
		if err := rows.Scan(&r.ID, &r.Name, &data); err != nil {
			return nil, err
		}
		g, err := geojson.UnmarshalGeometry([]byte(data))
		if err != nil {
			return nil, fmt.Errorf("decoding region %q: %w", r.ID, err)
		}
		r.Shape = g.Geometry()
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListLandmarks(ctx context.Context) ([]LandmarkRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, lat, lng FROM landmarks ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LandmarkRecord
	for rows.Next() {
		var l LandmarkRecord
		if err := rows.Scan(&l.ID, &l.Name, &l.Location.Lat, &l.Location.Lng); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CountRegions(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM regions`).Scan(&n)
	return n, err
}
