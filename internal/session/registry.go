package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hericmr/geosantos-sub000/internal/geo"
	"github.com/hericmr/geosantos-sub000/internal/geosantos"
)

var (
	ErrNotFound    = errors.New("session not found")
	ErrInvalidMode = errors.New("invalid mode")
)

// CreateRequest describes a new session.
type CreateRequest struct {
	PlayerName string
	Mode       geosantos.Mode
	// Rounds overrides the configured round limit when positive.
	Rounds int
}

// evicter is implemented by sinks that hold per-session subscribers.
type evicter interface {
	Evict(sessionID string)
}

// Registry owns every live session in the process.
type Registry struct {
	cfg    Config
	atlas  *geo.Atlas
	board  LeaderboardWriter
	sink   EventSink
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry(cfg Config, atlas *geo.Atlas, board LeaderboardWriter, sink EventSink, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RoundTime <= 0 {
		cfg.RoundTime = DefaultConfig().RoundTime
	}
	if cfg.MaxTimerDelay > 0 && cfg.RoundTime > cfg.MaxTimerDelay {
		cfg.RoundTime = cfg.MaxTimerDelay
		if cfg.Round.Scoring.ReferenceTime > cfg.RoundTime {
			cfg.Round.Scoring.ReferenceTime = cfg.RoundTime
		}
	}
	return &Registry{
		cfg:      cfg,
		atlas:    atlas,
		board:    board,
		sink:     sink,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Create builds a session, opens its first round and starts its ticker. The
// session outlives ctx; it runs until Remove or Close.
func (r *Registry) Create(ctx context.Context, req CreateRequest) (*Session, error) {
	if req.Mode == "" {
		req.Mode = geosantos.ModeRegions
	}
	if !req.Mode.Valid() {
		return nil, fmt.Errorf("%q: %w", req.Mode, ErrInvalidMode)
	}
	name := strings.TrimSpace(req.PlayerName)
	if name == "" {
		name = "anonymous"
	}

	cfg := r.cfg
	if req.Rounds > 0 {
		cfg.Round.Rounds = req.Rounds
	}

	id := uuid.New().String()
	s := newSession(context.WithoutCancel(ctx), id, name, req.Mode, cfg, r.atlas, r.board, r.sink, r.logger)
	if err := s.start(); err != nil {
		s.cancel()
		return nil, err
	}

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()

	r.logger.Info("session created", "session", id, "player", name, "mode", req.Mode, "rounds", cfg.Round.Rounds)
	return s, nil
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	return s, nil
}

// Remove closes and forgets a session. It reports whether the id was known.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return false
	}
	s.Close()
	if e, ok := r.sink.(evicter); ok {
		e.Evict(id)
	}
	r.logger.Info("session removed", "session", id)
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep removes sessions nobody has touched for ttl and returns how many went.
func (r *Registry) Sweep(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)

	r.mu.RLock()
	var stale []string
	for id, s := range r.sessions {
		if s.idleSince().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()

	n := 0
	for _, id := range stale {
		if r.Remove(id) {
			n++
		}
	}
	return n
}

// RunJanitor sweeps idle sessions every interval until ctx is done.
func (r *Registry) RunJanitor(ctx context.Context, interval, ttl time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := r.Sweep(ttl); n > 0 {
				r.logger.Info("idle sessions swept", "count", n)
			}
		}
	}
}

func (r *Registry) Close() error {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	e, evicts := r.sink.(evicter)
	for id, s := range sessions {
		s.Close()
		if evicts {
			e.Evict(id)
		}
	}
	return nil
}
