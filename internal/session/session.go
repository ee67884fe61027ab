// Package session hosts live quiz sessions. A Session wraps one round engine,
// drives its virtual clocks from a wall-clock ticker and keeps the player's
// running score.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hericmr/geosantos-sub000/internal/geo"
	"github.com/hericmr/geosantos-sub000/internal/geosantos"
	"github.com/hericmr/geosantos-sub000/internal/phase"
	"github.com/hericmr/geosantos-sub000/internal/round"
	"github.com/hericmr/geosantos-sub000/internal/timer"
)

var ErrEmptyDeck = errors.New("no targets for mode")

const keyRoundClock = "round.clock"

// LeaderboardWriter persists finished games.
type LeaderboardWriter interface {
	SaveScore(ctx context.Context, e geosantos.LeaderboardEntry) error
}

// EventSink receives every engine event tagged with its session id.
// Publish must not block.
type EventSink interface {
	Publish(sessionID string, e round.Event)
}

type Config struct {
	Round round.Config

	// RoundTime is how long the player has to click each round.
	RoundTime time.Duration

	// TickInterval is the wall-clock period of the ticker advancing the
	// session's clocks. Zero disables the ticker; callers then drive the
	// session with Advance.
	TickInterval time.Duration

	// MaxTimerDelay clamps every delay scheduled on the session's timers.
	MaxTimerDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		Round:         round.DefaultConfig(),
		RoundTime:     10 * time.Second,
		TickInterval:  16 * time.Millisecond,
		MaxTimerDelay: time.Minute,
	}
}

// State is a point-in-time view of a session.
type State struct {
	ID                 string                    `json:"id"`
	PlayerName         string                    `json:"playerName"`
	Mode               geosantos.Mode            `json:"mode"`
	Phase              phase.Phase               `json:"phase"`
	Round              int                       `json:"round"`
	Rounds             int                       `json:"rounds"`
	Score              int                       `json:"score"`
	Correct            int                       `json:"correct"`
	CumulativeDistance float64                   `json:"cumulativeDistance"`
	ConsecutiveCorrect int                       `json:"consecutiveCorrect"`
	TimeLeftMs         int64                     `json:"timeLeftMs"`
	Target             *geosantos.RoundTarget    `json:"target,omitempty"`
	LastScore          *geosantos.ScoreBreakdown `json:"lastScore,omitempty"`
	Finished           bool                      `json:"finished"`
}

type Session struct {
	ID         string
	PlayerName string
	Mode       geosantos.Mode

	mu      sync.Mutex
	cfg     Config
	engine  *round.Engine
	stages  *timer.Manager
	clock   *timer.Manager
	atlas   *geo.Atlas
	board   LeaderboardWriter
	sink    EventSink
	logger  *slog.Logger
	rng     *rand.Rand
	deck    []string
	score   int
	correct int

	clockDeadline time.Duration
	finished      bool
	lastActive    time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newSession(ctx context.Context, id, player string, mode geosantos.Mode, cfg Config, atlas *geo.Atlas, board LeaderboardWriter, sink EventSink, logger *slog.Logger) *Session {
	ctx, cancel := context.WithCancel(ctx)
	logger = logger.With("session", id)

	s := &Session{
		ID:         id,
		PlayerName: player,
		Mode:       mode,
		cfg:        cfg,
		atlas:      atlas,
		board:      board,
		sink:       sink,
		logger:     logger,
		rng:        rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
		lastActive: time.Now(),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	shared := timer.NewClock()
	s.stages = timer.New(timer.WithClock(shared), timer.WithMaxDelay(cfg.MaxTimerDelay), timer.WithLogger(logger))
	s.clock = timer.New(timer.WithClock(shared), timer.WithMaxDelay(cfg.MaxTimerDelay), timer.WithLogger(logger))
	s.engine = round.New(round.Deps{
		Geometry: atlas,
		Host:     s,
		Events:   round.PublisherFunc(s.publish),
		Timers:   s.stages,
		Logger:   logger,
	}, cfg.Round)
	return s
}

// start opens round one and, when configured, launches the ticker. Callers
// hold no lock.
func (s *Session) start() error {
	s.mu.Lock()
	err := s.engine.Start(s.ctx)
	s.mu.Unlock()
	if err != nil {
		close(s.done)
		return fmt.Errorf("starting session: %w", err)
	}
	if s.cfg.TickInterval > 0 {
		go s.run()
	} else {
		close(s.done)
	}
	return nil
}

func (s *Session) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-ticker.C:
			s.Advance(now.Sub(last))
			last = now
		}
	}
}

// Advance moves the session's shared virtual clock forward by d, firing
// whatever falls due on either timer set. Time steps from deadline to
// deadline; at equal deadlines the round clock goes first.
func (s *Session) Advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d < 0 {
		d = 0
	}
	target := s.clock.Now() + d
	for {
		next, ok := s.nextDeadline()
		if !ok || next > target {
			break
		}
		s.step(next - s.clock.Now())
	}
	s.step(target - s.clock.Now())
}

// step moves the shared clock by d through the round clock, then runs the
// stage timers that fell due on the way.
func (s *Session) step(d time.Duration) {
	s.clock.Advance(d)
	s.stages.Advance(0)
}

func (s *Session) nextDeadline() (time.Duration, bool) {
	a, okA := s.clock.Next()
	b, okB := s.stages.Next()
	switch {
	case okA && okB:
		return min(a, b), true
	case okA:
		return a, true
	default:
		return b, okB
	}
}

// Click submits a click at p. The time left is read from the round clock.
func (s *Session) Click(p geosantos.Point) (geosantos.ScoreBreakdown, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()

	b, err := s.engine.HandleClick(geosantos.ClickEvent{Point: p, TimeLeft: s.timeLeft()})
	if err != nil {
		return b, err
	}
	s.clock.Cancel(keyRoundClock)
	return b, nil
}

// Pause stops every timer and parks the engine. Restart resumes play.
func (s *Session) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()

	s.clock.CancelAll()
	s.engine.Pause()
}

// Restart starts a fresh game from round one with a reshuffled deck.
func (s *Session) Restart() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()

	s.clock.CancelAll()
	s.deck = nil
	s.score = 0
	s.correct = 0
	s.finished = false
	if err := s.engine.Restart(s.ctx); err != nil {
		return fmt.Errorf("restarting session: %w", err)
	}
	return nil
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()

	st := s.engine.State()
	out := State{
		ID:                 s.ID,
		PlayerName:         s.PlayerName,
		Mode:               s.Mode,
		Phase:              st.Phase,
		Round:              st.Round,
		Rounds:             s.engine.Config().Rounds,
		Score:              s.score,
		Correct:            s.correct,
		CumulativeDistance: st.CumulativeDistance,
		ConsecutiveCorrect: st.ConsecutiveCorrect,
		TimeLeftMs:         s.timeLeft().Milliseconds(),
		Finished:           s.finished,
	}
	if t := s.engine.Target(); t.Valid() {
		out.Target = &t
	}
	if b, ok := s.engine.LastScore(); ok {
		out.LastScore = &b
	}
	return out
}

// Done is closed once the ticker goroutine has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close stops the ticker and drops every pending timer.
func (s *Session) Close() {
	s.cancel()
	<-s.done

	s.mu.Lock()
	s.clock.CancelAll()
	s.stages.CancelAll()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

func (s *Session) timeLeft() time.Duration {
	if !s.clock.Active(keyRoundClock) {
		return 0
	}
	left := s.clockDeadline - s.clock.Now()
	if left < 0 {
		return 0
	}
	return left
}

// publish runs inside engine calls, so the session lock is already held.
func (s *Session) publish(e round.Event) {
	switch {
	case e.Type == round.EventRound:
		s.clockDeadline = s.clock.Now() + s.cfg.RoundTime
		s.clock.Schedule(keyRoundClock, s.cfg.RoundTime, s.roundTimeUp)
	case e.Type == round.EventPhase && !clockRunsIn(e.Phase):
		s.clock.Cancel(keyRoundClock)
	}
	if s.sink != nil {
		s.sink.Publish(s.ID, e)
	}
}

// clockRunsIn reports whether the round clock keeps running in the named
// phase. An aborted click passes through ProcessingClick and must not stop it.
func clockRunsIn(p string) bool {
	return p == phase.WaitingForClick.String() || p == phase.ProcessingClick.String()
}

func (s *Session) roundTimeUp() {
	if err := s.engine.TimeUp(); err != nil {
		s.logger.Debug("round clock expired outside a round", "error", err)
	}
}

// NextTarget draws the next target from a shuffled deck of the mode's ids,
// reshuffling once every id has been used.
func (s *Session) NextTarget(_ context.Context, round int) (geosantos.RoundTarget, error) {
	if len(s.deck) == 0 {
		s.deck = s.shuffledDeck()
		if len(s.deck) == 0 {
			return geosantos.RoundTarget{}, fmt.Errorf("%s: %w", s.Mode, ErrEmptyDeck)
		}
	}
	id := s.deck[0]
	s.deck = s.deck[1:]

	target, err := s.atlas.Target(s.kind(), id)
	if err != nil {
		return geosantos.RoundTarget{}, fmt.Errorf("round %d: %w", round, err)
	}
	return target, nil
}

func (s *Session) RecordScore(round int, b geosantos.ScoreBreakdown) {
	s.score += b.Total
	if b.Correct() {
		s.correct++
	}
	s.logger.Info("round scored", "round", round, "total", b.Total, "bonus", b.Bonus, "distance_m", b.Distance)
}

func (s *Session) GameOver(ctx context.Context, sum round.Summary) {
	s.finished = true
	s.clock.CancelAll()
	if s.board == nil {
		return
	}

	entry := geosantos.LeaderboardEntry{
		ID:         uuid.New().String(),
		PlayerName: s.PlayerName,
		Mode:       s.Mode,
		Score:      s.score,
		Rounds:     sum.Rounds,
		Correct:    sum.Correct,
		Distance:   sum.CumulativeDistance,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.board.SaveScore(ctx, entry); err != nil {
		s.logger.Error("saving leaderboard entry", "error", err)
		return
	}
	s.logger.Info("leaderboard entry saved", "score", entry.Score, "reason", sum.Reason)
}

func (s *Session) kind() geosantos.TargetKind {
	if s.Mode == geosantos.ModeLandmarks {
		return geosantos.TargetLandmark
	}
	return geosantos.TargetRegion
}

func (s *Session) shuffledDeck() []string {
	var ids []string
	switch s.kind() {
	case geosantos.TargetLandmark:
		for _, l := range s.atlas.Landmarks() {
			ids = append(ids, l.ID)
		}
	default:
		for _, r := range s.atlas.Regions() {
			ids = append(ids, r.ID)
		}
	}
	s.rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	return ids
}
