// Package round coordinates a quiz round: it validates a click against the
// target's geometry, scores it, and drives the phase machine through a fixed
// feedback sequence scheduled on the timer manager.
//
// Stages fire strictly in the order sprite, indicator or highlight, panel
// countdown, round transition. Each stage is an independent keyed timer so a
// pause cancels all of them uniformly.
//
// An Engine is not safe for concurrent use. The owner serialises calls to its
// methods and to the timer manager's Advance.
package round

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/hericmr/geosantos-sub000/internal/geo"
	"github.com/hericmr/geosantos-sub000/internal/geosantos"
	"github.com/hericmr/geosantos-sub000/internal/phase"
	"github.com/hericmr/geosantos-sub000/internal/scoring"
	"github.com/hericmr/geosantos-sub000/internal/timer"
)

var (
	ErrNotAccepting  = errors.New("not accepting clicks")
	ErrClickInFlight = errors.New("click already in flight")
	ErrGeometry      = errors.New("geometry unavailable")
	ErrNotIdle       = errors.New("engine is not idle")
)

// Timer keys. Everything under StagePrefix belongs to the current round's
// feedback sequence.
const (
	StagePrefix  = "stage."
	keySprite    = StagePrefix + "sprite"
	keyIndicator = StagePrefix + "indicator"
	keyHighlight = StagePrefix + "highlight"
	keyPanel     = StagePrefix + "panel"
	keyCountdown = StagePrefix + "countdown"
	keySettle    = "click.settle"
)

// Geometry is the engine's view of the map data.
type Geometry interface {
	PointInRegion(p geosantos.Point, regionID string) (bool, error)
	NearestBorderPoint(p geosantos.Point, regionID string) (geosantos.Point, float64, error)
	DistanceToLandmark(p geosantos.Point, landmarkID string) (float64, error)
}

// Host supplies targets and owns the session score.
type Host interface {
	NextTarget(ctx context.Context, round int) (geosantos.RoundTarget, error)
	RecordScore(round int, b geosantos.ScoreBreakdown)
	GameOver(ctx context.Context, s Summary)
}

type Summary struct {
	Rounds             int     `json:"rounds"`
	Correct            int     `json:"correct"`
	CumulativeDistance float64 `json:"cumulativeDistance"`
	Exhausted          bool    `json:"exhausted"`
	Reason             string  `json:"reason"`
}

type Deps struct {
	Geometry Geometry
	Host     Host
	Events   Publisher
	Timers   *timer.Manager
	Logger   *slog.Logger
}

// outcome is what one round produced, kept until the next round re-arms.
type outcome struct {
	click      geosantos.Point
	nearest    geosantos.Point
	hasNearest bool
	score      geosantos.ScoreBreakdown
	timeUp     bool
}

type Engine struct {
	cfg      Config
	machine  *phase.Machine
	calc     *scoring.Calculator
	timers   *timer.Manager
	geometry Geometry
	host     Host
	events   Publisher
	logger   *slog.Logger

	// ctx is the context given to Start; timer-driven stages run under it.
	ctx context.Context

	target   geosantos.RoundTarget
	last     *outcome
	inFlight bool
	correct  int
	reason   string
}

func New(deps Deps, cfg Config) *Engine {
	cfg = cfg.normalize()
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Events == nil {
		deps.Events = discard{}
	}
	if deps.Timers == nil {
		deps.Timers = timer.New(timer.WithLogger(deps.Logger))
	}

	e := &Engine{
		cfg:      cfg,
		calc:     scoring.New(cfg.Scoring),
		timers:   deps.Timers,
		geometry: deps.Geometry,
		host:     deps.Host,
		events:   deps.Events,
		logger:   deps.Logger,
		ctx:      context.Background(),
	}
	e.machine = phase.New(deps.Timers, deps.Logger, phase.WithSettle(cfg.PhaseSettle))

	e.machine.Subscribe(func(c phase.Change) {
		e.events.Publish(Event{
			Type:     EventPhase,
			Round:    e.machine.State().Round,
			Phase:    c.To.String(),
			Previous: c.From.String(),
		})
	})
	e.machine.OnEnter(phase.ShowingSprite, func(phase.Phase) { e.startSprite() })
	e.machine.OnEnter(phase.ShowingFeedback, func(phase.Phase) { e.startFeedback() })
	e.machine.OnEnter(phase.Transitioning, func(phase.Phase) { e.finishRound() })
	e.machine.OnEnter(phase.NextRound, func(phase.Phase) { e.rearm() })
	e.machine.OnEnter(phase.GameOver, func(phase.Phase) { e.gameOver() })

	return e
}

func (e *Engine) Phase() phase.Phase {
	return e.machine.Current()
}

func (e *Engine) State() phase.RoundState {
	return e.machine.State()
}

func (e *Engine) Target() geosantos.RoundTarget {
	return e.target
}

// LastScore returns the breakdown of the current round's click, if any.
func (e *Engine) LastScore() (geosantos.ScoreBreakdown, bool) {
	if e.last == nil {
		return geosantos.ScoreBreakdown{}, false
	}
	return e.last.score, true
}

func (e *Engine) Config() Config {
	return e.cfg
}

func (e *Engine) IsTransitioning() bool {
	return e.machine.IsTransitioning()
}

// Start begins a round from Idle: it asks the host for a target and waits for
// a click.
func (e *Engine) Start(ctx context.Context) error {
	if e.machine.Current() != phase.Idle {
		return ErrNotIdle
	}
	e.ctx = ctx

	target, err := e.nextTarget()
	if err != nil {
		return err
	}
	e.target = target
	e.last = nil
	e.machine.Transition(phase.WaitingForClick)
	e.publishRound()
	return nil
}

// Restart clears the session and starts again from round one.
func (e *Engine) Restart(ctx context.Context) error {
	e.timers.CancelAll()
	e.machine.ResetSession()
	e.calc.ResetCumulativeDistance()
	e.inFlight = false
	e.correct = 0
	e.reason = ""
	e.last = nil
	return e.Start(ctx)
}

// Pause cancels every pending stage and parks the machine in Idle. Start
// resumes with a fresh target.
func (e *Engine) Pause() {
	e.timers.CancelAll()
	e.inFlight = false
	e.machine.Force(phase.Idle)
}

// HandleClick validates and scores a click. Clicks outside WaitingForClick or
// during the settle window are dropped with ErrNotAccepting or
// ErrClickInFlight; geometry failures abort back to WaitingForClick with an
// error wrapping ErrGeometry. None of these disturb the round.
func (e *Engine) HandleClick(click geosantos.ClickEvent) (geosantos.ScoreBreakdown, error) {
	if e.inFlight {
		e.reject("in_flight")
		return geosantos.ScoreBreakdown{}, ErrClickInFlight
	}
	if e.machine.Current() != phase.WaitingForClick {
		e.reject("not_accepting")
		return geosantos.ScoreBreakdown{}, ErrNotAccepting
	}

	e.inFlight = true
	e.timers.Schedule(keySettle, e.cfg.ClickSettle, func() { e.inFlight = false })

	e.machine.Transition(phase.ProcessingClick)

	res, err := e.resolve(click.Point)
	if err != nil {
		e.logger.Warn("aborting click", "round", e.machine.State().Round, "target", e.target.ID, "error", err)
		e.machine.Force(phase.WaitingForClick)
		return geosantos.ScoreBreakdown{}, fmt.Errorf("resolving click: %w", err)
	}

	res.score = e.calc.Score(res.score.Distance, click.TimeLeft, res.score.Bonus == geosantos.BonusDirectHit, res.score.Bonus == geosantos.BonusNearBorder)
	e.record(res)

	e.machine.Transition(phase.ShowingSprite)
	return res.score, nil
}

// TimeUp handles the external round clock running out: the round scores zero
// and jumps straight to the feedback stage.
func (e *Engine) TimeUp() error {
	if e.machine.Current() != phase.WaitingForClick {
		return ErrNotAccepting
	}
	e.record(&outcome{
		score:  geosantos.ScoreBreakdown{Bonus: geosantos.BonusNone},
		timeUp: true,
	})
	e.machine.Force(phase.ShowingFeedback)
	return nil
}

func (e *Engine) record(res *outcome) {
	e.last = res
	if res.score.Correct() {
		e.correct++
	}
	e.machine.RecordResult(e.calc.Cumulative(), res.score.Correct())
	round := e.machine.State().Round
	if e.host != nil {
		e.host.RecordScore(round, res.score)
	}

	score := res.score
	e.events.Publish(Event{Type: EventScore, Round: round, Score: &score, TimeUp: res.timeUp})
}

// resolve asks the geometry provider where the click fell relative to the
// target. The returned outcome carries distance and bonus flags in score.
func (e *Engine) resolve(p geosantos.Point) (*outcome, error) {
	if e.geometry == nil {
		return nil, fmt.Errorf("no geometry provider: %w", ErrGeometry)
	}
	if !e.target.Valid() {
		return nil, fmt.Errorf("malformed target %+v: %w", e.target, ErrGeometry)
	}

	res := &outcome{click: p, score: geosantos.ScoreBreakdown{Bonus: geosantos.BonusNone}}

	switch e.target.Kind {
	case geosantos.TargetRegion:
		inside, err := e.geometry.PointInRegion(p, e.target.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrGeometry, err)
		}
		if inside {
			res.score.Bonus = geosantos.BonusDirectHit
			return res, nil
		}
		nearest, dist, err := e.geometry.NearestBorderPoint(p, e.target.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrGeometry, err)
		}
		if math.IsNaN(dist) {
			return nil, fmt.Errorf("region %q: border distance is NaN: %w", e.target.ID, ErrGeometry)
		}
		res.nearest, res.hasNearest = nearest, true
		res.score.Distance = dist
		if e.calc.IsNearBorder(dist) {
			res.score.Bonus = geosantos.BonusNearBorder
		}

	case geosantos.TargetLandmark:
		dist, err := e.geometry.DistanceToLandmark(p, e.target.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrGeometry, err)
		}
		if math.IsNaN(dist) {
			return nil, fmt.Errorf("landmark %q: distance is NaN: %w", e.target.ID, ErrGeometry)
		}
		res.score.Distance = dist
		res.nearest, res.hasNearest = e.target.Location, true
		switch {
		case dist <= e.cfg.LandmarkRadius:
			res.score.Bonus = geosantos.BonusDirectHit
		case e.calc.IsNearBorder(dist - e.cfg.LandmarkRadius):
			res.score.Bonus = geosantos.BonusNearBorder
		}
	}
	return res, nil
}

// startSprite plays the click marker animation, one frame per FrameDelay,
// then moves on to the feedback stage.
func (e *Engine) startSprite() {
	frame := 0
	round := e.machine.State().Round
	e.timers.ScheduleRepeating(keySprite, e.cfg.FrameDelay, func() {
		frame++
		e.events.Publish(Event{Type: EventSpriteFrame, Round: round, Frame: frame, Frames: e.cfg.SpriteFrames})
		if frame < e.cfg.SpriteFrames {
			return
		}
		e.timers.Cancel(keySprite)
		e.machine.Transition(phase.ShowingFeedback)
	})
}

// startFeedback schedules the indicator or highlight and the panel with its
// countdown.
func (e *Engine) startFeedback() {
	res := e.last
	if res == nil {
		res = &outcome{timeUp: true}
	}
	round := e.machine.State().Round

	switch {
	case res.timeUp || res.score.Correct():
		target := e.target
		e.timers.Schedule(keyHighlight, e.cfg.IndicatorDelay, func() {
			e.events.Publish(Event{Type: EventHighlight, Round: round, Target: &target, TimeUp: res.timeUp})
		})
	default:
		click := res.click
		e.timers.Schedule(keyIndicator, e.cfg.IndicatorDelay, func() {
			e.events.Publish(Event{Type: EventDistanceIndicator, Round: round, Click: &click, Radius: res.score.Distance})
			if !res.hasNearest {
				return
			}
			nearest := res.nearest
			e.events.Publish(Event{
				Type:    EventDirectionArrow,
				Round:   round,
				Click:   &click,
				Nearest: &nearest,
				Bearing: geo.Bearing(click, nearest),
			})
		})
	}

	e.timers.Schedule(keyPanel, e.cfg.PanelDelay, func() {
		score := res.score
		e.events.Publish(Event{
			Type:        EventPanel,
			Round:       round,
			Score:       &score,
			RemainingMs: e.cfg.PanelDuration.Milliseconds(),
			TimeUp:      res.timeUp,
		})
		e.startCountdown(round)
	})
}

func (e *Engine) startCountdown(round int) {
	remaining := e.cfg.PanelDuration
	total := e.cfg.PanelDuration
	e.timers.ScheduleRepeating(keyCountdown, e.cfg.CountdownTick, func() {
		remaining -= e.cfg.CountdownTick
		if remaining < 0 {
			remaining = 0
		}
		e.events.Publish(Event{
			Type:        EventCountdown,
			Round:       round,
			RemainingMs: remaining.Milliseconds(),
			Progress:    1 - float64(remaining)/float64(total),
		})
		if remaining > 0 {
			return
		}
		e.timers.Cancel(keyCountdown)
		e.machine.Transition(phase.Transitioning)
	})
}

// finishRound decides between the next round and game over. A round may only
// start once no stage timers are left.
func (e *Engine) finishRound() {
	if n := e.timers.CancelPrefix(StagePrefix); n > 0 {
		e.logger.Warn("stage timers outstanding at round end", "count", n)
	}

	st := e.machine.State()
	switch {
	case e.calc.Exhausted():
		e.reason = "distance_budget"
		e.machine.Transition(phase.GameOver)
	case st.Round >= e.cfg.Rounds:
		e.reason = "rounds_complete"
		e.machine.Transition(phase.GameOver)
	default:
		e.machine.Transition(phase.NextRound)
	}
}

// rearm resets per-round state, fetches the next target and reopens the round
// for clicks.
func (e *Engine) rearm() {
	e.last = nil
	target, err := e.nextTarget()
	if err != nil {
		e.logger.Error("no target for next round", "round", e.machine.State().Round, "error", err)
		e.reason = "no_target"
		e.machine.Force(phase.GameOver)
		return
	}
	e.target = target
	e.machine.Transition(phase.WaitingForClick)
	e.publishRound()
}

func (e *Engine) nextTarget() (geosantos.RoundTarget, error) {
	if e.host == nil {
		return geosantos.RoundTarget{}, errors.New("no host")
	}
	round := e.machine.BeginRound()
	target, err := e.host.NextTarget(e.ctx, round)
	if err != nil {
		return geosantos.RoundTarget{}, fmt.Errorf("fetching target for round %d: %w", round, err)
	}
	return target, nil
}

func (e *Engine) publishRound() {
	target := e.target
	e.events.Publish(Event{Type: EventRound, Round: e.machine.State().Round, Target: &target})
}

func (e *Engine) gameOver() {
	st := e.machine.State()
	s := Summary{
		Rounds:             st.Round,
		Correct:            e.correct,
		CumulativeDistance: e.calc.Cumulative(),
		Exhausted:          e.calc.Exhausted(),
		Reason:             e.reason,
	}
	e.logger.Info("game over", "rounds", s.Rounds, "correct", s.Correct, "reason", s.Reason)
	if e.host != nil {
		e.host.GameOver(e.ctx, s)
	}
	e.events.Publish(Event{Type: EventGameOver, Round: st.Round, Summary: &s})
}

func (e *Engine) reject(reason string) {
	e.logger.Debug("click dropped", "reason", reason, "phase", e.machine.Current())
	e.events.Publish(Event{Type: EventClickRejected, Round: e.machine.State().Round, Reason: reason})
}
