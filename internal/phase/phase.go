// Package phase holds the finite-state machine that sequences one quiz round.
//
// The legal sequence is
//
//	Idle -> WaitingForClick -> ProcessingClick -> ShowingSprite ->
//	ShowingFeedback -> Transitioning -> NextRound | GameOver
//
// with NextRound looping back to WaitingForClick and GameOver back to Idle.
// Transition rejects anything else; Force exists for pause, abort and teardown.
package phase

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/hericmr/geosantos-sub000/internal/timer"
)

type Phase int

const (
	Idle Phase = iota
	WaitingForClick
	ProcessingClick
	ShowingSprite
	ShowingFeedback
	Transitioning
	NextRound
	GameOver
)

var phaseNames = [...]string{
	Idle:            "idle",
	WaitingForClick: "waiting_for_click",
	ProcessingClick: "processing_click",
	ShowingSprite:   "showing_sprite",
	ShowingFeedback: "showing_feedback",
	Transitioning:   "transitioning",
	NextRound:       "next_round",
	GameOver:        "game_over",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	for i, name := range phaseNames {
		if name == string(text) {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}

// All lists every phase in declaration order.
func All() []Phase {
	return []Phase{Idle, WaitingForClick, ProcessingClick, ShowingSprite, ShowingFeedback, Transitioning, NextRound, GameOver}
}

var transitions = map[Phase][]Phase{
	Idle:            {WaitingForClick},
	WaitingForClick: {ProcessingClick},
	ProcessingClick: {ShowingSprite},
	ShowingSprite:   {ShowingFeedback},
	ShowingFeedback: {Transitioning},
	Transitioning:   {NextRound, GameOver},
	NextRound:       {WaitingForClick},
	GameOver:        {Idle},
}

// CanTransitionTo reports whether target is directly reachable from p.
func (p Phase) CanTransitionTo(target Phase) bool {
	for _, allowed := range transitions[p] {
		if allowed == target {
			return true
		}
	}
	return false
}

// SettleKey is the timer key used to clear the transitioning flag.
const SettleKey = "phase.settle"

const DefaultSettle = 100 * time.Millisecond

// RoundState is the machine's view of the session. Only the machine mutates it.
type RoundState struct {
	Phase              Phase     `json:"phase"`
	Previous           Phase     `json:"previous"`
	EnteredAt          time.Time `json:"enteredAt"`
	Round              int       `json:"round"`
	CumulativeDistance float64   `json:"cumulativeDistance"`
	ConsecutiveCorrect int       `json:"consecutiveCorrect"`
}

// Change describes one phase switch.
type Change struct {
	From   Phase
	To     Phase
	Forced bool
}

type Machine struct {
	state         RoundState
	transitioning bool

	hooks     map[Phase][]func(from Phase)
	listeners []func(Change)

	timers *timer.Manager
	settle time.Duration
	now    func() time.Time
	logger *slog.Logger
}

type Option func(*Machine)

// WithSettle sets how long IsTransitioning stays true after a switch.
func WithSettle(d time.Duration) Option {
	return func(m *Machine) { m.settle = d }
}

// WithClock replaces time.Now for phase entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

func New(timers *timer.Manager, logger *slog.Logger, opts ...Option) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Machine{
		hooks:  make(map[Phase][]func(Phase)),
		timers: timers,
		settle: DefaultSettle,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.state = RoundState{Phase: Idle, Previous: Idle, EnteredAt: m.now()}
	return m
}

func (m *Machine) Current() Phase {
	return m.state.Phase
}

func (m *Machine) State() RoundState {
	return m.state
}

// IsTransitioning reports whether the last switch is still inside its settle
// window.
func (m *Machine) IsTransitioning() bool {
	return m.transitioning
}

func (m *Machine) CanTransition(to Phase) bool {
	return m.state.Phase.CanTransitionTo(to)
}

// OnEnter registers a hook that runs once every time the machine enters p.
// Hooks receive the phase being left.
func (m *Machine) OnEnter(p Phase, hook func(from Phase)) {
	m.hooks[p] = append(m.hooks[p], hook)
}

// Subscribe registers a listener told about every phase switch, before the
// entry hooks of the new phase run.
func (m *Machine) Subscribe(fn func(Change)) {
	m.listeners = append(m.listeners, fn)
}

// Transition moves to the requested phase if the transition table allows it.
// Illegal requests are logged and leave the state untouched.
func (m *Machine) Transition(to Phase) bool {
	from := m.state.Phase
	if !from.CanTransitionTo(to) {
		m.logger.Warn("invalid phase transition", "from", from, "to", to)
		return false
	}
	m.enter(to, false)
	return true
}

// Force moves to the requested phase without consulting the transition table.
func (m *Machine) Force(to Phase) {
	m.logger.Info("forcing phase transition", "from", m.state.Phase, "to", to)
	m.enter(to, true)
}

func (m *Machine) enter(to Phase, forced bool) {
	from := m.state.Phase
	m.state.Previous = from
	m.state.Phase = to
	m.state.EnteredAt = m.now()

	m.transitioning = true
	if m.timers != nil {
		m.timers.Schedule(SettleKey, m.settle, func() { m.transitioning = false })
	}

	m.logger.Debug("phase transition", "from", from, "to", to, "forced", forced)

	change := Change{From: from, To: to, Forced: forced}
	for _, fn := range m.listeners {
		fn(change)
	}
	for _, hook := range m.hooks[to] {
		hook(from)
	}
}

// RecordResult folds one scored click into the session counters.
func (m *Machine) RecordResult(cumulativeDistance float64, correct bool) {
	m.state.CumulativeDistance = cumulativeDistance
	if correct {
		m.state.ConsecutiveCorrect++
	} else {
		m.state.ConsecutiveCorrect = 0
	}
}

// BeginRound bumps the round counter.
func (m *Machine) BeginRound() int {
	m.state.Round++
	return m.state.Round
}

// ResetSession returns the machine to a fresh Idle state without running
// hooks. Callers cancel outstanding timers first.
func (m *Machine) ResetSession() {
	m.state = RoundState{Phase: Idle, Previous: m.state.Phase, EnteredAt: m.now()}
	m.transitioning = false
	if m.timers != nil {
		m.timers.Cancel(SettleKey)
	}
}
