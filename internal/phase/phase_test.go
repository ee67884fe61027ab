package phase

import (
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/hericmr/geosantos-sub000/internal/timer"
)

func newTestMachine(t *testing.T) (*Machine, *timer.Manager) {
	t.Helper()
	timers := timer.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(timers, logger), timers
}

func TestOnlyListedTransitionsSucceed(t *testing.T) {
	allowed := map[Phase]map[Phase]bool{
		Idle:            {WaitingForClick: true},
		WaitingForClick: {ProcessingClick: true},
		ProcessingClick: {ShowingSprite: true},
		ShowingSprite:   {ShowingFeedback: true},
		ShowingFeedback: {Transitioning: true},
		Transitioning:   {NextRound: true, GameOver: true},
		NextRound:       {WaitingForClick: true},
		GameOver:        {Idle: true},
	}

	for _, from := range All() {
		for _, to := range All() {
			t.Run(from.String()+"->"+to.String(), func(t *testing.T) {
				m, _ := newTestMachine(t)
				m.Force(from)
				before := m.State()

				ok := m.Transition(to)
				if want := allowed[from][to]; ok != want {
					t.Fatalf("Transition = %v, want %v", ok, want)
				}
				if !ok && m.State() != before {
					t.Fatalf("rejected transition mutated state: %+v -> %+v", before, m.State())
				}
				if ok && m.Current() != to {
					t.Fatalf("Current = %v, want %v", m.Current(), to)
				}
			})
		}
	}
}

func TestFullRoundCycle(t *testing.T) {
	m, _ := newTestMachine(t)
	var seen []Phase
	m.Subscribe(func(c Change) { seen = append(seen, c.To) })

	path := []Phase{WaitingForClick, ProcessingClick, ShowingSprite, ShowingFeedback, Transitioning, NextRound, WaitingForClick}
	for _, p := range path {
		if !m.Transition(p) {
			t.Fatalf("transition to %v rejected from %v", p, m.Current())
		}
	}
	if !reflect.DeepEqual(seen, path) {
		t.Fatalf("listener saw %v, want %v", seen, path)
	}
	if m.State().Previous != NextRound {
		t.Fatalf("Previous = %v, want next_round", m.State().Previous)
	}
}

func TestGameOverReturnsToIdle(t *testing.T) {
	m, _ := newTestMachine(t)
	m.Force(Transitioning)
	if !m.Transition(GameOver) || !m.Transition(Idle) {
		t.Fatal("game over cycle rejected")
	}
}

func TestEntryHookRunsOncePerEntry(t *testing.T) {
	m, _ := newTestMachine(t)
	var froms []Phase
	m.OnEnter(WaitingForClick, func(from Phase) { froms = append(froms, from) })

	m.Transition(WaitingForClick)
	m.Transition(ProcessingClick)
	m.Transition(WaitingForClick) // rejected: no hook
	m.Force(NextRound)
	m.Transition(WaitingForClick)

	want := []Phase{Idle, NextRound}
	if !reflect.DeepEqual(froms, want) {
		t.Fatalf("hook calls = %v, want %v", froms, want)
	}
}

func TestTransitioningFlagSettles(t *testing.T) {
	m, timers := newTestMachine(t)
	if m.IsTransitioning() {
		t.Fatal("fresh machine should be stable")
	}
	m.Transition(WaitingForClick)
	if !m.IsTransitioning() {
		t.Fatal("flag not set on entry")
	}
	timers.Advance(DefaultSettle - time.Millisecond)
	if !m.IsTransitioning() {
		t.Fatal("flag cleared before the settle window")
	}
	timers.Advance(time.Millisecond)
	if m.IsTransitioning() {
		t.Fatal("flag still set after the settle window")
	}
}

func TestRecordResultCounters(t *testing.T) {
	m, _ := newTestMachine(t)
	m.RecordResult(0, true)
	m.RecordResult(0, true)
	if got := m.State().ConsecutiveCorrect; got != 2 {
		t.Fatalf("ConsecutiveCorrect = %d, want 2", got)
	}
	m.RecordResult(1200, false)
	st := m.State()
	if st.ConsecutiveCorrect != 0 || st.CumulativeDistance != 1200 {
		t.Fatalf("state = %+v after a miss", st)
	}
}

func TestResetSession(t *testing.T) {
	m, timers := newTestMachine(t)
	m.Transition(WaitingForClick)
	m.BeginRound()
	m.RecordResult(500, false)

	m.ResetSession()
	st := m.State()
	if st.Phase != Idle || st.Round != 0 || st.CumulativeDistance != 0 {
		t.Fatalf("state after reset = %+v", st)
	}
	if timers.Active(SettleKey) || m.IsTransitioning() {
		t.Fatal("settle timer survived reset")
	}
}

func TestPhaseString(t *testing.T) {
	if ShowingFeedback.String() != "showing_feedback" {
		t.Fatalf("String = %q", ShowingFeedback.String())
	}
	if Phase(99).String() != "unknown" {
		t.Fatal("out of range phase should be unknown")
	}
}

func TestPhaseTextRoundTrip(t *testing.T) {
	for _, p := range All() {
		text, _ := p.MarshalText()
		var got Phase
		if err := got.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%q): %v", text, err)
		}
		if got != p {
			t.Fatalf("round trip of %v gave %v", p, got)
		}
	}

	var p Phase
	if err := p.UnmarshalText([]byte("halftime")); err == nil {
		t.Fatal("unknown phase name accepted")
	}
}
