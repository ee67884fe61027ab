package round

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/hericmr/geosantos-sub000/internal/geo"
	"github.com/hericmr/geosantos-sub000/internal/geosantos"
	"github.com/hericmr/geosantos-sub000/internal/phase"
	"github.com/hericmr/geosantos-sub000/internal/timer"
)

var alphaSW = geosantos.Point{Lat: -23.9600, Lng: -46.3400}

func alphaSquare() orb.Polygon {
	corner := func(e, n float64) orb.Point {
		p := geo.Offset(alphaSW, e, n)
		return orb.Point{p.Lng, p.Lat}
	}
	return orb.Polygon{{corner(0, 0), corner(1000, 0), corner(1000, 1000), corner(0, 1000), corner(0, 0)}}
}

type fakeHost struct {
	targets  []geosantos.RoundTarget
	scores   []geosantos.ScoreBreakdown
	rounds   []int
	summary  *Summary
	gameOver int
	err      error
}

func (h *fakeHost) NextTarget(_ context.Context, round int) (geosantos.RoundTarget, error) {
	if h.err != nil {
		return geosantos.RoundTarget{}, h.err
	}
	return h.targets[(round-1)%len(h.targets)], nil
}

func (h *fakeHost) RecordScore(round int, b geosantos.ScoreBreakdown) {
	h.rounds = append(h.rounds, round)
	h.scores = append(h.scores, b)
}

func (h *fakeHost) GameOver(_ context.Context, s Summary) {
	h.gameOver++
	h.summary = &s
}

type recorder struct {
	events []Event
}

func (r *recorder) Publish(e Event) { r.events = append(r.events, e) }

func (r *recorder) types() []EventType {
	var out []EventType
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func (r *recorder) count(t EventType) int {
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

type fixture struct {
	engine *Engine
	timers *timer.Manager
	host   *fakeHost
	events *recorder
	atlas  *geo.Atlas
}

func newFixture(t *testing.T, cfg Config, targets ...geosantos.RoundTarget) *fixture {
	t.Helper()

	atlas := geo.NewAtlas()
	if err := atlas.AddRegion("alpha", "Alpha", alphaSquare()); err != nil {
		t.Fatalf("AddRegion: %v", err)
	}
	atlas.AddLandmark("bolsa", "Bolsa do Café", alphaSW)

	if len(targets) == 0 {
		target, err := atlas.Target(geosantos.TargetRegion, "alpha")
		if err != nil {
			t.Fatalf("Target: %v", err)
		}
		targets = []geosantos.RoundTarget{target}
	}

	f := &fixture{
		timers: timer.New(),
		host:   &fakeHost{targets: targets},
		events: &recorder{},
		atlas:  atlas,
	}
	f.engine = New(Deps{
		Geometry: atlas,
		Host:     f.host,
		Events:   f.events,
		Timers:   f.timers,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, cfg)

	if err := f.engine.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return f
}

func (f *fixture) click(east, north float64, left time.Duration) (geosantos.ScoreBreakdown, error) {
	return f.engine.HandleClick(geosantos.ClickEvent{Point: geo.Offset(alphaSW, east, north), TimeLeft: left})
}

// feedbackLength is how long a full feedback sequence takes after a click.
func feedbackLength(cfg Config) time.Duration {
	cfg = cfg.normalize()
	return time.Duration(cfg.SpriteFrames)*cfg.FrameDelay + cfg.PanelDelay + cfg.PanelDuration
}

func TestDirectHitFullCycle(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	if f.engine.Phase() != phase.WaitingForClick {
		t.Fatalf("phase after Start = %v", f.engine.Phase())
	}

	got, err := f.click(500, 500, 8*time.Second)
	if err != nil {
		t.Fatalf("HandleClick: %v", err)
	}

	want := int(math.Round(1000 * math.Log1p((math.E-1)*0.8)))
	if got.Total != want || got.Bonus != geosantos.BonusDirectHit {
		t.Fatalf("score = %+v, want direct hit worth %d", got, want)
	}
	if f.engine.Phase() != phase.ShowingSprite {
		t.Fatalf("phase after click = %v, want showing_sprite", f.engine.Phase())
	}

	f.timers.Advance(feedbackLength(DefaultConfig()))

	if f.engine.Phase() != phase.WaitingForClick {
		t.Fatalf("phase after feedback = %v, want waiting_for_click", f.engine.Phase())
	}
	if r := f.engine.State().Round; r != 2 {
		t.Fatalf("round = %d, want 2", r)
	}
	if f.timers.CountPrefix(StagePrefix) != 0 {
		t.Fatal("stage timers left after the round")
	}
	if len(f.host.scores) != 1 || f.host.scores[0].Total != want {
		t.Fatalf("host scores = %+v", f.host.scores)
	}
}

func TestPhaseSequence(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.click(500, 500, 8*time.Second)
	f.timers.Advance(feedbackLength(DefaultConfig()))

	var phases []string
	for _, e := range f.events.events {
		if e.Type == EventPhase {
			phases = append(phases, e.Phase)
		}
	}
	want := []string{
		"waiting_for_click", "processing_click", "showing_sprite", "showing_feedback",
		"transitioning", "next_round", "waiting_for_click",
	}
	if len(phases) != len(want) {
		t.Fatalf("phases = %v, want %v", phases, want)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Fatalf("phases = %v, want %v", phases, want)
		}
	}
}

func TestFeedbackStageOrder(t *testing.T) {
	tests := []struct {
		name       string
		east       float64
		wantVisual []EventType
	}{
		{name: "hit", east: 500, wantVisual: []EventType{EventHighlight}},
		{name: "miss", east: 3000, wantVisual: []EventType{EventDistanceIndicator, EventDirectionArrow}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, DefaultConfig())
			if _, err := f.click(tt.east, 500, 6*time.Second); err != nil {
				t.Fatalf("HandleClick: %v", err)
			}
			f.timers.Advance(feedbackLength(DefaultConfig()))

			// Collapse repeated events and drop phase noise.
			var stages []EventType
			for _, typ := range f.events.types() {
				if typ == EventPhase {
					continue
				}
				if n := len(stages); n > 0 && stages[n-1] == typ {
					continue
				}
				stages = append(stages, typ)
			}

			want := []EventType{EventRound, EventScore, EventSpriteFrame}
			want = append(want, tt.wantVisual...)
			want = append(want, EventPanel, EventCountdown, EventRound)
			if len(stages) != len(want) {
				t.Fatalf("stages = %v, want %v", stages, want)
			}
			for i := range want {
				if stages[i] != want[i] {
					t.Fatalf("stages = %v, want %v", stages, want)
				}
			}

			if n := f.events.count(EventSpriteFrame); n != DefaultConfig().SpriteFrames {
				t.Errorf("sprite frames = %d, want %d", n, DefaultConfig().SpriteFrames)
			}
		})
	}
}

func TestMissIndicatorGeometry(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	got, err := f.click(1400, 500, 6*time.Second)
	if err != nil {
		t.Fatalf("HandleClick: %v", err)
	}
	if got.Bonus != geosantos.BonusNone || math.Abs(got.Distance-400) > 5 {
		t.Fatalf("score = %+v, want a plain miss ~400m out", got)
	}

	f.timers.Advance(feedbackLength(DefaultConfig()))
	for _, e := range f.events.events {
		switch e.Type {
		case EventDistanceIndicator:
			if math.Abs(e.Radius-got.Distance) > 1e-9 {
				t.Errorf("indicator radius = %v, want %v", e.Radius, got.Distance)
			}
		case EventDirectionArrow:
			if e.Nearest == nil || e.Click == nil {
				t.Fatal("arrow without endpoints")
			}
			if b := e.Bearing; math.Abs(b-(-90)) > 1 && math.Abs(b-270) > 1 {
				t.Errorf("bearing = %v, want due west", b)
			}
		}
	}
}

func TestNearBorderGetsHighlight(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	got, err := f.click(1050, 500, 6*time.Second)
	if err != nil {
		t.Fatalf("HandleClick: %v", err)
	}
	if got.Bonus != geosantos.BonusNearBorder {
		t.Fatalf("bonus = %q, want near border", got.Bonus)
	}
	f.timers.Advance(feedbackLength(DefaultConfig()))
	if f.events.count(EventHighlight) != 1 || f.events.count(EventDistanceIndicator) != 0 {
		t.Fatalf("near-border feedback = %v", f.events.types())
	}
	if f.engine.State().ConsecutiveCorrect != 1 {
		t.Fatalf("ConsecutiveCorrect = %d, want 1", f.engine.State().ConsecutiveCorrect)
	}
}

func TestReentrantClicksDropped(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	if _, err := f.click(500, 500, 8*time.Second); err != nil {
		t.Fatalf("first click: %v", err)
	}

	if _, err := f.click(500, 500, 8*time.Second); !errors.Is(err, ErrClickInFlight) {
		t.Fatalf("second click err = %v, want ErrClickInFlight", err)
	}

	// Past the settle window but still inside the sprite stage.
	f.timers.Advance(DefaultConfig().ClickSettle)
	if f.engine.Phase() != phase.ShowingSprite {
		t.Fatalf("phase = %v, want showing_sprite", f.engine.Phase())
	}
	if _, err := f.click(500, 500, 8*time.Second); !errors.Is(err, ErrNotAccepting) {
		t.Fatalf("third click err = %v, want ErrNotAccepting", err)
	}

	f.timers.Advance(feedbackLength(DefaultConfig()))
	if len(f.host.scores) != 1 {
		t.Fatalf("host recorded %d scores, want 1", len(f.host.scores))
	}
	if n := f.events.count(EventPanel); n != 1 {
		t.Fatalf("feedback panels = %d, want 1", n)
	}
	if n := f.events.count(EventClickRejected); n != 2 {
		t.Fatalf("rejected events = %d, want 2", n)
	}
}

func TestGeometryErrorAbortsClick(t *testing.T) {
	broken := geosantos.RoundTarget{Kind: geosantos.TargetRegion, ID: "missing", Name: "Missing"}
	f := newFixture(t, DefaultConfig(), broken)

	_, err := f.click(500, 500, 8*time.Second)
	if !errors.Is(err, ErrGeometry) || !errors.Is(err, geo.ErrUnknownRegion) {
		t.Fatalf("err = %v, want ErrGeometry wrapping ErrUnknownRegion", err)
	}
	if f.engine.Phase() != phase.WaitingForClick {
		t.Fatalf("phase = %v, want waiting_for_click", f.engine.Phase())
	}
	if len(f.host.scores) != 0 {
		t.Fatal("aborted click was scored")
	}
	if f.timers.CountPrefix(StagePrefix) != 0 {
		t.Fatal("aborted click scheduled feedback")
	}

	// The player may try again once the guard settles.
	f.timers.Advance(DefaultConfig().ClickSettle)
	if _, err := f.click(500, 500, 7*time.Second); !errors.Is(err, ErrGeometry) {
		t.Fatalf("retry err = %v, want ErrGeometry", err)
	}
}

func TestMalformedTargetAborts(t *testing.T) {
	f := newFixture(t, DefaultConfig(), geosantos.RoundTarget{Kind: "ocean"})
	if _, err := f.click(0, 0, time.Second); !errors.Is(err, ErrGeometry) {
		t.Fatalf("err = %v, want ErrGeometry", err)
	}
}

func TestGameOverAfterRoundLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Rounds = 2
	f := newFixture(t, cfg)

	for i := 0; i < 2; i++ {
		if _, err := f.click(500, 500, 5*time.Second); err != nil {
			t.Fatalf("round %d click: %v", i+1, err)
		}
		f.timers.Advance(feedbackLength(cfg))
	}

	if f.engine.Phase() != phase.GameOver {
		t.Fatalf("phase = %v, want game_over", f.engine.Phase())
	}
	if f.host.gameOver != 1 {
		t.Fatalf("GameOver called %d times, want 1", f.host.gameOver)
	}
	if s := f.host.summary; s.Rounds != 2 || s.Correct != 2 || s.Reason != "rounds_complete" {
		t.Fatalf("summary = %+v", s)
	}
	if _, err := f.click(500, 500, 5*time.Second); !errors.Is(err, ErrNotAccepting) {
		t.Fatalf("click after game over err = %v", err)
	}
}

func TestGameOverWhenDistanceBudgetExhausted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Scoring.CumulativeCeiling = 5000
	f := newFixture(t, cfg)

	if _, err := f.click(20_000, 500, 5*time.Second); err != nil {
		t.Fatalf("HandleClick: %v", err)
	}
	f.timers.Advance(feedbackLength(cfg))

	if f.engine.Phase() != phase.GameOver {
		t.Fatalf("phase = %v, want game_over", f.engine.Phase())
	}
	if s := f.host.summary; s == nil || !s.Exhausted || s.Reason != "distance_budget" {
		t.Fatalf("summary = %+v", s)
	}
	if d := f.engine.State().CumulativeDistance; d < 18_000 {
		t.Fatalf("CumulativeDistance = %v", d)
	}
}

func TestRestartAfterGameOver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Rounds = 1
	f := newFixture(t, cfg)
	f.click(500, 500, 5*time.Second)
	f.timers.Advance(feedbackLength(cfg))
	if f.engine.Phase() != phase.GameOver {
		t.Fatalf("phase = %v", f.engine.Phase())
	}

	if err := f.engine.Restart(context.Background()); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	st := f.engine.State()
	if st.Phase != phase.WaitingForClick || st.Round != 1 {
		t.Fatalf("state after restart = %+v", st)
	}
}

func TestTimeUpScoresZero(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	if err := f.engine.TimeUp(); err != nil {
		t.Fatalf("TimeUp: %v", err)
	}
	if f.engine.Phase() != phase.ShowingFeedback {
		t.Fatalf("phase = %v, want showing_feedback", f.engine.Phase())
	}
	if len(f.host.scores) != 1 || f.host.scores[0].Total != 0 {
		t.Fatalf("host scores = %+v", f.host.scores)
	}

	cfg := DefaultConfig()
	f.timers.Advance(cfg.PanelDelay + cfg.PanelDuration)
	if f.engine.Phase() != phase.WaitingForClick || f.engine.State().Round != 2 {
		t.Fatalf("after time up: phase %v round %d", f.engine.Phase(), f.engine.State().Round)
	}

	if err := f.engine.TimeUp(); err != nil {
		t.Fatalf("second TimeUp: %v", err)
	}
	if err := f.engine.TimeUp(); !errors.Is(err, ErrNotAccepting) {
		t.Fatalf("TimeUp during feedback err = %v", err)
	}
}

func TestPauseCancelsEverything(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.click(500, 500, 8*time.Second)
	f.timers.Advance(100 * time.Millisecond)

	f.engine.Pause()
	if f.engine.Phase() != phase.Idle {
		t.Fatalf("phase = %v, want idle", f.engine.Phase())
	}
	if f.timers.CountPrefix(StagePrefix) != 0 {
		t.Fatal("stage timers survived pause")
	}

	before := len(f.events.events)
	f.timers.Advance(10 * time.Second)
	if len(f.events.events) != before {
		t.Fatalf("events fired after pause: %v", f.events.types()[before:])
	}

	if err := f.engine.Start(context.Background()); err != nil {
		t.Fatalf("Start after pause: %v", err)
	}
	if f.engine.Phase() != phase.WaitingForClick {
		t.Fatalf("phase = %v after resume", f.engine.Phase())
	}
}

func TestStartRequiresIdle(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	if err := f.engine.Start(context.Background()); !errors.Is(err, ErrNotIdle) {
		t.Fatalf("err = %v, want ErrNotIdle", err)
	}
}

func TestLandmarkTargets(t *testing.T) {
	bolsa := geosantos.RoundTarget{Kind: geosantos.TargetLandmark, ID: "bolsa", Name: "Bolsa do Café", Location: alphaSW}

	tests := []struct {
		name  string
		north float64
		want  geosantos.Bonus
	}{
		{"inside radius", 100, geosantos.BonusDirectHit},
		{"just outside", 200, geosantos.BonusNearBorder},
		{"far", 2000, geosantos.BonusNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, DefaultConfig(), bolsa)
			got, err := f.click(0, tt.north, 5*time.Second)
			if err != nil {
				t.Fatalf("HandleClick: %v", err)
			}
			if got.Bonus != tt.want {
				t.Fatalf("bonus = %q, want %q", got.Bonus, tt.want)
			}
		})
	}
}

func TestNextTargetFailureEndsGame(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.click(500, 500, 5*time.Second)
	f.host.err = errors.New("deck empty")
	f.timers.Advance(feedbackLength(DefaultConfig()))

	if f.engine.Phase() != phase.GameOver {
		t.Fatalf("phase = %v, want game_over", f.engine.Phase())
	}
	if f.host.summary == nil || f.host.summary.Reason != "no_target" {
		t.Fatalf("summary = %+v", f.host.summary)
	}
}

func TestFarMissScoresNearZero(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	// 9,800m east of the square's eastern edge.
	got, err := f.click(10_800, 500, 8*time.Second)
	if err != nil {
		t.Fatalf("HandleClick: %v", err)
	}
	if got.DistancePoints > 2 || got.Total > 10 {
		t.Fatalf("score = %+v, want near zero", got)
	}
}
