package round

import (
	"time"

	"github.com/hericmr/geosantos-sub000/internal/scoring"
)

type Config struct {
	// Rounds is the session's round limit.
	Rounds int

	SpriteFrames   int
	FrameDelay     time.Duration
	IndicatorDelay time.Duration
	PanelDelay     time.Duration
	PanelDuration  time.Duration
	CountdownTick  time.Duration
	ClickSettle    time.Duration
	PhaseSettle    time.Duration

	// LandmarkRadius is the hit radius around a landmark, in meters.
	LandmarkRadius float64

	Scoring scoring.Config
}

func DefaultConfig() Config {
	return Config{
		Rounds:         10,
		SpriteFrames:   8,
		FrameDelay:     60 * time.Millisecond,
		IndicatorDelay: 150 * time.Millisecond,
		PanelDelay:     300 * time.Millisecond,
		PanelDuration:  3 * time.Second,
		CountdownTick:  50 * time.Millisecond,
		ClickSettle:    250 * time.Millisecond,
		PhaseSettle:    100 * time.Millisecond,
		LandmarkRadius: 150,
		Scoring:        scoring.DefaultConfig(),
	}
}

// normalize fills zero values from DefaultConfig and keeps the feedback stages
// in order: the panel never shows before the indicator.
func (c Config) normalize() Config {
	def := DefaultConfig()
	if c.Rounds <= 0 {
		c.Rounds = def.Rounds
	}
	if c.SpriteFrames <= 0 {
		c.SpriteFrames = def.SpriteFrames
	}
	if c.FrameDelay <= 0 {
		c.FrameDelay = def.FrameDelay
	}
	if c.IndicatorDelay < 0 {
		c.IndicatorDelay = 0
	}
	if c.PanelDelay < c.IndicatorDelay {
		c.PanelDelay = c.IndicatorDelay
	}
	if c.PanelDuration <= 0 {
		c.PanelDuration = def.PanelDuration
	}
	if c.CountdownTick <= 0 {
		c.CountdownTick = def.CountdownTick
	}
	if c.ClickSettle < 0 {
		c.ClickSettle = 0
	}
	if c.PhaseSettle <= 0 {
		c.PhaseSettle = def.PhaseSettle
	}
	if c.LandmarkRadius <= 0 {
		c.LandmarkRadius = def.LandmarkRadius
	}
	return c
}
