// Package scoring turns the geometry and timing of a click into points.
//
// Scoring has two regimes. A direct hit or a near-border miss earns a flat
// bonus scaled by the time multiplier. Any other miss earns distance points on
// a two-piece curve (linear decay, plus a quadratic penalty past PenaltyStart)
// and a smaller time bonus. The time multiplier combines a logarithmic
// remaining-time curve with a power-law distance decay and stays in [0, 1].
//
// The Calculator also tracks the distance accumulated by misses over a
// session. Once that distance has gone past CumulativeCeiling, every further
// score is zero until ResetCumulativeDistance is called.
package scoring

import (
	"math"
	"time"

	"github.com/hericmr/geosantos-sub000/internal/geosantos"
)

type Config struct {
	MaxDistance         float64
	DirectHitBonus      float64
	NearBorderBonus     float64
	NearBorderThreshold float64
	MaxDistancePoints   float64
	MaxTimePoints       float64
	PenaltyStart        float64
	ReferenceTime       time.Duration
	DecayExponent       float64
	CumulativeCeiling   float64
}

func DefaultConfig() Config {
	return Config{
		MaxDistance:         10_000,
		DirectHitBonus:      1000,
		NearBorderBonus:     750,
		NearBorderThreshold: 100,
		MaxDistancePoints:   500,
		MaxTimePoints:       250,
		PenaltyStart:        0.7,
		ReferenceTime:       10 * time.Second,
		DecayExponent:       1.2,
		CumulativeCeiling:   25_000,
	}
}

type Calculator struct {
	cfg        Config
	cumulative float64
}

// New returns a Calculator. Zero-valued fields of cfg fall back to
// DefaultConfig.
func New(cfg Config) *Calculator {
	def := DefaultConfig()
	if cfg.MaxDistance <= 0 {
		cfg.MaxDistance = def.MaxDistance
	}
	if cfg.DirectHitBonus <= 0 {
		cfg.DirectHitBonus = def.DirectHitBonus
	}
	if cfg.NearBorderBonus <= 0 {
		cfg.NearBorderBonus = def.NearBorderBonus
	}
	if cfg.NearBorderThreshold <= 0 {
		cfg.NearBorderThreshold = def.NearBorderThreshold
	}
	if cfg.MaxDistancePoints <= 0 {
		cfg.MaxDistancePoints = def.MaxDistancePoints
	}
	if cfg.MaxTimePoints <= 0 {
		cfg.MaxTimePoints = def.MaxTimePoints
	}
	if cfg.PenaltyStart <= 0 || cfg.PenaltyStart >= 1 {
		cfg.PenaltyStart = def.PenaltyStart
	}
	if cfg.ReferenceTime <= 0 {
		cfg.ReferenceTime = def.ReferenceTime
	}
	if cfg.DecayExponent <= 0 {
		cfg.DecayExponent = def.DecayExponent
	}
	if cfg.CumulativeCeiling <= 0 {
		cfg.CumulativeCeiling = def.CumulativeCeiling
	}
	return &Calculator{cfg: cfg}
}

func (c *Calculator) Config() Config {
	return c.cfg
}

// IsNearBorder reports whether a miss at distance meters is close enough to
// the target to earn the near-border bonus.
func (c *Calculator) IsNearBorder(distance float64) bool {
	return distance >= 0 && distance <= c.cfg.NearBorderThreshold
}

// Score computes the breakdown for one click. Misses that earn no bonus add
// their distance to the session's cumulative distance.
func (c *Calculator) Score(distance float64, timeLeft time.Duration, directHit, nearBorder bool) geosantos.ScoreBreakdown {
	d := math.Max(0, distance)
	b := geosantos.ScoreBreakdown{
		Bonus:    geosantos.BonusNone,
		Distance: d,
	}
	switch {
	case directHit:
		b.Bonus = geosantos.BonusDirectHit
	case nearBorder:
		b.Bonus = geosantos.BonusNearBorder
	}

	if c.Exhausted() {
		return b
	}

	b.Multiplier = c.TimeMultiplier(d, timeLeft)

	switch b.Bonus {
	case geosantos.BonusDirectHit:
		b.TimePoints = round(c.cfg.DirectHitBonus * b.Multiplier)
	case geosantos.BonusNearBorder:
		b.TimePoints = round(c.cfg.NearBorderBonus * b.Multiplier)
	default:
		b.DistancePoints = round(c.DistancePoints(d))
		b.TimePoints = round(c.cfg.MaxTimePoints * b.Multiplier)
		c.cumulative += d
	}
	b.Total = b.DistancePoints + b.TimePoints
	return b
}

// DistancePoints is the distance component of a plain miss.
func (c *Calculator) DistancePoints(distance float64) float64 {
	d := math.Max(0, distance)
	limit := c.cfg.MaxDistance
	if d >= limit {
		return 0
	}

	points := c.cfg.MaxDistancePoints * (1 - d/limit)

	knee := c.cfg.PenaltyStart * limit
	if d > knee {
		over := (d - knee) / (limit - knee)
		points *= 1 - over*over
	}
	return math.Max(0, points)
}

// TimeMultiplier combines the remaining-time curve with the distance decay.
func (c *Calculator) TimeMultiplier(distance float64, timeLeft time.Duration) float64 {
	return clamp01(c.timeTerm(timeLeft) * c.distanceDecay(distance))
}

// timeTerm maps remaining time onto [0, 1] logarithmically: ln(1 + (e-1)·x)
// for x = timeLeft/ReferenceTime capped at 1.
func (c *Calculator) timeTerm(timeLeft time.Duration) float64 {
	if timeLeft <= 0 {
		return 0
	}
	x := math.Min(1, timeLeft.Seconds()/c.cfg.ReferenceTime.Seconds())
	return clamp01(math.Log1p((math.E - 1) * x))
}

func (c *Calculator) distanceDecay(distance float64) float64 {
	d := math.Max(0, distance)
	if d >= c.cfg.MaxDistance {
		return 0
	}
	return clamp01(1 - math.Pow(d/c.cfg.MaxDistance, c.cfg.DecayExponent))
}

// Cumulative is the distance accumulated by misses since the last reset.
func (c *Calculator) Cumulative() float64 {
	return c.cumulative
}

// Exhausted reports whether the cumulative distance has passed the ceiling.
func (c *Calculator) Exhausted() bool {
	return c.cumulative > c.cfg.CumulativeCeiling
}

func (c *Calculator) ResetCumulativeDistance() {
	c.cumulative = 0
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round(v float64) int {
	return int(math.Round(v))
}
