package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/hericmr/geosantos-sub000/internal/session"
)

type Config struct {
	HTTPAddr string     `env:"HTTP_ADDR" envDefault:":8080"`
	DBPath   string     `env:"DB_PATH" envDefault:"data/geosantos.db"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	SPADir   string     `env:"SPA_DIR" envDefault:"../web/dist"`

	// Round timing.
	RoundTime     time.Duration `env:"ROUND_TIME" envDefault:"10s"`
	Rounds        int           `env:"ROUNDS" envDefault:"10"`
	TickInterval  time.Duration `env:"TICK_INTERVAL" envDefault:"16ms"`
	MaxTimerDelay time.Duration `env:"MAX_TIMER_DELAY" envDefault:"1m"`

	// Scoring, in meters.
	MaxDistance       float64 `env:"MAX_DISTANCE_M" envDefault:"10000"`
	CumulativeCeiling float64 `env:"CUMULATIVE_CEILING_M" envDefault:"25000"`
	LandmarkRadius    float64 `env:"LANDMARK_RADIUS_M" envDefault:"150"`

	SessionIdleTTL time.Duration `env:"SESSION_IDLE_TTL" envDefault:"30m"`
	SweepInterval  time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.RoundTime <= 0:
		return fmt.Errorf("ROUND_TIME must be positive, got %s", c.RoundTime)
	case c.Rounds <= 0:
		return fmt.Errorf("ROUNDS must be positive, got %d", c.Rounds)
	case c.TickInterval <= 0:
		return fmt.Errorf("TICK_INTERVAL must be positive, got %s", c.TickInterval)
	case c.MaxDistance <= 0:
		return fmt.Errorf("MAX_DISTANCE_M must be positive, got %g", c.MaxDistance)
	case c.CumulativeCeiling <= 0:
		return fmt.Errorf("CUMULATIVE_CEILING_M must be positive, got %g", c.CumulativeCeiling)
	case c.SessionIdleTTL <= 0:
		return fmt.Errorf("SESSION_IDLE_TTL must be positive, got %s", c.SessionIdleTTL)
	case c.SweepInterval <= 0:
		return fmt.Errorf("SWEEP_INTERVAL must be positive, got %s", c.SweepInterval)
	}
	return nil
}

// Session builds the per-session engine configuration on top of the defaults.
// The scoring time term is normalised to the round time.
func (c *Config) Session() session.Config {
	sc := session.DefaultConfig()
	sc.RoundTime = c.RoundTime
	sc.TickInterval = c.TickInterval
	sc.MaxTimerDelay = c.MaxTimerDelay
	sc.Round.Rounds = c.Rounds
	sc.Round.LandmarkRadius = c.LandmarkRadius
	sc.Round.Scoring.MaxDistance = c.MaxDistance
	sc.Round.Scoring.CumulativeCeiling = c.CumulativeCeiling
	sc.Round.Scoring.ReferenceTime = c.RoundTime
	return sc
}
