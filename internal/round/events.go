package round

import (
	"github.com/hericmr/geosantos-sub000/internal/geosantos"
)

type EventType string

const (
	EventPhase             EventType = "phase"
	EventRound             EventType = "round"
	EventScore             EventType = "score"
	EventSpriteFrame       EventType = "sprite_frame"
	EventDistanceIndicator EventType = "distance_indicator"
	EventDirectionArrow    EventType = "direction_arrow"
	EventHighlight         EventType = "highlight"
	EventPanel             EventType = "panel"
	EventCountdown         EventType = "countdown"
	EventGameOver          EventType = "game_over"
	EventClickRejected     EventType = "click_rejected"
)

// Event is a state or timing notification for the presentation layer.
type Event struct {
	Type        EventType                 `json:"type"`
	Round       int                       `json:"round"`
	Phase       string                    `json:"phase,omitempty"`
	Previous    string                    `json:"previous,omitempty"`
	Frame       int                       `json:"frame,omitempty"`
	Frames      int                       `json:"frames,omitempty"`
	RemainingMs int64                     `json:"remainingMs,omitempty"`
	Progress    float64                   `json:"progress,omitempty"`
	Target      *geosantos.RoundTarget    `json:"target,omitempty"`
	Score       *geosantos.ScoreBreakdown `json:"score,omitempty"`
	Click       *geosantos.Point          `json:"click,omitempty"`
	Nearest     *geosantos.Point          `json:"nearest,omitempty"`
	Radius      float64                   `json:"radius,omitempty"`
	Bearing     float64                   `json:"bearing,omitempty"`
	TimeUp      bool                      `json:"timeUp,omitempty"`
	Reason      string                    `json:"reason,omitempty"`
	Summary     *Summary                  `json:"summary,omitempty"`
}

// Publisher receives engine events. Implementations must not call back into
// the engine synchronously.
type Publisher interface {
	Publish(Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Event)

func (f PublisherFunc) Publish(e Event) { f(e) }

type discard struct{}

func (discard) Publish(Event) {}
