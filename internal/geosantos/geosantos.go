// Package geosantos defines the core domain types shared by the round engine
// and its collaborators. It has zero external dependencies.
package geosantos

import "time"

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type TargetKind string

const (
	TargetRegion   TargetKind = "region"
	TargetLandmark TargetKind = "landmark"
)

// RoundTarget is what the player must find in one round. It is replaced, never
// mutated, when the next round starts.
type RoundTarget struct {
	Kind     TargetKind `json:"kind"`
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Location Point      `json:"location"`
}

func (t RoundTarget) Valid() bool {
	return t.ID != "" && (t.Kind == TargetRegion || t.Kind == TargetLandmark)
}

// ClickEvent is one accepted click: where it landed and how much of the round
// clock was left.
type ClickEvent struct {
	Point    Point
	TimeLeft time.Duration
}

type Bonus string

const (
	BonusNone       Bonus = "none"
	BonusNearBorder Bonus = "near_border"
	BonusDirectHit  Bonus = "direct_hit"
)

type ScoreBreakdown struct {
	Total          int     `json:"total"`
	DistancePoints int     `json:"distancePoints"`
	TimePoints     int     `json:"timePoints"`
	Bonus          Bonus   `json:"bonus"`
	Distance       float64 `json:"distance"`
	Multiplier     float64 `json:"multiplier"`
}

// Correct reports whether the click found the target or landed close enough
// to its border to earn a bonus.
func (b ScoreBreakdown) Correct() bool {
	return b.Bonus == BonusDirectHit || b.Bonus == BonusNearBorder
}

type Mode string

const (
	ModeRegions   Mode = "regions"
	ModeLandmarks Mode = "landmarks"
)

func (m Mode) Valid() bool {
	return m == ModeRegions || m == ModeLandmarks
}

type LeaderboardEntry struct {
	ID         string    `json:"id"`
	PlayerName string    `json:"playerName"`
	Mode       Mode      `json:"mode"`
	Score      int       `json:"score"`
	Rounds     int       `json:"rounds"`
	Correct    int       `json:"correct"`
	Distance   float64   `json:"distance"`
	CreatedAt  time.Time `json:"createdAt"`
}
