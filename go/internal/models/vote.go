package models

import (
	"time"

	"github.com/google/uuid"
)

// Score components are bounded to this range, inclusive.
const (
	ScoreMin = 0
	ScoreMax = 10
)

// VoteComponents are the four raw scores a participant submits.
type VoteComponents struct {
	Viability  int `json:"viability"`
	Innovation int `json:"innovation"`
	Pitch      int `json:"pitch"`
	Demo       int `json:"demo"`
}

// InRange reports whether every component is within [ScoreMin, ScoreMax].
func (c VoteComponents) InRange() bool {
	for _, v := range []int{c.Viability, c.Innovation, c.Pitch, c.Demo} {
		if v < ScoreMin || v > ScoreMax {
			return false
		}
	}
	return true
}

// Vote is one scored ballot. At most one row exists per
// (event, team, voter); a repeat submission for the same triple
// overwrites the previous one. WeightedScore is computed from the
// event's weights at write time and is never retroactively recomputed.
type Vote struct {
	ID            uuid.UUID      `json:"id"`
	EventID       uuid.UUID      `json:"event_id"`
	TeamName      string         `json:"team_name"`
	VoterID       uuid.UUID      `json:"voter_id"`
	Components    VoteComponents `json:"components"`
	WeightedScore float64        `json:"weighted_score"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// VotingWeights is the per-event scoring configuration. The four
// weights must sum to exactly 1.0 (within tolerance) whenever persisted.
type VotingWeights struct {
	EventID      uuid.UUID `json:"event_id"`
	Viability    float64   `json:"viability"`
	Innovation   float64   `json:"innovation"`
	Pitch        float64   `json:"pitch"`
	Demo         float64   `json:"demo"`
	TemplateName string    `json:"template_name"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TeamRanking is one leaderboard row derived from the vote ledger.
type TeamRanking struct {
	TeamName          string  `json:"team_name"`
	MeanWeightedScore float64 `json:"mean_weighted_score"`
	VoteCount         int     `json:"vote_count"`
}
