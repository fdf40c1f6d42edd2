package voting

import (
	"github.com/google/uuid"

	"github.com/tmarsh12/livestage/go/internal/models"
)

// SubmitVoteRequest is one participant ballot for one team.
type SubmitVoteRequest struct {
	VoterID    uuid.UUID             `json:"voter_id"`
	TeamName   string                `json:"team_name"`
	Components models.VoteComponents `json:"components"`
}

// ConfigureWeightsRequest sets an event's weight vector, either as an
// explicit vector or by preset name. Exactly one of the two should be
// used; a named preset wins when both are present.
type ConfigureWeightsRequest struct {
	TemplateName string        `json:"template_name,omitempty"`
	Weights      *WeightVector `json:"weights,omitempty"`
}

// upsertVoteParams is what the repository needs to write one ballot.
type upsertVoteParams struct {
	ID            uuid.UUID
	EventID       uuid.UUID
	TeamName      string
	VoterID       uuid.UUID
	Components    models.VoteComponents
	WeightedScore float64
}

// teamAggregate is one GROUP BY row from the vote ledger.
type teamAggregate struct {
	TeamName  string
	MeanScore float64
	VoteCount int
}
