package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tmarsh12/livestage/go/internal/models"
)

// Event payload types shared between the control plane, the outbox
// relay and the gateway.

// Event type names as they appear on the wire.
const (
	TypeStateChanged   = "StateChanged"
	TypeVoteRecorded   = "VoteRecorded"
	TypeWeightsUpdated = "WeightsUpdated"
)

// StreamName is the JetStream stream all stage events are published to.
const StreamName = "STAGE_EVENTS"

// SubjectPrefix is the subject root; per-event subjects hang off it so
// JetStream's per-subject ordering gives in-order delivery per event.
const SubjectPrefix = "stage.events"

// Subject returns the publish subject for an event slug.
func Subject(slug string) string {
	return fmt.Sprintf("%s.%s", SubjectPrefix, slug)
}

// Envelope is the wire format for every published stage event.
type Envelope struct {
	ID        string          `json:"id"`
	EventSlug string          `json:"event_slug"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// StateChangedPayload carries the full authoritative broadcast state
// after an accepted control action. Viewers re-derive everything they
// render, including countdowns, from this snapshot alone.
type StateChangedPayload struct {
	Action models.ControlActionType `json:"action"`
	State  models.BroadcastState    `json:"state"`
}

// VoteRecordedPayload announces that a ballot landed in the ledger.
// Raw component scores stay server-side; dashboards re-fetch the
// ranking when this arrives rather than applying deltas.
type VoteRecordedPayload struct {
	TeamName   string    `json:"team_name"`
	RecordedAt time.Time `json:"recorded_at"`
}

// WeightsUpdatedPayload announces a weights change. Already-stored
// votes keep their frozen scores; this only affects future ballots.
type WeightsUpdatedPayload struct {
	Weights models.VotingWeights `json:"weights"`
}
