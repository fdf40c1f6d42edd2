package models

import (
	"time"

	"github.com/google/uuid"
)

// BroadcastPhase defines the phase of an event's live broadcast.
type BroadcastPhase string

const (
	PhaseIdle            BroadcastPhase = "idle"
	PhasePresentingTeam  BroadcastPhase = "presenting_team"
	PhaseVotingOpen      BroadcastPhase = "voting_open"
	PhaseResultsRevealed BroadcastPhase = "results_revealed"
)

// ControlActionType names an accepted control transition.
type ControlActionType string

const (
	ActionStartPresentation ControlActionType = "start_presentation"
	ActionOpenVoting        ControlActionType = "open_voting"
	ActionCloseVoting       ControlActionType = "close_voting"
	ActionRevealResults     ControlActionType = "reveal_results"
	ActionEndPresentation   ControlActionType = "end_presentation"
)

// BroadcastState is the single authoritative record of what phase an
// event is in right now. Exactly one row exists per event, created
// lazily in the idle phase on first read, and mutated only by the
// control action handler.
//
// Invariants:
//   - CurrentTeamName is non-nil iff Phase is presenting_team or voting_open.
//   - VotingClosesAt is non-nil iff Phase is voting_open (cleared while
//     voting is frozen for tallying).
//   - TeamsPresented grows append-only within a round cycle; only an
//     explicit reset clears it.
type BroadcastState struct {
	EventID            uuid.UUID      `json:"event_id"`
	Phase              BroadcastPhase `json:"phase"`
	CurrentTeamName    *string        `json:"current_team_name,omitempty"`
	PitchClosesAt      *time.Time     `json:"pitch_closes_at,omitempty"`
	VotingClosesAt     *time.Time     `json:"voting_closes_at,omitempty"`
	TeamsPresented     []string       `json:"teams_presented"`
	RandomModeEnabled  bool           `json:"random_mode_enabled"`
	PitchDurationSec   int            `json:"pitch_duration_sec"`
	VotingDurationSec  int            `json:"voting_duration_sec"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// HasPresented reports whether a team already appears in TeamsPresented.
func (s *BroadcastState) HasPresented(team string) bool {
	for _, t := range s.TeamsPresented {
		if t == team {
			return true
		}
	}
	return false
}

// ControlLogEntry is one append-only audit row per accepted control
// action. Rejected actions are never logged. The log is advisory: it is
// written after the state update and a failed insert does not undo the
// transition.
type ControlLogEntry struct {
	ID        uuid.UUID         `json:"id"`
	EventID   uuid.UUID         `json:"event_id"`
	Action    ControlActionType `json:"action"`
	TeamName  *string           `json:"team_name,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}
