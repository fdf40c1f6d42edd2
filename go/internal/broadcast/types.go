package broadcast

import (
	"encoding/json"
	"fmt"

	"github.com/tmarsh12/livestage/go/internal/models"
)

// ControlAction is the tagged union of operator control actions. Each
// variant carries exactly the parameters its transition needs, so
// illegal parameter combinations are unrepresentable.
type ControlAction interface {
	ActionType() models.ControlActionType
}

// StartPresentation begins a team's pitch: idle/results_revealed -> presenting_team.
type StartPresentation struct {
	Team string `json:"team"`
}

// OpenVoting opens the voting window: presenting_team -> voting_open.
// Team is optional; when nil the currently presenting team is used, and
// in random mode the handler chooses from teams that have not presented.
type OpenVoting struct {
	Team *string `json:"team,omitempty"`
}

// CloseVoting freezes voting for tallying. The phase stays voting_open
// with the deadline cleared; only reveal_results advances the round.
type CloseVoting struct{}

// RevealResults freezes the round: presenting_team/voting_open -> results_revealed.
type RevealResults struct{}

// EndPresentation aborts a pitch without opening voting: presenting_team -> idle.
type EndPresentation struct{}

func (StartPresentation) ActionType() models.ControlActionType {
	return models.ActionStartPresentation
}
func (OpenVoting) ActionType() models.ControlActionType  { return models.ActionOpenVoting }
func (CloseVoting) ActionType() models.ControlActionType { return models.ActionCloseVoting }
func (RevealResults) ActionType() models.ControlActionType {
	return models.ActionRevealResults
}
func (EndPresentation) ActionType() models.ControlActionType {
	return models.ActionEndPresentation
}

// controlRequest is the wire shape of POST /api/events/{slug}/control.
type controlRequest struct {
	Action models.ControlActionType `json:"action"`
	Params json.RawMessage          `json:"params,omitempty"`
}

// DecodeControlAction parses a wire request into the typed union.
func DecodeControlAction(data []byte) (ControlAction, error) {
	var req controlRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("decode control request: %w", err)
	}

	switch req.Action {
	case models.ActionStartPresentation:
		var a StartPresentation
		if err := unmarshalParams(req.Params, &a); err != nil {
			return nil, err
		}
		if a.Team == "" {
			return nil, ErrMissingTeam
		}
		return a, nil
	case models.ActionOpenVoting:
		var a OpenVoting
		if err := unmarshalParams(req.Params, &a); err != nil {
			return nil, err
		}
		return a, nil
	case models.ActionCloseVoting:
		return CloseVoting{}, nil
	case models.ActionRevealResults:
		return RevealResults{}, nil
	case models.ActionEndPresentation:
		return EndPresentation{}, nil
	default:
		return nil, fmt.Errorf("unknown control action %q", req.Action)
	}
}

func unmarshalParams(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode action params: %w", err)
	}
	return nil
}

// UpdateSettingsRequest adjusts the operator-configurable defaults used
// to compute future deadlines. Nil fields are left unchanged.
type UpdateSettingsRequest struct {
	RandomModeEnabled *bool `json:"random_mode_enabled,omitempty"`
	PitchDurationSec  *int  `json:"pitch_duration_sec,omitempty"`
	VotingDurationSec *int  `json:"voting_duration_sec,omitempty"`
}
