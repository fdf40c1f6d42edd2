package broadcast

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/tmarsh12/livestage/go/internal/events"
	"github.com/tmarsh12/livestage/go/internal/models"
	"github.com/tmarsh12/livestage/go/internal/outbox"
	"github.com/tmarsh12/livestage/go/internal/roster"
)

// Operator-configurable defaults used until an event overrides them.
const (
	DefaultPitchDurationSec  = 180
	DefaultVotingDurationSec = 120
)

// StateRepository defines what the app layer needs from the broadcast store.
type StateRepository interface {
	GetState(ctx context.Context, eventID uuid.UUID) (*models.BroadcastState, error)
	CreateStateIfAbsent(ctx context.Context, state *models.BroadcastState) (*models.BroadcastState, error)
	ApplyTransition(ctx context.Context, state *models.BroadcastState, env outbox.PendingEvent) (*models.BroadcastState, error)
	InsertControlLog(ctx context.Context, entry *models.ControlLogEntry) error
	ListControlLog(ctx context.Context, eventID uuid.UUID, limit int32) ([]models.ControlLogEntry, error)
}

// RosterReader defines what the app layer needs from event registration.
type RosterReader interface {
	GetEventBySlug(ctx context.Context, slug string) (*models.Event, error)
	ListTeamNames(ctx context.Context, eventID uuid.UUID) ([]string, error)
}

// App is the control action handler: the only writer of broadcast
// state. It validates each action against the current phase, applies
// the transition atomically, appends an advisory audit entry, and hands
// the new state to the distribution channel via the outbox.
type App struct {
	repo   StateRepository
	roster RosterReader
	clock  clockwork.Clock
}

// NewApp creates a new broadcast App.
func NewApp(repo StateRepository, roster RosterReader, clock clockwork.Clock) *App {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &App{
		repo:   repo,
		roster: roster,
		clock:  clock,
	}
}

// GetState returns the broadcast state for an event, lazily creating
// the idle row on first access.
func (a *App) GetState(ctx context.Context, slug string) (*models.BroadcastState, error) {
	ev, err := a.eventBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	state, err := a.repo.GetState(ctx, ev.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return a.repo.CreateStateIfAbsent(ctx, &models.BroadcastState{
			EventID:           ev.ID,
			Phase:             models.PhaseIdle,
			TeamsPresented:    []string{},
			PitchDurationSec:  DefaultPitchDurationSec,
			VotingDurationSec: DefaultVotingDurationSec,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get broadcast state: %w", err)
	}
	return state, nil
}

// Apply validates a control action against the current phase and, if
// legal, persists the transition and publishes the new state. Illegal
// actions return ErrIllegalTransition with no state change and no
// audit entry.
func (a *App) Apply(ctx context.Context, slug string, action ControlAction) (*models.BroadcastState, error) {
	ev, err := a.eventBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	state, err := a.GetState(ctx, slug)
	if err != nil {
		return nil, err
	}

	next, err := a.transition(ctx, ev, state, action)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(events.StateChangedPayload{
		Action: action.ActionType(),
		State:  *next,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state change: %w", err)
	}

	updated, err := a.repo.ApplyTransition(ctx, next, outbox.PendingEvent{
		ID:        uuid.New(),
		EventID:   ev.ID,
		EventSlug: ev.Slug,
		EventType: events.TypeStateChanged,
		Payload:   payload,
	})
	if err != nil {
		return nil, err
	}

	// The audit trail is advisory: a failed insert is logged and the
	// accepted transition stands.
	entry := &models.ControlLogEntry{
		ID:       uuid.New(),
		EventID:  ev.ID,
		Action:   action.ActionType(),
		TeamName: updated.CurrentTeamName,
	}
	if err := a.repo.InsertControlLog(ctx, entry); err != nil {
		log.Error().Err(err).
			Str("event_slug", slug).
			Str("action", string(action.ActionType())).
			Msg("failed to write control log entry")
	}

	log.Info().
		Str("event_slug", slug).
		Str("action", string(action.ActionType())).
		Str("phase", string(updated.Phase)).
		Msg("control action applied")

	return updated, nil
}

// transition computes the next state for an action, or rejects it.
func (a *App) transition(ctx context.Context, ev *models.Event, state *models.BroadcastState, action ControlAction) (*models.BroadcastState, error) {
	next := cloneState(state)
	now := a.clock.Now().UTC()

	switch act := action.(type) {
	case StartPresentation:
		if state.Phase != models.PhaseIdle && state.Phase != models.PhaseResultsRevealed {
			return nil, rejected(state.Phase, action)
		}
		team := act.Team
		closes := now.Add(time.Duration(state.PitchDurationSec) * time.Second)
		next.Phase = models.PhasePresentingTeam
		next.CurrentTeamName = &team
		next.PitchClosesAt = &closes
		next.VotingClosesAt = nil

	case OpenVoting:
		if state.Phase != models.PhasePresentingTeam {
			return nil, rejected(state.Phase, action)
		}
		team, err := a.votingTeam(ctx, ev, state, act)
		if err != nil {
			return nil, err
		}
		closes := now.Add(time.Duration(state.VotingDurationSec) * time.Second)
		next.Phase = models.PhaseVotingOpen
		next.CurrentTeamName = &team
		next.PitchClosesAt = nil
		next.VotingClosesAt = &closes
		// A team joins teams_presented only once its voting opens, so a
		// pitch can be aborted and re-run without burning the slot.
		if !state.HasPresented(team) {
			next.TeamsPresented = append(next.TeamsPresented, team)
		}

	case CloseVoting:
		if state.Phase != models.PhaseVotingOpen {
			return nil, rejected(state.Phase, action)
		}
		// Voting freezes for tallying: the phase holds, the deadline
		// clears. Advancing the round takes an explicit reveal.
		next.VotingClosesAt = nil

	case RevealResults:
		if state.Phase != models.PhaseVotingOpen && state.Phase != models.PhasePresentingTeam {
			return nil, rejected(state.Phase, action)
		}
		next.Phase = models.PhaseResultsRevealed
		next.CurrentTeamName = nil
		next.PitchClosesAt = nil
		next.VotingClosesAt = nil

	case EndPresentation:
		if state.Phase != models.PhasePresentingTeam {
			return nil, rejected(state.Phase, action)
		}
		next.Phase = models.PhaseIdle
		next.CurrentTeamName = nil
		next.PitchClosesAt = nil
		next.VotingClosesAt = nil

	default:
		return nil, fmt.Errorf("unhandled control action %T", action)
	}

	next.UpdatedAt = now
	return next, nil
}

// votingTeam resolves which team voting opens for: a random
// not-yet-presented team in random mode, an explicit override, or the
// currently presenting team.
func (a *App) votingTeam(ctx context.Context, ev *models.Event, state *models.BroadcastState, act OpenVoting) (string, error) {
	if state.RandomModeEnabled {
		roster, err := a.roster.ListTeamNames(ctx, ev.ID)
		if err != nil {
			return "", fmt.Errorf("failed to list roster teams: %w", err)
		}
		var eligible []string
		for _, t := range roster {
			if !state.HasPresented(t) {
				eligible = append(eligible, t)
			}
		}
		if len(eligible) == 0 {
			return "", ErrNoEligibleTeam
		}
		return eligible[rand.IntN(len(eligible))], nil
	}

	if act.Team != nil && *act.Team != "" {
		return *act.Team, nil
	}
	if state.CurrentTeamName != nil {
		return *state.CurrentTeamName, nil
	}
	return "", ErrMissingTeam
}

// UpdateSettings adjusts the operator defaults (timer durations, random
// mode). The change is itself distributed as a state change so every
// console reflects it.
func (a *App) UpdateSettings(ctx context.Context, slug string, req UpdateSettingsRequest) (*models.BroadcastState, error) {
	ev, err := a.eventBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	state, err := a.GetState(ctx, slug)
	if err != nil {
		return nil, err
	}

	next := cloneState(state)
	if req.RandomModeEnabled != nil {
		next.RandomModeEnabled = *req.RandomModeEnabled
	}
	if req.PitchDurationSec != nil && *req.PitchDurationSec > 0 {
		next.PitchDurationSec = *req.PitchDurationSec
	}
	if req.VotingDurationSec != nil && *req.VotingDurationSec > 0 {
		next.VotingDurationSec = *req.VotingDurationSec
	}
	next.UpdatedAt = a.clock.Now().UTC()

	return a.publishStateWrite(ctx, ev, next)
}

// ResetPresented clears the teams_presented history, starting a fresh
// round cycle. This is the only path that shrinks the set.
func (a *App) ResetPresented(ctx context.Context, slug string) (*models.BroadcastState, error) {
	ev, err := a.eventBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	state, err := a.GetState(ctx, slug)
	if err != nil {
		return nil, err
	}

	next := cloneState(state)
	next.TeamsPresented = []string{}
	next.UpdatedAt = a.clock.Now().UTC()

	return a.publishStateWrite(ctx, ev, next)
}

// ListControlLog exposes the audit trail for the console and export tooling.
func (a *App) ListControlLog(ctx context.Context, slug string, limit int32) ([]models.ControlLogEntry, error) {
	ev, err := a.eventBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	return a.repo.ListControlLog(ctx, ev.ID, limit)
}

func (a *App) publishStateWrite(ctx context.Context, ev *models.Event, next *models.BroadcastState) (*models.BroadcastState, error) {
	payload, err := json.Marshal(events.StateChangedPayload{State: *next})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state change: %w", err)
	}
	return a.repo.ApplyTransition(ctx, next, outbox.PendingEvent{
		ID:        uuid.New(),
		EventID:   ev.ID,
		EventSlug: ev.Slug,
		EventType: events.TypeStateChanged,
		Payload:   payload,
	})
}

func (a *App) eventBySlug(ctx context.Context, slug string) (*models.Event, error) {
	ev, err := a.roster.GetEventBySlug(ctx, slug)
	if errors.Is(err, roster.ErrEventNotFound) {
		return nil, ErrUnknownEvent
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve event %q: %w", slug, err)
	}
	return ev, nil
}

func rejected(phase models.BroadcastPhase, action ControlAction) error {
	return fmt.Errorf("%w: %s from %s", ErrIllegalTransition, action.ActionType(), phase)
}

func cloneState(s *models.BroadcastState) *models.BroadcastState {
	next := *s
	next.TeamsPresented = append([]string(nil), s.TeamsPresented...)
	return &next
}
