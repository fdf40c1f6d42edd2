package gateway

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tmarsh12/livestage/go/internal/events"
	"github.com/tmarsh12/livestage/go/internal/models"
)

func stateChangedEnvelope(t *testing.T, slug string, state models.BroadcastState) *events.Envelope {
	t.Helper()
	payload, err := json.Marshal(events.StateChangedPayload{
		Action: models.ActionOpenVoting,
		State:  state,
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return &events.Envelope{
		ID:        uuid.New().String(),
		EventSlug: slug,
		Type:      events.TypeStateChanged,
		Timestamp: state.UpdatedAt,
		Payload:   payload,
	}
}

func TestEventStateManagerProjection(t *testing.T) {
	m := NewEventStateManager()

	if _, ok := m.GetState("hackathon-2026"); ok {
		t.Fatal("empty manager returned a state")
	}

	team := "team-alpha"
	closes := time.Date(2026, 8, 28, 19, 2, 0, 0, time.UTC)
	state := models.BroadcastState{
		Phase:             models.PhaseVotingOpen,
		CurrentTeamName:   &team,
		VotingClosesAt:    &closes,
		TeamsPresented:    []string{"team-alpha"},
		VotingDurationSec: 120,
		UpdatedAt:         closes.Add(-120 * time.Second),
	}

	if err := m.ProcessEnvelope(stateChangedEnvelope(t, "hackathon-2026", state)); err != nil {
		t.Fatalf("ProcessEnvelope() error = %v", err)
	}

	got, ok := m.GetState("hackathon-2026")
	if !ok {
		t.Fatal("state missing after projection")
	}
	if got.Phase != models.PhaseVotingOpen {
		t.Errorf("Phase = %q, want voting_open", got.Phase)
	}

	// The returned copy must not alias the projection.
	got.TeamsPresented[0] = "mutated"
	fresh, _ := m.GetState("hackathon-2026")
	if fresh.TeamsPresented[0] != "team-alpha" {
		t.Error("GetState returned an aliased TeamsPresented slice")
	}
}

func TestEventStateManagerIgnoresVoteEvents(t *testing.T) {
	m := NewEventStateManager()
	m.Seed("hackathon-2026", &models.BroadcastState{Phase: models.PhaseVotingOpen})

	env := &events.Envelope{
		ID:        uuid.New().String(),
		EventSlug: "hackathon-2026",
		Type:      events.TypeVoteRecorded,
		Payload:   json.RawMessage(`{"team_name":"team-alpha"}`),
	}
	if err := m.ProcessEnvelope(env); err != nil {
		t.Fatalf("ProcessEnvelope() error = %v", err)
	}

	got, _ := m.GetState("hackathon-2026")
	if got.Phase != models.PhaseVotingOpen {
		t.Errorf("vote event changed the phase to %q", got.Phase)
	}
}

func TestViewerStateForDerivesCountdowns(t *testing.T) {
	m := NewEventStateManager()

	team := "team-alpha"
	closes := time.Date(2026, 8, 28, 19, 2, 0, 0, time.UTC)
	m.Seed("hackathon-2026", &models.BroadcastState{
		Phase:             models.PhaseVotingOpen,
		CurrentTeamName:   &team,
		VotingClosesAt:    &closes,
		VotingDurationSec: 120,
	})

	now := closes.Add(-45 * time.Second)
	vs, ok := m.ViewerStateFor("hackathon-2026", now)
	if !ok {
		t.Fatal("ViewerStateFor returned no state")
	}
	if vs.VotingTimer == nil {
		t.Fatal("VotingTimer is nil while voting is open")
	}
	if vs.VotingTimer.SecondsRemaining != 45 {
		t.Errorf("SecondsRemaining = %d, want 45", vs.VotingTimer.SecondsRemaining)
	}
	if vs.VotingTimer.PercentElapsed != 62.5 {
		t.Errorf("PercentElapsed = %v, want 62.5", vs.VotingTimer.PercentElapsed)
	}
	if vs.PitchTimer != nil {
		t.Errorf("PitchTimer = %+v, want nil without a pitch deadline", vs.PitchTimer)
	}
	if !vs.ServerTime.Equal(now) {
		t.Errorf("ServerTime = %v, want %v", vs.ServerTime, now)
	}
}
