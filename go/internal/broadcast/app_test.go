package broadcast

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/tmarsh12/livestage/go/internal/models"
	"github.com/tmarsh12/livestage/go/internal/outbox"
	"github.com/tmarsh12/livestage/go/internal/roster"
)

type fakeStateRepo struct {
	state      *models.BroadcastState
	pending    []outbox.PendingEvent
	controlLog []models.ControlLogEntry
	logErr     error
}

func (f *fakeStateRepo) GetState(ctx context.Context, eventID uuid.UUID) (*models.BroadcastState, error) {
	if f.state == nil {
		return nil, sql.ErrNoRows
	}
	copied := *f.state
	copied.TeamsPresented = append([]string(nil), f.state.TeamsPresented...)
	return &copied, nil
}

func (f *fakeStateRepo) CreateStateIfAbsent(ctx context.Context, state *models.BroadcastState) (*models.BroadcastState, error) {
	if f.state == nil {
		f.state = state
	}
	return f.state, nil
}

func (f *fakeStateRepo) ApplyTransition(ctx context.Context, state *models.BroadcastState, env outbox.PendingEvent) (*models.BroadcastState, error) {
	f.state = state
	f.pending = append(f.pending, env)
	return state, nil
}

func (f *fakeStateRepo) InsertControlLog(ctx context.Context, entry *models.ControlLogEntry) error {
	if f.logErr != nil {
		return f.logErr
	}
	f.controlLog = append(f.controlLog, *entry)
	return nil
}

func (f *fakeStateRepo) ListControlLog(ctx context.Context, eventID uuid.UUID, limit int32) ([]models.ControlLogEntry, error) {
	return f.controlLog, nil
}

type fakeRoster struct {
	event *models.Event
	teams []string
}

func (f *fakeRoster) GetEventBySlug(ctx context.Context, slug string) (*models.Event, error) {
	if f.event == nil || f.event.Slug != slug {
		return nil, roster.ErrEventNotFound
	}
	return f.event, nil
}

func (f *fakeRoster) ListTeamNames(ctx context.Context, eventID uuid.UUID) ([]string, error) {
	return f.teams, nil
}

func newTestApp(t *testing.T, state *models.BroadcastState) (*App, *fakeStateRepo, *clockwork.FakeClock) {
	t.Helper()
	repo := &fakeStateRepo{state: state}
	ros := &fakeRoster{
		event: &models.Event{ID: uuid.New(), Slug: "hackathon-2026", Name: "Hackathon 2026"},
		teams: []string{"team-alpha", "team-beta", "team-gamma"},
	}
	clock := clockwork.NewFakeClockAt(time.Date(2026, 8, 28, 19, 0, 0, 0, time.UTC))
	return NewApp(repo, ros, clock), repo, clock
}

func idleState() *models.BroadcastState {
	return &models.BroadcastState{
		Phase:             models.PhaseIdle,
		TeamsPresented:    []string{},
		PitchDurationSec:  DefaultPitchDurationSec,
		VotingDurationSec: DefaultVotingDurationSec,
	}
}

func TestApplyStartPresentation(t *testing.T) {
	app, repo, clock := newTestApp(t, idleState())

	got, err := app.Apply(context.Background(), "hackathon-2026", StartPresentation{Team: "team-alpha"})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if got.Phase != models.PhasePresentingTeam {
		t.Errorf("Phase = %q, want %q", got.Phase, models.PhasePresentingTeam)
	}
	if got.CurrentTeamName == nil || *got.CurrentTeamName != "team-alpha" {
		t.Errorf("CurrentTeamName = %v, want team-alpha", got.CurrentTeamName)
	}
	wantCloses := clock.Now().UTC().Add(DefaultPitchDurationSec * time.Second)
	if got.PitchClosesAt == nil || !got.PitchClosesAt.Equal(wantCloses) {
		t.Errorf("PitchClosesAt = %v, want %v", got.PitchClosesAt, wantCloses)
	}
	if got.VotingClosesAt != nil {
		t.Errorf("VotingClosesAt = %v, want nil", got.VotingClosesAt)
	}
	if len(repo.pending) != 1 {
		t.Fatalf("outbox events = %d, want 1", len(repo.pending))
	}
	if len(repo.controlLog) != 1 || repo.controlLog[0].Action != models.ActionStartPresentation {
		t.Errorf("control log = %+v, want one start_presentation entry", repo.controlLog)
	}
}

func TestApplyFullRound(t *testing.T) {
	app, repo, clock := newTestApp(t, idleState())
	ctx := context.Background()
	slug := "hackathon-2026"

	if _, err := app.Apply(ctx, slug, StartPresentation{Team: "team-beta"}); err != nil {
		t.Fatalf("start_presentation: %v", err)
	}

	got, err := app.Apply(ctx, slug, OpenVoting{})
	if err != nil {
		t.Fatalf("open_voting: %v", err)
	}
	if got.Phase != models.PhaseVotingOpen {
		t.Errorf("Phase after open_voting = %q, want %q", got.Phase, models.PhaseVotingOpen)
	}
	wantCloses := clock.Now().UTC().Add(DefaultVotingDurationSec * time.Second)
	if got.VotingClosesAt == nil || !got.VotingClosesAt.Equal(wantCloses) {
		t.Errorf("VotingClosesAt = %v, want %v", got.VotingClosesAt, wantCloses)
	}
	if got.PitchClosesAt != nil {
		t.Errorf("PitchClosesAt = %v, want nil once voting opens", got.PitchClosesAt)
	}
	if diff := cmp.Diff([]string{"team-beta"}, got.TeamsPresented); diff != "" {
		t.Errorf("TeamsPresented mismatch (-want +got):\n%s", diff)
	}

	got, err = app.Apply(ctx, slug, CloseVoting{})
	if err != nil {
		t.Fatalf("close_voting: %v", err)
	}
	if got.Phase != models.PhaseVotingOpen {
		t.Errorf("Phase after close_voting = %q, want voting_open (frozen)", got.Phase)
	}
	if got.VotingClosesAt != nil {
		t.Errorf("VotingClosesAt after close_voting = %v, want nil", got.VotingClosesAt)
	}

	got, err = app.Apply(ctx, slug, RevealResults{})
	if err != nil {
		t.Fatalf("reveal_results: %v", err)
	}
	if got.Phase != models.PhaseResultsRevealed {
		t.Errorf("Phase after reveal_results = %q, want %q", got.Phase, models.PhaseResultsRevealed)
	}
	if got.CurrentTeamName != nil {
		t.Errorf("CurrentTeamName after reveal = %v, want nil", got.CurrentTeamName)
	}
	if diff := cmp.Diff([]string{"team-beta"}, got.TeamsPresented); diff != "" {
		t.Errorf("TeamsPresented survives reveal (-want +got):\n%s", diff)
	}

	// A new round can start directly from results_revealed.
	if _, err := app.Apply(ctx, slug, StartPresentation{Team: "team-alpha"}); err != nil {
		t.Fatalf("start_presentation from results_revealed: %v", err)
	}

	if len(repo.pending) != 5 {
		t.Errorf("outbox events = %d, want 5", len(repo.pending))
	}
	if len(repo.controlLog) != 5 {
		t.Errorf("control log entries = %d, want 5", len(repo.controlLog))
	}
}

func TestApplyIllegalTransitions(t *testing.T) {
	presenting := "team-alpha"
	tests := []struct {
		name   string
		state  *models.BroadcastState
		action ControlAction
	}{
		{"close_voting from idle", idleState(), CloseVoting{}},
		{"open_voting from idle", idleState(), OpenVoting{}},
		{"end_presentation from idle", idleState(), EndPresentation{}},
		{"reveal_results from idle", idleState(), RevealResults{}},
		{
			"start_presentation while presenting",
			&models.BroadcastState{
				Phase:             models.PhasePresentingTeam,
				CurrentTeamName:   &presenting,
				TeamsPresented:    []string{},
				PitchDurationSec:  DefaultPitchDurationSec,
				VotingDurationSec: DefaultVotingDurationSec,
			},
			StartPresentation{Team: "team-beta"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, repo, _ := newTestApp(t, tt.state)
			_, err := app.Apply(context.Background(), "hackathon-2026", tt.action)
			if !errors.Is(err, ErrIllegalTransition) {
				t.Fatalf("Apply() error = %v, want ErrIllegalTransition", err)
			}
			if len(repo.pending) != 0 {
				t.Errorf("rejected action published %d outbox events, want 0", len(repo.pending))
			}
			if len(repo.controlLog) != 0 {
				t.Errorf("rejected action wrote %d control log entries, want 0", len(repo.controlLog))
			}
		})
	}
}

func TestApplyUnknownEvent(t *testing.T) {
	app, _, _ := newTestApp(t, idleState())
	_, err := app.Apply(context.Background(), "no-such-event", CloseVoting{})
	if !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("Apply() error = %v, want ErrUnknownEvent", err)
	}
}

func TestOpenVotingRandomModePicksUnpresentedTeam(t *testing.T) {
	presenting := "team-alpha"
	state := &models.BroadcastState{
		Phase:             models.PhasePresentingTeam,
		CurrentTeamName:   &presenting,
		TeamsPresented:    []string{"team-alpha", "team-beta"},
		RandomModeEnabled: true,
		PitchDurationSec:  DefaultPitchDurationSec,
		VotingDurationSec: DefaultVotingDurationSec,
	}
	app, _, _ := newTestApp(t, state)

	got, err := app.Apply(context.Background(), "hackathon-2026", OpenVoting{})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	// team-gamma is the only roster team not yet presented.
	if got.CurrentTeamName == nil || *got.CurrentTeamName != "team-gamma" {
		t.Errorf("CurrentTeamName = %v, want team-gamma", got.CurrentTeamName)
	}
	if !got.HasPresented("team-gamma") {
		t.Errorf("team-gamma missing from TeamsPresented: %v", got.TeamsPresented)
	}
}

func TestOpenVotingRandomModeExhaustedRoster(t *testing.T) {
	presenting := "team-gamma"
	state := &models.BroadcastState{
		Phase:             models.PhasePresentingTeam,
		CurrentTeamName:   &presenting,
		TeamsPresented:    []string{"team-alpha", "team-beta", "team-gamma"},
		RandomModeEnabled: true,
		PitchDurationSec:  DefaultPitchDurationSec,
		VotingDurationSec: DefaultVotingDurationSec,
	}
	app, _, _ := newTestApp(t, state)

	_, err := app.Apply(context.Background(), "hackathon-2026", OpenVoting{})
	if !errors.Is(err, ErrNoEligibleTeam) {
		t.Fatalf("Apply() error = %v, want ErrNoEligibleTeam", err)
	}
}

func TestOpenVotingDoesNotDuplicatePresentedTeam(t *testing.T) {
	presenting := "team-alpha"
	state := &models.BroadcastState{
		Phase:             models.PhasePresentingTeam,
		CurrentTeamName:   &presenting,
		TeamsPresented:    []string{"team-alpha"},
		PitchDurationSec:  DefaultPitchDurationSec,
		VotingDurationSec: DefaultVotingDurationSec,
	}
	app, _, _ := newTestApp(t, state)

	got, err := app.Apply(context.Background(), "hackathon-2026", OpenVoting{})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if diff := cmp.Diff([]string{"team-alpha"}, got.TeamsPresented); diff != "" {
		t.Errorf("TeamsPresented mismatch (-want +got):\n%s", diff)
	}
}

func TestGetStateLazilyCreatesIdleRow(t *testing.T) {
	app, repo, _ := newTestApp(t, nil)

	got, err := app.GetState(context.Background(), "hackathon-2026")
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if got.Phase != models.PhaseIdle {
		t.Errorf("Phase = %q, want idle", got.Phase)
	}
	if got.PitchDurationSec != DefaultPitchDurationSec || got.VotingDurationSec != DefaultVotingDurationSec {
		t.Errorf("durations = %d/%d, want defaults", got.PitchDurationSec, got.VotingDurationSec)
	}
	if repo.state == nil {
		t.Error("idle row was not persisted")
	}
}

func TestControlLogFailureDoesNotUndoTransition(t *testing.T) {
	repo := &fakeStateRepo{state: idleState(), logErr: errors.New("audit store down")}
	ros := &fakeRoster{event: &models.Event{ID: uuid.New(), Slug: "hackathon-2026"}}
	app := NewApp(repo, ros, clockwork.NewFakeClock())

	got, err := app.Apply(context.Background(), "hackathon-2026", StartPresentation{Team: "team-alpha"})
	if err != nil {
		t.Fatalf("Apply() error = %v, want accepted transition despite audit failure", err)
	}
	if got.Phase != models.PhasePresentingTeam {
		t.Errorf("Phase = %q, want presenting_team", got.Phase)
	}
}

func TestUpdateSettings(t *testing.T) {
	app, _, _ := newTestApp(t, idleState())

	randomMode := true
	pitch := 300
	got, err := app.UpdateSettings(context.Background(), "hackathon-2026", UpdateSettingsRequest{
		RandomModeEnabled: &randomMode,
		PitchDurationSec:  &pitch,
	})
	if err != nil {
		t.Fatalf("UpdateSettings() error = %v", err)
	}
	if !got.RandomModeEnabled {
		t.Error("RandomModeEnabled = false, want true")
	}
	if got.PitchDurationSec != 300 {
		t.Errorf("PitchDurationSec = %d, want 300", got.PitchDurationSec)
	}
	if got.VotingDurationSec != DefaultVotingDurationSec {
		t.Errorf("VotingDurationSec = %d, want untouched default", got.VotingDurationSec)
	}
}

func TestResetPresented(t *testing.T) {
	state := idleState()
	state.TeamsPresented = []string{"team-alpha", "team-beta"}
	app, _, _ := newTestApp(t, state)

	got, err := app.ResetPresented(context.Background(), "hackathon-2026")
	if err != nil {
		t.Fatalf("ResetPresented() error = %v", err)
	}
	if len(got.TeamsPresented) != 0 {
		t.Errorf("TeamsPresented = %v, want empty", got.TeamsPresented)
	}
}

func TestDecodeControlAction(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    models.ControlActionType
		wantErr bool
	}{
		{"start with team", `{"action":"start_presentation","params":{"team":"team-alpha"}}`, models.ActionStartPresentation, false},
		{"start without team", `{"action":"start_presentation"}`, "", true},
		{"open voting bare", `{"action":"open_voting"}`, models.ActionOpenVoting, false},
		{"close voting", `{"action":"close_voting"}`, models.ActionCloseVoting, false},
		{"reveal", `{"action":"reveal_results"}`, models.ActionRevealResults, false},
		{"end", `{"action":"end_presentation"}`, models.ActionEndPresentation, false},
		{"unknown", `{"action":"rewind_time"}`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeControlAction([]byte(tt.body))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("DecodeControlAction() = %v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeControlAction() error = %v", err)
			}
			if got.ActionType() != tt.want {
				t.Errorf("ActionType() = %q, want %q", got.ActionType(), tt.want)
			}
		})
	}
}
