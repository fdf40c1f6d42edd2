package voting

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/tmarsh12/livestage/go/internal/models"
	"github.com/tmarsh12/livestage/go/internal/outbox"
	"github.com/tmarsh12/livestage/go/internal/roster"
)

type fakeVoteRepo struct {
	weights     *models.VotingWeights
	votes       map[string]*models.Vote // keyed by team/voter
	pending     []outbox.PendingEvent
	aggregates  []teamAggregate
	failUpserts bool
}

func newFakeVoteRepo() *fakeVoteRepo {
	return &fakeVoteRepo{votes: make(map[string]*models.Vote)}
}

func (f *fakeVoteRepo) GetWeights(ctx context.Context, eventID uuid.UUID) (*models.VotingWeights, error) {
	if f.weights == nil {
		return nil, sql.ErrNoRows
	}
	return f.weights, nil
}

func (f *fakeVoteRepo) UpsertWeights(ctx context.Context, w *models.VotingWeights, env outbox.PendingEvent) (*models.VotingWeights, error) {
	f.weights = w
	f.pending = append(f.pending, env)
	return w, nil
}

func (f *fakeVoteRepo) UpsertVote(ctx context.Context, p upsertVoteParams, env outbox.PendingEvent) (*models.Vote, error) {
	if f.failUpserts {
		return nil, errors.New("connection refused")
	}
	key := p.TeamName + "/" + p.VoterID.String()
	vote, exists := f.votes[key]
	if !exists {
		vote = &models.Vote{
			ID:      p.ID,
			EventID: p.EventID,
		}
		f.votes[key] = vote
	}
	vote.TeamName = p.TeamName
	vote.VoterID = p.VoterID
	vote.Components = p.Components
	vote.WeightedScore = p.WeightedScore
	f.pending = append(f.pending, env)
	return vote, nil
}

func (f *fakeVoteRepo) TeamAggregates(ctx context.Context, eventID uuid.UUID) ([]teamAggregate, error) {
	return f.aggregates, nil
}

func (f *fakeVoteRepo) ListVotes(ctx context.Context, eventID uuid.UUID) ([]models.Vote, error) {
	var out []models.Vote
	for _, v := range f.votes {
		out = append(out, *v)
	}
	return out, nil
}

type fakeBroadcast struct {
	state *models.BroadcastState
}

func (f *fakeBroadcast) GetState(ctx context.Context, slug string) (*models.BroadcastState, error) {
	return f.state, nil
}

type fakeResolver struct {
	event *models.Event
}

func (f *fakeResolver) GetEventBySlug(ctx context.Context, slug string) (*models.Event, error) {
	if f.event == nil || f.event.Slug != slug {
		return nil, roster.ErrEventNotFound
	}
	return f.event, nil
}

func votingOpenState(team string, closesAt time.Time) *models.BroadcastState {
	return &models.BroadcastState{
		Phase:           models.PhaseVotingOpen,
		CurrentTeamName: &team,
		VotingClosesAt:  &closesAt,
		TeamsPresented:  []string{team},
	}
}

func newVotingTestApp(state *models.BroadcastState) (*App, *fakeVoteRepo) {
	repo := newFakeVoteRepo()
	resolver := &fakeResolver{event: &models.Event{ID: uuid.New(), Slug: "hackathon-2026"}}
	clock := clockwork.NewFakeClockAt(time.Date(2026, 8, 28, 19, 0, 0, 0, time.UTC))
	return NewApp(repo, &fakeBroadcast{state: state}, resolver, clock), repo
}

func TestSubmitVoteComputesWeightedScore(t *testing.T) {
	closes := time.Date(2026, 8, 28, 19, 2, 0, 0, time.UTC)
	app, repo := newVotingTestApp(votingOpenState("team-alpha", closes))

	// Hybrid weights are in effect for this event.
	hybrid := presets[PresetHybrid]
	repo.weights = &models.VotingWeights{
		Viability: hybrid.Viability, Innovation: hybrid.Innovation,
		Pitch: hybrid.Pitch, Demo: hybrid.Demo,
		TemplateName: PresetHybrid,
	}

	vote, err := app.SubmitVote(context.Background(), "hackathon-2026", SubmitVoteRequest{
		VoterID:    uuid.New(),
		TeamName:   "team-alpha",
		Components: models.VoteComponents{Viability: 9, Innovation: 6, Pitch: 8, Demo: 7},
	})
	if err != nil {
		t.Fatalf("SubmitVote() error = %v", err)
	}
	if math.Abs(vote.WeightedScore-7.80) > 1e-9 {
		t.Errorf("WeightedScore = %v, want 7.80", vote.WeightedScore)
	}
	if len(repo.pending) != 1 {
		t.Errorf("outbox events = %d, want 1", len(repo.pending))
	}
}

func TestSubmitVoteDefaultsToBalancedWeights(t *testing.T) {
	closes := time.Date(2026, 8, 28, 19, 2, 0, 0, time.UTC)
	app, _ := newVotingTestApp(votingOpenState("team-alpha", closes))

	vote, err := app.SubmitVote(context.Background(), "hackathon-2026", SubmitVoteRequest{
		VoterID:    uuid.New(),
		TeamName:   "team-alpha",
		Components: models.VoteComponents{Viability: 9, Innovation: 6, Pitch: 8, Demo: 7},
	})
	if err != nil {
		t.Fatalf("SubmitVote() error = %v", err)
	}
	if math.Abs(vote.WeightedScore-7.50) > 1e-9 {
		t.Errorf("WeightedScore = %v, want 7.50 under balanced weights", vote.WeightedScore)
	}
}

func TestSubmitVoteUpsertOverwrites(t *testing.T) {
	closes := time.Date(2026, 8, 28, 19, 2, 0, 0, time.UTC)
	app, repo := newVotingTestApp(votingOpenState("team-alpha", closes))
	voter := uuid.New()

	first, err := app.SubmitVote(context.Background(), "hackathon-2026", SubmitVoteRequest{
		VoterID:    voter,
		TeamName:   "team-alpha",
		Components: models.VoteComponents{Viability: 5, Innovation: 5, Pitch: 5, Demo: 5},
	})
	if err != nil {
		t.Fatalf("first SubmitVote() error = %v", err)
	}

	second, err := app.SubmitVote(context.Background(), "hackathon-2026", SubmitVoteRequest{
		VoterID:    voter,
		TeamName:   "team-alpha",
		Components: models.VoteComponents{Viability: 9, Innovation: 9, Pitch: 9, Demo: 9},
	})
	if err != nil {
		t.Fatalf("second SubmitVote() error = %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("repeat submission created a new row: %v vs %v", first.ID, second.ID)
	}
	if len(repo.votes) != 1 {
		t.Errorf("ledger rows = %d, want 1", len(repo.votes))
	}
	if second.WeightedScore != 9.0 {
		t.Errorf("WeightedScore after overwrite = %v, want 9.0", second.WeightedScore)
	}
}

func TestSubmitVoteWindowChecks(t *testing.T) {
	team := "team-alpha"
	other := "team-beta"
	closes := time.Date(2026, 8, 28, 19, 2, 0, 0, time.UTC)

	tests := []struct {
		name  string
		state *models.BroadcastState
	}{
		{"idle phase", &models.BroadcastState{Phase: models.PhaseIdle}},
		{"presenting phase", &models.BroadcastState{Phase: models.PhasePresentingTeam, CurrentTeamName: &team}},
		{"voting open for another team", votingOpenState(other, closes)},
		{
			"voting frozen for tallying",
			&models.BroadcastState{Phase: models.PhaseVotingOpen, CurrentTeamName: &team, VotingClosesAt: nil},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, repo := newVotingTestApp(tt.state)
			_, err := app.SubmitVote(context.Background(), "hackathon-2026", SubmitVoteRequest{
				VoterID:    uuid.New(),
				TeamName:   team,
				Components: models.VoteComponents{Viability: 5, Innovation: 5, Pitch: 5, Demo: 5},
			})
			if !errors.Is(err, ErrVoteWindowClosed) {
				t.Fatalf("SubmitVote() error = %v, want ErrVoteWindowClosed", err)
			}
			if len(repo.votes) != 0 {
				t.Errorf("rejected vote reached the ledger")
			}
		})
	}
}

func TestSubmitVoteRejectsOutOfRangeComponents(t *testing.T) {
	closes := time.Date(2026, 8, 28, 19, 2, 0, 0, time.UTC)
	app, _ := newVotingTestApp(votingOpenState("team-alpha", closes))

	_, err := app.SubmitVote(context.Background(), "hackathon-2026", SubmitVoteRequest{
		VoterID:    uuid.New(),
		TeamName:   "team-alpha",
		Components: models.VoteComponents{Viability: 11, Innovation: 5, Pitch: 5, Demo: 5},
	})
	if !errors.Is(err, ErrScoreOutOfRange) {
		t.Fatalf("SubmitVote() error = %v, want ErrScoreOutOfRange", err)
	}
}

func TestSubmitVoteMissingFieldsIsInvalidRequest(t *testing.T) {
	closes := time.Date(2026, 8, 28, 19, 2, 0, 0, time.UTC)
	app, repo := newVotingTestApp(votingOpenState("team-alpha", closes))

	cases := []SubmitVoteRequest{
		{TeamName: "team-alpha", Components: models.VoteComponents{Viability: 5, Innovation: 5, Pitch: 5, Demo: 5}},
		{VoterID: uuid.New(), Components: models.VoteComponents{Viability: 5, Innovation: 5, Pitch: 5, Demo: 5}},
	}
	for _, req := range cases {
		if _, err := app.SubmitVote(context.Background(), "hackathon-2026", req); !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("SubmitVote(%+v) error = %v, want ErrInvalidRequest", req, err)
		}
	}
	if len(repo.pending) != 0 {
		t.Errorf("outbox events = %d, want none for rejected ballots", len(repo.pending))
	}
}

func TestConfigureWeightsEmptyRequestIsInvalidRequest(t *testing.T) {
	app, _ := newVotingTestApp(votingOpenState("team-alpha", time.Date(2026, 8, 28, 19, 2, 0, 0, time.UTC)))

	if _, err := app.ConfigureWeights(context.Background(), "hackathon-2026", ConfigureWeightsRequest{}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("ConfigureWeights() error = %v, want ErrInvalidRequest", err)
	}
}

func TestConfigureWeights(t *testing.T) {
	app, repo := newVotingTestApp(&models.BroadcastState{Phase: models.PhaseIdle})

	saved, err := app.ConfigureWeights(context.Background(), "hackathon-2026", ConfigureWeightsRequest{
		TemplateName: PresetViabilityFocused,
	})
	if err != nil {
		t.Fatalf("ConfigureWeights() error = %v", err)
	}
	if saved.Viability != 0.40 || saved.TemplateName != PresetViabilityFocused {
		t.Errorf("saved weights = %+v, want viability-focused preset", saved)
	}

	custom := WeightVector{Viability: 0.10, Innovation: 0.20, Pitch: 0.30, Demo: 0.40}
	saved, err = app.ConfigureWeights(context.Background(), "hackathon-2026", ConfigureWeightsRequest{
		Weights: &custom,
	})
	if err != nil {
		t.Fatalf("ConfigureWeights() custom error = %v", err)
	}
	if saved.TemplateName != "custom" || saved.Demo != 0.40 {
		t.Errorf("saved weights = %+v, want custom vector", saved)
	}

	if len(repo.pending) != 2 {
		t.Errorf("outbox events = %d, want 2", len(repo.pending))
	}
}

func TestConfigureWeightsRejectsInvalid(t *testing.T) {
	app, repo := newVotingTestApp(&models.BroadcastState{Phase: models.PhaseIdle})

	bad := WeightVector{Viability: 0.50, Innovation: 0.50, Pitch: 0.50, Demo: 0.50}
	_, err := app.ConfigureWeights(context.Background(), "hackathon-2026", ConfigureWeightsRequest{Weights: &bad})
	if !errors.Is(err, ErrInvalidWeights) {
		t.Fatalf("ConfigureWeights() error = %v, want ErrInvalidWeights", err)
	}
	if repo.weights != nil {
		t.Error("invalid weights were persisted")
	}

	_, err = app.ConfigureWeights(context.Background(), "hackathon-2026", ConfigureWeightsRequest{TemplateName: "no-such-preset"})
	if !errors.Is(err, ErrUnknownPreset) {
		t.Fatalf("ConfigureWeights() error = %v, want ErrUnknownPreset", err)
	}
}

func TestRankOrdersAndBreaksTies(t *testing.T) {
	state := &models.BroadcastState{
		Phase:          models.PhaseResultsRevealed,
		TeamsPresented: []string{"team-beta", "team-alpha", "team-gamma"},
	}
	app, repo := newVotingTestApp(state)
	repo.aggregates = []teamAggregate{
		{TeamName: "team-alpha", MeanScore: 7.5, VoteCount: 12},
		{TeamName: "team-beta", MeanScore: 7.5, VoteCount: 10},
		{TeamName: "team-gamma", MeanScore: 8.1, VoteCount: 9},
		{TeamName: "team-delta", MeanScore: 7.5, VoteCount: 3},
	}

	got, err := app.Rank(context.Background(), "hackathon-2026")
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}

	want := []models.TeamRanking{
		{TeamName: "team-gamma", MeanWeightedScore: 8.1, VoteCount: 9},
		// Exact tie at 7.5: beta presented before alpha, delta never
		// presented so it sorts last among the tied teams.
		{TeamName: "team-beta", MeanWeightedScore: 7.5, VoteCount: 10},
		{TeamName: "team-alpha", MeanWeightedScore: 7.5, VoteCount: 12},
		{TeamName: "team-delta", MeanWeightedScore: 7.5, VoteCount: 3},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Rank() mismatch (-want +got):\n%s", diff)
	}
}

func TestGetWeightsFallsBackToBalanced(t *testing.T) {
	app, _ := newVotingTestApp(&models.BroadcastState{Phase: models.PhaseIdle})

	got, err := app.GetWeights(context.Background(), "hackathon-2026")
	if err != nil {
		t.Fatalf("GetWeights() error = %v", err)
	}
	if got.TemplateName != PresetBalanced || got.Viability != 0.25 {
		t.Errorf("GetWeights() = %+v, want balanced preset", got)
	}
}
