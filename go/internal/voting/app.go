package voting

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/tmarsh12/livestage/go/internal/events"
	"github.com/tmarsh12/livestage/go/internal/models"
	"github.com/tmarsh12/livestage/go/internal/outbox"
)

// VoteRepository defines what the app layer needs from the ledger.
type VoteRepository interface {
	GetWeights(ctx context.Context, eventID uuid.UUID) (*models.VotingWeights, error)
	UpsertWeights(ctx context.Context, w *models.VotingWeights, env outbox.PendingEvent) (*models.VotingWeights, error)
	UpsertVote(ctx context.Context, p upsertVoteParams, env outbox.PendingEvent) (*models.Vote, error)
	TeamAggregates(ctx context.Context, eventID uuid.UUID) ([]teamAggregate, error)
	ListVotes(ctx context.Context, eventID uuid.UUID) ([]models.Vote, error)
}

// BroadcastReader is the slice of the control plane the ledger needs:
// the authoritative phase, current team and presentation order.
type BroadcastReader interface {
	GetState(ctx context.Context, slug string) (*models.BroadcastState, error)
}

// EventResolver resolves event slugs.
type EventResolver interface {
	GetEventBySlug(ctx context.Context, slug string) (*models.Event, error)
}

// App handles vote submission, weight configuration and ranking.
type App struct {
	repo      VoteRepository
	broadcast BroadcastReader
	resolver  EventResolver
	clock     clockwork.Clock
}

// NewApp creates a new voting App.
func NewApp(repo VoteRepository, broadcast BroadcastReader, resolver EventResolver, clock clockwork.Clock) *App {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &App{
		repo:      repo,
		broadcast: broadcast,
		resolver:  resolver,
		clock:     clock,
	}
}

// SubmitVote records one ballot. A repeat submission for the same
// (event, team, voter) triple overwrites the earlier ballot, letting a
// participant change their vote while the window is open. Ballots are
// accepted only while voting is open for that exact team; the displayed
// countdown reaching zero does not close the window, the operator does.
func (a *App) SubmitVote(ctx context.Context, slug string, req SubmitVoteRequest) (*models.Vote, error) {
	if !req.Components.InRange() {
		return nil, ErrScoreOutOfRange
	}
	if req.TeamName == "" || req.VoterID == uuid.Nil {
		return nil, fmt.Errorf("%w: team name and voter id are required", ErrInvalidRequest)
	}

	ev, err := a.resolver.GetEventBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve event %q: %w", slug, err)
	}

	state, err := a.broadcast.GetState(ctx, slug)
	if err != nil {
		return nil, err
	}
	if state.Phase != models.PhaseVotingOpen ||
		state.CurrentTeamName == nil || *state.CurrentTeamName != req.TeamName ||
		state.VotingClosesAt == nil {
		return nil, ErrVoteWindowClosed
	}

	weights, err := a.effectiveWeights(ctx, ev.ID)
	if err != nil {
		return nil, err
	}
	score := weights.Score(req.Components)

	payload, err := json.Marshal(events.VoteRecordedPayload{
		TeamName:   req.TeamName,
		RecordedAt: a.clock.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal vote event: %w", err)
	}

	vote, err := a.repo.UpsertVote(ctx, upsertVoteParams{
		ID:            uuid.New(),
		EventID:       ev.ID,
		TeamName:      req.TeamName,
		VoterID:       req.VoterID,
		Components:    req.Components,
		WeightedScore: score,
	}, outbox.PendingEvent{
		ID:        uuid.New(),
		EventID:   ev.ID,
		EventSlug: ev.Slug,
		EventType: events.TypeVoteRecorded,
		Payload:   payload,
	})
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("event_slug", slug).
		Str("team", req.TeamName).
		Float64("weighted_score", score).
		Msg("vote recorded")

	return vote, nil
}

// ConfigureWeights sets an event's weight vector, by explicit vector or
// preset name. Invalid vectors are rejected before persistence, leaving
// the prior weights in effect.
func (a *App) ConfigureWeights(ctx context.Context, slug string, req ConfigureWeightsRequest) (*models.VotingWeights, error) {
	ev, err := a.resolver.GetEventBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve event %q: %w", slug, err)
	}

	var vector WeightVector
	templateName := req.TemplateName
	switch {
	case templateName != "":
		preset, ok := PresetFor(templateName)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPreset, templateName)
		}
		vector = preset
	case req.Weights != nil:
		vector = *req.Weights
		templateName = "custom"
	default:
		return nil, fmt.Errorf("%w: either weights or template_name is required", ErrInvalidRequest)
	}

	if err := vector.Validate(); err != nil {
		return nil, err
	}

	w := &models.VotingWeights{
		EventID:      ev.ID,
		Viability:    vector.Viability,
		Innovation:   vector.Innovation,
		Pitch:        vector.Pitch,
		Demo:         vector.Demo,
		TemplateName: templateName,
	}

	payload, err := json.Marshal(events.WeightsUpdatedPayload{Weights: *w})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal weights event: %w", err)
	}

	saved, err := a.repo.UpsertWeights(ctx, w, outbox.PendingEvent{
		ID:        uuid.New(),
		EventID:   ev.ID,
		EventSlug: ev.Slug,
		EventType: events.TypeWeightsUpdated,
		Payload:   payload,
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("event_slug", slug).
		Str("template", templateName).
		Msg("voting weights configured")

	// Already-stored ballots keep the score computed when they were
	// cast; only future ballots see the new weights.
	return saved, nil
}

// GetWeights returns the event's configured weights, falling back to
// the balanced preset when none have been set yet.
func (a *App) GetWeights(ctx context.Context, slug string) (*models.VotingWeights, error) {
	ev, err := a.resolver.GetEventBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve event %q: %w", slug, err)
	}

	w, err := a.repo.GetWeights(ctx, ev.ID)
	if errors.Is(err, sql.ErrNoRows) {
		balanced := presets[PresetBalanced]
		return &models.VotingWeights{
			EventID:      ev.ID,
			Viability:    balanced.Viability,
			Innovation:   balanced.Innovation,
			Pitch:        balanced.Pitch,
			Demo:         balanced.Demo,
			TemplateName: PresetBalanced,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get weights: %w", err)
	}
	return w, nil
}

// Rank derives the leaderboard: teams ordered by mean weighted score,
// exact ties broken by presentation order (first presented ranks
// higher), then by name so the order is always total and reproducible.
func (a *App) Rank(ctx context.Context, slug string) ([]models.TeamRanking, error) {
	ev, err := a.resolver.GetEventBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve event %q: %w", slug, err)
	}

	aggs, err := a.repo.TeamAggregates(ctx, ev.ID)
	if err != nil {
		return nil, err
	}

	state, err := a.broadcast.GetState(ctx, slug)
	if err != nil {
		return nil, err
	}
	presentedIdx := make(map[string]int, len(state.TeamsPresented))
	for i, team := range state.TeamsPresented {
		presentedIdx[team] = i
	}

	rankings := make([]models.TeamRanking, 0, len(aggs))
	for _, agg := range aggs {
		rankings = append(rankings, models.TeamRanking{
			TeamName:          agg.TeamName,
			MeanWeightedScore: agg.MeanScore,
			VoteCount:         agg.VoteCount,
		})
	}

	sort.SliceStable(rankings, func(i, j int) bool {
		if rankings[i].MeanWeightedScore != rankings[j].MeanWeightedScore {
			return rankings[i].MeanWeightedScore > rankings[j].MeanWeightedScore
		}
		oi, oj := presentedOrder(presentedIdx, rankings[i].TeamName), presentedOrder(presentedIdx, rankings[j].TeamName)
		if oi != oj {
			return oi < oj
		}
		return rankings[i].TeamName < rankings[j].TeamName
	})

	return rankings, nil
}

// ListVotes exposes the raw ledger for export tooling.
func (a *App) ListVotes(ctx context.Context, slug string) ([]models.Vote, error) {
	ev, err := a.resolver.GetEventBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve event %q: %w", slug, err)
	}
	return a.repo.ListVotes(ctx, ev.ID)
}

func (a *App) effectiveWeights(ctx context.Context, eventID uuid.UUID) (WeightVector, error) {
	w, err := a.repo.GetWeights(ctx, eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return presets[PresetBalanced], nil
	}
	if err != nil {
		return WeightVector{}, fmt.Errorf("failed to get weights: %w", err)
	}
	return vectorOf(w), nil
}

func presentedOrder(idx map[string]int, team string) int {
	if i, ok := idx[team]; ok {
		return i
	}
	// Teams that never presented sort after all presented teams.
	return int(^uint(0) >> 1)
}
