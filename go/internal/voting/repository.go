package voting

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/tmarsh12/livestage/go/internal/models"
	"github.com/tmarsh12/livestage/go/internal/outbox"
	"github.com/tmarsh12/livestage/go/internal/sqlutil"
)

// Repository implements vote ledger and weights data access.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new voting repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// GetWeights fetches an event's weight configuration. Returns
// sql.ErrNoRows when no weights have been configured yet.
func (r *Repository) GetWeights(ctx context.Context, eventID uuid.UUID) (*models.VotingWeights, error) {
	var w models.VotingWeights
	err := r.db.QueryRowContext(ctx, `
		SELECT event_id, viability, innovation, pitch, demo, template_name, updated_at
		FROM voting_weights WHERE event_id = $1`, eventID,
	).Scan(&w.EventID, &w.Viability, &w.Innovation, &w.Pitch, &w.Demo, &w.TemplateName, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// UpsertWeights writes the event's weight vector and pushes the change
// onto the distribution channel in the same transaction. Validation
// happens in the app layer before this is called.
func (r *Repository) UpsertWeights(ctx context.Context, w *models.VotingWeights, env outbox.PendingEvent) (*models.VotingWeights, error) {
	var saved models.VotingWeights
	err := sqlutil.Run(ctx, r.db, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			INSERT INTO voting_weights (event_id, viability, innovation, pitch, demo, template_name, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, now())
			ON CONFLICT (event_id) DO UPDATE SET
				viability = EXCLUDED.viability,
				innovation = EXCLUDED.innovation,
				pitch = EXCLUDED.pitch,
				demo = EXCLUDED.demo,
				template_name = EXCLUDED.template_name,
				updated_at = now()
			RETURNING event_id, viability, innovation, pitch, demo, template_name, updated_at`,
			w.EventID, w.Viability, w.Innovation, w.Pitch, w.Demo, w.TemplateName,
		)
		if err := row.Scan(&saved.EventID, &saved.Viability, &saved.Innovation, &saved.Pitch,
			&saved.Demo, &saved.TemplateName, &saved.UpdatedAt); err != nil {
			return fmt.Errorf("failed to upsert weights: %w", err)
		}
		return outbox.InsertTx(ctx, tx, env)
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// UpsertVote writes one ballot, overwriting any previous ballot for the
// same (event, team, voter) triple, and records the change in the
// outbox. The uniqueness constraint on the triple makes repeat
// submissions idempotent updates rather than duplicates.
func (r *Repository) UpsertVote(ctx context.Context, p upsertVoteParams, env outbox.PendingEvent) (*models.Vote, error) {
	var v models.Vote
	err := sqlutil.Run(ctx, r.db, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			INSERT INTO votes (
				id, event_id, team_name, voter_id,
				score_viability, score_innovation, score_pitch, score_demo,
				weighted_score, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
			ON CONFLICT (event_id, team_name, voter_id) DO UPDATE SET
				score_viability = EXCLUDED.score_viability,
				score_innovation = EXCLUDED.score_innovation,
				score_pitch = EXCLUDED.score_pitch,
				score_demo = EXCLUDED.score_demo,
				weighted_score = EXCLUDED.weighted_score,
				updated_at = now()
			RETURNING id, event_id, team_name, voter_id,
				score_viability, score_innovation, score_pitch, score_demo,
				weighted_score, created_at, updated_at`,
			p.ID, p.EventID, p.TeamName, p.VoterID,
			p.Components.Viability, p.Components.Innovation, p.Components.Pitch, p.Components.Demo,
			p.WeightedScore,
		)
		if err := scanVote(row, &v); err != nil {
			return fmt.Errorf("failed to upsert vote: %w", err)
		}
		return outbox.InsertTx(ctx, tx, env)
	})
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// TeamAggregates groups the ledger by team. Ordering across equal means
// is settled in the app layer using presentation order.
func (r *Repository) TeamAggregates(ctx context.Context, eventID uuid.UUID) ([]teamAggregate, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT team_name, avg(weighted_score), count(*)
		FROM votes
		WHERE event_id = $1
		GROUP BY team_name`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate votes: %w", err)
	}
	defer rows.Close()

	var aggs []teamAggregate
	for rows.Next() {
		var a teamAggregate
		if err := rows.Scan(&a.TeamName, &a.MeanScore, &a.VoteCount); err != nil {
			return nil, fmt.Errorf("failed to scan aggregate: %w", err)
		}
		aggs = append(aggs, a)
	}
	return aggs, rows.Err()
}

// ListVotes returns the full ledger for an event, for export tooling.
func (r *Repository) ListVotes(ctx context.Context, eventID uuid.UUID) ([]models.Vote, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, event_id, team_name, voter_id,
			score_viability, score_innovation, score_pitch, score_demo,
			weighted_score, created_at, updated_at
		FROM votes
		WHERE event_id = $1
		ORDER BY created_at`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list votes: %w", err)
	}
	defer rows.Close()

	var votes []models.Vote
	for rows.Next() {
		var v models.Vote
		if err := scanVote(rows, &v); err != nil {
			return nil, fmt.Errorf("failed to scan vote: %w", err)
		}
		votes = append(votes, v)
	}
	return votes, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVote(row scanner, v *models.Vote) error {
	return row.Scan(
		&v.ID, &v.EventID, &v.TeamName, &v.VoterID,
		&v.Components.Viability, &v.Components.Innovation, &v.Components.Pitch, &v.Components.Demo,
		&v.WeightedScore, &v.CreatedAt, &v.UpdatedAt,
	)
}
