package broadcast

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
	"github.com/tmarsh12/livestage/go/internal/models"
	"github.com/tmarsh12/livestage/go/internal/outbox"
	"github.com/tmarsh12/livestage/go/internal/sqlutil"
)

// Repository implements broadcast state and control log data access.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new broadcast repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const stateColumns = `event_id, phase, current_team_name, pitch_closes_at, voting_closes_at,
	teams_presented, random_mode_enabled, pitch_duration_sec, voting_duration_sec, updated_at`

// GetState fetches the broadcast state row for an event. Returns
// sql.ErrNoRows when the row has not been lazily created yet.
func (r *Repository) GetState(ctx context.Context, eventID uuid.UUID) (*models.BroadcastState, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+stateColumns+` FROM broadcast_states WHERE event_id = $1`, eventID)
	return scanState(row)
}

// CreateStateIfAbsent inserts the initial idle row for an event. Safe
// to race: the insert is a no-op when the row already exists, and the
// current row is returned either way.
func (r *Repository) CreateStateIfAbsent(ctx context.Context, state *models.BroadcastState) (*models.BroadcastState, error) {
	presented, err := marshalTeams(state.TeamsPresented)
	if err != nil {
		return nil, err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO broadcast_states (
			event_id, phase, current_team_name, pitch_closes_at, voting_closes_at,
			teams_presented, random_mode_enabled, pitch_duration_sec, voting_duration_sec, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (event_id) DO NOTHING`,
		state.EventID, state.Phase, state.CurrentTeamName, state.PitchClosesAt,
		state.VotingClosesAt, presented, state.RandomModeEnabled,
		state.PitchDurationSec, state.VotingDurationSec,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create broadcast state: %w", err)
	}

	return r.GetState(ctx, state.EventID)
}

// ApplyTransition persists an accepted transition: one atomic state
// update plus the outbox row that fans it out to viewers, in a single
// transaction. The control log entry is written separately by the app
// layer because the audit trail is advisory, not transactional with
// state.
func (r *Repository) ApplyTransition(ctx context.Context, state *models.BroadcastState, env outbox.PendingEvent) (*models.BroadcastState, error) {
	presented, err := marshalTeams(state.TeamsPresented)
	if err != nil {
		return nil, err
	}

	var updated *models.BroadcastState
	err = sqlutil.Run(ctx, r.db, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			UPDATE broadcast_states SET
				phase = $2,
				current_team_name = $3,
				pitch_closes_at = $4,
				voting_closes_at = $5,
				teams_presented = $6,
				random_mode_enabled = $7,
				pitch_duration_sec = $8,
				voting_duration_sec = $9,
				updated_at = now()
			WHERE event_id = $1
			RETURNING `+stateColumns,
			state.EventID, state.Phase, state.CurrentTeamName, state.PitchClosesAt,
			state.VotingClosesAt, presented, state.RandomModeEnabled,
			state.PitchDurationSec, state.VotingDurationSec,
		)
		updated, err = scanState(row)
		if err != nil {
			return fmt.Errorf("failed to update broadcast state: %w", err)
		}

		if err := outbox.InsertTx(ctx, tx, env); err != nil {
			return fmt.Errorf("failed to insert outbox event: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// InsertControlLog appends one audit row for an accepted action.
func (r *Repository) InsertControlLog(ctx context.Context, entry *models.ControlLogEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO control_log (id, event_id, action, team_name, created_at)
		VALUES ($1, $2, $3, $4, now())`,
		entry.ID, entry.EventID, entry.Action, entry.TeamName,
	)
	if err != nil {
		return fmt.Errorf("failed to insert control log entry: %w", err)
	}
	return nil
}

// ListControlLog returns the newest audit entries for an event, for the
// operator console and export tooling.
func (r *Repository) ListControlLog(ctx context.Context, eventID uuid.UUID, limit int32) ([]models.ControlLogEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, event_id, action, team_name, created_at
		FROM control_log
		WHERE event_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, eventID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list control log: %w", err)
	}
	defer rows.Close()

	var entries []models.ControlLogEntry
	for rows.Next() {
		var e models.ControlLogEntry
		var team sql.NullString
		if err := rows.Scan(&e.ID, &e.EventID, &e.Action, &team, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan control log entry: %w", err)
		}
		if team.Valid {
			e.TeamName = &team.String
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanState(row *sql.Row) (*models.BroadcastState, error) {
	var s models.BroadcastState
	var team sql.NullString
	var pitchCloses, votingCloses sql.NullTime
	var presented pqtype.NullRawMessage

	err := row.Scan(
		&s.EventID, &s.Phase, &team, &pitchCloses, &votingCloses,
		&presented, &s.RandomModeEnabled, &s.PitchDurationSec, &s.VotingDurationSec,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if team.Valid {
		s.CurrentTeamName = &team.String
	}
	if pitchCloses.Valid {
		t := pitchCloses.Time
		s.PitchClosesAt = &t
	}
	if votingCloses.Valid {
		t := votingCloses.Time
		s.VotingClosesAt = &t
	}
	s.TeamsPresented = []string{}
	if presented.Valid {
		if err := json.Unmarshal(presented.RawMessage, &s.TeamsPresented); err != nil {
			return nil, fmt.Errorf("failed to decode teams_presented: %w", err)
		}
	}
	return &s, nil
}

func marshalTeams(teams []string) (pqtype.NullRawMessage, error) {
	if teams == nil {
		teams = []string{}
	}
	raw, err := json.Marshal(teams)
	if err != nil {
		return pqtype.NullRawMessage{}, fmt.Errorf("failed to encode teams_presented: %w", err)
	}
	return pqtype.NullRawMessage{RawMessage: raw, Valid: true}, nil
}
