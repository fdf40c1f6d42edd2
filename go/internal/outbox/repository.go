package outbox

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// execer is satisfied by both *sql.DB and *sql.Tx so inserts can join a
// caller-owned transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// InsertTx writes one outbox row using the caller's transaction, so the
// event becomes visible to the relay exactly when the state change that
// produced it commits.
func InsertTx(ctx context.Context, tx execer, ev PendingEvent) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO outbox_events (id, event_id, event_slug, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, now())`,
		ev.ID, ev.EventID, ev.EventSlug, ev.EventType, []byte(ev.Payload),
	)
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}
	// Postgres delivers the notification on commit, exactly when the
	// row becomes visible to the relay.
	if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, '')`, NotifyChannel); err != nil {
		return fmt.Errorf("failed to notify outbox channel: %w", err)
	}
	return nil
}

// Repository provides the relay-side outbox queries.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// FetchUnsentTx claims a batch of unsent events inside tx, oldest
// first, locking the rows so concurrent relay instances skip them.
func (r *Repository) FetchUnsentTx(ctx context.Context, tx *sql.Tx, limit int32) ([]Event, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, event_id, event_slug, event_type, payload, created_at
		FROM outbox_events
		WHERE sent_at IS NULL
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent outbox events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.EventID, &ev.EventSlug, &ev.EventType, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// MarkSentTx stamps the given events as published.
func (r *Repository) MarkSentTx(ctx context.Context, tx *sql.Tx, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE outbox_events SET sent_at = now() WHERE id = ANY($1)`,
		pq.Array(ids),
	)
	if err != nil {
		return fmt.Errorf("failed to mark outbox events sent: %w", err)
	}
	return nil
}

// UnsentLag returns how many events are waiting to be published.
func (r *Repository) UnsentLag(ctx context.Context) (int, error) {
	var lag int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM outbox_events WHERE sent_at IS NULL`).Scan(&lag)
	if err != nil {
		return 0, fmt.Errorf("failed to count unsent outbox events: %w", err)
	}
	return lag, nil
}

// Begin starts a relay transaction.
func (r *Repository) Begin(ctx context.Context) (*sql.Tx, error) {
	return r.db.BeginTx(ctx, nil)
}
