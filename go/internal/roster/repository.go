package roster

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/tmarsh12/livestage/go/internal/models"
)

// ErrEventNotFound means no event exists with the given slug.
var ErrEventNotFound = errors.New("event not found")

// Repository implements read access to events, teams and participants.
// Registration owns the write side of these tables; the orchestrator
// only consumes them.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new roster repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// GetEventBySlug resolves an event by its unique slug.
func (r *Repository) GetEventBySlug(ctx context.Context, slug string) (*models.Event, error) {
	var ev models.Event
	err := r.db.QueryRowContext(ctx, `
		SELECT id, slug, name, created_at, updated_at
		FROM events WHERE slug = $1`, slug,
	).Scan(&ev.ID, &ev.Slug, &ev.Name, &ev.CreatedAt, &ev.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return &ev, nil
}

// ListTeamNames returns the event's team roster in registration order.
func (r *Repository) ListTeamNames(ctx context.Context, eventID uuid.UUID) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT name FROM teams WHERE event_id = $1 ORDER BY created_at`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan team name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// ListParticipants returns the registered attendees for an event.
func (r *Repository) ListParticipants(ctx context.Context, eventID uuid.UUID) ([]models.Participant, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, event_id, display_name, created_at
		FROM participants WHERE event_id = $1 ORDER BY display_name`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	var participants []models.Participant
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.ID, &p.EventID, &p.DisplayName, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}
