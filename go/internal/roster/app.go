package roster

import (
	"context"

	"github.com/google/uuid"

	"github.com/tmarsh12/livestage/go/internal/models"
)

// RosterRepository defines what the app layer needs from the repository.
type RosterRepository interface {
	GetEventBySlug(ctx context.Context, slug string) (*models.Event, error)
	ListTeamNames(ctx context.Context, eventID uuid.UUID) ([]string, error)
	ListParticipants(ctx context.Context, eventID uuid.UUID) ([]models.Participant, error)
}

// App exposes the event-registration boundary to the rest of the
// service: events by slug, team rosters, participant lists.
type App struct {
	repo RosterRepository
}

// NewApp creates a new roster App.
func NewApp(repo RosterRepository) *App {
	return &App{repo: repo}
}

// GetEventBySlug resolves an event by slug.
func (a *App) GetEventBySlug(ctx context.Context, slug string) (*models.Event, error) {
	return a.repo.GetEventBySlug(ctx, slug)
}

// ListTeamNames returns the team roster for an event.
func (a *App) ListTeamNames(ctx context.Context, eventID uuid.UUID) ([]string, error) {
	return a.repo.ListTeamNames(ctx, eventID)
}

// ListTeamNamesBySlug returns the roster for the slug-identified event.
func (a *App) ListTeamNamesBySlug(ctx context.Context, slug string) ([]string, error) {
	ev, err := a.repo.GetEventBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	return a.repo.ListTeamNames(ctx, ev.ID)
}

// ListParticipantsBySlug returns registered attendees for the event.
func (a *App) ListParticipantsBySlug(ctx context.Context, slug string) ([]models.Participant, error) {
	ev, err := a.repo.GetEventBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	return a.repo.ListParticipants(ctx, ev.ID)
}
