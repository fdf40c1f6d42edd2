package models

import (
	"time"

	"github.com/google/uuid"
)

// Event represents a live event, identified by its unique slug.
// Event lifecycle (creation, scheduling) is owned by event management;
// this service only reads events and orchestrates their live phase.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Team is a roster entry for an event. Teams are provided by event
// registration; the orchestrator only consumes their names.
type Team struct {
	ID        uuid.UUID `json:"id"`
	EventID   uuid.UUID `json:"event_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Participant is a registered attendee of an event. Identity resolution
// (login, roles) happens upstream; we only read it to scope votes and
// render display names.
type Participant struct {
	ID          uuid.UUID `json:"id"`
	EventID     uuid.UUID `json:"event_id"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}
