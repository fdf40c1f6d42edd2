package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PendingEvent is an event about to be written to the outbox, before
// it has a creation timestamp.
type PendingEvent struct {
	ID        uuid.UUID
	EventID   uuid.UUID
	EventSlug string
	EventType string
	Payload   json.RawMessage
}

// Event is an outbox row as stored.
type Event struct {
	ID        uuid.UUID       `json:"id"`
	EventID   uuid.UUID       `json:"event_id"`
	EventSlug string          `json:"event_slug"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	SentAt    *time.Time      `json:"sent_at,omitempty"`
}
