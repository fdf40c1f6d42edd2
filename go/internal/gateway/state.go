package gateway

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/tmarsh12/livestage/go/internal/events"
	"github.com/tmarsh12/livestage/go/internal/models"
)

// ViewerState is the projection a connecting viewer resyncs from: the
// authoritative broadcast state plus countdowns derived at read time.
type ViewerState struct {
	EventSlug   string                `json:"event_slug"`
	State       models.BroadcastState `json:"state"`
	PitchTimer  *Countdown            `json:"pitch_timer,omitempty"`
	VotingTimer *Countdown            `json:"voting_timer,omitempty"`
	ServerTime  time.Time             `json:"server_time"`
	AsOf        time.Time             `json:"as_of"`
}

// EventStateManager keeps an in-memory projection of broadcast state
// per event, rebuilt from the event stream, so reconnecting viewers can
// resync without a database round trip per connection.
type EventStateManager struct {
	mu     sync.RWMutex
	states map[string]*models.BroadcastState
	asOf   map[string]time.Time
}

// NewEventStateManager creates an empty state manager.
func NewEventStateManager() *EventStateManager {
	return &EventStateManager{
		states: make(map[string]*models.BroadcastState),
		asOf:   make(map[string]time.Time),
	}
}

// GetState returns the projected state for an event slug, if known.
func (m *EventStateManager) GetState(slug string) (*models.BroadcastState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[slug]
	if !ok {
		return nil, false
	}
	copied := *s
	copied.TeamsPresented = append([]string(nil), s.TeamsPresented...)
	return &copied, true
}

// Seed installs a state fetched out-of-band, used on gateway startup
// before any event has flowed.
func (m *EventStateManager) Seed(slug string, state *models.BroadcastState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[slug] = state
	m.asOf[slug] = time.Now()
}

// ProcessEnvelope folds one distributed event into the projection.
func (m *EventStateManager) ProcessEnvelope(env *events.Envelope) error {
	switch env.Type {
	case events.TypeStateChanged:
		var payload events.StateChangedPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return fmt.Errorf("decode state change: %w", err)
		}
		m.mu.Lock()
		m.states[env.EventSlug] = &payload.State
		m.asOf[env.EventSlug] = env.Timestamp
		m.mu.Unlock()

	case events.TypeVoteRecorded, events.TypeWeightsUpdated:
		// No projection change; viewers refetch aggregates on these.

	default:
		// Unknown event types are forwarded to viewers untouched.
	}
	return nil
}

// ViewerStateFor assembles the resync payload for one event as of now.
func (m *EventStateManager) ViewerStateFor(slug string, now time.Time) (*ViewerState, bool) {
	state, ok := m.GetState(slug)
	if !ok {
		return nil, false
	}

	m.mu.RLock()
	asOf := m.asOf[slug]
	m.mu.RUnlock()

	vs := &ViewerState{
		EventSlug:  slug,
		State:      *state,
		ServerTime: now,
		AsOf:       asOf,
	}
	if state.PitchClosesAt != nil {
		c := DeriveCountdown(*state.PitchClosesAt, time.Duration(state.PitchDurationSec)*time.Second, now)
		vs.PitchTimer = &c
	}
	if state.VotingClosesAt != nil {
		c := DeriveCountdown(*state.VotingClosesAt, time.Duration(state.VotingDurationSec)*time.Second, now)
		vs.VotingTimer = &c
	}
	return vs, true
}
