package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tmarsh12/livestage/go/internal/models"
)

// ErrEventNotKnown is returned when neither the projection nor the
// control plane knows the requested event.
var ErrEventNotKnown = errors.New("event not known")

// ResyncResponse is the payload a reconnecting viewer uses to rebuild
// its local view before resuming the WebSocket stream.
type ResyncResponse struct {
	ViewerState
	Ranking []models.TeamRanking `json:"ranking"`
}

// StateHandler serves the resync endpoint for reconnecting viewers.
type StateHandler struct {
	stateManager  *EventStateManager
	stateProvider StateProvider
}

// NewStateHandler creates a new state handler.
func NewStateHandler(sm *EventStateManager, provider StateProvider) *StateHandler {
	return &StateHandler{
		stateManager:  sm,
		stateProvider: provider,
	}
}

// HandleResync handles GET /gateway/events/{slug}/resync.
//
// The projection answers when it has seen at least one event for the
// slug. Otherwise the control plane is asked directly and the result is
// seeded into the projection so later viewers hit memory.
func (h *StateHandler) HandleResync(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	if slug == "" {
		http.Error(w, "event slug is required", http.StatusBadRequest)
		return
	}

	now := time.Now()
	vs, ok := h.stateManager.ViewerStateFor(slug, now)
	if !ok {
		state, err := h.stateProvider.GetBroadcastState(r.Context(), slug)
		if err != nil {
			if errors.Is(err, ErrEventNotKnown) {
				http.Error(w, "unknown event", http.StatusNotFound)
				return
			}
			log.Error().Err(err).Str("event_slug", slug).Msg("failed to fetch state for resync")
			http.Error(w, "failed to fetch event state", http.StatusBadGateway)
			return
		}
		h.stateManager.Seed(slug, state)
		vs, _ = h.stateManager.ViewerStateFor(slug, now)
	}

	resp := ResyncResponse{ViewerState: *vs}
	ranking, err := h.stateProvider.GetRanking(r.Context(), slug)
	if err != nil {
		// Ranking is best effort during resync; the stream catches the
		// viewer up once votes flow again.
		log.Warn().Err(err).Str("event_slug", slug).Msg("failed to fetch ranking for resync")
	} else {
		resp.Ranking = ranking
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("failed to encode resync response")
	}
}

// RegisterStateRoutes registers the resync route.
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /gateway/events/{slug}/resync", h.HandleResync)
}
