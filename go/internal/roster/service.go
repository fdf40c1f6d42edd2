package roster

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Service exposes read-only roster lookups for viewer clients.
type Service struct {
	app *App
}

// NewService creates a new roster service.
func NewService(app *App) *Service {
	return &Service{app: app}
}

// RegisterRoutes registers the roster routes.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/events/{slug}", s.handleGetEvent)
	mux.HandleFunc("GET /api/events/{slug}/teams", s.handleListTeams)
	mux.HandleFunc("GET /api/events/{slug}/participants", s.handleListParticipants)
}

func (s *Service) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := s.app.GetEventBySlug(r.Context(), r.PathValue("slug"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, ev)
}

func (s *Service) handleListTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := s.app.ListTeamNamesBySlug(r.Context(), r.PathValue("slug"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, teams)
}

func (s *Service) handleListParticipants(w http.ResponseWriter, r *http.Request) {
	participants, err := s.app.ListParticipantsBySlug(r.Context(), r.PathValue("slug"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, participants)
}

func (s *Service) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrEventNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	log.Error().Err(err).Msg("roster lookup failed")
	http.Error(w, "store unavailable, retry", http.StatusServiceUnavailable)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
