package broadcast

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Service exposes the operator control surface over HTTP.
type Service struct {
	app *App
}

// NewService creates a new broadcast service.
func NewService(app *App) *Service {
	return &Service{app: app}
}

// RegisterRoutes registers the control-plane routes.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/events/{slug}/control", s.handleControl)
	mux.HandleFunc("GET /api/events/{slug}/state", s.handleGetState)
	mux.HandleFunc("PATCH /api/events/{slug}/settings", s.handleUpdateSettings)
	mux.HandleFunc("POST /api/events/{slug}/reset", s.handleReset)
	mux.HandleFunc("GET /api/events/{slug}/control-log", s.handleControlLog)
}

func (s *Service) handleControl(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<16))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	action, err := DecodeControlAction(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	state, err := s.app.Apply(r.Context(), slug, action)
	if err != nil {
		s.writeError(w, slug, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Service) handleGetState(w http.ResponseWriter, r *http.Request) {
	state, err := s.app.GetState(r.Context(), r.PathValue("slug"))
	if err != nil {
		s.writeError(w, r.PathValue("slug"), err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Service) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")

	var req UpdateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid settings payload", http.StatusBadRequest)
		return
	}

	state, err := s.app.UpdateSettings(r.Context(), slug, req)
	if err != nil {
		s.writeError(w, slug, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Service) handleReset(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")

	state, err := s.app.ResetPresented(r.Context(), slug)
	if err != nil {
		s.writeError(w, slug, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Service) handleControlLog(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")

	entries, err := s.app.ListControlLog(r.Context(), slug, 200)
	if err != nil {
		s.writeError(w, slug, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// writeError maps domain errors onto HTTP statuses. Anything
// unrecognized is treated as a retryable store failure so the operator
// console can re-issue the action once connectivity returns.
func (s *Service) writeError(w http.ResponseWriter, slug string, err error) {
	switch {
	case errors.Is(err, ErrUnknownEvent):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrIllegalTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrNoEligibleTeam), errors.Is(err, ErrMissingTeam):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		log.Error().Err(err).Str("event_slug", slug).Msg("control plane store failure")
		http.Error(w, "store unavailable, retry", http.StatusServiceUnavailable)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
