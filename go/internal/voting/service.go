package voting

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/tmarsh12/livestage/go/internal/roster"
)

// Service exposes the participant and operator voting surface over HTTP.
type Service struct {
	app *App
}

// NewService creates a new voting service.
func NewService(app *App) *Service {
	return &Service{app: app}
}

// RegisterRoutes registers the voting routes.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/events/{slug}/votes", s.handleSubmitVote)
	mux.HandleFunc("GET /api/events/{slug}/votes", s.handleListVotes)
	mux.HandleFunc("POST /api/events/{slug}/weights", s.handleConfigureWeights)
	mux.HandleFunc("GET /api/events/{slug}/weights", s.handleGetWeights)
	mux.HandleFunc("GET /api/events/{slug}/ranking", s.handleRanking)
}

func (s *Service) handleSubmitVote(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")

	var req SubmitVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid vote payload", http.StatusBadRequest)
		return
	}

	vote, err := s.app.SubmitVote(r.Context(), slug, req)
	if err != nil {
		s.writeError(w, slug, err)
		return
	}
	writeJSON(w, http.StatusOK, vote)
}

func (s *Service) handleListVotes(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")

	votes, err := s.app.ListVotes(r.Context(), slug)
	if err != nil {
		s.writeError(w, slug, err)
		return
	}
	writeJSON(w, http.StatusOK, votes)
}

func (s *Service) handleConfigureWeights(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")

	var req ConfigureWeightsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid weights payload", http.StatusBadRequest)
		return
	}

	weights, err := s.app.ConfigureWeights(r.Context(), slug, req)
	if err != nil {
		s.writeError(w, slug, err)
		return
	}
	writeJSON(w, http.StatusOK, weights)
}

func (s *Service) handleGetWeights(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")

	weights, err := s.app.GetWeights(r.Context(), slug)
	if err != nil {
		s.writeError(w, slug, err)
		return
	}
	writeJSON(w, http.StatusOK, weights)
}

func (s *Service) handleRanking(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")

	rankings, err := s.app.Rank(r.Context(), slug)
	if err != nil {
		s.writeError(w, slug, err)
		return
	}
	writeJSON(w, http.StatusOK, rankings)
}

func (s *Service) writeError(w http.ResponseWriter, slug string, err error) {
	switch {
	case errors.Is(err, roster.ErrEventNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrInvalidRequest):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrVoteWindowClosed):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrInvalidWeights), errors.Is(err, ErrUnknownPreset), errors.Is(err, ErrScoreOutOfRange):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		log.Error().Err(err).Str("event_slug", slug).Msg("voting store failure")
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
