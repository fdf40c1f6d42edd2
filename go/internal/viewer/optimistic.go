package viewer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tmarsh12/livestage/go/internal/models"
)

// VoteOutcome is the reconciliation result of an optimistic vote: the
// rejected path is a value, not an error, because the caller reacts to
// it (rollback plus retry affordance) rather than aborting.
type VoteOutcome struct {
	Accepted bool
	Vote     *models.Vote
	Reason   string
}

// VoteSubmitter performs three-phase optimistic vote submission against
// the API server: apply the speculative value locally, issue the remote
// call, then commit or roll back based on the response.
type VoteSubmitter struct {
	apiBaseURL string
	eventSlug  string
	voterID    uuid.UUID
	client     *http.Client

	// displayed is the vote currently shown in the UI per team name.
	displayed map[string]models.VoteComponents
}

// NewVoteSubmitter creates a submitter for one voter at one event. The
// voter id is the participant's uuid; the API rejects anything else.
func NewVoteSubmitter(apiBaseURL, eventSlug string, voterID uuid.UUID) *VoteSubmitter {
	return &VoteSubmitter{
		apiBaseURL: apiBaseURL,
		eventSlug:  eventSlug,
		voterID:    voterID,
		client:     &http.Client{Timeout: 5 * time.Second},
		displayed:  make(map[string]models.VoteComponents),
	}
}

// Displayed returns the vote currently shown for a team, if any.
func (s *VoteSubmitter) Displayed(teamName string) (models.VoteComponents, bool) {
	c, ok := s.displayed[teamName]
	return c, ok
}

// Submit runs the three phases. Phase one applies the new components to
// the local display immediately. Phase two posts the vote. Phase three
// commits on acceptance or restores the prior displayed value on
// rejection. Transport errors also roll back; the caller shows a retry
// affordance either way.
func (s *VoteSubmitter) Submit(ctx context.Context, teamName string, components models.VoteComponents) (VoteOutcome, error) {
	prior, hadPrior := s.displayed[teamName]
	s.displayed[teamName] = components

	outcome, err := s.post(ctx, teamName, components)
	if err != nil {
		s.rollback(teamName, prior, hadPrior)
		return VoteOutcome{}, err
	}

	if !outcome.Accepted {
		s.rollback(teamName, prior, hadPrior)
		log.Info().
			Str("team_name", teamName).
			Str("reason", outcome.Reason).
			Msg("vote rejected, rolled back optimistic value")
	}
	return outcome, nil
}

func (s *VoteSubmitter) rollback(teamName string, prior models.VoteComponents, hadPrior bool) {
	if hadPrior {
		s.displayed[teamName] = prior
	} else {
		delete(s.displayed, teamName)
	}
}

func (s *VoteSubmitter) post(ctx context.Context, teamName string, components models.VoteComponents) (VoteOutcome, error) {
	body, err := json.Marshal(map[string]interface{}{
		"voter_id":   s.voterID,
		"team_name":  teamName,
		"components": components,
	})
	if err != nil {
		return VoteOutcome{}, fmt.Errorf("failed to marshal vote: %w", err)
	}

	voteURL := fmt.Sprintf("%s/api/events/%s/votes", s.apiBaseURL, url.PathEscape(s.eventSlug))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, voteURL, bytes.NewReader(body))
	if err != nil {
		return VoteOutcome{}, fmt.Errorf("failed to build vote request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return VoteOutcome{}, fmt.Errorf("failed to submit vote: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		var vote models.Vote
		if err := json.NewDecoder(resp.Body).Decode(&vote); err != nil {
			return VoteOutcome{}, fmt.Errorf("failed to decode vote response: %w", err)
		}
		return VoteOutcome{Accepted: true, Vote: &vote}, nil

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Error == "" {
			apiErr.Error = fmt.Sprintf("vote rejected with status %d", resp.StatusCode)
		}
		return VoteOutcome{Accepted: false, Reason: apiErr.Error}, nil

	default:
		return VoteOutcome{}, fmt.Errorf("vote submission returned status %d", resp.StatusCode)
	}
}
