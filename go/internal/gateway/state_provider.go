package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/tmarsh12/livestage/go/internal/models"
)

// StateProvider fetches authoritative state from the control plane when
// the gateway's own projection has not seen an event yet.
type StateProvider interface {
	GetBroadcastState(ctx context.Context, slug string) (*models.BroadcastState, error)
	GetRanking(ctx context.Context, slug string) ([]models.TeamRanking, error)
}

// HTTPStateProvider implements StateProvider against the API server's
// REST surface.
type HTTPStateProvider struct {
	baseURL string
	client  *http.Client
}

// NewHTTPStateProvider creates a provider targeting the API server at baseURL.
func NewHTTPStateProvider(baseURL string) *HTTPStateProvider {
	return &HTTPStateProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// GetBroadcastState fetches GET /api/events/{slug}/state.
func (p *HTTPStateProvider) GetBroadcastState(ctx context.Context, slug string) (*models.BroadcastState, error) {
	var state models.BroadcastState
	if err := p.getJSON(ctx, fmt.Sprintf("/api/events/%s/state", url.PathEscape(slug)), &state); err != nil {
		return nil, fmt.Errorf("failed to fetch broadcast state: %w", err)
	}
	return &state, nil
}

// GetRanking fetches GET /api/events/{slug}/ranking.
func (p *HTTPStateProvider) GetRanking(ctx context.Context, slug string) ([]models.TeamRanking, error) {
	var ranking []models.TeamRanking
	if err := p.getJSON(ctx, fmt.Sprintf("/api/events/%s/ranking", url.PathEscape(slug)), &ranking); err != nil {
		return nil, fmt.Errorf("failed to fetch ranking: %w", err)
	}
	return ranking, nil
}

func (p *HTTPStateProvider) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call API server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrEventNotKnown
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API server returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
