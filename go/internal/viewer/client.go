package viewer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/tmarsh12/livestage/go/internal/events"
	"github.com/tmarsh12/livestage/go/internal/gateway"
	"github.com/tmarsh12/livestage/go/internal/models"
)

// Client is a viewer-side client for the stage gateway. It resyncs the
// full state over REST, follows the WebSocket stream, and derives the
// countdown locally from deadlines so no server ticks are needed.
type Client struct {
	gatewayURL string
	eventSlug  string
	viewerID   string

	mu      sync.RWMutex
	state   *models.BroadcastState
	ranking []models.TeamRanking

	conn       *websocket.Conn
	httpClient *http.Client

	reconnectWait time.Duration

	// OnUpdate is called after every state or ranking change, with the
	// envelope that caused it (nil for resync).
	OnUpdate func(env *events.Envelope)
}

// NewClient creates a client for one event against a gateway base URL
// such as "localhost:8081".
func NewClient(gatewayURL, eventSlug, viewerID string) *Client {
	return &Client{
		gatewayURL:    gatewayURL,
		eventSlug:     eventSlug,
		viewerID:      viewerID,
		httpClient:    &http.Client{Timeout: 5 * time.Second},
		reconnectWait: 3 * time.Second,
	}
}

// Run connects and follows the stream until the context ends,
// resyncing from scratch after every disconnect.
func (c *Client) Run(ctx context.Context) error {
	for {
		if err := c.connect(ctx); err != nil {
			log.Warn().Err(err).Str("event_slug", c.eventSlug).Msg("gateway connection failed, retrying")
		} else {
			c.listen(ctx)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.reconnectWait):
		}
	}
}

// connect fetches the full state first and only then opens the stream,
// so events arriving while disconnected are never silently missing.
func (c *Client) connect(ctx context.Context) error {
	if err := c.resync(ctx); err != nil {
		return fmt.Errorf("failed to resync: %w", err)
	}

	wsURL := fmt.Sprintf("ws://%s/ws/event?event=%s&viewer_id=%s",
		c.gatewayURL, url.QueryEscape(c.eventSlug), url.QueryEscape(c.viewerID))
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to dial gateway: %w", err)
	}
	c.conn = conn

	log.Info().Str("event_slug", c.eventSlug).Msg("connected to stage gateway")
	return nil
}

func (c *Client) resync(ctx context.Context) error {
	resyncURL := fmt.Sprintf("http://%s/gateway/events/%s/resync", c.gatewayURL, url.PathEscape(c.eventSlug))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resyncURL, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("resync returned status %d", resp.StatusCode)
	}

	var payload gateway.ResyncResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("failed to decode resync payload: %w", err)
	}

	c.mu.Lock()
	c.state = &payload.State
	c.ranking = payload.Ranking
	c.mu.Unlock()

	if c.OnUpdate != nil {
		c.OnUpdate(nil)
	}
	return nil
}

func (c *Client) listen(ctx context.Context) {
	defer c.conn.Close()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, message, err := c.conn.ReadMessage()
		if err != nil {
			log.Warn().Err(err).Str("event_slug", c.eventSlug).Msg("gateway stream closed")
			return
		}

		var env events.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			log.Error().Err(err).Msg("failed to parse envelope from stream")
			continue
		}

		c.apply(&env)
	}
}

func (c *Client) apply(env *events.Envelope) {
	switch env.Type {
	case events.TypeStateChanged:
		var payload events.StateChangedPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			log.Error().Err(err).Msg("failed to parse state change payload")
			return
		}
		c.mu.Lock()
		c.state = &payload.State
		c.mu.Unlock()

	case events.TypeVoteRecorded, events.TypeWeightsUpdated:
		// Aggregates changed server side. Refresh the ranking lazily in
		// the background so the stream loop stays responsive.
		go c.refreshRanking()
	}

	if c.OnUpdate != nil {
		c.OnUpdate(env)
	}
}

func (c *Client) refreshRanking() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resyncURL := fmt.Sprintf("http://%s/gateway/events/%s/resync", c.gatewayURL, url.PathEscape(c.eventSlug))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resyncURL, nil)
	if err != nil {
		return
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn().Err(err).Msg("failed to refresh ranking")
		return
	}
	defer resp.Body.Close()

	var payload gateway.ResyncResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return
	}

	c.mu.Lock()
	c.ranking = payload.Ranking
	c.mu.Unlock()
}

// State returns a copy of the current broadcast state, if known.
func (c *Client) State() (models.BroadcastState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state == nil {
		return models.BroadcastState{}, false
	}
	copied := *c.state
	copied.TeamsPresented = append([]string(nil), c.state.TeamsPresented...)
	return copied, true
}

// Ranking returns the last known ranking.
func (c *Client) Ranking() []models.TeamRanking {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]models.TeamRanking(nil), c.ranking...)
}

// Countdowns derives the pitch and voting countdowns from the known
// deadlines at the given instant. Callers drive this from a local
// one-second ticker; a countdown hitting zero only stops the display,
// the phase changes when the control operator says so.
func (c *Client) Countdowns(now time.Time) (pitch, voting *gateway.Countdown) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state == nil {
		return nil, nil
	}
	if c.state.PitchClosesAt != nil {
		cd := gateway.DeriveCountdown(*c.state.PitchClosesAt, time.Duration(c.state.PitchDurationSec)*time.Second, now)
		pitch = &cd
	}
	if c.state.VotingClosesAt != nil {
		cd := gateway.DeriveCountdown(*c.state.VotingClosesAt, time.Duration(c.state.VotingDurationSec)*time.Second, now)
		voting = &cd
	}
	return pitch, voting
}

// RunTicker invokes fn every second with freshly derived countdowns
// until the context ends. This is the local display loop.
func (c *Client) RunTicker(ctx context.Context, fn func(pitch, voting *gateway.Countdown)) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			pitch, voting := c.Countdowns(now)
			fn(pitch, voting)
		}
	}
}
