package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/tmarsh12/livestage/go/internal/events"
)

// Service is the stage gateway: it consumes the event stream, keeps a
// state projection, and serves viewers over WebSocket plus a resync
// endpoint.
type Service struct {
	connectionManager *ConnectionManager
	stateManager      *EventStateManager
	wsHandler         *WebSocketHandler
	eventConsumer     *EventConsumer
	stateHandler      *StateHandler
	stateProvider     StateProvider
}

// Config holds configuration for the gateway service.
type Config struct {
	ConnectionConfig ConnectionConfig
	JetStreamConfig  JetStreamConsumerConfig
}

// DefaultConfig returns default configuration for the gateway.
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		JetStreamConfig:  DefaultJetStreamConsumerConfig(),
	}
}

// NewService wires the gateway components together.
func NewService(config Config, stateProvider StateProvider, reg prometheus.Registerer) (*Service, error) {
	connectionManager := NewConnectionManager(config.ConnectionConfig, reg)
	stateManager := NewEventStateManager()
	wsHandler := NewWebSocketHandler(connectionManager)

	eventConsumer, err := NewEventConsumer(connectionManager, stateManager, config.JetStreamConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create event consumer: %w", err)
	}

	stateHandler := NewStateHandler(stateManager, stateProvider)

	return &Service{
		connectionManager: connectionManager,
		stateManager:      stateManager,
		wsHandler:         wsHandler,
		eventConsumer:     eventConsumer,
		stateHandler:      stateHandler,
		stateProvider:     stateProvider,
	}, nil
}

// Start runs the gateway until the context ends.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting stage gateway service")

	go s.connectionManager.Start(ctx)

	go func() {
		if err := s.eventConsumer.Start(ctx); err != nil {
			log.Error().Err(err).Msg("event consumer failed")
		}
	}()

	<-ctx.Done()

	log.Info().Msg("stage gateway service shutting down")
	return s.Stop()
}

// Stop gracefully shuts down the gateway service.
func (s *Service) Stop() error {
	if err := s.eventConsumer.Stop(); err != nil {
		log.Error().Err(err).Msg("failed to stop event consumer")
	}

	log.Info().Msg("stage gateway service stopped")
	return nil
}

// RegisterRoutes registers the WebSocket and resync HTTP routes.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("stage gateway routes registered")
}

// GetStats returns statistics about the gateway service.
func (s *Service) GetStats() map[string]interface{} {
	stats := s.connectionManager.GetConnectionStats()
	stats["service"] = "stage_gateway"
	stats["status"] = "running"
	return stats
}

// BroadcastEvent pushes an envelope directly to an event's viewers,
// bypassing JetStream. Useful in tests.
func (s *Service) BroadcastEvent(eventSlug string, env *events.Envelope) {
	s.connectionManager.BroadcastToEvent(eventSlug, env)
}
