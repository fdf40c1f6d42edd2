package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/tmarsh12/livestage/go/internal/broadcast"
	"github.com/tmarsh12/livestage/go/internal/dbconfig"
	"github.com/tmarsh12/livestage/go/internal/outbox"
	"github.com/tmarsh12/livestage/go/internal/roster"
	"github.com/tmarsh12/livestage/go/internal/voting"
)

type Services struct {
	Roster    *roster.Service
	Broadcast *broadcast.Service
	Voting    *voting.Service

	OutboxWorker   *outbox.Worker
	OutboxListener *outbox.Listener

	Registry *prometheus.Registry
}

func setupServices(ctx context.Context, database *sql.DB) (*Services, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	clock := clockwork.NewRealClock()

	if path := getEnv("WEIGHT_PRESETS_FILE", ""); path != "" {
		cfg, err := loadPresetsConfig(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load weight presets: %w", err)
		}
		for name, vector := range cfg.Voting.Presets {
			if err := voting.RegisterPreset(name, vector); err != nil {
				return nil, fmt.Errorf("invalid weight preset %q: %w", name, err)
			}
			log.Info().Str("preset", name).Msg("registered weight preset from config")
		}
	}

	// Wire up dependency injection chain
	// Database layer -> Repository layer -> App layer -> Service layer

	// Roster
	rosterRepo := roster.NewRepository(database)
	rosterApp := roster.NewApp(rosterRepo)
	rosterService := roster.NewService(rosterApp)

	// Broadcast control
	broadcastRepo := broadcast.NewRepository(database)
	broadcastApp := broadcast.NewApp(broadcastRepo, rosterApp, clock)
	broadcastService := broadcast.NewService(broadcastApp)

	// Voting
	votingRepo := voting.NewRepository(database)
	votingApp := voting.NewApp(votingRepo, broadcastApp, rosterApp, clock)
	votingService := voting.NewService(votingApp)

	// Outbox relay
	slogger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	publisher, err := setupPublisher(ctx, slogger)
	if err != nil {
		return nil, fmt.Errorf("failed to set up event publisher: %w", err)
	}

	outboxRepo := outbox.NewRepository(database)
	outboxMetrics := outbox.NewPrometheusMetrics(registry)
	worker := outbox.NewWorker(outboxRepo, publisher, outbox.DefaultConfig(), outboxMetrics, slogger)

	listenerCfg := outbox.DefaultListenerConfig()
	listenerCfg.DatabaseURL = dbconfig.NewConfigFromEnv().DSN()
	listener, err := outbox.NewListener(worker, listenerCfg, slogger)
	if err != nil {
		return nil, fmt.Errorf("failed to set up outbox listener: %w", err)
	}

	return &Services{
		Roster:         rosterService,
		Broadcast:      broadcastService,
		Voting:         votingService,
		OutboxWorker:   worker,
		OutboxListener: listener,
		Registry:       registry,
	}, nil
}

func setupPublisher(ctx context.Context, logger *slog.Logger) (outbox.EventPublisher, error) {
	switch kind := getEnv("EVENT_PUBLISHER", "nats"); kind {
	case "nats":
		return outbox.NewNATSPublisher(ctx, getEnv("NATS_URL", "nats://localhost:4222"), logger)
	case "kafka":
		brokers := strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ",")
		return outbox.NewKafkaPublisher(brokers, getEnv("KAFKA_TOPIC", "stage-events"), logger), nil
	case "mock":
		return outbox.NewMockPublisher(logger), nil
	default:
		return nil, fmt.Errorf("unknown EVENT_PUBLISHER %q", kind)
	}
}

// Start launches the background outbox relay.
func (s *Services) Start(ctx context.Context) {
	if err := s.OutboxWorker.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start outbox worker")
	}

	go func() {
		if err := s.OutboxListener.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("outbox listener stopped")
		}
	}()
}

// Stop shuts the background workers down.
func (s *Services) Stop() {
	if err := s.OutboxWorker.Stop(); err != nil {
		log.Error().Err(err).Msg("failed to stop outbox worker")
	}
}
