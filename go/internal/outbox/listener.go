package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

// NotifyChannel is the Postgres channel InsertTx notifies and the
// listener subscribes to.
const NotifyChannel = "stage_outbox_events"

// ListenerConfig configures the Postgres LISTEN/NOTIFY wakeup path.
type ListenerConfig struct {
	DatabaseURL   string        // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel string        // channel name to LISTEN on
	PingInterval  time.Duration // keepalive for the listener connection
}

func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		NotifyChannel: NotifyChannel,
		PingInterval:  90 * time.Second,
	}
}

// Listener turns Postgres NOTIFY signals into worker wakeups so freshly
// committed outbox rows are relayed without waiting for a poll tick.
// The worker's fallback polling covers notifications lost across a
// reconnect.
type Listener struct {
	listener *pq.Listener
	worker   *Worker
	cfg      ListenerConfig
	logger   *slog.Logger
}

func NewListener(worker *Worker, cfg ListenerConfig, logger *slog.Logger) (*Listener, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				logger.Error("listener event", slog.String("error", err.Error()))
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	logger.Info("listening for outbox notifications",
		slog.String("channel", cfg.NotifyChannel))

	return &Listener{
		listener: l,
		worker:   worker,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// Run blocks until ctx is cancelled, waking the worker on every
// notification.
func (l *Listener) Run(ctx context.Context) error {
	defer l.listener.Close()

	ping := time.NewTicker(l.cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-l.listener.Notify:
			if n == nil {
				// Connection re-established; the poll fallback catches
				// anything missed while disconnected.
				continue
			}
			l.logger.Debug("outbox notification", slog.String("channel", n.Channel))
			l.worker.Wake()
		case <-ping.C:
			if err := l.listener.Ping(); err != nil {
				l.logger.Error("listener ping failed", slog.String("error", err.Error()))
			}
		}
	}
}
