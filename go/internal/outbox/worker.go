package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Config struct {
	PollInterval time.Duration
	BatchSize    int32
	MaxRetries   int
	RetryDelay   time.Duration
}

func DefaultConfig() Config {
	return Config{
		PollInterval: 5 * time.Second,
		BatchSize:    100,
		MaxRetries:   3,
		RetryDelay:   time.Second,
	}
}

// Worker polls the outbox table and relays unsent events to the
// publisher. Low-latency wakeups come from the LISTEN/NOTIFY listener;
// the poll interval is the fallback for missed notifications.
type Worker struct {
	repo      *Repository
	publisher EventPublisher
	config    Config
	metrics   MetricsCollector
	logger    *slog.Logger

	wakeCh chan struct{}

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewWorker(repo *Repository, publisher EventPublisher, cfg Config, metrics MetricsCollector, logger *slog.Logger) *Worker {
	if metrics == nil {
		metrics = &NoOpMetricsCollector{}
	}
	return &Worker{
		repo:      repo,
		publisher: publisher,
		config:    cfg,
		metrics:   metrics,
		logger:    logger,
		wakeCh:    make(chan struct{}, 1),
		stopChan:  make(chan struct{}),
	}
}

// Wake nudges the worker to process immediately instead of waiting for
// the next poll tick. Safe to call from any goroutine; coalesces.
func (w *Worker) Wake() {
	select {
	case w.wakeCh <- struct{}{}:
	default:
	}
}

func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("outbox worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run(ctx)

	w.logger.Info("outbox worker started",
		slog.Duration("poll_interval", w.config.PollInterval),
		slog.Int("batch_size", int(w.config.BatchSize)))

	return nil
}

func (w *Worker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return fmt.Errorf("outbox worker not running")
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopChan)
	w.wg.Wait()

	w.logger.Info("outbox worker stopped")
	return nil
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	// Process immediately on start
	w.processOutbox(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-w.wakeCh:
			w.processOutbox(ctx)
		case <-ticker.C:
			w.processOutbox(ctx)
		}
	}
}

func (w *Worker) processOutbox(ctx context.Context) {
	start := time.Now()

	txn, err := w.repo.Begin(ctx)
	if err != nil {
		w.logger.Error("failed to begin transaction", slog.String("error", err.Error()))
		return
	}
	committed := false
	defer func() {
		if !committed {
			_ = txn.Rollback()
		}
	}()

	events, err := w.repo.FetchUnsentTx(ctx, txn, w.config.BatchSize)
	if err != nil {
		w.logger.Error("failed to fetch unsent events", slog.String("error", err.Error()))
		return
	}

	if len(events) == 0 {
		return
	}

	w.logger.Debug("processing outbox events", slog.Int("count", len(events)))

	successfulIDs := w.publishBatch(ctx, events)

	if len(successfulIDs) > 0 {
		if err := w.repo.MarkSentTx(ctx, txn, successfulIDs); err != nil {
			w.logger.Error("failed to mark events as sent", slog.String("error", err.Error()))
			return
		}
	}

	if err := txn.Commit(); err != nil {
		w.logger.Error("failed to commit transaction", slog.String("error", err.Error()))
		return
	}
	committed = true

	w.metrics.RecordBatchProcessed(len(successfulIDs), time.Since(start))

	if lag, err := w.repo.UnsentLag(ctx); err == nil {
		w.metrics.RecordOutboxLag(lag)
	}

	w.logger.Info("processed outbox events",
		slog.Int("total", len(events)),
		slog.Int("successful", len(successfulIDs)))
}

// publishBatch relays a batch oldest first and returns the ids that
// made it out. Once a publish fails, every later event for the same
// slug is held back unsent; publishing it ahead of the failed one would
// reorder the subject stream and consumers would fold a stale state on
// the eventual redelivery.
func (w *Worker) publishBatch(ctx context.Context, batch []Event) []uuid.UUID {
	start := time.Now()
	held := make(map[string]bool)

	var successfulIDs []uuid.UUID
	for _, event := range batch {
		if held[event.EventSlug] {
			w.logger.Debug("holding event behind failed predecessor",
				slog.String("event_id", event.ID.String()),
				slog.String("event_slug", event.EventSlug))
			continue
		}
		if err := w.publishWithRetry(ctx, event); err != nil {
			held[event.EventSlug] = true
			w.logger.Error("failed to publish event",
				slog.String("event_id", event.ID.String()),
				slog.String("event_type", event.EventType),
				slog.String("error", err.Error()))
			w.metrics.RecordEventProcessed(event.EventType, false, time.Since(start))
			continue
		}
		w.metrics.RecordEventProcessed(event.EventType, true, time.Since(start))
		successfulIDs = append(successfulIDs, event.ID)
	}
	return successfulIDs
}

func (w *Worker) publishWithRetry(ctx context.Context, event Event) error {
	var lastErr error

	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.config.RetryDelay * time.Duration(attempt)):
			}
		}

		if err := w.publisher.Publish(ctx, event); err != nil {
			lastErr = err
			w.metrics.RecordPublishAttempt(event.EventType, attempt+1, false)
			w.logger.Warn("failed to publish event, retrying",
				slog.String("event_id", event.ID.String()),
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()))
			continue
		}

		w.metrics.RecordPublishAttempt(event.EventType, attempt+1, true)
		return nil
	}

	return fmt.Errorf("failed after %d attempts: %w", w.config.MaxRetries+1, lastErr)
}
