package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/Abdillah-Ali/biz-compas/internal/store"
	"github.com/Abdillah-Ali/biz-compas/pkg/rabbitmq"
)

const (
	defaultBatchSize       = 50
	defaultPollInterval    = 1200 * time.Millisecond
	defaultStaleProcessing = 2 * time.Minute
	maxRetryDelaySeconds   = 300
)

// PublisherFactory opens a broker connection on demand.
type PublisherFactory func() (rabbitmq.Publisher, error)

// OutboxDispatcher relays committed outbox rows to the broker.
type OutboxDispatcher struct {
	repo                store.OutboxRepository
	connect             PublisherFactory
	logger              *slog.Logger
	batchSize           int
	pollInterval        time.Duration
	staleProcessingTime time.Duration
	publisher           rabbitmq.Publisher
}

// NewOutboxDispatcher creates a dispatcher. publisher may be nil; connect is
// used to (re)open one lazily after failures.
func NewOutboxDispatcher(repo store.OutboxRepository, publisher rabbitmq.Publisher, connect PublisherFactory, logger *slog.Logger) *OutboxDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &OutboxDispatcher{
		repo:                repo,
		connect:             connect,
		logger:              logger.With("component", "outbox"),
		batchSize:           defaultBatchSize,
		pollInterval:        defaultPollInterval,
		staleProcessingTime: defaultStaleProcessing,
		publisher:           publisher,
	}
}

// Run polls until ctx is cancelled.
func (d *OutboxDispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()
	defer d.closePublisher()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.FlushOnce(ctx); err != nil {
				d.logger.Error("outbox flush failed", "err", err)
			}
		}
	}
}

// FlushOnce claims one batch and publishes it.
func (d *OutboxDispatcher) FlushOnce(ctx context.Context) error {
	messages, err := d.repo.ClaimOutboxMessages(ctx, d.batchSize, int(d.staleProcessingTime.Seconds()))
	if err != nil {
		return err
	}

	for _, message := range messages {
		if err := d.publishMessage(ctx, message); err != nil {
			retryAfter := retryDelaySeconds(message.Attempts)
			d.logger.Warn("outbox publish failed", "id", message.ID, "routing_key", message.RoutingKey, "attempts", message.Attempts, "retry_after_s", retryAfter, "err", err)
			if markErr := d.repo.MarkOutboxFailed(ctx, message.ID, retryAfter, err.Error()); markErr != nil {
				d.logger.Error("failed to reschedule outbox message", "id", message.ID, "err", markErr)
			}
			continue
		}
		if err := d.repo.MarkOutboxPublished(ctx, message.ID); err != nil {
			d.logger.Error("failed to mark outbox message as published", "id", message.ID, "err", err)
		}
	}
	return nil
}

func (d *OutboxDispatcher) publishMessage(ctx context.Context, message store.OutboxMessage) error {
	if d.publisher == nil {
		if d.connect == nil {
			return rabbitmq.ErrBrokerUnavailable
		}
		publisher, err := d.connect()
		if err != nil {
			return err
		}
		d.publisher = publisher
	}

	if err := d.publisher.Publish(ctx, message.Exchange, message.RoutingKey, message.Payload); err != nil {
		// Drop the publisher so the next attempt reconnects, unless there is no
		// way to reconnect.
		if d.connect != nil {
			d.closePublisher()
		}
		return err
	}
	return nil
}

func (d *OutboxDispatcher) closePublisher() {
	if d.publisher != nil {
		d.publisher.Close()
		d.publisher = nil
	}
}

func retryDelaySeconds(attempt int) int {
	if attempt < 1 {
		return 1
	}
	delay := 1 << min(attempt, 8)
	if delay > maxRetryDelaySeconds {
		return maxRetryDelaySeconds
	}
	return delay
}
