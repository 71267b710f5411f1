package app

import (
	"context"
	"log/slog"
	"time"
)

const jobTimeout = time.Minute

// MaintenanceRepository is what the housekeeping jobs need from the store.
type MaintenanceRepository interface {
	ClearExpiredPINLocks(ctx context.Context, now time.Time) (int64, error)
	PruneOutbox(ctx context.Context, publishedBefore time.Time) (int64, error)
}

// Jobs contains the scheduled housekeeping tasks.
type Jobs struct {
	repo            MaintenanceRepository
	logger          *slog.Logger
	outboxRetention time.Duration
	now             func() time.Time
}

func NewJobs(repo MaintenanceRepository, logger *slog.Logger, outboxRetention time.Duration) *Jobs {
	if logger == nil {
		logger = slog.Default()
	}
	return &Jobs{
		repo:            repo,
		logger:          logger.With("component", "jobs"),
		outboxRetention: outboxRetention,
		now:             time.Now,
	}
}

// SweepExpiredPINLocks drops lapsed lock timestamps. Lock evaluation never
// depends on the sweep; it keeps the lock index small.
func (j *Jobs) SweepExpiredPINLocks() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	cleared, err := j.repo.ClearExpiredPINLocks(ctx, j.now())
	if err != nil {
		j.logger.Error("failed to clear expired pin locks", "err", err)
		return
	}
	if cleared > 0 {
		j.logger.Info("cleared expired pin locks", "count", cleared)
	}
}

// PruneOutbox deletes published events older than the retention window.
func (j *Jobs) PruneOutbox() {
	if j.outboxRetention <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	pruned, err := j.repo.PruneOutbox(ctx, j.now().Add(-j.outboxRetention))
	if err != nil {
		j.logger.Error("failed to prune outbox", "err", err)
		return
	}
	j.logger.Info("pruned published outbox events", "count", pruned)
}
