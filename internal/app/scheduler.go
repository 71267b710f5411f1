package app

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Schedules holds the cron expressions for the housekeeping jobs.
type Schedules struct {
	PINLockSweep string
	OutboxPrune  string
}

// Scheduler runs the housekeeping jobs on cron schedules.
type Scheduler struct {
	cron      *cron.Cron
	jobs      *Jobs
	logger    *slog.Logger
	schedules Schedules
}

func NewScheduler(jobs *Jobs, logger *slog.Logger, schedules Schedules) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	return &Scheduler{
		cron:      c,
		jobs:      jobs,
		logger:    logger,
		schedules: schedules,
	}
}

// Start registers the jobs and starts the cron scheduler. It returns the number
// of jobs that were scheduled.
func (s *Scheduler) Start() int {
	scheduled := 0
	register := func(name, schedule string, job func()) {
		if schedule == "" {
			return
		}
		if _, err := s.cron.AddFunc(schedule, job); err != nil {
			s.logger.Error("failed to schedule job", "job", name, "schedule", schedule, "err", err)
			return
		}
		scheduled++
		s.logger.Info("scheduled job", "job", name, "schedule", schedule)
	}

	register("pin_lock_sweep", s.schedules.PINLockSweep, s.jobs.SweepExpiredPINLocks)
	register("outbox_prune", s.schedules.OutboxPrune, s.jobs.PruneOutbox)

	s.cron.Start()
	return scheduled
}

// Stop stops the scheduler; the returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
