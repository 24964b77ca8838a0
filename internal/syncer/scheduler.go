package syncer

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Scheduler triggers fleet syncs on a fixed cadence. It carries no sync
// logic of its own; a failed cycle is simply retried whole on the next
// tick.
type Scheduler struct {
	logger       *zap.Logger
	orchestrator *Orchestrator
	interval     time.Duration
}

// NewScheduler creates a scheduler running the fleet sync every interval.
func NewScheduler(logger *zap.Logger, orchestrator *Orchestrator, interval time.Duration) *Scheduler {
	return &Scheduler{
		logger:       logger.Named("scheduler"),
		orchestrator: orchestrator,
		interval:     interval,
	}
}

// Run blocks until ctx is done, running one fleet sync immediately and
// then one per tick.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("starting sync scheduler", zap.Duration("interval", s.interval))

	s.orchestrator.SyncFleet(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stopping sync scheduler")
			return
		case <-ticker.C:
			s.orchestrator.SyncFleet(ctx)
		}
	}
}
