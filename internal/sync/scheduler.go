package sync

import (
	"context"
	"time"
)

// Scheduler triggers full reconciliation passes at a fixed interval.
//
// The engine itself has no timing policy; the scheduler is the external
// trigger for periodic passes, while the API triggers on-demand ones.
type Scheduler struct {
	engine   *Engine
	interval time.Duration
	opts     Options
	logger   Logger
}

// NewScheduler creates a scheduler. An interval of zero or less disables
// periodic passes; Run returns immediately in that case.
func NewScheduler(engine *Engine, interval time.Duration, opts Options) *Scheduler {
	return &Scheduler{
		engine:   engine,
		interval: interval,
		opts:     opts,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger.
func (s *Scheduler) SetLogger(logger Logger) {
	s.logger = logger
}

// Run blocks, running one pass immediately and then one per interval,
// until the context is cancelled. A failed pass is logged and the next
// tick retries; overlapping passes cannot occur because runs are
// sequential within this loop.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		s.logger.Info("scheduled sync disabled")
		return nil
	}

	s.logger.Info("scheduled sync started", "interval", s.interval)

	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduled sync stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if _, err := s.engine.RunFullSync(ctx, s.opts); err != nil {
		// Connectivity failures are expected when the controller restarts;
		// the next tick retries.
		s.logger.Warn("scheduled sync pass failed", "error", err)
	}
}
