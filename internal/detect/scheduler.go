package detect

import (
	"context"
	"log/slog"
	"time"

	"immigo/internal/platform/config"
)

// Scheduler triggers periodic sweeps over every tracked policy key. An
// errored sweep is retried after the shorter backoff instead of waiting a
// full interval.
type Scheduler struct {
	orchestrator *Orchestrator
	cfg          config.DetectConfig
	logger       *slog.Logger
}

func NewScheduler(orchestrator *Orchestrator, cfg config.DetectConfig, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{orchestrator: orchestrator, cfg: cfg, logger: logger}
}

// Run sweeps immediately, then on every interval tick until the context is
// cancelled. It blocks; callers run it in its own goroutine.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "change detection scheduler started",
		"sweep_interval", s.cfg.SweepInterval.String(),
		"retry_backoff", s.cfg.RetryBackoff.String(),
	)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("change detection scheduler stopped")
			return ctx.Err()
		case <-timer.C:
		}

		next := s.cfg.SweepInterval
		if err := s.orchestrator.Sweep(ctx); err != nil {
			s.logger.WarnContext(ctx, "sweep finished with failures",
				"error", err,
			)
			next = s.cfg.RetryBackoff
		}
		timer.Reset(next)
	}
}
