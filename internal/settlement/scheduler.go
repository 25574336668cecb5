package settlement

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Every runs fn every interval until ctx is cancelled, and once right away
// when runOnStart is set. Errors are logged and the loop keeps going.
func Every(ctx context.Context, logger *slog.Logger, name string, interval time.Duration, runOnStart bool, fn func(context.Context) error) {
	logger = logger.With("job", name)
	logger.Info("Starting scheduled job", "interval", interval.String(), "run_on_start", runOnStart)

	run := func() {
		if err := fn(ctx); err != nil && !errors.Is(err, ErrSkipped) {
			logger.Error("Scheduled job failed", "error", err)
		}
	}

	if runOnStart {
		run()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Scheduled job stopping due to context cancellation")
			return
		case <-ticker.C:
			run()
		}
	}
}

// Run drives the settlement sweep on its configured interval
func (s *Sweeper) Run(ctx context.Context) {
	Every(ctx, s.logger, "settlement", s.cfg.Interval, s.cfg.RunOnStart, func(ctx context.Context) error {
		_, err := s.RunOnce(ctx)
		return err
	})
}

// Run drives the pending-expiry sweep on its configured interval
func (e *Expirer) Run(ctx context.Context) {
	Every(ctx, e.logger, "pending_expiry", e.interval, e.runOnStart, func(ctx context.Context) error {
		_, err := e.RunOnce(ctx)
		return err
	})
}
