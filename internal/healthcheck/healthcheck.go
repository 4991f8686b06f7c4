package healthcheck

import (
	"context"
	"log/slog"
	"time"
)

// Checker is anything that can run one round of health checks.
type Checker interface {
	CheckAll(ctx context.Context)
}

// HealthCheck runs checker.CheckAll every interval until ctx is cancelled.
// The first round starts after one interval, matching a fixed-rate timer.
func HealthCheck(
	ctx context.Context,
	checker Checker,
	interval time.Duration,
	logger *slog.Logger,
) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("Health check loop started", slog.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			logger.Info("Health check loop stopped")
			return

		case <-ticker.C:
			checker.CheckAll(ctx)
		}
	}
}
