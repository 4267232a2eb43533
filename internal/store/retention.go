package store

import (
	"context"
	"log/slog"
	"time"
)

// StartRetentionWorker runs a background goroutine that periodically trims
// the turn journal to retention.
func StartRetentionWorker(ctx context.Context, repo Repository, retention, interval time.Duration) {
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Retention worker started", "interval", interval, "retention", retention)

		for {
			select {
			case <-ticker.C:
				cleanupTurns(ctx, repo, retention)
			case <-ctx.Done():
				slog.Info("Retention worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func cleanupTurns(ctx context.Context, repo Repository, retention time.Duration) {
	deleted, err := repo.CleanupTurns(ctx, retention)
	if err != nil {
		slog.Error("Retention worker failed to cleanup turns", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("Retention worker cleaned up turns", "count", deleted)
	}
}
