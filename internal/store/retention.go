package store

import (
	"context"
	"log/slog"
	"time"
)

// StartRetentionWorker periodically deletes session audit rows older than
// retention. It returns immediately; the background goroutine stops when ctx
// is cancelled.
func StartRetentionWorker(ctx context.Context, repo Repository, interval, retention time.Duration) {
	if interval <= 0 || retention <= 0 {
		slog.Info("Session retention worker disabled")
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().Add(-retention)
				deleted, err := repo.DeleteSessionsBefore(ctx, cutoff)
				if err != nil {
					slog.Warn("Session retention sweep failed", "error", err)
					continue
				}
				if deleted > 0 {
					slog.Info("Session retention sweep complete", "deleted", deleted, "cutoff", cutoff)
				}
			}
		}
	}()
}
