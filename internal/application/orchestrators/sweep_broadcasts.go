package orchestrators

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gymhub/internal/domain/broadcast"
)

// BroadcastStoreForSweep defines the store interface needed by SweepBroadcasts.
type BroadcastStoreForSweep interface {
	ListExpiredBefore(ctx context.Context, cutoff time.Time) ([]broadcast.Broadcast, error)
	Delete(ctx context.Context, id string) error
}

// BlobDeleter removes stored audio.
type BlobDeleter interface {
	Delete(ctx context.Context, key string) error
}

// SweepBroadcastsDeps holds dependencies for SweepBroadcasts.
type SweepBroadcastsDeps struct {
	BroadcastStore BroadcastStoreForSweep
	Blobs          BlobDeleter
	// Retention is how long an expired broadcast is kept before deletion.
	Retention time.Duration
	Now       func() time.Time
}

// ExecuteSweepBroadcasts deletes broadcasts (row and audio) whose ExpiresAt is
// more than Retention in the past. It returns how many were removed.
// PRE: Retention >= 0
// POST: no remaining broadcast has ExpiresAt <= Now - Retention, unless its blob delete failed
func ExecuteSweepBroadcasts(ctx context.Context, deps SweepBroadcastsDeps) (int, error) {
	cutoff := deps.Now().Add(-deps.Retention)
	expired, err := deps.BroadcastStore.ListExpiredBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list expired broadcasts: %w", err)
	}

	removed := 0
	for _, b := range expired {
		// Blob first: a row without audio is harmless, audio without a row leaks.
		if err := deps.Blobs.Delete(ctx, b.AudioKey); err != nil {
			slog.Warn("broadcast_event", "event", "sweep_blob_failed", "broadcast_id", b.ID, "audio_key", b.AudioKey, "error", err)
			continue
		}
		if err := deps.BroadcastStore.Delete(ctx, b.ID); err != nil {
			slog.Warn("broadcast_event", "event", "sweep_row_failed", "broadcast_id", b.ID, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		slog.Info("broadcast_event", "event", "broadcasts_swept", "count", removed, "cutoff", cutoff)
	}
	return removed, nil
}

// BroadcastSweeper runs ExecuteSweepBroadcasts on a schedule.
type BroadcastSweeper struct {
	deps SweepBroadcastsDeps
	// OnSwept is called with each non-zero sweep count (metrics hook).
	OnSwept func(n int)
}

// NewBroadcastSweeper creates a sweeper.
func NewBroadcastSweeper(deps SweepBroadcastsDeps) *BroadcastSweeper {
	return &BroadcastSweeper{deps: deps}
}

// ProcessPending runs one sweep.
// PRE: Context is valid
// POST: Expired broadcasts past retention are removed
func (s *BroadcastSweeper) ProcessPending(ctx context.Context) error {
	n, err := ExecuteSweepBroadcasts(ctx, s.deps)
	if n > 0 && s.OnSwept != nil {
		s.OnSwept(n)
	}
	return err
}

// PendingProcessor is a unit of periodic background work.
type PendingProcessor interface {
	ProcessPending(ctx context.Context) error
}

// StartBackgroundWorker starts a background goroutine that periodically runs processor.
// PRE: stopCh is provided to signal shutdown
// POST: Worker runs until stopCh is closed; the returned channel closes when it has exited
func StartBackgroundWorker(name string, processor PendingProcessor, interval time.Duration, stopCh <-chan struct{}) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), interval)
				if err := processor.ProcessPending(ctx); err != nil {
					slog.Error("background_process_failed", "worker", name, "error", err.Error())
				}
				cancel()
			case <-stopCh:
				slog.Info("background_worker_stopped", "worker", name)
				return
			}
		}
	}()
	return done
}
