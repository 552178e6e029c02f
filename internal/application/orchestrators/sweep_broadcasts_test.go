package orchestrators

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"gymhub/internal/domain/broadcast"
)

func seedBroadcast(store *mockBroadcastStore, blobs *mockBlobs, id string, created time.Time) {
	b := broadcast.New(id, "coach-1", "Pat", id+".wav", "audio/wav", 4, created)
	store.rows[id] = b
	blobs.objects[b.AudioKey] = []byte("RIFF")
}

// TestExecuteSweepBroadcasts_RemovesOnlyPastRetention tests the retention cutoff.
func TestExecuteSweepBroadcasts_RemovesOnlyPastRetention(t *testing.T) {
	store := newMockBroadcastStore()
	blobs := newMockBlobs()
	retention := 10 * time.Minute

	// expired long ago
	seedBroadcast(store, blobs, "old", fixedTime.Add(-time.Hour))
	// expired, but still inside retention
	seedBroadcast(store, blobs, "recent", fixedTime.Add(-5*time.Minute))
	// still playable
	seedBroadcast(store, blobs, "live", fixedTime)

	n, err := ExecuteSweepBroadcasts(context.Background(), SweepBroadcastsDeps{
		BroadcastStore: store, Blobs: blobs, Retention: retention, Now: fixedNow,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 removed, got %d", n)
	}
	if _, ok := store.rows["old"]; ok {
		t.Error("expected old broadcast row to be removed")
	}
	if _, ok := blobs.objects["old.wav"]; ok {
		t.Error("expected old blob to be removed")
	}
	for _, id := range []string{"recent", "live"} {
		if _, ok := store.rows[id]; !ok {
			t.Errorf("expected %s to survive", id)
		}
	}
}

// TestExecuteSweepBroadcasts_BlobFailureKeepsRow tests that a row stays when its audio could not be removed.
func TestExecuteSweepBroadcasts_BlobFailureKeepsRow(t *testing.T) {
	store := newMockBroadcastStore()
	blobs := newMockBlobs()
	seedBroadcast(store, blobs, "a", fixedTime.Add(-time.Hour))
	seedBroadcast(store, blobs, "b", fixedTime.Add(-time.Hour))
	blobs.deleteErr["a.wav"] = errors.New("disk busy")

	n, err := ExecuteSweepBroadcasts(context.Background(), SweepBroadcastsDeps{
		BroadcastStore: store, Blobs: blobs, Now: fixedNow,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 removed, got %d", n)
	}
	if _, ok := store.rows["a"]; !ok {
		t.Error("expected row a to be kept for the next sweep")
	}
}

// TestExecuteSweepBroadcasts_ListError tests that a store failure is returned.
func TestExecuteSweepBroadcasts_ListError(t *testing.T) {
	store := newMockBroadcastStore()
	store.listErr = errStoreDown
	_, err := ExecuteSweepBroadcasts(context.Background(), SweepBroadcastsDeps{
		BroadcastStore: store, Blobs: newMockBlobs(), Now: fixedNow,
	})
	if !errors.Is(err, errStoreDown) {
		t.Errorf("expected wrapped store error, got %v", err)
	}
}

// TestBroadcastSweeper_ReportsCount tests the OnSwept hook.
func TestBroadcastSweeper_ReportsCount(t *testing.T) {
	store := newMockBroadcastStore()
	blobs := newMockBlobs()
	seedBroadcast(store, blobs, "a", fixedTime.Add(-time.Hour))

	sweeper := NewBroadcastSweeper(SweepBroadcastsDeps{BroadcastStore: store, Blobs: blobs, Now: fixedNow})
	var got int
	sweeper.OnSwept = func(n int) { got += n }

	if err := sweeper.ProcessPending(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 1 {
		t.Errorf("expected OnSwept(1), got %d", got)
	}
	if err := sweeper.ProcessPending(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 1 {
		t.Errorf("expected OnSwept not called for an empty sweep, total %d", got)
	}
}

type countingProcessor struct{ calls atomic.Int32 }

func (c *countingProcessor) ProcessPending(context.Context) error {
	c.calls.Add(1)
	return nil
}

// TestStartBackgroundWorker_StopsOnSignal tests that the worker ticks and exits when stopped.
func TestStartBackgroundWorker_StopsOnSignal(t *testing.T) {
	proc := &countingProcessor{}
	stop := make(chan struct{})
	done := StartBackgroundWorker("test", proc, 5*time.Millisecond, stop)

	deadline := time.Now().Add(2 * time.Second)
	for proc.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	close(stop)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	if proc.calls.Load() < 2 {
		t.Errorf("expected at least 2 ticks, got %d", proc.calls.Load())
	}
}
