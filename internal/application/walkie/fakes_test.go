package walkie

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"gymhub/internal/adapters/audio"
	"gymhub/internal/domain/broadcast"
)

var base = time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return base }

// manualClock hands out timers that only fire when told to.
type manualClock struct {
	mu     sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	f       func()
	stopped atomic.Bool
}

func (t *manualTimer) Stop() bool { return !t.stopped.Swap(true) }

func (c *manualClock) AfterFunc(_ time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{f: f}
	c.timers = append(c.timers, t)
	return t
}

// fire runs every timer that has not been stopped.
func (c *manualClock) fire() {
	c.mu.Lock()
	timers := c.timers
	c.timers = nil
	c.mu.Unlock()
	for _, t := range timers {
		if !t.stopped.Swap(true) {
			t.f()
		}
	}
}

// fireStale runs timers even if stopped, like a time.Timer racing its Stop.
func (c *manualClock) fireStale() {
	c.mu.Lock()
	timers := c.timers
	c.timers = nil
	c.mu.Unlock()
	for _, t := range timers {
		t.f()
	}
}

type fakeRecorder struct {
	mu       sync.Mutex
	starts   int
	stops    int
	startErr error
	data     []byte
}

func (r *fakeRecorder) Start(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts++
	return r.startErr
}

func (r *fakeRecorder) Stop() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	return r.data, nil
}

func (r *fakeRecorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts, r.stops
}

type fakeUploader struct {
	mu       sync.Mutex
	uploaded [][]byte
	gate     chan struct{}
	err      error
}

func (u *fakeUploader) UploadBroadcast(_ context.Context, data []byte) (broadcast.Broadcast, error) {
	if u.gate != nil {
		<-u.gate
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err != nil {
		return broadcast.Broadcast{}, u.err
	}
	u.uploaded = append(u.uploaded, data)
	return broadcast.New("b-up", "me", "Me", "k.wav", "audio/wav", int64(len(data)), base), nil
}

func (u *fakeUploader) count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.uploaded)
}

// fakeFetcher serves payloads by URL.
type fakeFetcher map[string][]byte

func (f fakeFetcher) FetchAudio(_ context.Context, url string) ([]byte, error) {
	data, ok := f[url]
	if !ok {
		return nil, errors.New("404")
	}
	return data, nil
}

// fakePlayer logs what it plays. Payloads listed in hold block until cancelled.
type fakePlayer struct {
	mu        sync.Mutex
	log       []string
	payloads  [][]byte
	hold      map[string]bool
	autoplay  bool
	active    atomic.Int32
	maxActive atomic.Int32
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{hold: map[string]bool{}, autoplay: true}
}

func (p *fakePlayer) record(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.log = append(p.log, s)
}

func (p *fakePlayer) Play(ctx context.Context, data []byte) error {
	n := p.active.Add(1)
	defer p.active.Add(-1)
	for {
		m := p.maxActive.Load()
		if n <= m || p.maxActive.CompareAndSwap(m, n) {
			break
		}
	}

	if !p.autoplay && !Manual(ctx) {
		return ErrAutoplayBlocked
	}
	switch {
	case bytes.Equal(data, audio.StartTone):
		p.record("start-tone")
		return nil
	case bytes.Equal(data, audio.EndTone):
		p.record("end-tone")
		return nil
	}

	label := string(data)
	if bytes.HasPrefix(data, []byte("RIFF")) {
		label = "wav"
	}
	p.mu.Lock()
	p.payloads = append(p.payloads, data)
	blocking := p.hold[label]
	p.mu.Unlock()
	p.record("play:" + label)
	if blocking {
		<-ctx.Done()
		p.record("stop:" + label)
		return ctx.Err()
	}
	return nil
}

func (p *fakePlayer) entries() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.log))
	copy(out, p.log)
	return out
}

func (p *fakePlayer) contains(entry string) bool {
	for _, e := range p.entries() {
		if e == entry {
			return true
		}
	}
	return false
}

func cast(id, sender string) broadcast.Broadcast {
	b := broadcast.New(id, sender, "Coach "+sender, id+".wav", "audio/wav", 1, base)
	b.AudioURL = "/audio/" + id
	return b
}

// recordedNotes collects notifications in memory.
type recordedNotes struct {
	mu    sync.Mutex
	items []Notification
}

func (r *recordedNotes) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

func (r *recordedNotes) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.items))
	copy(out, r.items)
	return out
}
