package walkie

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"gymhub/internal/domain/broadcast"
)

// ReceiverState is the incoming-audio state.
type ReceiverState int

const (
	ReceiverIdle ReceiverState = iota
	ReceiverIncoming
)

func (s ReceiverState) String() string {
	if s == ReceiverIncoming {
		return "incoming"
	}
	return "idle"
}

// ReceiverOptions configures a Receiver.
type ReceiverOptions struct {
	// SelfID is the local account; its own broadcasts are never played.
	SelfID   string
	Output   *Service
	Notifier Notifier
	Now      func() time.Time
}

// Receiver reacts to broadcast inserts: it skips the local user's own
// broadcasts and expired ones, keeps a pending item while muted, and
// otherwise preempts whatever is playing.
type Receiver struct {
	opts ReceiverOptions

	// handoff is held from the mute check until Output owns the playback.
	handoff sync.Mutex
	mu      sync.Mutex
	muted   bool
	pending *broadcast.Broadcast
}

// NewReceiver creates an unmuted Receiver.
func NewReceiver(opts ReceiverOptions) *Receiver {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	opts.Notifier = orLog(opts.Notifier)
	return &Receiver{opts: opts}
}

// Handle processes one broadcast insert notification.
func (r *Receiver) Handle(b broadcast.Broadcast) {
	if b.SenderID == r.opts.SelfID {
		return
	}
	if b.IsExpired(r.opts.Now()) {
		slog.Debug("walkie_event", "event", "broadcast_expired_skipped", "broadcast_id", b.ID)
		return
	}

	r.handoff.Lock()
	defer r.handoff.Unlock()
	r.mu.Lock()
	if r.muted {
		r.pending = &b
		r.mu.Unlock()
		r.opts.Notifier.Notify(Notification{Level: LevelInfo, Text: "Broadcast from " + b.SenderName + " (muted): listen to play"})
		return
	}
	r.mu.Unlock()

	r.play(b, false)
}

// Listen plays the pending broadcast on the user's request, even while muted.
func (r *Receiver) Listen() error {
	r.mu.Lock()
	p := r.pending
	r.pending = nil
	r.mu.Unlock()
	if p == nil {
		return ErrNothingToListen
	}
	if p.IsExpired(r.opts.Now()) {
		return ErrBroadcastExpired
	}
	return r.play(*p, true)
}

func (r *Receiver) play(b broadcast.Broadcast, manual bool) error {
	r.opts.Notifier.Notify(Notification{Level: LevelInfo, Text: "Incoming broadcast from " + b.SenderName})
	err := r.opts.Output.Play(b, manual, func(err error) { r.finished(b, err) })
	if err != nil {
		r.finished(b, err)
	}
	return err
}

func (r *Receiver) finished(b broadcast.Broadcast, err error) {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
	case errors.Is(err, ErrAutoplayBlocked):
		r.mu.Lock()
		r.pending = &b
		r.mu.Unlock()
		r.opts.Notifier.Notify(Notification{Level: LevelWarn, Text: "Tap listen to hear " + b.SenderName, Err: err})
	default:
		slog.Warn("walkie_event", "event", "playback_failed", "broadcast_id", b.ID, "error", err.Error())
		r.opts.Notifier.Notify(Notification{Level: LevelError, Text: "Could not play broadcast", Err: errors.Join(ErrPlaybackFailed, err)})
	}
}

// SetMuted toggles auto-play suppression. Unmuting does not replay the pending item.
// A Handle that already passed the mute check finishes handing its broadcast
// to Output before SetMuted returns; every later Handle sees the new value.
func (r *Receiver) SetMuted(muted bool) {
	r.handoff.Lock()
	defer r.handoff.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.muted = muted
}

// Muted reports whether auto-play is suppressed.
func (r *Receiver) Muted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.muted
}

// Pending returns the broadcast waiting for a manual listen.
func (r *Receiver) Pending() (broadcast.Broadcast, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending == nil {
		return broadcast.Broadcast{}, false
	}
	return *r.pending, true
}

// State reports whether incoming audio is playing.
func (r *Receiver) State() ReceiverState {
	if _, ok := r.opts.Output.Playing(); ok {
		return ReceiverIncoming
	}
	return ReceiverIdle
}
