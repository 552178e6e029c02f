package walkie

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gymhub/internal/domain/broadcast"
)

// HoldThreshold separates a tap from a hold.
const HoldThreshold = 250 * time.Millisecond

// UploadTimeout bounds one broadcast upload.
const UploadTimeout = 30 * time.Second

// SenderState is the push-to-talk state.
type SenderState int

const (
	SenderIdle SenderState = iota
	SenderRecording
	SenderUploading
)

func (s SenderState) String() string {
	switch s {
	case SenderRecording:
		return "recording"
	case SenderUploading:
		return "uploading"
	}
	return "idle"
}

// RecordMode says how a recording ends.
type RecordMode int

const (
	ModeNone RecordMode = iota
	// ModeHold ends on the release of the press that started it.
	ModeHold
	// ModeToggle ends on the next tap.
	ModeToggle
)

// Recorder captures microphone audio.
type Recorder interface {
	Start(ctx context.Context) error
	Stop() ([]byte, error)
}

// Uploader turns captured audio into a server-side broadcast.
type Uploader interface {
	UploadBroadcast(ctx context.Context, audio []byte) (broadcast.Broadcast, error)
}

// Timer is the part of *time.Timer the sender needs.
type Timer interface {
	Stop() bool
}

// SenderOptions configures a Sender.
type SenderOptions struct {
	Recorder Recorder
	Uploader Uploader
	Notifier Notifier
	// HoldThreshold defaults to HoldThreshold.
	HoldThreshold time.Duration
	// AfterFunc defaults to time.AfterFunc; tests substitute a manual clock.
	AfterFunc func(d time.Duration, f func()) Timer
	// OnUploaded is called after a successful upload.
	OnUploaded func(broadcast.Broadcast)
}

// Sender is the push-to-talk state machine: Idle -> Recording -> Uploading -> Idle.
// Press and Release are the only inputs; muting never reaches it.
type Sender struct {
	opts SenderOptions

	mu      sync.Mutex
	state   SenderState
	mode    RecordMode
	pressed bool
	timer   Timer
	armed   uint64 // generation of the current hold timer
	uploads sync.WaitGroup
}

// NewSender creates an idle Sender.
func NewSender(opts SenderOptions) *Sender {
	if opts.HoldThreshold <= 0 {
		opts.HoldThreshold = HoldThreshold
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	opts.Notifier = orLog(opts.Notifier)
	return &Sender{opts: opts}
}

// State returns the current state.
func (s *Sender) State() SenderState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Mode returns how the current recording will end, or ModeNone.
func (s *Sender) Mode() RecordMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Press handles the talk button going down.
// Idle: arms the hold timer. Recording in toggle mode: the release of this
// press will stop. Uploading: ignored.
func (s *Sender) Press() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SenderUploading || s.pressed {
		return
	}
	s.pressed = true
	if s.state == SenderIdle {
		s.armed++
		gen := s.armed
		s.timer = s.opts.AfterFunc(s.opts.HoldThreshold, func() { s.holdElapsed(gen) })
	}
}

// Release handles the talk button going up.
// A release before the hold threshold while Idle starts a toggle recording;
// a release while Recording stops it. Uploading: ignored.
func (s *Sender) Release() {
	var notes []Notification
	s.mu.Lock()
	if !s.pressed {
		s.mu.Unlock()
		return
	}
	s.pressed = false
	s.disarmLocked()
	switch s.state {
	case SenderIdle:
		notes = s.startLocked(ModeToggle)
	case SenderRecording:
		notes = s.stopLocked()
	}
	s.mu.Unlock()
	s.emit(notes)
}

// Tap is a press immediately followed by a release.
func (s *Sender) Tap() {
	s.Press()
	s.Release()
}

func (s *Sender) holdElapsed(gen uint64) {
	s.mu.Lock()
	if gen != s.armed || !s.pressed || s.state != SenderIdle {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	notes := s.startLocked(ModeHold)
	if s.state != SenderRecording {
		// The failed hold consumes this press; its release must not retry as a tap.
		s.pressed = false
	}
	s.mu.Unlock()
	s.emit(notes)
}

func (s *Sender) disarmLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.armed++
}

func (s *Sender) startLocked(mode RecordMode) []Notification {
	if err := s.opts.Recorder.Start(context.Background()); err != nil {
		slog.Warn("walkie_event", "event", "record_start_failed", "error", err.Error())
		return []Notification{{Level: LevelError, Text: "Microphone unavailable", Err: fmt.Errorf("%w: %w", ErrMicrophoneFailure, err)}}
	}
	s.state = SenderRecording
	s.mode = mode
	slog.Debug("walkie_event", "event", "recording_started", "mode", mode)
	text := "Recording… release to send"
	if mode == ModeToggle {
		text = "Recording… tap again to send"
	}
	return []Notification{{Level: LevelInfo, Text: text}}
}

func (s *Sender) stopLocked() []Notification {
	s.mode = ModeNone
	data, err := s.opts.Recorder.Stop()
	if err == nil && len(data) == 0 {
		err = ErrNothingRecorded
	}
	if err != nil {
		s.state = SenderIdle
		return []Notification{{Level: LevelError, Text: "Recording failed", Err: err}}
	}
	s.state = SenderUploading
	s.uploads.Add(1)
	go s.upload(data)
	return []Notification{{Level: LevelInfo, Text: "Sending broadcast…"}}
}

// upload runs without the lock; an in-flight upload cannot be cancelled.
func (s *Sender) upload(data []byte) {
	defer s.uploads.Done()
	ctx, cancel := context.WithTimeout(context.Background(), UploadTimeout)
	defer cancel()
	b, err := s.opts.Uploader.UploadBroadcast(ctx, data)

	s.mu.Lock()
	s.state = SenderIdle
	s.mu.Unlock()

	if err != nil {
		slog.Warn("walkie_event", "event", "upload_failed", "size_bytes", len(data), "error", err.Error())
		s.opts.Notifier.Notify(Notification{Level: LevelError, Text: "Broadcast not sent", Err: errors.Join(ErrUploadFailed, err)})
		return
	}
	slog.Info("walkie_event", "event", "broadcast_sent", "broadcast_id", b.ID, "size_bytes", len(data))
	s.opts.Notifier.Notify(Notification{Level: LevelSuccess, Text: "Broadcast sent"})
	if s.opts.OnUploaded != nil {
		s.opts.OnUploaded(b)
	}
}

// Wait blocks until in-flight uploads finish.
func (s *Sender) Wait() {
	s.uploads.Wait()
}

func (s *Sender) emit(notes []Notification) {
	for _, n := range notes {
		s.opts.Notifier.Notify(n)
	}
}
