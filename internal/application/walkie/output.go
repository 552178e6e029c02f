package walkie

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"gymhub/internal/adapters/audio"
	"gymhub/internal/domain/broadcast"
)

// Player plays one audio payload, blocking until it ends or ctx is cancelled.
// A player that refuses to start without a user gesture returns ErrAutoplayBlocked
// (see Manual).
type Player interface {
	Play(ctx context.Context, data []byte) error
}

// Fetcher downloads broadcast audio.
type Fetcher interface {
	FetchAudio(ctx context.Context, url string) ([]byte, error)
}

type manualKey struct{}

// Manual reports whether playback was requested by the user rather than
// started automatically by an incoming broadcast.
func Manual(ctx context.Context) bool {
	v, _ := ctx.Value(manualKey{}).(bool)
	return v
}

func withManual(ctx context.Context, manual bool) context.Context {
	return context.WithValue(ctx, manualKey{}, manual)
}

// ServiceOptions configures the audio output Service.
type ServiceOptions struct {
	Fetcher Fetcher
	// OpenPlayer is called once, on first playback.
	OpenPlayer func() (Player, error)
	// Gain multiplies PCM16 WAV samples; defaults to audio.DefaultGain.
	Gain float64
}

type playback struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
}

// Service owns the process-wide output: the gain stage, the player and the
// single currently playing broadcast. It is initialised lazily and torn down
// by Close.
type Service struct {
	opts ServiceOptions

	// switchMu serialises stop-then-start so two arrivals cannot both play.
	switchMu sync.Mutex

	mu      sync.Mutex
	player  Player
	current *playback
	closed  bool
}

// NewService creates an uninitialised Service.
func NewService(opts ServiceOptions) *Service {
	if opts.Gain <= 0 {
		opts.Gain = audio.DefaultGain
	}
	return &Service{opts: opts}
}

func (s *Service) ensurePlayerLocked() (Player, error) {
	if s.closed {
		return nil, ErrServiceClosed
	}
	if s.player != nil {
		return s.player, nil
	}
	p, err := s.opts.OpenPlayer()
	if err != nil {
		return nil, fmt.Errorf("open audio output: %w", err)
	}
	s.player = p
	slog.Debug("walkie_event", "event", "audio_output_opened", "gain", s.opts.Gain)
	return p, nil
}

// Play stops any current playback, waits until it has fully ended, then plays
// b in the background: start tone, amplified audio, end tone. onDone receives
// the outcome; a preempted playback reports context.Canceled.
// POST: at most one broadcast is playing
func (s *Service) Play(b broadcast.Broadcast, manual bool, onDone func(error)) error {
	s.switchMu.Lock()
	defer s.switchMu.Unlock()

	s.stopAndWait()

	s.mu.Lock()
	player, err := s.ensurePlayerLocked()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	ctx, cancel := context.WithCancel(withManual(context.Background(), manual))
	pb := &playback{id: b.ID, cancel: cancel, done: make(chan struct{})}
	s.current = pb
	s.mu.Unlock()

	go func() {
		err := s.run(ctx, player, b)
		cancel()

		s.mu.Lock()
		if s.current == pb {
			s.current = nil
		}
		s.mu.Unlock()
		// done closes before onDone so the callback may start another playback.
		close(pb.done)
		if onDone != nil {
			onDone(err)
		}
	}()
	return nil
}

func (s *Service) run(ctx context.Context, player Player, b broadcast.Broadcast) error {
	if err := player.Play(ctx, audio.StartTone); err != nil {
		return err
	}
	data, err := s.opts.Fetcher.FetchAudio(ctx, b.AudioURL)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("fetch %s: %w", b.ID, err)
	}
	if err := player.Play(ctx, s.amplify(data)); err != nil {
		return err
	}
	return player.Play(ctx, audio.EndTone)
}

// amplify applies the gain stage to PCM16 WAV and passes anything else through.
func (s *Service) amplify(data []byte) []byte {
	out, err := audio.Amplify(data, s.opts.Gain)
	if errors.Is(err, audio.ErrNotPCM16WAV) {
		return data
	}
	if err != nil {
		slog.Warn("walkie_event", "event", "gain_failed", "error", err.Error())
		return data
	}
	return out
}

// Playing returns the ID of the broadcast being played, if any.
func (s *Service) Playing() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return "", false
	}
	return s.current.id, true
}

// Stop ends the current playback and waits for it.
func (s *Service) Stop() {
	s.switchMu.Lock()
	defer s.switchMu.Unlock()
	s.stopAndWait()
}

func (s *Service) stopAndWait() {
	s.mu.Lock()
	prev := s.current
	s.mu.Unlock()
	if prev == nil {
		return
	}
	prev.cancel()
	<-prev.done
}

// Close stops playback and releases the output. Later Play calls fail with ErrServiceClosed.
func (s *Service) Close() error {
	s.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.player = nil
	return nil
}
