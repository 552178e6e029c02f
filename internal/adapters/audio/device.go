package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
)

// Device errors.
var (
	ErrMicrophoneUnavailable = errors.New("microphone unavailable")
	ErrNotRecording          = errors.New("not recording")
	ErrPlayerUnavailable     = errors.New("audio player unavailable")
)

// CommandRecorder captures mono PCM16 WAV from an ALSA-style command (arecord).
type CommandRecorder struct {
	// Command is the capture binary, "arecord" by default.
	Command    string
	SampleRate int

	mu  sync.Mutex
	cmd *exec.Cmd
	buf *bytes.Buffer
	err *bytes.Buffer
}

// NewCommandRecorder returns an arecord-backed recorder.
func NewCommandRecorder() *CommandRecorder {
	return &CommandRecorder{Command: "arecord", SampleRate: DefaultSampleRate}
}

func (r *CommandRecorder) args() []string {
	return []string{"-q", "-f", "S16_LE", "-c", "1", "-r", strconv.Itoa(r.SampleRate), "-t", "wav", "-"}
}

// Start begins capturing. The capture outlives ctx only until Stop.
// POST: on error no process is left running
func (r *CommandRecorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cmd != nil {
		return errors.New("already recording")
	}
	path, err := exec.LookPath(r.Command)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMicrophoneUnavailable, err)
	}
	cmd := exec.Command(path, r.args()...)
	r.buf = &bytes.Buffer{}
	r.err = &bytes.Buffer{}
	cmd.Stdout = r.buf
	cmd.Stderr = r.err
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrMicrophoneUnavailable, err)
	}
	r.cmd = cmd
	return nil
}

// Stop interrupts the capture process and returns what it wrote.
// POST: no capture process is running
func (r *CommandRecorder) Stop() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cmd == nil {
		return nil, ErrNotRecording
	}
	cmd := r.cmd
	r.cmd = nil
	// SIGINT lets arecord flush its buffer before exiting.
	_ = cmd.Process.Signal(os.Interrupt)
	waitErr := cmd.Wait()
	if r.buf.Len() == 0 {
		if waitErr != nil {
			return nil, fmt.Errorf("%w: %v: %s", ErrMicrophoneUnavailable, waitErr, bytes.TrimSpace(r.err.Bytes()))
		}
		return nil, fmt.Errorf("%w: no audio captured", ErrMicrophoneUnavailable)
	}
	return r.buf.Bytes(), nil
}

// CommandPlayer plays WAV payloads through a command reading stdin (aplay).
type CommandPlayer struct {
	Command string
	Args    []string
}

// NewCommandPlayer returns an aplay-backed player.
func NewCommandPlayer() *CommandPlayer {
	return &CommandPlayer{Command: "aplay", Args: []string{"-q", "-"}}
}

// Play blocks until playback finishes or ctx is cancelled, in which case the
// player process is killed and ctx.Err() is returned.
func (p *CommandPlayer) Play(ctx context.Context, data []byte) error {
	path, err := exec.LookPath(p.Command)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPlayerUnavailable, err)
	}
	cmd := exec.CommandContext(ctx, path, p.Args...)
	cmd.Stdin = bytes.NewReader(data)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("play: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	return nil
}
