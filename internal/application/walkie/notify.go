// Package walkie implements push-to-talk voice broadcasts: the sender state
// machine, the receiver with mute and preemption, and the audio output service.
package walkie

import (
	"errors"
	"log/slog"
)

// Errors surfaced to the user.
var (
	ErrAutoplayBlocked   = errors.New("autoplay blocked: listen manually")
	ErrNothingToListen   = errors.New("no broadcast waiting")
	ErrBroadcastExpired  = errors.New("broadcast has expired")
	ErrServiceClosed     = errors.New("audio output closed")
	ErrNothingRecorded   = errors.New("nothing was recorded")
	ErrUploadFailed      = errors.New("broadcast upload failed")
	ErrPlaybackFailed    = errors.New("broadcast playback failed")
	ErrMicrophoneFailure = errors.New("could not start recording")
)

// Level grades a notification.
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	}
	return "info"
}

// Notification is a transient message for the user.
type Notification struct {
	Level Level
	Text  string
	Err   error
}

// Notifier shows notifications. Implementations must not block for long.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

// Notify calls f(n).
func (f NotifierFunc) Notify(n Notification) { f(n) }

// LogNotifier writes notifications to slog. It is the default when none is given.
type LogNotifier struct{}

// Notify implements Notifier.
func (LogNotifier) Notify(n Notification) {
	attrs := []any{"event", "notification", "level", n.Level.String(), "text", n.Text}
	if n.Err != nil {
		attrs = append(attrs, "error", n.Err.Error())
	}
	slog.Info("walkie_event", attrs...)
}

// orLog returns n, or LogNotifier when n is nil.
func orLog(n Notifier) Notifier {
	if n == nil {
		return LogNotifier{}
	}
	return n
}
