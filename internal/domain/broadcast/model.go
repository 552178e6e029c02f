package broadcast

import (
	"errors"
	"time"
)

// TTL is how long a voice broadcast stays playable after it is created.
const TTL = 60 * time.Second

// MaxAudioBytes caps a single recording upload.
const MaxAudioBytes = 8 << 20

// Domain errors
var (
	ErrEmptySenderID   = errors.New("sender ID is required")
	ErrEmptyAudioKey   = errors.New("audio key is required")
	ErrEmptyAudio      = errors.New("audio payload cannot be empty")
	ErrAudioTooLarge   = errors.New("audio payload exceeds 8 MiB")
	ErrNotAudio        = errors.New("payload is not a supported audio format")
	ErrExpiryNotFuture = errors.New("expires_at must be after created_at")
)

// Broadcast is a short-lived walkie-talkie recording sent to every online staff member.
type Broadcast struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"sender_id"`
	SenderName  string    `json:"sender_name"`
	AudioKey    string    `json:"audio_key"`
	AudioURL    string    `json:"audio_url"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// New builds a broadcast that expires TTL after now.
// PRE: senderID and audioKey are non-empty
// POST: ExpiresAt = now + TTL
func New(id, senderID, senderName, audioKey, contentType string, size int64, now time.Time) Broadcast {
	return Broadcast{
		ID:          id,
		SenderID:    senderID,
		SenderName:  senderName,
		AudioKey:    audioKey,
		ContentType: contentType,
		SizeBytes:   size,
		CreatedAt:   now,
		ExpiresAt:   now.Add(TTL),
	}
}

// Validate checks if the Broadcast has valid data.
// PRE: Broadcast struct is populated
// POST: Returns nil if valid, error otherwise
func (b *Broadcast) Validate() error {
	if b.SenderID == "" {
		return ErrEmptySenderID
	}
	if b.AudioKey == "" {
		return ErrEmptyAudioKey
	}
	if b.CreatedAt.IsZero() {
		return errors.New("created_at must be set")
	}
	if !b.ExpiresAt.After(b.CreatedAt) {
		return ErrExpiryNotFuture
	}
	return nil
}

// IsExpired reports whether the broadcast is past its playback window.
// INVARIANT: Broadcast fields are not mutated
func (b *Broadcast) IsExpired(now time.Time) bool {
	return !now.Before(b.ExpiresAt)
}

// Remaining returns the playback time left, never negative.
func (b *Broadcast) Remaining(now time.Time) time.Duration {
	if b.IsExpired(now) {
		return 0
	}
	return b.ExpiresAt.Sub(now)
}

// ValidateAudio checks the raw upload size before it is stored.
func ValidateAudio(audio []byte) error {
	if len(audio) == 0 {
		return ErrEmptyAudio
	}
	if len(audio) > MaxAudioBytes {
		return ErrAudioTooLarge
	}
	return nil
}
