package message

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxContentLength caps a single staff chat message, in characters.
const MaxContentLength = 2000

// Domain errors
var (
	ErrEmptySenderID   = errors.New("sender ID is required")
	ErrEmptySenderRole = errors.New("sender role is required")
	ErrEmptyContent    = errors.New("message content cannot be empty")
	ErrContentTooLong  = errors.New("message content cannot exceed 2000 characters")
)

// Message is a single staff chat line. Messages are append-only and never edited.
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"` // AccountID
	SenderName string    `json:"sender_name"`
	SenderRole string    `json:"sender_role"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

// Validate checks if the Message has valid data.
// PRE: Message struct is populated
// POST: Returns nil if valid, error otherwise
func (m *Message) Validate() error {
	if m.SenderID == "" {
		return ErrEmptySenderID
	}
	if m.SenderRole == "" {
		return ErrEmptySenderRole
	}
	if strings.TrimSpace(m.Content) == "" {
		return ErrEmptyContent
	}
	if utf8.RuneCountInString(m.Content) > MaxContentLength {
		return ErrContentTooLong
	}
	if m.CreatedAt.IsZero() {
		return errors.New("created_at must be set")
	}
	return nil
}

// Before reports whether m sorts ahead of other in chat history.
// Ties on CreatedAt fall back to ID so the order is total.
func (m Message) Before(other Message) bool {
	if m.CreatedAt.Equal(other.CreatedAt) {
		return m.ID < other.ID
	}
	return m.CreatedAt.Before(other.CreatedAt)
}
