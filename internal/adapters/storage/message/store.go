package message

import (
	"context"
	"time"

	domain "gymhub/internal/domain/message"
)

// DefaultListLimit and MaxListLimit bound history queries.
const (
	DefaultListLimit = 100
	MaxListLimit     = 500
)

// Store persists staff chat messages. Messages are append-only.
type Store interface {
	Save(ctx context.Context, value domain.Message) error
	GetByID(ctx context.Context, id string) (domain.Message, error)
	ListRecent(ctx context.Context, filter ListFilter) ([]domain.Message, error)
}

// ListFilter selects a page of history. A zero Before means "now".
type ListFilter struct {
	Limit  int
	Before time.Time
}

// Normalize clamps Limit into [1, MaxListLimit], defaulting to DefaultListLimit.
func (f ListFilter) Normalize() ListFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	return f
}
