package broadcast

import (
	"context"
	"time"

	domain "gymhub/internal/domain/broadcast"
)

// Store persists voice broadcasts.
type Store interface {
	Save(ctx context.Context, value domain.Broadcast) error
	GetByID(ctx context.Context, id string) (domain.Broadcast, error)
	ListActive(ctx context.Context, now time.Time) ([]domain.Broadcast, error)
	ListExpiredBefore(ctx context.Context, cutoff time.Time) ([]domain.Broadcast, error)
	Delete(ctx context.Context, id string) error
}
