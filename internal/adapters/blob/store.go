// Package blob stores voice broadcast audio and resolves its public URL.
package blob

import (
	"context"
	"errors"
)

// Errors returned by blob stores.
var (
	ErrNotFound        = errors.New("blob not found")
	ErrInvalidKey      = errors.New("invalid blob key")
	ErrUnsupportedType = errors.New("unsupported audio type")
)

// Object describes a stored blob.
type Object struct {
	Key         string
	ContentType string
	Size        int64
}

// Store persists audio blobs. Keys are opaque and generated by the store.
type Store interface {
	Put(ctx context.Context, data []byte) (Object, error)
	Get(ctx context.Context, key string) ([]byte, Object, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}
