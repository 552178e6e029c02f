package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gymhub/internal/adapters/blob"
	"gymhub/internal/domain/account"
	"gymhub/internal/domain/broadcast"
	rt "gymhub/internal/domain/realtime"
)

// BroadcastStoreForCreate defines the store interface needed by CreateBroadcast.
type BroadcastStoreForCreate interface {
	Save(ctx context.Context, b broadcast.Broadcast) error
}

// BlobStore stores audio payloads and resolves their public URL.
type BlobStore interface {
	Put(ctx context.Context, data []byte) (blob.Object, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

// CreateBroadcastInput carries input for the create broadcast orchestrator.
type CreateBroadcastInput struct {
	SenderID   string
	SenderName string
	SenderRole string
	Audio      []byte
}

// CreateBroadcastDeps holds dependencies for CreateBroadcast.
type CreateBroadcastDeps struct {
	BroadcastStore BroadcastStoreForCreate
	Blobs          BlobStore
	Publisher      InsertPublisher
	GenerateID     func() string
	Now            func() time.Time
}

// ExecuteCreateBroadcast stores a recording, persists a broadcast that expires
// broadcast.TTL from now and notifies voice_broadcasts subscribers.
// PRE: SenderID identifies an authenticated staff member
// POST: blob stored and row persisted, or neither (the blob is removed if the row fails)
func ExecuteCreateBroadcast(ctx context.Context, input CreateBroadcastInput, deps CreateBroadcastDeps) (broadcast.Broadcast, error) {
	if !account.IsStaffRole(input.SenderRole) {
		return broadcast.Broadcast{}, ErrNotStaff
	}
	if input.SenderID == "" {
		return broadcast.Broadcast{}, broadcast.ErrEmptySenderID
	}
	if err := broadcast.ValidateAudio(input.Audio); err != nil {
		return broadcast.Broadcast{}, err
	}

	obj, err := deps.Blobs.Put(ctx, input.Audio)
	if errors.Is(err, blob.ErrUnsupportedType) {
		return broadcast.Broadcast{}, broadcast.ErrNotAudio
	}
	if err != nil {
		return broadcast.Broadcast{}, fmt.Errorf("store audio: %w", err)
	}

	b := broadcast.New(deps.GenerateID(), input.SenderID, input.SenderName, obj.Key, obj.ContentType, obj.Size, deps.Now())
	b.AudioURL = deps.Blobs.URL(obj.Key)
	if err := b.Validate(); err != nil {
		_ = deps.Blobs.Delete(ctx, obj.Key)
		return broadcast.Broadcast{}, err
	}

	if err := deps.BroadcastStore.Save(ctx, b); err != nil {
		if delErr := deps.Blobs.Delete(ctx, obj.Key); delErr != nil {
			slog.Error("broadcast_event", "event", "orphan_blob", "audio_key", obj.Key, "error", delErr)
		}
		return broadcast.Broadcast{}, fmt.Errorf("save broadcast: %w", err)
	}

	if err := deps.Publisher.PublishInsert(rt.TopicVoiceBroadcasts, rt.TableBroadcasts, b); err != nil {
		slog.Error("broadcast_event", "event", "broadcast_publish_failed", "broadcast_id", b.ID, "error", err)
	}

	slog.Info("broadcast_event", "event", "broadcast_created", "broadcast_id", b.ID, "sender_id", b.SenderID,
		"content_type", b.ContentType, "size_bytes", b.SizeBytes, "expires_at", b.ExpiresAt)
	return b, nil
}
