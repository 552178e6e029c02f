package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gymhub/internal/domain/account"
	"gymhub/internal/domain/message"
	rt "gymhub/internal/domain/realtime"
)

// MessageStoreForSend defines the store interface needed by SendMessage.
type MessageStoreForSend interface {
	Save(ctx context.Context, m message.Message) error
}

// InsertPublisher fans a persisted row out to topic subscribers.
type InsertPublisher interface {
	PublishInsert(topic, table string, row any) error
}

// Limiter gates actions per key.
type Limiter interface {
	Allow(key string) bool
}

// SendMessageInput carries input for the send message orchestrator.
type SendMessageInput struct {
	SenderID   string
	SenderName string
	SenderRole string
	Content    string
}

// SendMessageDeps holds dependencies for SendMessage.
type SendMessageDeps struct {
	MessageStore MessageStoreForSend
	Publisher    InsertPublisher
	// Limiter is optional; nil disables per-sender throttling.
	Limiter    Limiter
	GenerateID func() string
	Now        func() time.Time
}

var (
	ErrNotStaff    = errors.New("only staff may use staff chat and broadcasts")
	ErrRateLimited = errors.New("too many messages, slow down")
)

// ExecuteSendMessage persists a staff chat message and notifies staff_chat subscribers.
// PRE: SenderID identifies an authenticated staff member
// POST: Message persisted; insert published. A publish failure is logged, not returned,
// because the row is already durable and clients reload history on join.
func ExecuteSendMessage(ctx context.Context, input SendMessageInput, deps SendMessageDeps) (message.Message, error) {
	if !account.IsStaffRole(input.SenderRole) {
		return message.Message{}, ErrNotStaff
	}
	if deps.Limiter != nil && !deps.Limiter.Allow(input.SenderID) {
		slog.Warn("chat_event", "event", "message_rate_limited", "sender_id", input.SenderID)
		return message.Message{}, ErrRateLimited
	}

	msg := message.Message{
		ID:         deps.GenerateID(),
		SenderID:   input.SenderID,
		SenderName: input.SenderName,
		SenderRole: input.SenderRole,
		Content:    strings.TrimSpace(input.Content),
		CreatedAt:  deps.Now(),
	}
	if err := msg.Validate(); err != nil {
		return message.Message{}, err
	}

	if err := deps.MessageStore.Save(ctx, msg); err != nil {
		return message.Message{}, fmt.Errorf("save message: %w", err)
	}

	if err := deps.Publisher.PublishInsert(rt.TopicStaffChat, rt.TableMessages, msg); err != nil {
		slog.Error("chat_event", "event", "message_publish_failed", "message_id", msg.ID, "error", err)
	}

	slog.Info("chat_event", "event", "message_sent", "message_id", msg.ID, "sender_id", msg.SenderID)
	return msg, nil
}
