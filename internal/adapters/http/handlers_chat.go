package web

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/samber/lo"
	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"

	"gymhub/internal/adapters/metrics"
	messageStore "gymhub/internal/adapters/storage/message"
	"gymhub/internal/application/orchestrators"
	messageDomain "gymhub/internal/domain/message"
)

// mdRenderer is a goldmark instance configured for safe HTML output.
// Raw HTML in markdown input is escaped (WithUnsafe is NOT set), preventing XSS.
var mdRenderer = goldmark.New(
	goldmark.WithRendererOptions(
		goldmarkHTML.WithHardWraps(),
	),
)

// maxMessageBody leaves room for MaxContentLength runes of escaped JSON.
const maxMessageBody = 64 << 10

type sendMessageRequest struct {
	Content string `json:"content" validate:"required,max=8000"`
}

// messageView is a chat message plus its rendered body.
type messageView struct {
	messageDomain.Message
	ContentHTML string `json:"content_html"`
}

func renderMessage(m messageDomain.Message) messageView {
	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(m.Content), &buf); err != nil {
		slog.Warn("markdown_render_failed", "message_id", m.ID, "error", err.Error())
		buf.Reset()
	}
	return messageView{Message: m, ContentHTML: buf.String()}
}

// handleMessages handles GET/POST for /api/chat/messages
func (s *server) handleMessages(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		s.listMessages(w, r)
	case "POST":
		s.sendMessage(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *server) listMessages(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireStaff(w, r); !ok {
		return
	}

	var filter messageStore.ListFilter
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		filter.Limit = n
	}
	if v := r.URL.Query().Get("before"); v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			http.Error(w, "before must be an RFC3339 timestamp", http.StatusBadRequest)
			return
		}
		filter.Before = t
	}

	messages, err := s.Stores.MessageStore.ListRecent(r.Context(), filter.Normalize())
	if err != nil {
		internalError(w, err)
		return
	}
	views := lo.Map(messages, func(m messageDomain.Message, _ int) messageView { return renderMessage(m) })
	writeJSON(w, http.StatusOK, views)
}

func (s *server) sendMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireStaff(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxMessageBody)
	var input sendMessageRequest
	if !decodeAndValidate(w, r, &input) {
		return
	}

	msg, err := orchestrators.ExecuteSendMessage(r.Context(), orchestrators.SendMessageInput{
		SenderID:   sess.AccountID,
		SenderName: sess.DisplayName,
		SenderRole: sess.Role,
		Content:    input.Content,
	}, orchestrators.SendMessageDeps{
		MessageStore: s.Stores.MessageStore,
		Publisher:    s.Hub,
		Limiter:      s.MessageLimiter,
		GenerateID:   s.GenerateID,
		Now:          s.Now,
	})
	switch {
	case errors.Is(err, orchestrators.ErrNotStaff):
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	case errors.Is(err, orchestrators.ErrRateLimited):
		metrics.RateLimited.WithLabelValues("chat").Inc()
		http.Error(w, err.Error(), http.StatusTooManyRequests)
		return
	case errors.Is(err, messageDomain.ErrEmptyContent), errors.Is(err, messageDomain.ErrContentTooLong):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		internalError(w, err)
		return
	}

	metrics.MessagesSent.Inc()
	writeJSON(w, http.StatusCreated, renderMessage(msg))
}
