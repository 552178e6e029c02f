package web

import (
	"errors"
	"net/http"
	"strconv"

	"gymhub/internal/adapters/blob"
	"gymhub/internal/adapters/metrics"
	"gymhub/internal/application/orchestrators"
	broadcastDomain "gymhub/internal/domain/broadcast"
)

// createBroadcastRequest carries the recording base64-encoded so the
// upload stays a JSON request.
type createBroadcastRequest struct {
	Audio []byte `json:"audio" validate:"required"`
}

// maxBroadcastBody leaves room for base64 expansion of MaxAudioBytes.
const maxBroadcastBody = broadcastDomain.MaxAudioBytes*4/3 + 4096

// handleCreateBroadcast handles POST /api/broadcasts
func (s *server) handleCreateBroadcast(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sess, ok := requireStaff(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBroadcastBody)
	var input createBroadcastRequest
	if err := strictDecode(r, &input); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			http.Error(w, broadcastDomain.ErrAudioTooLarge.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(input); err != nil {
		http.Error(w, broadcastDomain.ErrEmptyAudio.Error(), http.StatusBadRequest)
		return
	}

	b, err := orchestrators.ExecuteCreateBroadcast(r.Context(), orchestrators.CreateBroadcastInput{
		SenderID:   sess.AccountID,
		SenderName: sess.DisplayName,
		SenderRole: sess.Role,
		Audio:      input.Audio,
	}, orchestrators.CreateBroadcastDeps{
		BroadcastStore: s.Stores.BroadcastStore,
		Blobs:          s.Stores.Blobs,
		Publisher:      s.Hub,
		GenerateID:     s.GenerateID,
		Now:            s.Now,
	})
	switch {
	case errors.Is(err, orchestrators.ErrNotStaff):
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	case errors.Is(err, broadcastDomain.ErrAudioTooLarge):
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	case errors.Is(err, broadcastDomain.ErrNotAudio):
		http.Error(w, err.Error(), http.StatusUnsupportedMediaType)
		return
	case errors.Is(err, broadcastDomain.ErrEmptyAudio):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		internalError(w, err)
		return
	}

	metrics.BroadcastsCreated.Inc()
	writeJSON(w, http.StatusCreated, b)
}

// handleActiveBroadcasts handles GET /api/broadcasts/active
func (s *server) handleActiveBroadcasts(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := requireStaff(w, r); !ok {
		return
	}
	active, err := s.Stores.BroadcastStore.ListActive(r.Context(), s.Now())
	if err != nil {
		internalError(w, err)
		return
	}
	if active == nil {
		active = []broadcastDomain.Broadcast{}
	}
	writeJSON(w, http.StatusOK, active)
}

// handleAudio handles GET /audio/{key}
func (s *server) handleAudio(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" && r.Method != "HEAD" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := requireStaff(w, r); !ok {
		return
	}
	data, obj, err := s.Stores.Blobs.Get(r.Context(), r.PathValue("key"))
	if errors.Is(err, blob.ErrNotFound) || errors.Is(err, blob.ErrInvalidKey) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		internalError(w, err)
		return
	}
	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	w.Header().Set("Cache-Control", "private, max-age=60")
	w.WriteHeader(http.StatusOK)
	if r.Method == "GET" {
		_, _ = w.Write(data)
	}
}
