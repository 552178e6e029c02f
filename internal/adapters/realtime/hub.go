// Package realtime fans presence snapshots and row inserts out to websocket
// subscribers, one logical channel per topic.
package realtime

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"gymhub/internal/adapters/metrics"
	"gymhub/internal/domain/presence"
	rt "gymhub/internal/domain/realtime"
)

// DefaultBufferSize is the per-subscriber outbound queue length.
const DefaultBufferSize = 64

// ErrHubClosed is returned by Subscribe after Close.
var ErrHubClosed = errors.New("realtime hub closed")

// Subscriber is one connection's view of a topic.
// The hub never blocks on a subscriber: a full queue drops it and closes Done.
type Subscriber struct {
	ID    string
	Topic string

	send      chan rt.Event
	done      chan struct{}
	closeOnce sync.Once

	// userID is set once Track succeeds; guarded by Hub.mu.
	userID string
}

// Events delivers frames queued for this subscriber.
func (s *Subscriber) Events() <-chan rt.Event { return s.send }

// Done is closed when the hub has removed the subscriber.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

func (s *Subscriber) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Subscriber) offer(ev rt.Event) bool {
	select {
	case s.send <- ev:
		return true
	default:
		return false
	}
}

type presenceEntry struct {
	record presence.Record
	refs   int
}

type channel struct {
	subs     map[*Subscriber]struct{}
	presence map[string]*presenceEntry
}

// HubOptions configures NewHub. Zero values take defaults.
type HubOptions struct {
	BufferSize int
	Now        func() time.Time
}

// Hub owns every topic's subscribers and presence.
// INVARIANT: each user appears at most once per topic roster; its JoinedAt is
// the earliest among that user's live connections
type Hub struct {
	mu     sync.Mutex
	topics map[string]*channel
	closed bool

	bufferSize int
	now        func() time.Time
}

// NewHub creates a hub serving the staff_chat and voice_broadcasts topics.
func NewHub(opts HubOptions) *Hub {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	h := &Hub{
		topics:     make(map[string]*channel),
		bufferSize: opts.BufferSize,
		now:        opts.Now,
	}
	for _, topic := range []string{rt.TopicStaffChat, rt.TopicVoiceBroadcasts} {
		h.topics[topic] = &channel{
			subs:     make(map[*Subscriber]struct{}),
			presence: make(map[string]*presenceEntry),
		}
	}
	return h
}

// Now returns the hub clock, used to stamp presence joins.
func (h *Hub) Now() time.Time { return h.now() }

// Subscribe registers a new subscriber on topic. The subscriber receives
// inserts immediately and presence snapshots once anyone tracks.
// PRE: topic is a valid topic
// POST: subscriber is registered until Leave or a drop
func (h *Hub) Subscribe(topic string) (*Subscriber, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}
	c, ok := h.topics[topic]
	if !ok {
		return nil, rt.ErrUnknownTopic
	}
	sub := &Subscriber{
		ID:    uuid.NewString(),
		Topic: topic,
		send:  make(chan rt.Event, h.bufferSize),
		done:  make(chan struct{}),
	}
	c.subs[sub] = struct{}{}
	h.observeLocked(topic, c)
	slog.Debug("realtime_event", "event", "subscribed", "topic", topic, "subscriber", sub.ID)
	return sub, nil
}

// Track announces sub's user on its topic and publishes a full snapshot.
// Tracking the same connection twice only refreshes the display name.
// PRE: sub came from Subscribe and has not left
// POST: rec.UserID is in Roster(sub.Topic)
func (h *Hub) Track(sub *Subscriber, rec presence.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.topics[sub.Topic]
	if !ok {
		return rt.ErrUnknownTopic
	}
	if _, live := c.subs[sub]; !live {
		return errors.New("subscriber is not connected")
	}

	switch {
	case sub.userID == rec.UserID:
		c.presence[rec.UserID].record.DisplayName = rec.DisplayName
	case sub.userID != "":
		return errors.New("connection already tracks another user")
	default:
		sub.userID = rec.UserID
		if entry, exists := c.presence[rec.UserID]; exists {
			entry.refs++
			if rec.JoinedAt.Before(entry.record.JoinedAt) {
				entry.record.JoinedAt = rec.JoinedAt
			}
			entry.record.DisplayName = rec.DisplayName
		} else {
			c.presence[rec.UserID] = &presenceEntry{record: rec, refs: 1}
		}
	}
	slog.Info("realtime_event", "event", "presence_tracked", "topic", sub.Topic, "user_id", rec.UserID)
	h.syncLocked(sub.Topic, c)
	return nil
}

// Leave removes sub. If it was its user's last connection the user drops
// out of the roster and a new snapshot is published.
// POST: sub.Done() is closed
func (h *Hub) Leave(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.topics[sub.Topic]
	if !ok {
		return
	}
	if h.removeLocked(c, sub) {
		h.syncLocked(sub.Topic, c)
	}
	h.observeLocked(sub.Topic, c)
}

// Publish fans ev out to every subscriber of ev.Topic.
func (h *Hub) Publish(ev rt.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.topics[ev.Topic]
	if !ok {
		return rt.ErrUnknownTopic
	}
	h.fanoutLocked(ev.Topic, c, ev)
	return nil
}

// PublishInsert notifies topic subscribers of a new row in table.
// PRE: table is the table served on topic
func (h *Hub) PublishInsert(topic, table string, row any) error {
	ev, err := rt.NewInsert(topic, table, row, h.now())
	if err != nil {
		return err
	}
	return h.Publish(ev)
}

// Roster returns the current presence snapshot for topic.
// POST: sorted by JoinedAt, then UserID
func (h *Hub) Roster(topic string) ([]presence.Record, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.topics[topic]
	if !ok {
		return nil, rt.ErrUnknownTopic
	}
	return rosterLocked(c), nil
}

// SubscriberCount returns the number of live subscribers on topic.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.topics[topic]; ok {
		return len(c.subs)
	}
	return 0
}

// Close drops every subscriber. Subsequent Subscribe calls fail.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for topic, c := range h.topics {
		for sub := range c.subs {
			h.removeLocked(c, sub)
		}
		h.observeLocked(topic, c)
	}
}

// removeLocked detaches sub and reports whether the roster changed.
func (h *Hub) removeLocked(c *channel, sub *Subscriber) bool {
	if _, ok := c.subs[sub]; !ok {
		return false
	}
	delete(c.subs, sub)
	sub.close()

	if sub.userID == "" {
		return false
	}
	entry, ok := c.presence[sub.userID]
	if !ok {
		return false
	}
	entry.refs--
	if entry.refs > 0 {
		return false
	}
	delete(c.presence, sub.userID)
	slog.Info("realtime_event", "event", "presence_left", "topic", sub.Topic, "user_id", sub.userID)
	return true
}

func (h *Hub) syncLocked(topic string, c *channel) {
	ev, err := rt.NewPresenceSync(topic, rosterLocked(c), h.now())
	if err != nil {
		slog.Error("realtime_event", "event", "presence_sync_encode_failed", "topic", topic, "error", err)
		return
	}
	h.fanoutLocked(topic, c, ev)
	h.observeLocked(topic, c)
}

// fanoutLocked delivers ev without blocking. Subscribers with a full queue
// are dropped; if that changes the roster the new snapshot follows.
func (h *Hub) fanoutLocked(topic string, c *channel, ev rt.Event) {
	var dropped []*Subscriber
	for sub := range c.subs {
		if !sub.offer(ev) {
			dropped = append(dropped, sub)
		}
	}
	metrics.RealtimeEvents.WithLabelValues(topic, ev.Type).Add(float64(len(c.subs) - len(dropped)))
	if len(dropped) == 0 {
		return
	}
	changed := false
	for _, sub := range dropped {
		slog.Warn("realtime_event", "event", "subscriber_dropped", "topic", topic, "subscriber", sub.ID, "user_id", sub.userID)
		metrics.RealtimeDropped.WithLabelValues(topic).Inc()
		if h.removeLocked(c, sub) {
			changed = true
		}
	}
	if changed {
		h.syncLocked(topic, c)
	}
	h.observeLocked(topic, c)
}

func (h *Hub) observeLocked(topic string, c *channel) {
	metrics.RealtimeSubscribers.WithLabelValues(topic).Set(float64(len(c.subs)))
	metrics.RealtimeOnline.WithLabelValues(topic).Set(float64(len(c.presence)))
}

func rosterLocked(c *channel) []presence.Record {
	records := lo.MapToSlice(c.presence, func(_ string, e *presenceEntry) presence.Record {
		return e.record
	})
	presence.Sort(records)
	return records
}
