// Package realtime defines the wire events exchanged on presence-synchronized topics.
package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gymhub/internal/domain/broadcast"
	"gymhub/internal/domain/message"
	"gymhub/internal/domain/presence"
)

// Topics
const (
	TopicStaffChat       = "staff_chat"
	TopicVoiceBroadcasts = "voice_broadcasts"
)

// Tables carried by insert events.
const (
	TableMessages   = "messages"
	TableBroadcasts = "broadcasts"
)

// Event types
const (
	TypePresenceSync = "presence_sync"
	TypeInsert       = "insert"
	TypeTrack        = "track"
	TypePing         = "ping"
	TypePong         = "pong"
	TypeError        = "error"
	// TypeClosed is never sent on the wire; clients dispatch it when the socket ends.
	TypeClosed = "closed"
)

// Domain errors
var (
	ErrUnknownTopic = errors.New("unknown realtime topic")
	ErrUnknownTable = errors.New("unknown insert table")
	ErrWrongType    = errors.New("unexpected event type")
)

// Event is the envelope for every frame on a topic socket.
type Event struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic"`
	Table     string          `json:"table,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// PresenceSync is the full roster snapshot for a topic.
type PresenceSync struct {
	Presences []presence.Record `json:"presences"`
}

// Track is sent by a client to announce itself on a topic.
type Track struct {
	DisplayName string `json:"display_name,omitempty"`
}

// ErrorData carries a server-side error message.
type ErrorData struct {
	Message string `json:"message"`
}

// ValidTopic reports whether topic is served by the hub.
func ValidTopic(topic string) bool {
	return topic == TopicStaffChat || topic == TopicVoiceBroadcasts
}

// TableForTopic returns the table whose inserts are published on topic.
func TableForTopic(topic string) (string, error) {
	switch topic {
	case TopicStaffChat:
		return TableMessages, nil
	case TopicVoiceBroadcasts:
		return TableBroadcasts, nil
	}
	return "", ErrUnknownTopic
}

func newEvent(typ, topic, table string, data any, now time.Time) (Event, error) {
	ev := Event{Type: typ, Topic: topic, Table: table, Timestamp: now.UnixMilli()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Event{}, fmt.Errorf("encode %s data: %w", typ, err)
		}
		ev.Data = raw
	}
	return ev, nil
}

// NewPresenceSync builds a presence_sync snapshot event.
func NewPresenceSync(topic string, records []presence.Record, now time.Time) (Event, error) {
	if records == nil {
		records = []presence.Record{}
	}
	return newEvent(TypePresenceSync, topic, "", PresenceSync{Presences: records}, now)
}

// NewInsert builds a row-insert notification. table must be the one
// published on topic (see TableForTopic).
func NewInsert(topic, table string, row any, now time.Time) (Event, error) {
	want, err := TableForTopic(topic)
	if err != nil {
		return Event{}, err
	}
	if table != want {
		return Event{}, fmt.Errorf("%w: %s on %s", ErrUnknownTable, table, topic)
	}
	return newEvent(TypeInsert, topic, table, row, now)
}

// NewTrack builds the client's presence announcement.
func NewTrack(topic, displayName string, now time.Time) (Event, error) {
	return newEvent(TypeTrack, topic, "", Track{DisplayName: displayName}, now)
}

// NewError builds an error frame.
func NewError(topic, msg string, now time.Time) (Event, error) {
	return newEvent(TypeError, topic, "", ErrorData{Message: msg}, now)
}

// NewControl builds a data-less frame such as ping, pong or closed.
func NewControl(typ, topic string, now time.Time) Event {
	return Event{Type: typ, Topic: topic, Timestamp: now.UnixMilli()}
}

// DecodePresenceSync extracts the roster snapshot from a presence_sync event.
func DecodePresenceSync(ev Event) (PresenceSync, error) {
	var ps PresenceSync
	if ev.Type != TypePresenceSync {
		return ps, fmt.Errorf("%w: %s", ErrWrongType, ev.Type)
	}
	if err := json.Unmarshal(ev.Data, &ps); err != nil {
		return ps, fmt.Errorf("decode presence_sync: %w", err)
	}
	return ps, nil
}

// DecodeMessage extracts the message row from an insert event.
func DecodeMessage(ev Event) (message.Message, error) {
	var m message.Message
	if ev.Type != TypeInsert {
		return m, fmt.Errorf("%w: %s", ErrWrongType, ev.Type)
	}
	if ev.Table != TableMessages {
		return m, fmt.Errorf("%w: %s", ErrUnknownTable, ev.Table)
	}
	if err := json.Unmarshal(ev.Data, &m); err != nil {
		return m, fmt.Errorf("decode message insert: %w", err)
	}
	return m, nil
}

// DecodeBroadcast extracts the broadcast row from an insert event.
func DecodeBroadcast(ev Event) (broadcast.Broadcast, error) {
	var b broadcast.Broadcast
	if ev.Type != TypeInsert {
		return b, fmt.Errorf("%w: %s", ErrWrongType, ev.Type)
	}
	if ev.Table != TableBroadcasts {
		return b, fmt.Errorf("%w: %s", ErrUnknownTable, ev.Table)
	}
	if err := json.Unmarshal(ev.Data, &b); err != nil {
		return b, fmt.Errorf("decode broadcast insert: %w", err)
	}
	return b, nil
}

// DecodeTrack extracts the presence announcement; an empty payload is allowed.
func DecodeTrack(ev Event) (Track, error) {
	var tr Track
	if ev.Type != TypeTrack {
		return tr, fmt.Errorf("%w: %s", ErrWrongType, ev.Type)
	}
	if len(ev.Data) == 0 {
		return tr, nil
	}
	if err := json.Unmarshal(ev.Data, &tr); err != nil {
		return tr, fmt.Errorf("decode track: %w", err)
	}
	return tr, nil
}

// DecodeError extracts the message from an error frame.
func DecodeError(ev Event) (ErrorData, error) {
	var ed ErrorData
	if err := json.Unmarshal(ev.Data, &ed); err != nil {
		return ed, fmt.Errorf("decode error: %w", err)
	}
	return ed, nil
}
