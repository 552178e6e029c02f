// Package channel keeps the client-side view of a presence-synchronized topic:
// who is online, plus the ordered chat and broadcast history.
package channel

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"gymhub/internal/domain/broadcast"
	"gymhub/internal/domain/message"
	"gymhub/internal/domain/presence"
	rt "gymhub/internal/domain/realtime"
)

// ErrClosed is returned by Dispatch once the subscription has ended.
var ErrClosed = errors.New("channel closed")

// Update describes what a dispatched event changed.
type Update struct {
	Kind string // one of the rt.Type* constants
	// Roster is set for presence_sync.
	Roster []presence.Record
	// Message or Broadcast is set for an insert.
	Message   *message.Message
	Broadcast *broadcast.Broadcast
	// Duplicate is true when an insert carried an ID already in history.
	Duplicate bool
	// ErrorMessage is set for server error frames.
	ErrorMessage string
}

// State is the local view of one topic. It is safe for concurrent use.
type State struct {
	topic string

	mu         sync.Mutex
	roster     *presence.Roster
	messages   []message.Message
	messageIDs map[string]struct{}
	broadcasts []broadcast.Broadcast
	castIDs    map[string]struct{}
	closed     bool
}

// New creates an empty State for topic.
func New(topic string) *State {
	return &State{
		topic:      topic,
		roster:     presence.NewRoster(),
		messageIDs: make(map[string]struct{}),
		castIDs:    make(map[string]struct{}),
	}
}

// Topic returns the topic this state follows.
func (s *State) Topic() string { return s.topic }

// Seed loads history fetched before the subscription started.
// Messages already present are skipped. It returns how many were added.
func (s *State) Seed(messages []message.Message) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for _, m := range messages {
		if s.appendMessageLocked(m) {
			added++
		}
	}
	return added
}

// SeedBroadcasts loads broadcasts that were active before the subscription started.
func (s *State) SeedBroadcasts(casts []broadcast.Broadcast) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for _, b := range casts {
		if s.appendBroadcastLocked(b) {
			added++
		}
	}
	return added
}

// Dispatch applies one subscription event to the state.
// presence_sync replaces the online set; insert appends unseen rows;
// closed clears the online set and keeps history.
// PRE: ev.Topic is this state's topic (or empty for local events)
// POST: state reflects ev; nothing changes on error
func (s *State) Dispatch(ev rt.Event) (Update, error) {
	if ev.Topic != "" && ev.Topic != s.topic {
		return Update{}, fmt.Errorf("%w: event for %s on %s", rt.ErrUnknownTopic, ev.Topic, s.topic)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Update{}, ErrClosed
	}

	switch ev.Type {
	case rt.TypePresenceSync:
		ps, err := rt.DecodePresenceSync(ev)
		if err != nil {
			return Update{}, err
		}
		s.roster.Replace(ps.Presences)
		return Update{Kind: ev.Type, Roster: s.roster.Records()}, nil

	case rt.TypeInsert:
		return s.insertLocked(ev)

	case rt.TypeClosed:
		s.closed = true
		s.roster.Clear()
		return Update{Kind: ev.Type}, nil

	case rt.TypeError:
		ed, err := rt.DecodeError(ev)
		if err != nil {
			return Update{}, err
		}
		return Update{Kind: ev.Type, ErrorMessage: ed.Message}, nil

	case rt.TypePong:
		return Update{Kind: ev.Type}, nil
	}
	return Update{}, fmt.Errorf("%w: %s", rt.ErrWrongType, ev.Type)
}

func (s *State) insertLocked(ev rt.Event) (Update, error) {
	switch ev.Table {
	case rt.TableMessages:
		m, err := rt.DecodeMessage(ev)
		if err != nil {
			return Update{}, err
		}
		added := s.appendMessageLocked(m)
		return Update{Kind: ev.Type, Message: &m, Duplicate: !added}, nil
	case rt.TableBroadcasts:
		b, err := rt.DecodeBroadcast(ev)
		if err != nil {
			return Update{}, err
		}
		added := s.appendBroadcastLocked(b)
		return Update{Kind: ev.Type, Broadcast: &b, Duplicate: !added}, nil
	}
	return Update{}, fmt.Errorf("%w: %s", rt.ErrUnknownTable, ev.Table)
}

func (s *State) appendMessageLocked(m message.Message) bool {
	if _, seen := s.messageIDs[m.ID]; seen {
		return false
	}
	s.messageIDs[m.ID] = struct{}{}
	// History fetched late can predate live inserts.
	i := sort.Search(len(s.messages), func(i int) bool { return m.Before(s.messages[i]) })
	s.messages = slices.Insert(s.messages, i, m)
	return true
}

func (s *State) appendBroadcastLocked(b broadcast.Broadcast) bool {
	if _, seen := s.castIDs[b.ID]; seen {
		return false
	}
	s.castIDs[b.ID] = struct{}{}
	s.broadcasts = append(s.broadcasts, b)
	return true
}

// Online returns the current roster in JoinedAt order.
func (s *State) Online() []presence.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roster.Records()
}

// IsOnline reports whether userID was in the last snapshot.
func (s *State) IsOnline(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roster.Online(userID)
}

// Messages returns a copy of the chat history in insertion order.
func (s *State) Messages() []message.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]message.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Broadcasts returns a copy of the broadcast history in insertion order.
func (s *State) Broadcasts() []broadcast.Broadcast {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]broadcast.Broadcast, len(s.broadcasts))
	copy(out, s.broadcasts)
	return out
}

// Closed reports whether a closed event has been dispatched.
func (s *State) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
