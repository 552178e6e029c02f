package wsclient

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	rt "gymhub/internal/domain/realtime"
)

// Subscription is an open topic socket. Events ends with a single
// rt.TypeClosed event and is then closed.
type Subscription struct {
	Topic string

	conn      *websocket.Conn
	events    chan rt.Event
	stop      chan struct{}
	closeOnce sync.Once
	writeMu   sync.Mutex
}

// Subscribe opens the topic socket and announces presence. displayName
// overrides the session's name when non-empty.
func (c *Client) Subscribe(ctx context.Context, topic, displayName string) (*Subscription, error) {
	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path += "/api/realtime/" + url.PathEscape(topic)

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			if statusErr := checkStatus(resp); statusErr != nil {
				return nil, fmt.Errorf("subscribe %s: %w", topic, statusErr)
			}
		}
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	s := &Subscription{
		Topic:  topic,
		conn:   conn,
		events: make(chan rt.Event, 64),
		stop:   make(chan struct{}),
	}
	track, err := rt.NewTrack(topic, displayName, time.Now())
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := s.write(track); err != nil {
		conn.Close()
		return nil, fmt.Errorf("track %s: %w", topic, err)
	}
	go s.readLoop()
	slog.Info("client_event", "event", "subscribed", "topic", topic)
	return s, nil
}

// Events delivers server events in order.
func (s *Subscription) Events() <-chan rt.Event { return s.events }

func (s *Subscription) write(ev rt.Event) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return s.conn.WriteJSON(ev)
}

// Ping asks the server for an application-level pong.
func (s *Subscription) Ping() error {
	return s.write(rt.NewControl(rt.TypePing, s.Topic, time.Now()))
}

func (s *Subscription) readLoop() {
	defer close(s.events)
	for {
		var ev rt.Event
		if err := s.conn.ReadJSON(&ev); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("client_event", "event", "subscription_lost", "topic", s.Topic, "error", err.Error())
			}
			s.deliver(rt.NewControl(rt.TypeClosed, s.Topic, time.Now()))
			return
		}
		if !s.deliver(ev) {
			return
		}
	}
}

func (s *Subscription) deliver(ev rt.Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.stop:
		return false
	}
}

// Close leaves the topic. The server drops presence on disconnect.
func (s *Subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stop)
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}
