package realtime

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"

	"gymhub/internal/domain/presence"
	rt "gymhub/internal/domain/realtime"
)

// Keepalive timings for a topic socket.
const (
	PingInterval = 30 * time.Second
	ReadTimeout  = 60 * time.Second
	WriteTimeout = 10 * time.Second

	maxFrameBytes  = 64 << 10
	maxDisplayName = 80
)

// Identity is the authenticated staff member behind a socket.
type Identity struct {
	UserID      string
	DisplayName string
	Role        string
}

// ConnOptions overrides keepalive timings, mainly for tests.
type ConnOptions struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
}

func (o ConnOptions) withDefaults() ConnOptions {
	if o.PingInterval <= 0 {
		o.PingInterval = PingInterval
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = ReadTimeout
	}
	return o
}

// ServeConn subscribes conn to topic and pumps frames until the peer goes
// away, ctx ends, or the hub drops the subscriber. Disconnect is leave.
// PRE: conn is an upgraded websocket; who is an authenticated staff member
// POST: the subscriber has left and conn is closed
func ServeConn(ctx context.Context, hub *Hub, conn *websocket.Conn, topic string, who Identity, opts ConnOptions) error {
	opts = opts.withDefaults()
	defer conn.Close()

	sub, err := hub.Subscribe(topic)
	if err != nil {
		return err
	}
	defer hub.Leave(sub)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		writeLoop(ctx, conn, sub, opts.PingInterval)
		// Give the peer a moment to echo our close frame, then fail the read.
		conn.SetReadDeadline(time.Now().Add(time.Second))
	}()

	conn.SetReadLimit(maxFrameBytes)
	conn.SetReadDeadline(time.Now().Add(opts.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(opts.ReadTimeout))
		return nil
	})

	slog.Info("realtime_event", "event", "socket_opened", "topic", topic, "user_id", who.UserID, "subscriber", sub.ID)
	readLoop(ctx, conn, hub, sub, who, opts.ReadTimeout)

	cancel()
	// Unblock the writer if it is stuck on a slow peer. The deadline goes on
	// the net.Conn: the websocket's own write state belongs to the writer.
	conn.UnderlyingConn().SetWriteDeadline(time.Now())
	<-writerDone
	slog.Info("realtime_event", "event", "socket_closed", "topic", topic, "user_id", who.UserID, "subscriber", sub.ID)
	return nil
}

func readLoop(ctx context.Context, conn *websocket.Conn, hub *Hub, sub *Subscriber, who Identity, readTimeout time.Duration) {
	for {
		if ctx.Err() != nil {
			return
		}
		var ev rt.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				slog.Warn("realtime_event", "event", "socket_read_failed", "topic", sub.Topic, "user_id", who.UserID, "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		handleFrame(hub, sub, who, ev)
	}
}

func handleFrame(hub *Hub, sub *Subscriber, who Identity, ev rt.Event) {
	now := hub.Now()
	switch ev.Type {
	case rt.TypeTrack:
		tr, err := rt.DecodeTrack(ev)
		if err != nil {
			replyError(sub, now, "malformed track payload")
			return
		}
		rec := presence.Record{
			UserID:      who.UserID,
			DisplayName: displayName(tr.DisplayName, who.DisplayName),
			Role:        who.Role,
			JoinedAt:    now,
		}
		if err := hub.Track(sub, rec); err != nil {
			replyError(sub, now, err.Error())
		}
	case rt.TypePing:
		sub.offer(rt.NewControl(rt.TypePong, sub.Topic, now))
	default:
		replyError(sub, now, "unsupported event type: "+ev.Type)
	}
}

// displayName prefers a sane client override, falling back to the account name.
func displayName(override, fallback string) string {
	name := strings.TrimSpace(override)
	if name == "" || utf8.RuneCountInString(name) > maxDisplayName {
		return fallback
	}
	return name
}

func replyError(sub *Subscriber, now time.Time, msg string) {
	ev, err := rt.NewError(sub.Topic, msg, now)
	if err != nil {
		return
	}
	sub.offer(ev)
}

func writeLoop(ctx context.Context, conn *websocket.Conn, sub *Subscriber, pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			writeClose(conn, websocket.CloseGoingAway, "server closing")
			return
		case <-sub.Done():
			writeClose(conn, websocket.CloseTryAgainLater, "subscriber dropped")
			return
		case ev := <-sub.Events():
			conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				slog.Debug("realtime_event", "event", "socket_write_failed", "topic", sub.Topic, "error", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(WriteTimeout)); err != nil {
				return
			}
		}
	}
}

func writeClose(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
