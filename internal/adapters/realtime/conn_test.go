package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rt "gymhub/internal/domain/realtime"
)

// newTestServer serves topic sockets, taking the identity from the
// X-User header in place of a session.
func newTestServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		who := Identity{UserID: r.Header.Get("X-User"), DisplayName: r.Header.Get("X-User"), Role: "coach"}
		topic := strings.TrimPrefix(r.URL.Path, "/")
		_ = ServeConn(r.Context(), hub, conn, topic, who, ConnOptions{PingInterval: 50 * time.Millisecond})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, topic, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/" + topic
	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"X-User": {user}})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, typ string) rt.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var ev rt.Event
		require.NoError(t, conn.ReadJSON(&ev))
		if ev.Type == typ {
			return ev
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 10*time.Millisecond)
}

func TestServeConn_TrackAndLeave(t *testing.T) {
	hub := NewHub(HubOptions{})
	srv := newTestServer(t, hub)

	alice := dial(t, srv, rt.TopicStaffChat, "alice")
	track, err := rt.NewTrack(rt.TopicStaffChat, "Front desk", time.Now())
	require.NoError(t, err)
	require.NoError(t, alice.WriteJSON(track))

	ps, err := rt.DecodePresenceSync(readUntil(t, alice, rt.TypePresenceSync))
	require.NoError(t, err)
	require.Len(t, ps.Presences, 1)
	assert.Equal(t, "alice", ps.Presences[0].UserID)
	assert.Equal(t, "Front desk", ps.Presences[0].DisplayName)

	bob := dial(t, srv, rt.TopicStaffChat, "bob")
	track, _ = rt.NewTrack(rt.TopicStaffChat, "", time.Now())
	require.NoError(t, bob.WriteJSON(track))
	ps, err = rt.DecodePresenceSync(readUntil(t, alice, rt.TypePresenceSync))
	require.NoError(t, err)
	assert.Len(t, ps.Presences, 2)

	bob.Close()
	ps, err = rt.DecodePresenceSync(readUntil(t, alice, rt.TypePresenceSync))
	require.NoError(t, err)
	require.Len(t, ps.Presences, 1)
	assert.Equal(t, "alice", ps.Presences[0].UserID)
}

func TestServeConn_InsertDelivered(t *testing.T) {
	hub := NewHub(HubOptions{})
	srv := newTestServer(t, hub)
	conn := dial(t, srv, rt.TopicVoiceBroadcasts, "kim")
	waitFor(t, func() bool { return hub.SubscriberCount(rt.TopicVoiceBroadcasts) == 1 })

	require.NoError(t, hub.PublishInsert(rt.TopicVoiceBroadcasts, rt.TableBroadcasts, map[string]string{"id": "b1"}))
	ev := readUntil(t, conn, rt.TypeInsert)
	assert.Equal(t, rt.TableBroadcasts, ev.Table)
	assert.JSONEq(t, `{"id":"b1"}`, string(ev.Data))
}

func TestServeConn_PingPongAndErrors(t *testing.T) {
	hub := NewHub(HubOptions{})
	srv := newTestServer(t, hub)
	conn := dial(t, srv, rt.TopicStaffChat, "sam")

	require.NoError(t, conn.WriteJSON(rt.NewControl(rt.TypePing, rt.TopicStaffChat, time.Now())))
	readUntil(t, conn, rt.TypePong)

	require.NoError(t, conn.WriteJSON(rt.Event{Type: "shout", Topic: rt.TopicStaffChat}))
	ed, err := rt.DecodeError(readUntil(t, conn, rt.TypeError))
	require.NoError(t, err)
	assert.Contains(t, ed.Message, "shout")
}

func TestServeConn_ServerPings(t *testing.T) {
	hub := NewHub(HubOptions{})
	srv := newTestServer(t, hub)
	conn := dial(t, srv, rt.TopicStaffChat, "sam")

	pinged := make(chan struct{}, 1)
	conn.SetPingHandler(func(string) error {
		select {
		case pinged <- struct{}{}:
		default:
		}
		return nil
	})
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	select {
	case <-pinged:
	case <-time.After(2 * time.Second):
		t.Fatal("no ping from server")
	}
}

func TestServeConn_UnknownTopic(t *testing.T) {
	hub := NewHub(HubOptions{})
	srv := newTestServer(t, hub)
	conn := dial(t, srv, "payroll", "sam")
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "server closes sockets on unknown topics")
}

func TestServeConn_ContextCancelClosesSocket(t *testing.T) {
	hub := NewHub(HubOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = ServeConn(ctx, hub, conn, rt.TopicStaffChat, Identity{UserID: "sam", Role: "coach"}, ConnOptions{})
	}))
	defer srv.Close()

	conn := dial(t, srv, "", "sam")
	waitFor(t, func() bool { return hub.SubscriberCount(rt.TopicStaffChat) == 1 })
	cancel()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	waitFor(t, func() bool { return hub.SubscriberCount(rt.TopicStaffChat) == 0 })
}

func TestServeConn_PeerCloseUnblocksStuckWriter(t *testing.T) {
	hub := NewHub(HubOptions{})
	served := make(chan struct{})
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = ServeConn(context.Background(), hub, conn, rt.TopicStaffChat, Identity{UserID: "sam", Role: "coach"}, ConnOptions{})
		close(served)
	}))
	defer srv.Close()

	conn := dial(t, srv, "", "sam")
	waitFor(t, func() bool { return hub.SubscriberCount(rt.TopicStaffChat) == 1 })

	// The client never reads, so the server's writes back up.
	row := map[string]string{"content": strings.Repeat("x", 1<<20)}
	for i := 0; i < 32; i++ {
		require.NoError(t, hub.PublishInsert(rt.TopicStaffChat, rt.TableMessages, row))
	}
	time.Sleep(200 * time.Millisecond)

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	require.NoError(t, conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)))

	select {
	case <-served:
	case <-time.After(WriteTimeout / 2):
		t.Fatal("ServeConn still blocked on a write after the peer closed")
	}
}
