package service

import (
	"codehub_backend/internal/config"
	"codehub_backend/internal/util"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(buffer int) *RelayHub {
	return NewRelayHub(nil, config.RelayConfig{SendBuffer: buffer, MaxMessageSize: 4096, RatePerSecond: 1000, Burst: 1000})
}

func recv(t *testing.T, c *RelayClient) RelayEvent {
	t.Helper()
	select {
	case raw, ok := <-c.Send:
		require.True(t, ok, "send queue closed")
		var ev RelayEvent
		require.NoError(t, json.Unmarshal(raw, &ev))
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return RelayEvent{}
	}
}

func assertNoEvent(t *testing.T, c *RelayClient) {
	t.Helper()
	select {
	case raw := <-c.Send:
		t.Fatalf("unexpected event: %s", raw)
	default:
	}
}

func TestJoinProjectChannelAnnouncesToOthers(t *testing.T) {
	hub := newTestHub(8)
	alice := hub.NewClient(1, "alice", nil)
	bob := hub.NewClient(2, "bob", nil)

	require.NoError(t, hub.JoinProjectChannel(alice, 7))
	assertNoEvent(t, alice)

	require.NoError(t, hub.JoinProjectChannel(bob, 7))
	ev := recv(t, alice)
	assert.Equal(t, EventUserJoined, ev.Type)
	assert.Equal(t, uint(2), ev.UserID)
	assert.Equal(t, "bob", ev.Username)
	assertNoEvent(t, bob)

	assert.ElementsMatch(t, []uint{1, 2}, hub.Presence(7))
	assert.Empty(t, hub.Presence(8))
}

func TestJoinRequiresAuthentication(t *testing.T) {
	hub := newTestHub(8)
	anon := hub.NewClient(0, "", nil)

	assert.ErrorIs(t, hub.JoinProjectChannel(anon, 1), util.ErrUnauthenticated)
	assert.ErrorIs(t, hub.JoinNotificationChannel(anon, 1), util.ErrUnauthenticated)

	mallory := hub.NewClient(3, "mallory", nil)
	assert.ErrorIs(t, hub.JoinNotificationChannel(mallory, 1), util.ErrPermissionDenied)
	assert.Empty(t, mallory.Channel())
}

func TestHandleInboundExcludesSenderExceptTaskUpdate(t *testing.T) {
	hub := newTestHub(8)
	alice := hub.NewClient(1, "alice", nil)
	alice2 := hub.NewClient(1, "alice", nil)
	bob := hub.NewClient(2, "bob", nil)
	require.NoError(t, hub.JoinProjectChannel(alice, 3))
	require.NoError(t, hub.JoinProjectChannel(alice2, 3))
	require.NoError(t, hub.JoinProjectChannel(bob, 3))
	// 清空加入通知
	for len(alice.Send) > 0 {
		<-alice.Send
	}
	for len(alice2.Send) > 0 {
		<-alice2.Send
	}

	// 伪造的 user_id 会被覆盖
	hub.HandleInbound(alice, []byte(`{"type":"code_change","user_id":99,"file_path":"main.go","changes":{"ops":[1]},"timestamp":1700000000}`))
	ev := recv(t, bob)
	assert.Equal(t, EventCodeChange, ev.Type)
	assert.Equal(t, uint(1), ev.UserID)
	assert.Equal(t, "main.go", ev.FilePath)
	assert.JSONEq(t, `{"ops":[1]}`, string(ev.Changes))
	assert.Equal(t, "1700000000", string(ev.Timestamp))
	assertNoEvent(t, alice)

	// 同一用户的其他连接仍能收到
	assert.Equal(t, EventCodeChange, recv(t, alice2).Type)

	hub.HandleInbound(bob, []byte(`{"type":"cursor_position","file_path":"main.go","line":4,"column":2}`))
	ev = recv(t, alice)
	require.NotNil(t, ev.Line)
	assert.Equal(t, 4, *ev.Line)
	assertNoEvent(t, bob)
	recv(t, alice2)

	hub.HandleInbound(bob, []byte(`{"type":"task_update","task_id":5,"action":"moved","data":{"status":"done"}}`))
	for _, c := range []*RelayClient{alice, alice2, bob} {
		ev := recv(t, c)
		assert.Equal(t, EventTaskUpdate, ev.Type)
		assert.Equal(t, uint(5), ev.TaskID)
	}

	hub.HandleInbound(alice, []byte(`{"type":"shutdown_server"}`))
	hub.HandleInbound(alice, []byte(`not json`))
	assertNoEvent(t, bob)
	assertNoEvent(t, alice2)
}

func TestNotificationChannelAckIsNotBroadcast(t *testing.T) {
	hub := newTestHub(8)
	var (
		mu    sync.Mutex
		acked []string
	)
	hub.AckHandler = func(_ context.Context, userID uint, id string) error {
		mu.Lock()
		defer mu.Unlock()
		acked = append(acked, strconv.Itoa(int(userID))+":"+id)
		return nil
	}

	tab1 := hub.NewClient(4, "dora", nil)
	tab2 := hub.NewClient(4, "dora", nil)
	require.NoError(t, hub.JoinNotificationChannel(tab1, 4))
	require.NoError(t, hub.JoinNotificationChannel(tab2, 4))

	hub.HandleInbound(tab1, []byte(`{"type":"mark_read","notification_id":"n-1"}`))
	assert.Equal(t, []string{"4:n-1"}, acked)
	assertNoEvent(t, tab1)
	assertNoEvent(t, tab2)

	hub.PushNotification(4, map[string]string{"title": "hi"})
	hub.PushNotificationCount(4, 3)
	for _, c := range []*RelayClient{tab1, tab2} {
		ev := recv(t, c)
		assert.Equal(t, EventNotification, ev.Type)
		assert.JSONEq(t, `{"title":"hi"}`, string(ev.Notification))
		ev = recv(t, c)
		assert.Equal(t, EventNotificationCount, ev.Type)
		require.NotNil(t, ev.Count)
		assert.Equal(t, int64(3), *ev.Count)
	}
}

func TestLeaveBroadcastsAndIsIdempotent(t *testing.T) {
	hub := newTestHub(8)
	alice := hub.NewClient(1, "alice", nil)
	bob := hub.NewClient(2, "bob", nil)
	require.NoError(t, hub.JoinProjectChannel(alice, 1))
	require.NoError(t, hub.JoinProjectChannel(bob, 1))
	recv(t, alice)

	hub.Leave(bob)
	hub.Leave(bob)
	ev := recv(t, alice)
	assert.Equal(t, EventUserLeft, ev.Type)
	assert.Equal(t, uint(2), ev.UserID)
	assertNoEvent(t, alice)

	_, ok := <-bob.Send
	assert.False(t, ok)
	assert.Equal(t, []uint{1}, hub.Presence(1))
}

func TestFullQueueDropsInsteadOfBlocking(t *testing.T) {
	hub := newTestHub(1)
	slow := hub.NewClient(1, "slow", nil)
	require.NoError(t, hub.JoinProjectChannel(slow, 9))

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			hub.BroadcastTaskUpdate(9, 2, "bob", uint(i), "updated", nil)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full queue")
	}
	assert.Len(t, slow.Send, 1)
}

func TestStopClosesConnectionsAndRejectsJoins(t *testing.T) {
	hub := newTestHub(4)
	c := hub.NewClient(1, "alice", nil)
	require.NoError(t, hub.JoinProjectChannel(c, 1))

	hub.Stop()
	_, ok := <-c.Send
	assert.False(t, ok)
	assert.Empty(t, hub.Presence(1))

	late := hub.NewClient(2, "bob", nil)
	assert.ErrorIs(t, hub.JoinProjectChannel(late, 1), ErrRelayStopped)

	// Stop 之后 Leave 不会重复关闭
	assert.NotPanics(t, func() { hub.Leave(c) })
}

func newRelayServer(t *testing.T, hub *RelayHub) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/project", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.Atoi(r.URL.Query().Get("user"))
		ServeProjectWS(hub, w, r, uint(id), r.URL.Query().Get("name"), 1)
	})
	mux.HandleFunc("/ws/notifications", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.Atoi(r.URL.Query().Get("user"))
		ServeNotificationWS(hub, w, r, uint(id), "")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) RelayEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev RelayEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestProjectWebSocketRelay(t *testing.T) {
	hub := newTestHub(16)
	srv := newRelayServer(t, hub)

	alice := dial(t, srv, "/ws/project?user=1&name=alice")
	require.Eventually(t, func() bool { return len(hub.Presence(1)) == 1 }, 2*time.Second, 10*time.Millisecond)

	bob := dial(t, srv, "/ws/project?user=2&name=bob")
	joined := readEvent(t, alice)
	assert.Equal(t, EventUserJoined, joined.Type)
	assert.Equal(t, "bob", joined.Username)

	require.NoError(t, alice.WriteJSON(map[string]interface{}{"type": "code_change", "file_path": "a.go", "changes": []int{1}}))
	require.NoError(t, alice.WriteJSON(map[string]interface{}{"type": "task_update", "task_id": 3, "action": "created"}))

	assert.Equal(t, EventCodeChange, readEvent(t, bob).Type)
	assert.Equal(t, EventTaskUpdate, readEvent(t, bob).Type)
	// 发送者只收到 task_update
	assert.Equal(t, EventTaskUpdate, readEvent(t, alice).Type)

	bob.Close()
	left := readEvent(t, alice)
	assert.Equal(t, EventUserLeft, left.Type)
	assert.Equal(t, uint(2), left.UserID)
}

func TestNotificationWebSocketRejectsAnonymous(t *testing.T) {
	hub := newTestHub(4)
	srv := newRelayServer(t, hub)

	conn := dial(t, srv, "/ws/notifications")
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation))

	owner := dial(t, srv, "/ws/notifications?user=5")
	require.Eventually(t, func() bool {
		return hub.deliverLocal(NotificationChannel(5), []byte(`{"type":"ping"}`), "") == 1
	}, 2*time.Second, 10*time.Millisecond)
	hub.PushNotificationCount(5, 2)

	// 跳过探测消息
	for {
		ev := readEvent(t, owner)
		if ev.Type == EventNotificationCount {
			require.NotNil(t, ev.Count)
			assert.Equal(t, int64(2), *ev.Count)
			break
		}
	}
}
