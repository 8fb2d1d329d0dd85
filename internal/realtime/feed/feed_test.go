package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu         sync.Mutex
	connected  []string
	rows       []RowChange
	presence   []Presence
	broadcasts []Broadcast
	signal     chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{signal: make(chan struct{}, 64)}
}

func (s *recordingSink) note() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *recordingSink) Connected(source string) {
	s.mu.Lock()
	s.connected = append(s.connected, source)
	s.mu.Unlock()
	s.note()
}

func (s *recordingSink) RowChanged(c RowChange) {
	s.mu.Lock()
	s.rows = append(s.rows, c)
	s.mu.Unlock()
	s.note()
}

func (s *recordingSink) Presence(p Presence) {
	s.mu.Lock()
	s.presence = append(s.presence, p)
	s.mu.Unlock()
	s.note()
}

func (s *recordingSink) Broadcast(b Broadcast) {
	s.mu.Lock()
	s.broadcasts = append(s.broadcasts, b)
	s.mu.Unlock()
	s.note()
}

func (s *recordingSink) waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		s.mu.Lock()
		ok := cond()
		s.mu.Unlock()
		if ok {
			return
		}
		select {
		case <-s.signal:
		case <-deadline:
			t.Fatalf("timed out waiting for sink condition")
		}
	}
}

func TestDecodeRowChange(t *testing.T) {
	c, err := DecodeRowChange([]byte(`{"table":"units","type":"update","record":{"id":"U1","unlocked":true},"old_record":null}`))
	require.NoError(t, err)
	require.Equal(t, ChangeUpdate, c.Type)
	require.JSONEq(t, `{"id":"U1","unlocked":true}`, string(c.Record))
	require.Nil(t, c.OldRecord)

	c, err = DecodeRowChange([]byte(`{"table":"unit_tests","type":"UPDATE","record":{"id":"T1"},"truncated":true}`))
	require.NoError(t, err)
	require.True(t, c.Truncated)

	_, err = DecodeRowChange([]byte(`{"type":"INSERT"}`))
	require.Error(t, err)
	_, err = DecodeRowChange([]byte(`not json`))
	require.Error(t, err)
}

func TestGatewayDeliversFrames(t *testing.T) {
	upgrader := websocket.Upgrader{}
	published := make(chan Frame, 1)
	auth := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth <- r.Header.Get("Authorization")
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		frames := []Frame{
			{Kind: frameRow, Row: &RowChange{Table: "units", Type: ChangeInsert}},
			{Kind: framePresence, Presence: &Presence{Kind: PresenceJoin, UserID: "s1"}},
			{Kind: "mystery"},
			{Kind: frameBroadcast, Broadcast: &Broadcast{Event: HintSubmission, TestID: "T1"}},
		}
		for _, f := range frames {
			if err := ws.WriteJSON(f); err != nil {
				return
			}
		}
		var in Frame
		if err := ws.ReadJSON(&in); err == nil {
			published <- in
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	g, err := NewGateway(url, "tok", DefaultGatewaySettings(), nil)
	require.NoError(t, err)

	sink := newRecordingSink()
	done := make(chan error, 1)
	go func() { done <- g.Run(context.Background(), sink) }()

	sink.waitFor(t, func() bool { return len(sink.broadcasts) == 1 })
	require.Equal(t, []string{"gateway"}, sink.connected)
	require.Len(t, sink.rows, 1)
	require.Equal(t, "s1", sink.presence[0].UserID)
	require.Equal(t, "Bearer tok", <-auth)

	require.NoError(t, g.Publish(context.Background(), Broadcast{Event: HintStudentJoin, TestID: "T1"}))
	select {
	case f := <-published:
		require.Equal(t, frameBroadcast, f.Kind)
		require.Equal(t, "T1", f.Broadcast.TestID)
	case <-time.After(3 * time.Second):
		t.Fatalf("server never saw the published frame")
	}

	// The server hangs up after one inbound frame.
	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(3 * time.Second):
		t.Fatalf("run did not return after the connection dropped")
	}
	require.ErrorIs(t, g.Publish(context.Background(), Broadcast{}), ErrNotConnected)
}

func TestGatewayStopsOnCancel(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	g, err := NewGateway("ws"+strings.TrimPrefix(srv.URL, "http"), "", DefaultGatewaySettings(), nil)
	require.NoError(t, err)
	sink := newRecordingSink()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx, sink) }()
	sink.waitFor(t, func() bool { return len(sink.connected) == 1 })
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatalf("run ignored cancellation")
	}
}

func testRedis(t *testing.T) *goredis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb, err := NewRedisClient(context.Background(), addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedisPresenceJoinAndLeave(t *testing.T) {
	rdb := testRedis(t)
	p, err := NewRedisPresence(rdb, "presence-test-user", 3*time.Second, nil)
	require.NoError(t, err)

	sink := newRecordingSink()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, sink) }()

	sink.waitFor(t, func() bool {
		for _, ev := range sink.presence {
			if ev.Kind == PresenceSync {
				for _, id := range ev.UserIDs {
					if id == "presence-test-user" {
						return true
					}
				}
			}
		}
		return false
	})
	cancel()
	require.NoError(t, <-done)

	ids, _, err := p.Online(context.Background())
	require.NoError(t, err)
	require.NotContains(t, ids, "presence-test-user")
}

func TestRedisBroadcastRoundTrip(t *testing.T) {
	rdb := testRedis(t)
	b, err := NewRedisBroadcast(rdb, "classsync-test-broadcast", nil)
	require.NoError(t, err)

	sink := newRecordingSink()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = b.Run(ctx, sink) }()
	sink.waitFor(t, func() bool { return len(sink.connected) == 1 })

	require.NoError(t, b.Publish(ctx, Broadcast{Event: HintTestActivated, TestID: "T9"}))
	sink.waitFor(t, func() bool { return len(sink.broadcasts) == 1 })
	require.Equal(t, "T9", sink.broadcasts[0].TestID)
}
