package sse

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/classsync/internal/domain/classroom"
	"github.com/yungbote/classsync/internal/sync/store"
)

func recv(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for SSE message")
	}
	return Message{}
}

func TestBridgeOrdersChangesAndSkipsNoops(t *testing.T) {
	hub := NewHub(nil)
	st := store.New(nil)
	detach := hub.Bridge(st)
	defer detach()

	c := hub.NewClient()
	hub.AddChannel(c, ChannelState)

	st.Dispatch(store.SnapshotLoaded{Snapshot: store.Snapshot{Units: []classroom.Unit{{ID: "U1"}}}})
	st.Dispatch(store.UnitDeleted{ID: "missing"})
	st.Dispatch(store.PresenceJoined{UserID: "u1"})

	first := recv(t, c.Outbound).Data.(StateChanged)
	second := recv(t, c.Outbound).Data.(StateChanged)
	if first.Kind != "snapshot_loaded" || second.Kind != "presence_joined" {
		t.Fatalf("kinds: got %q then %q", first.Kind, second.Kind)
	}
	if second.Version != first.Version+1 {
		t.Fatalf("versions: %d then %d", first.Version, second.Version)
	}
	select {
	case extra := <-c.Outbound:
		t.Fatalf("no-op dispatch produced %v", extra)
	default:
	}
}

func TestCloseClientStopsDelivery(t *testing.T) {
	hub := NewHub(nil)
	c := hub.NewClient()
	hub.AddChannel(c, ChannelState)
	hub.CloseClient(c)
	hub.CloseClient(c)

	hub.Broadcast(Message{Channel: ChannelState, Event: EventStateChanged})
	select {
	case msg := <-c.Outbound:
		t.Fatalf("closed client got %v", msg)
	default:
	}
	if len(hub.subscriptions) != 0 {
		t.Fatalf("subscriptions not cleaned up: %v", hub.subscriptions)
	}
}

func TestServeHTTPWritesEvents(t *testing.T) {
	hub := NewHub(nil)
	hub.heartbeat = 10 * time.Millisecond
	c := hub.NewClient()
	hub.AddChannel(c, ChannelState)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeHTTP(w, r, c)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type: %q", ct)
	}

	hub.Broadcast(Message{Channel: ChannelState, Event: EventStateChanged, Data: StateChanged{Version: 7, Kind: "unit_upserted"}})

	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		data, ok := strings.CutPrefix(sc.Text(), "data: ")
		if !ok {
			continue
		}
		var msg struct {
			Event Event        `json:"event"`
			Data  StateChanged `json:"data"`
		}
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			t.Fatalf("decode %q: %v", data, err)
		}
		if msg.Event != EventStateChanged || msg.Data.Version != 7 {
			t.Fatalf("unexpected message %+v", msg)
		}
		return
	}
	t.Fatalf("stream ended before the message: %v", sc.Err())
}
