// Package sse streams store changes to the local UI as Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/classsync/internal/platform/logger"
	"github.com/yungbote/classsync/internal/sync/store"
)

type Event string

const EventStateChanged Event = "StateChanged"

// ChannelState carries every store change.
const ChannelState = "state"

type Message struct {
	Channel string `json:"channel"`
	Event   Event  `json:"event"`
	Data    any    `json:"data,omitempty"`
}

// StateChanged tells the UI which version to read and what moved it.
type StateChanged struct {
	Version uint64 `json:"version"`
	Kind    string `json:"kind"`
}

type Client struct {
	ID       uuid.UUID
	Channels map[string]bool
	Outbound chan Message
	done     chan struct{}
	once     sync.Once
}

type Hub struct {
	mu            sync.RWMutex
	log           *logger.Logger
	heartbeat     time.Duration
	subscriptions map[string]map[*Client]bool
}

func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		log:           log.With("component", "SSEHub"),
		heartbeat:     15 * time.Second,
		subscriptions: make(map[string]map[*Client]bool),
	}
}

func (h *Hub) NewClient() *Client {
	return &Client{
		ID:       uuid.New(),
		Channels: make(map[string]bool),
		Outbound: make(chan Message, 64),
		done:     make(chan struct{}),
	}
}

func (h *Hub) AddChannel(c *Client, channel string) {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	c.Channels[channel] = true
	subs, ok := h.subscriptions[channel]
	if !ok {
		subs = make(map[*Client]bool)
		h.subscriptions[channel] = subs
	}
	subs[c] = true
	h.log.Debug("SSE client subscribed", "client_id", c.ID, "channel", channel)
}

func (h *Hub) RemoveChannel(c *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribe(c, strings.TrimSpace(channel))
}

func (h *Hub) unsubscribe(c *Client, channel string) {
	delete(c.Channels, channel)
	if subs, ok := h.subscriptions[channel]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.subscriptions, channel)
		}
	}
}

// Broadcast never blocks: a client whose buffer is full misses the message
// and catches up on the next version it sees.
func (h *Hub) Broadcast(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.subscriptions[msg.Channel] {
		select {
		case c.Outbound <- msg:
		default:
			h.log.Warn("Dropping SSE message; outbound buffer full", "client_id", c.ID)
		}
	}
}

// Bridge forwards every effective store change to ChannelState. The
// returned func detaches it.
func (h *Hub) Bridge(st *store.Store) func() {
	return st.Subscribe(func(c store.Change) {
		h.Broadcast(Message{
			Channel: ChannelState,
			Event:   EventStateChanged,
			Data:    StateChanged{Version: c.Next.Version, Kind: c.Event.Kind()},
		})
	})
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request, c *Client) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			h.log.Debug("SSE client gone", "client_id", c.ID, "error", ctx.Err())
			return
		case <-c.done:
			return
		case <-heartbeat.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case msg := <-c.Outbound:
			b, err := json.Marshal(msg)
			if err != nil {
				h.log.Warn("Failed to marshal SSE message", "error", err)
				continue
			}
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Event, b)
			flusher.Flush()
		}
	}
}

// CloseClient unsubscribes c everywhere and ends its stream.
func (h *Hub) CloseClient(c *Client) {
	c.once.Do(func() {
		h.mu.Lock()
		for ch := range c.Channels {
			h.unsubscribe(c, ch)
		}
		h.mu.Unlock()
		close(c.done)
	})
}
