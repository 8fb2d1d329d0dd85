package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yungbote/classsync/internal/platform/logger"
)

const (
	frameRow       = "row"
	framePresence  = "presence"
	frameBroadcast = "broadcast"
)

// Frame is the gateway's wire envelope. Exactly one payload is set.
type Frame struct {
	Kind      string     `json:"kind"`
	Row       *RowChange `json:"row,omitempty"`
	Presence  *Presence  `json:"presence,omitempty"`
	Broadcast *Broadcast `json:"broadcast,omitempty"`
}

var ErrNotConnected = errors.New("gateway not connected")

type GatewaySettings struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PingInterval time.Duration
}

func DefaultGatewaySettings() GatewaySettings {
	return GatewaySettings{
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
		PingInterval: 20 * time.Second,
	}
}

// Gateway is a hosted realtime gateway reached over one websocket that
// multiplexes row changes, presence and broadcast hints.
type Gateway struct {
	url      string
	token    string
	settings GatewaySettings
	log      *logger.Logger
	dialer   *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewGateway(url, token string, settings GatewaySettings, log *logger.Logger) (*Gateway, error) {
	if url == "" {
		return nil, fmt.Errorf("gateway: missing FEED_WS_URL")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Gateway{
		url:      url,
		token:    token,
		settings: settings,
		log:      log.With("component", "GatewayFeed"),
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}, nil
}

func (g *Gateway) Name() string { return "gateway" }

func (g *Gateway) Run(ctx context.Context, sink Sink) error {
	header := http.Header{}
	if g.token != "" {
		header.Set("Authorization", "Bearer "+g.token)
	}
	ws, _, err := g.dialer.DialContext(ctx, g.url, header)
	if err != nil {
		return fmt.Errorf("gateway dial: %w", err)
	}
	g.mu.Lock()
	g.conn = ws
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		g.conn = nil
		g.mu.Unlock()
		ws.Close()
	}()

	ws.SetReadDeadline(time.Now().Add(g.settings.ReadTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(g.settings.ReadTimeout))
	})
	sink.Connected(g.Name())

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		tick := time.NewTicker(g.settings.PingInterval)
		defer tick.Stop()
		for {
			select {
			case <-runCtx.Done():
				// unblock ReadJSON
				ws.Close()
				return
			case <-tick.C:
				g.mu.Lock()
				err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(g.settings.WriteTimeout))
				g.mu.Unlock()
				if err != nil {
					ws.Close()
					return
				}
			}
		}
	}()

	for {
		var f Frame
		if err := ws.ReadJSON(&f); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("gateway read: %w", err)
		}
		ws.SetReadDeadline(time.Now().Add(g.settings.ReadTimeout))
		switch {
		case f.Kind == frameRow && f.Row != nil:
			sink.RowChanged(*f.Row)
		case f.Kind == framePresence && f.Presence != nil:
			sink.Presence(*f.Presence)
		case f.Kind == frameBroadcast && f.Broadcast != nil:
			sink.Broadcast(*f.Broadcast)
		default:
			g.log.Debug("Ignoring gateway frame", "kind", f.Kind)
		}
	}
}

// Publish sends a broadcast hint through the open connection.
func (g *Gateway) Publish(ctx context.Context, b Broadcast) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conn == nil {
		return ErrNotConnected
	}
	deadline := time.Now().Add(g.settings.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	g.conn.SetWriteDeadline(deadline)
	return g.conn.WriteJSON(Frame{Kind: frameBroadcast, Broadcast: &b})
}
