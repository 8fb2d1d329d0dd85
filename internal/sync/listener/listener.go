// Package listener feeds the store from the realtime transports. Row events
// are held back until a snapshot is in the store, then replayed in arrival
// order; every transport reconnect triggers a fresh snapshot.
package listener

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/yungbote/classsync/internal/domain/classroom"
	"github.com/yungbote/classsync/internal/observability"
	"github.com/yungbote/classsync/internal/platform/logger"
	"github.com/yungbote/classsync/internal/realtime/feed"
	"github.com/yungbote/classsync/internal/sync/snapshot"
	"github.com/yungbote/classsync/internal/sync/store"
)

const DefaultBufferSize = 1024

// Snapshotter performs one full load.
type Snapshotter interface {
	Load(ctx context.Context, userID string) (snapshot.Result, error)
}

// Backend is what the listener reads and writes outside the feed.
type Backend interface {
	GetUnitTest(ctx context.Context, id string) (classroom.UnitTest, error)
	GetRoundProgress(ctx context.Context, id string) (classroom.RoundProgress, error)
	GetChatMessage(ctx context.Context, id string) (classroom.ChatMessage, error)
	TouchLastSeen(ctx context.Context, userID string, at time.Time) error
}

type Config struct {
	UserID            string
	BufferSize        int
	ReconnectDelay    time.Duration
	ReconnectMaxDelay time.Duration
}

type Listener struct {
	cfg     Config
	store   *store.Store
	loader  Snapshotter
	backend Backend
	sources []feed.Source
	log     *logger.Logger
	metrics *observability.Metrics

	runCtx context.Context

	mu        sync.Mutex
	ready     bool
	buffer    []store.Event
	overflow  bool
	connected map[string]bool

	resync chan struct{}
	me     chan classroom.User
}

func New(cfg Config, st *store.Store, loader Snapshotter, backend Backend, sources []feed.Source, log *logger.Logger, metrics *observability.Metrics) *Listener {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Listener{
		cfg:       cfg,
		store:     st,
		loader:    loader,
		backend:   backend,
		sources:   sources,
		log:       log.With("component", "ChangeFeedListener"),
		metrics:   metrics,
		runCtx:    context.Background(),
		connected: map[string]bool{},
		resync:    make(chan struct{}, 1),
		me:        make(chan classroom.User, 1),
	}
}

// SignedIn delivers the profile found by the first snapshot load.
func (l *Listener) SignedIn() <-chan classroom.User { return l.me }

// Run starts every source and owns snapshot loading until ctx ends. It
// returns early only when the first load fails, which is session-fatal.
func (l *Listener) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	l.runCtx = ctx
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()
	for _, src := range l.sources {
		wg.Add(1)
		go func(src feed.Source) {
			defer wg.Done()
			l.runSource(ctx, src)
		}(src)
	}

	res, err := l.load(ctx)
	if err != nil {
		return err
	}
	l.me <- res.Me

	retry := newBackoff(l.cfg.ReconnectDelay, l.cfg.ReconnectMaxDelay)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-l.resync:
		}
		for {
			if _, err := l.load(ctx); err == nil {
				retry.reset()
				break
			} else if ctx.Err() != nil {
				return nil
			} else {
				d := retry.delay()
				l.log.Warn("Snapshot reload failed, retrying", "error", err, "delay", d)
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(d):
				}
			}
		}
	}
}

// RequestResync schedules a fresh snapshot. Requests coalesce.
func (l *Listener) RequestResync() {
	select {
	case l.resync <- struct{}{}:
	default:
	}
}

// load gates row events, loads, dispatches the snapshot and replays what
// arrived meanwhile. A buffer overflow during the load schedules another.
func (l *Listener) load(ctx context.Context) (snapshot.Result, error) {
	l.mu.Lock()
	l.ready = false
	l.mu.Unlock()

	started := time.Now()
	res, err := l.loader.Load(ctx, l.cfg.UserID)
	if err != nil {
		l.metrics.ObserveSnapshot("error", time.Since(started))
		return res, err
	}
	l.metrics.ObserveSnapshot("ok", time.Since(started))

	l.mu.Lock()
	defer l.mu.Unlock()
	l.store.Dispatch(store.SnapshotLoaded{Snapshot: res.Snapshot})
	replay := l.buffer
	l.buffer = nil
	for _, ev := range replay {
		l.dispatch(ev)
	}
	if l.overflow {
		l.overflow = false
		l.RequestResync()
	}
	l.ready = true
	return res, nil
}

func (l *Listener) runSource(ctx context.Context, src feed.Source) {
	retry := newBackoff(l.cfg.ReconnectDelay, l.cfg.ReconnectMaxDelay)
	sink := &sourceSink{l: l, retry: retry}
	for {
		err := src.Run(ctx, sink)
		if ctx.Err() != nil {
			return
		}
		d := retry.delay()
		l.metrics.IncReconnect(src.Name())
		l.log.Warn("Feed source dropped, reconnecting", "source", src.Name(), "error", err, "delay", d)
		select {
		case <-ctx.Done():
			return
		case <-time.After(d):
		}
	}
}

// sourceSink resets its source's backoff when the transport is up.
type sourceSink struct {
	l     *Listener
	retry *backoff
}

func (s *sourceSink) Connected(source string) {
	s.retry.reset()
	s.l.Connected(source)
}
func (s *sourceSink) RowChanged(c feed.RowChange) { s.l.RowChanged(c) }
func (s *sourceSink) Presence(p feed.Presence)    { s.l.Presence(p) }
func (s *sourceSink) Broadcast(b feed.Broadcast)  { s.l.Broadcast(b) }

// Connected requests a snapshot when a source comes back: rows missed while
// it was down are not replayed by any transport.
func (l *Listener) Connected(source string) {
	l.mu.Lock()
	again := l.connected[source]
	l.connected[source] = true
	l.mu.Unlock()
	if again {
		l.log.Info("Feed source reconnected, reloading snapshot", "source", source)
		l.RequestResync()
	}
}

func (l *Listener) RowChanged(c feed.RowChange) {
	ev, err := Classify(c)
	var refetch needsRefetch
	switch {
	case errors.As(err, &refetch):
		l.refetchRow(refetch)
		return
	case err != nil:
		l.ignore("rows", ignoreReason(err), err, "table", c.Table, "type", c.Type)
		return
	}
	l.deliver(ev)
}

func (l *Listener) Presence(p feed.Presence) {
	var ev store.Event
	switch p.Kind {
	case feed.PresenceSync:
		ev = store.PresenceSynced{UserIDs: p.UserIDs}
	case feed.PresenceJoin:
		ev = store.PresenceJoined{UserID: p.UserID}
	case feed.PresenceLeave:
		ev = store.PresenceLeft{UserID: p.UserID, At: p.At}
		l.persistLastSeen(p.UserID, p.At)
	default:
		l.ignore("presence", reasonUnknownType, nil, "kind", p.Kind)
		return
	}
	// Presence is kept across snapshots, so it is never gated.
	l.store.Dispatch(ev)
}

func (l *Listener) Broadcast(b feed.Broadcast) {
	id, ok := testFromHint(b)
	if !ok {
		l.ignore("broadcast", reasonUnknownType, nil, "event", b.Event)
		return
	}
	l.refetchTest(id)
}

func (l *Listener) refetchTest(id string) {
	ctx, cancel := context.WithTimeout(l.runCtx, 10*time.Second)
	defer cancel()
	t, err := l.backend.GetUnitTest(ctx, id)
	if err != nil {
		l.log.Warn("Test refetch failed", "test_id", id, "error", err)
		l.metrics.IncIgnored("broadcast", "refetch_failed")
		return
	}
	l.deliver(store.TestUpserted{Patch: t.AsPatch()})
}

// refetchRow reads back a row whose change was too large for the feed.
// Collections without a single-row read, and failed reads, fall back to a
// full snapshot.
func (l *Listener) refetchRow(r needsRefetch) {
	ctx, cancel := context.WithTimeout(l.runCtx, 10*time.Second)
	defer cancel()
	var (
		ev  store.Event
		err error
	)
	switch r.collection {
	case classroom.CollectionUnitTests:
		var t classroom.UnitTest
		t, err = l.backend.GetUnitTest(ctx, r.id)
		ev = store.TestUpserted{Patch: t.AsPatch()}
	case classroom.CollectionRoundProgress:
		var p classroom.RoundProgress
		p, err = l.backend.GetRoundProgress(ctx, r.id)
		ev = store.ProgressUpserted{Record: p}
	case classroom.CollectionChatMessages:
		var m classroom.ChatMessage
		m, err = l.backend.GetChatMessage(ctx, r.id)
		ev = store.MessageUpserted{Patch: m.AsPatch()}
	default:
		l.log.Info("Truncated row change, reloading snapshot", "collection", r.collection, "id", r.id)
		l.RequestResync()
		return
	}
	if err != nil {
		l.log.Warn("Row refetch failed, reloading snapshot", "collection", r.collection, "id", r.id, "error", err)
		l.metrics.IncIgnored("rows", "refetch_failed")
		l.RequestResync()
		return
	}
	l.deliver(ev)
}

// deliver dispatches ev, or buffers it while no snapshot is in place.
func (l *Listener) deliver(ev store.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ready {
		l.dispatch(ev)
		return
	}
	if l.overflow {
		return
	}
	if len(l.buffer) >= l.cfg.BufferSize {
		l.log.Warn("Pre-snapshot buffer overflowed, dropping it", "size", len(l.buffer))
		l.metrics.IncBufferOverflow()
		l.buffer = nil
		l.overflow = true
		return
	}
	l.buffer = append(l.buffer, ev)
}

func (l *Listener) persistLastSeen(userID string, at time.Time) {
	if userID == "" || at.IsZero() || l.backend == nil {
		return
	}
	ctx, cancel := context.WithTimeout(l.runCtx, 5*time.Second)
	defer cancel()
	if err := l.backend.TouchLastSeen(ctx, userID, at); err != nil {
		l.log.Debug("last_seen write failed", "user_id", userID, "error", err)
	}
}

func (l *Listener) ignore(source, reason string, err error, kv ...interface{}) {
	l.metrics.IncIgnored(source, reason)
	kv = append(kv, "source", source, "reason", reason)
	if err != nil {
		kv = append(kv, "error", err)
	}
	l.log.Debug("Ignoring feed event", kv...)
}
