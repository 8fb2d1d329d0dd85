package store

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/yungbote/classsync/internal/platform/logger"
)

// Change is delivered to subscribers after a dispatch moved the state.
type Change struct {
	Prev  *State
	Next  *State
	Event Event
}

// Observer sees every dispatch, including the ones that changed nothing.
type Observer interface {
	Reduced(kind string, changed bool)
}

// Store owns the current State. Dispatch runs one event at a time to
// completion; State may be called from any goroutine.
type Store struct {
	log      *logger.Logger
	observer Observer

	mu    sync.Mutex
	state atomic.Pointer[State]

	subsMu sync.RWMutex
	subs   map[uuid.UUID]func(Change)
}

type Option func(*Store)

func WithObserver(o Observer) Option {
	return func(s *Store) { s.observer = o }
}

func New(log *logger.Logger, opts ...Option) *Store {
	if log == nil {
		log = logger.Nop()
	}
	s := &Store{
		log:  log.With("component", "Store"),
		subs: map[uuid.UUID]func(Change){},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.state.Store(Empty())
	return s
}

func (s *Store) State() *State { return s.state.Load() }

// Dispatch reduces ev into the current state and returns the result.
// Subscribers run synchronously, in dispatch order, and must not call
// Dispatch themselves.
func (s *Store) Dispatch(ev Event) *State {
	if ev == nil {
		return s.State()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.state.Load()
	next := Reduce(prev, ev)
	changed := next != prev
	if s.observer != nil {
		s.observer.Reduced(ev.Kind(), changed)
	}
	if !changed {
		return prev
	}
	s.state.Store(next)
	if _, ok := ev.(SnapshotLoaded); ok {
		s.log.Info("Snapshot applied",
			"version", next.Version,
			"units", next.Units.Len(),
			"users", next.Users.Len(),
			"degraded", next.Degraded,
		)
	}

	s.subsMu.RLock()
	subs := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subsMu.RUnlock()
	c := Change{Prev: prev, Next: next, Event: ev}
	for _, fn := range subs {
		fn(c)
	}
	return next
}

// Subscribe registers fn for every effective change. The returned func
// removes it.
func (s *Store) Subscribe(fn func(Change)) func() {
	id := uuid.New()
	s.subsMu.Lock()
	s.subs[id] = fn
	s.subsMu.Unlock()
	return func() {
		s.subsMu.Lock()
		delete(s.subs, id)
		s.subsMu.Unlock()
	}
}
