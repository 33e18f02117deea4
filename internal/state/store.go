package state

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilupskalvis/bizstore/internal/persist"
)

// ErrClosed is returned by Dispatch after Close.
var ErrClosed = errors.New("state store is closed")

// Listener is called with a copy of the state after each dispatch.
type Listener func(AppState)

// Store owns the single AppState of a process.
type Store struct {
	mu      sync.Mutex
	state   AppState
	persist *persist.Manager
	logger  *slog.Logger
	env     env
	closed  bool

	subMu   sync.Mutex
	subs    map[int]Listener
	nextSub int
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for created_at stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.env.now = now
		}
	}
}

// WithIDGenerator overrides id generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) {
		if newID != nil {
			s.env.newID = newID
		}
	}
}

// New creates a Store, loading the persisted state when there is a readable
// one and starting empty otherwise.
func New(pm *persist.Manager, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		persist: pm,
		logger:  logger,
		env:     env{now: time.Now, newID: newID},
		subs:    make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.state = s.load()
	return s
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

func (s *Store) load() AppState {
	var loaded AppState
	if !s.persist.Load(persist.StateKey, &loaded) {
		return DefaultState()
	}
	loaded.normalize()
	return loaded
}

// Reload replaces the in-memory state with the persisted one. Used after a
// backup restore. Subscribers are notified.
func (s *Store) Reload() {
	s.mu.Lock()
	s.state = s.load()
	snapshot := s.state.Clone()
	s.mu.Unlock()
	s.notify(snapshot)
}

// Dispatch applies action, persists the result and then notifies
// subscribers. Dispatches are applied and persisted strictly in call order.
// A persistence failure is logged and the new state is kept.
func (s *Store) Dispatch(action Action) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}

	next := s.state.Clone()
	if err := action.apply(&next, s.env); err != nil {
		s.mu.Unlock()
		return err
	}
	s.state = next

	if !s.persist.Save(persist.StateKey, next) {
		s.logger.Warn("state kept in memory only", "action", action.Kind())
	}
	snapshot := next.Clone()
	s.mu.Unlock()

	s.logger.Debug("action dispatched", "action", action.Kind())
	s.notify(snapshot)
	return nil
}

// GetState returns a copy of the current state.
func (s *Store) GetState() AppState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Subscribe registers fn and returns a function that removes it.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) notify(snapshot AppState) {
	s.subMu.Lock()
	listeners := make([]Listener, 0, len(s.subs))
	for id := 0; id < s.nextSub; id++ {
		if fn, ok := s.subs[id]; ok {
			listeners = append(listeners, fn)
		}
	}
	s.subMu.Unlock()

	for _, fn := range listeners {
		fn(snapshot.Clone())
	}
}

// Close detaches every subscriber and rejects further dispatches.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.subMu.Lock()
	s.subs = make(map[int]Listener)
	s.subMu.Unlock()
}
