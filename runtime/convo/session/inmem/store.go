// Package inmem provides in-memory implementations of session.Store and
// session.Locker for tests and local development. Production deployments use
// features/session/redis.
package inmem

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/curbvoice/curbvoice/runtime/convo/clock"
	"github.com/curbvoice/curbvoice/runtime/convo/session"
)

type entry struct {
	sc        session.Context
	expiresAt time.Time
}

// Store is an in-memory session.Store with lazy TTL expiry.
type Store struct {
	mu      sync.RWMutex
	clock   clock.Clock
	entries map[string]entry
}

// NewStore returns an empty Store using the given clock.
func NewStore(clk clock.Clock) (*Store, error) {
	if clk == nil {
		return nil, errors.New("session inmem: clock is required")
	}
	return &Store{clock: clk, entries: make(map[string]entry)}, nil
}

// Get implements session.Store.
func (s *Store) Get(_ context.Context, sessionID string) (session.Context, error) {
	if sessionID == "" {
		return session.Context{}, errors.New("session inmem: session id is required")
	}
	s.mu.RLock()
	e, ok := s.entries[sessionID]
	s.mu.RUnlock()
	if !ok || s.clock.Now().After(e.expiresAt) {
		return session.Context{}, session.ErrNotFound
	}
	return cloneContext(e.sc), nil
}

// Put implements session.Store.
func (s *Store) Put(_ context.Context, sc session.Context, ttl time.Duration) error {
	if sc.SessionID == "" {
		return errors.New("session inmem: session id is required")
	}
	if ttl <= 0 {
		ttl = session.DefaultTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[sc.SessionID] = entry{sc: cloneContext(sc), expiresAt: s.clock.Now().Add(ttl)}
	return nil
}

// Delete implements session.Store.
func (s *Store) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, sessionID)
	return nil
}

func cloneContext(in session.Context) session.Context {
	out := in
	out.History = append([]session.Turn(nil), in.History...)
	return out
}
