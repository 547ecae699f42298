// Package inmem provides an in-memory implementation of order.Store with
// per-key TTL. It is intended for tests and local development; production
// deployments use features/order/redis.
package inmem

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/curbvoice/curbvoice/runtime/convo/clock"
	"github.com/curbvoice/curbvoice/runtime/convo/order"
)

type entry struct {
	agg       order.Aggregate
	expiresAt time.Time
}

// Store is an in-memory order.Store. Expiry is evaluated lazily on read
// against the injected clock so tests can advance time deterministically.
type Store struct {
	mu      sync.RWMutex
	clock   clock.Clock
	entries map[string]entry
}

// New returns an empty Store using the given clock.
func New(clk clock.Clock) (*Store, error) {
	if clk == nil {
		return nil, errors.New("order inmem: clock is required")
	}
	return &Store{clock: clk, entries: make(map[string]entry)}, nil
}

// Get implements order.Store.
func (s *Store) Get(_ context.Context, orderID string) (order.Aggregate, error) {
	if orderID == "" {
		return order.Aggregate{}, errors.New("order inmem: order id is required")
	}
	s.mu.RLock()
	e, ok := s.entries[orderID]
	s.mu.RUnlock()
	if !ok || s.clock.Now().After(e.expiresAt) {
		return order.Aggregate{}, order.ErrNotFound
	}
	return e.agg.Clone(), nil
}

// Upsert implements order.Store.
func (s *Store) Upsert(_ context.Context, agg order.Aggregate, ttl time.Duration) error {
	if agg.ID == "" {
		return errors.New("order inmem: order id is required")
	}
	if ttl <= 0 {
		ttl = order.DefaultTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[agg.ID] = entry{agg: agg.Clone(), expiresAt: s.clock.Now().Add(ttl)}
	return nil
}

// Delete implements order.Store.
func (s *Store) Delete(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, orderID)
	return nil
}
