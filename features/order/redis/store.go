// Package redis provides the Redis-backed order store. Aggregates are stored
// as JSON blobs keyed by order ID; every write resets the TTL so an order
// lives exactly as long as its conversation stays warm.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/curbvoice/curbvoice/runtime/convo/order"
)

type (
	// Cmdable captures the subset of the go-redis client used by the store.
	Cmdable interface {
		Get(ctx context.Context, key string) *goredis.StringCmd
		Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
		Del(ctx context.Context, keys ...string) *goredis.IntCmd
	}

	// Options configures the store.
	Options struct {
		Client Cmdable
		// KeyPrefix namespaces every key, e.g. per deployment.
		KeyPrefix string
	}

	// Store implements order.Store on Redis.
	Store struct {
		rdb    Cmdable
		prefix string
	}
)

var _ order.Store = (*Store)(nil)

// New returns a Redis-backed order store.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	return &Store{rdb: opts.Client, prefix: opts.KeyPrefix}, nil
}

// Get implements order.Store.
func (s *Store) Get(ctx context.Context, orderID string) (order.Aggregate, error) {
	if orderID == "" {
		return order.Aggregate{}, errors.New("order id is required")
	}
	raw, err := s.rdb.Get(ctx, s.key(orderID)).Result()
	if errors.Is(err, goredis.Nil) {
		return order.Aggregate{}, order.ErrNotFound
	}
	if err != nil {
		return order.Aggregate{}, fmt.Errorf("load order %s: %w", orderID, err)
	}
	var agg order.Aggregate
	if err := json.Unmarshal([]byte(raw), &agg); err != nil {
		return order.Aggregate{}, fmt.Errorf("decode order %s: %w", orderID, err)
	}
	return agg, nil
}

// Upsert implements order.Store.
func (s *Store) Upsert(ctx context.Context, agg order.Aggregate, ttl time.Duration) error {
	if agg.ID == "" {
		return errors.New("order id is required")
	}
	if ttl <= 0 {
		ttl = order.DefaultTTL
	}
	raw, err := json.Marshal(agg)
	if err != nil {
		return fmt.Errorf("encode order %s: %w", agg.ID, err)
	}
	if err := s.rdb.Set(ctx, s.key(agg.ID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("store order %s: %w", agg.ID, err)
	}
	return nil
}

// Delete implements order.Store.
func (s *Store) Delete(ctx context.Context, orderID string) error {
	if orderID == "" {
		return errors.New("order id is required")
	}
	return s.rdb.Del(ctx, s.key(orderID)).Err()
}

func (s *Store) key(orderID string) string {
	return s.prefix + "order:" + orderID
}
