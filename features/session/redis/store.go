// Package redis provides the Redis-backed session store and the per-session
// turn lock. Sessions are stored as JSON blobs whose TTL resets on every
// write; the lock is the classic SET NX token lock with a Lua compare-and-del
// release so only the holder can release it.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/curbvoice/curbvoice/runtime/convo/session"
)

type (
	// Cmdable captures the subset of the go-redis client used by the store.
	Cmdable interface {
		Get(ctx context.Context, key string) *goredis.StringCmd
		Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
		Del(ctx context.Context, keys ...string) *goredis.IntCmd
	}

	// StoreOptions configures the session store.
	StoreOptions struct {
		Client Cmdable
		// KeyPrefix namespaces every key, e.g. per deployment.
		KeyPrefix string
	}

	// Store implements session.Store on Redis.
	Store struct {
		rdb    Cmdable
		prefix string
	}
)

var _ session.Store = (*Store)(nil)

// NewStore returns a Redis-backed session store.
func NewStore(opts StoreOptions) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	return &Store{rdb: opts.Client, prefix: opts.KeyPrefix}, nil
}

// Get implements session.Store.
func (s *Store) Get(ctx context.Context, sessionID string) (session.Context, error) {
	if sessionID == "" {
		return session.Context{}, errors.New("session id is required")
	}
	raw, err := s.rdb.Get(ctx, s.key(sessionID)).Result()
	if errors.Is(err, goredis.Nil) {
		return session.Context{}, session.ErrNotFound
	}
	if err != nil {
		return session.Context{}, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	var sc session.Context
	if err := json.Unmarshal([]byte(raw), &sc); err != nil {
		return session.Context{}, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return sc, nil
}

// Put implements session.Store.
func (s *Store) Put(ctx context.Context, sc session.Context, ttl time.Duration) error {
	if sc.SessionID == "" {
		return errors.New("session id is required")
	}
	if ttl <= 0 {
		ttl = session.DefaultTTL
	}
	raw, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sc.SessionID, err)
	}
	if err := s.rdb.Set(ctx, s.key(sc.SessionID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("store session %s: %w", sc.SessionID, err)
	}
	return nil
}

// Delete implements session.Store.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return errors.New("session id is required")
	}
	return s.rdb.Del(ctx, s.key(sessionID)).Err()
}

func (s *Store) key(sessionID string) string {
	return s.prefix + "session:" + sessionID
}
