package redis

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/curbvoice/curbvoice/runtime/convo/session"
)

// releaseScript deletes the lock key only when it still holds the caller's
// token, so an expired lock re-acquired by someone else is never released by
// the previous holder.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`

const (
	// DefaultHoldTTL bounds how long a crashed holder can wedge a session.
	// It must exceed the orchestrator's turn deadline.
	DefaultHoldTTL = 45 * time.Second
	// DefaultRetryInterval is the polling interval while waiting for a held
	// lock.
	DefaultRetryInterval = 25 * time.Millisecond
)

type (
	// LockCmdable captures the subset of the go-redis client used by the
	// locker.
	LockCmdable interface {
		SetNX(ctx context.Context, key string, value any, expiration time.Duration) *goredis.BoolCmd
		Eval(ctx context.Context, script string, keys []string, args ...any) *goredis.Cmd
	}

	// LockerOptions configures the session locker.
	LockerOptions struct {
		Client LockCmdable
		// KeyPrefix namespaces every key, e.g. per deployment.
		KeyPrefix string
		// HoldTTL is the lock expiry. Defaults to DefaultHoldTTL.
		HoldTTL time.Duration
		// RetryInterval is the acquisition polling interval. Defaults to
		// DefaultRetryInterval.
		RetryInterval time.Duration
	}

	// Locker implements session.Locker on Redis.
	Locker struct {
		rdb    LockCmdable
		prefix string
		hold   time.Duration
		retry  time.Duration
	}
)

var _ session.Locker = (*Locker)(nil)

// NewLocker returns a Redis-backed session locker.
func NewLocker(opts LockerOptions) (*Locker, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	hold := opts.HoldTTL
	if hold <= 0 {
		hold = DefaultHoldTTL
	}
	retry := opts.RetryInterval
	if retry <= 0 {
		retry = DefaultRetryInterval
	}
	return &Locker{rdb: opts.Client, prefix: opts.KeyPrefix, hold: hold, retry: retry}, nil
}

// Acquire implements session.Locker. It polls SET NX until the lock is held
// or the context expires.
func (l *Locker) Acquire(ctx context.Context, sessionID string) (func(), error) {
	if sessionID == "" {
		return nil, errors.New("session id is required")
	}
	key := l.prefix + "lock:session:" + sessionID
	token := uuid.NewString()
	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()
	for {
		ok, err := l.rdb.SetNX(ctx, key, token, l.hold).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, session.ErrLockTimeout
			}
			return nil, err
		}
		if ok {
			return l.releaseFunc(key, token), nil
		}
		select {
		case <-ctx.Done():
			return nil, session.ErrLockTimeout
		case <-ticker.C:
		}
	}
}

func (l *Locker) releaseFunc(key, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			// Release runs on a fresh context so a cancelled turn still
			// unlocks the session. Failures are tolerable; the hold TTL
			// cleans up eventually.
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = l.rdb.Eval(ctx, releaseScript, []string{key}, token).Err()
		})
	}
}
