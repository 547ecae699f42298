package inmem

import (
	"context"
	"sync"

	"github.com/curbvoice/curbvoice/runtime/convo/session"
)

// Locker is an in-process session.Locker. Each session ID owns one mutex-like
// slot; Acquire waits for the slot or the context deadline, whichever comes
// first.
type Locker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewLocker returns an empty Locker.
func NewLocker() *Locker {
	return &Locker{slots: make(map[string]chan struct{})}
}

// Acquire implements session.Locker.
func (l *Locker) Acquire(ctx context.Context, sessionID string) (func(), error) {
	slot := l.slot(sessionID)
	select {
	case slot <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() { <-slot })
		}, nil
	case <-ctx.Done():
		return nil, session.ErrLockTimeout
	}
}

func (l *Locker) slot(sessionID string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.slots[sessionID]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[sessionID] = slot
	}
	return slot
}
