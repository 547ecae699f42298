// Package session defines the conversation session context consumed by the
// turn orchestrator, the store port that persists it, and the per-session
// advisory lock that serializes turns within a session. Production backends
// live in features/session/redis; the inmem subpackage serves tests and local
// development.
package session

import (
	"context"
	"errors"
	"time"
)

// State is the conversation state of the finite-state machine.
type State string

const (
	// StateIdle is the initial state before the customer speaks.
	StateIdle State = "IDLE"
	// StateOrdering indicates the customer is building the order.
	StateOrdering State = "ORDERING"
	// StateThinking indicates the customer asked for time or information.
	StateThinking State = "THINKING"
	// StateClarifying indicates the system asked a disambiguation question.
	StateClarifying State = "CLARIFYING"
	// StateConfirming indicates the order summary was read back.
	StateConfirming State = "CONFIRMING"
	// StateClosing indicates the order is confirmed and being prepared.
	StateClosing State = "CLOSING"
)

// States lists every conversation state, in a stable order.
func States() []State {
	return []State{StateIdle, StateOrdering, StateThinking, StateClarifying, StateConfirming, StateClosing}
}

type (
	// Turn records one customer utterance and the system's reply.
	Turn struct {
		UserInput    string    `json:"user_input"`
		ResponseText string    `json:"response_text"`
		Intent       string    `json:"intent"`
		State        State     `json:"state"`
		Timestamp    time.Time `json:"timestamp"`
	}

	// Context is the persisted conversation session. The orchestrator mutates
	// it at turn end; everything else reads it.
	Context struct {
		SessionID    string `json:"session_id"`
		RestaurantID int64  `json:"restaurant_id"`
		OrderID      string `json:"order_id"`
		State        State  `json:"conversation_state"`
		TurnCounter  int    `json:"turn_counter"`
		History      []Turn `json:"conversation_history"`
		// Expectation optionally names what the next utterance should
		// resolve, e.g. the ambiguous item of a pending clarification.
		Expectation string `json:"expectation,omitempty"`
		// LastMentionedLine is the line ID of the most recently added or
		// modified line, used to resolve references like "remove that".
		LastMentionedLine string    `json:"last_mentioned_line,omitempty"`
		UpdatedAt         time.Time `json:"updated_at"`
	}

	// Store persists session contexts with a per-key TTL.
	Store interface {
		// Get loads a session. Returns ErrNotFound when absent or expired.
		Get(ctx context.Context, sessionID string) (Context, error)
		// Put stores the session and resets its TTL.
		Put(ctx context.Context, sc Context, ttl time.Duration) error
		// Delete removes the session. Deleting an absent key is not an error.
		Delete(ctx context.Context, sessionID string) error
	}

	// Locker serializes turns within one session. Locks are advisory,
	// non-reentrant and expire on their own after the hold deadline so a
	// crashed holder cannot wedge the session.
	Locker interface {
		// Acquire blocks until the session lock is held or the context
		// deadline expires, in which case it returns ErrLockTimeout. The
		// returned release function is idempotent.
		Acquire(ctx context.Context, sessionID string) (release func(), err error)
	}
)

var (
	// ErrNotFound indicates no session exists under the requested ID.
	ErrNotFound = errors.New("session: not found")
	// ErrLockTimeout indicates the per-session lock could not be acquired
	// before the deadline. The turn is retriable.
	ErrLockTimeout = errors.New("session: lock acquisition timed out")
)

// DefaultTTL is the default session lifetime.
const DefaultTTL = 1800 * time.Second

// RecentTurns returns the last n history turns, oldest first.
func (c *Context) RecentTurns(n int) []Turn {
	if n <= 0 || len(c.History) == 0 {
		return nil
	}
	if len(c.History) <= n {
		return c.History
	}
	return c.History[len(c.History)-n:]
}
