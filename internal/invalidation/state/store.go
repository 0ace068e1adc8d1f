package state

import (
	"context"
	"errors"
	"time"

	"github.com/l0p7/purgectl/internal/invalidation/cdn"
)

// ErrUnavailable wraps backend failures so callers can tell them apart from
// lost compare-and-set races.
var ErrUnavailable = errors.New("state: store unavailable")

// State is the debounce bookkeeping of one distribution. Revision increases on
// every successful write and is what CompareAndSet compares against.
type State struct {
	LastDispatchAt time.Time  `json:"lastDispatchAt"`
	Pending        *cdn.Batch `json:"pending,omitempty"`
	RetryToken     string     `json:"retryToken,omitempty"`
	// ArmedAt is when the retry identified by RetryToken was claimed.
	ArmedAt  time.Time `json:"armedAt"`
	Revision int64     `json:"revision"`
}

// Idle reports whether no batch is waiting for a retry.
func (s State) Idle() bool { return s.Pending == nil }

// Clone returns a deep copy.
func (s State) Clone() State {
	out := s
	if s.Pending != nil {
		pending := s.Pending.Clone()
		out.Pending = &pending
	}
	return out
}

// Store is a durable key/value store with expiry. Entries written through
// CompareAndSet expire after the store's TTL unless rewritten.
type Store interface {
	// Get returns the state under key; found is false when the key is absent or expired.
	Get(ctx context.Context, key string) (State, bool, error)
	// CompareAndSet writes next when the stored revision equals expected (zero
	// meaning absent). The stored revision becomes expected+1.
	CompareAndSet(ctx context.Context, key string, expected int64, next State) (bool, error)
	Close(ctx context.Context) error
}

// ErrConflict is returned by callers that give up after repeated lost
// compare-and-set races on the same key.
var ErrConflict = errors.New("state: too many concurrent updates")
