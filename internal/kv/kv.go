// Package kv defines the ordered-set store abstraction used for all durable
// counter state. The interface mirrors the sorted-set operations of Redis,
// allowing different backends (Redis in production, an in-memory mock in
// tests) to be swapped without changing application code.
package kv

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the store cannot be reached.
var ErrUnavailable = errors.New("store unavailable")

// Reservation describes an atomic admission attempt: count the events inside
// the sliding window, compare against the limits, and insert the new event
// only if both checks pass. QuotaMax == 0 disables the quota check (anonymous
// identities have no lifetime quota).
type Reservation struct {
	WindowKey   string // sorted set holding the sliding-window events
	QuotaKey    string // sorted set holding the lifetime-quota events
	Now         int64  // current time, Unix milliseconds
	WindowStart int64  // Now minus the window size, Unix milliseconds
	MaxRequests int64  // cap on in-window events
	QuotaMax    int64  // cap on quota-set cardinality; 0 = no quota
}

// Deny reasons reported by ReserveSlot.
const (
	DenyNone   = 0 // admitted
	DenyWindow = 1 // sliding-window limit reached
	DenyQuota  = 2 // lifetime quota reached
)

// ReserveResult reports the counter state observed by an admission attempt.
// Counts are as of before the insert, so an admitted request sees the counts
// it was checked against.
type ReserveResult struct {
	Admitted    bool
	WindowCount int64 // in-window events before the insert
	QuotaCount  int64 // quota-set cardinality before the insert
	OldestEvent int64 // oldest in-window event, Unix ms; 0 if the window is empty
	DenyReason  int
}

// Store provides ordered-set operations over a shared key-value store.
// Members are scored by timestamp; all implementations must be safe for
// concurrent use.
type Store interface {
	// Add inserts a member with the given score, replacing any existing score.
	Add(ctx context.Context, key string, score int64, member string) error

	// Remove deletes the given members from the set. Missing members are ignored.
	Remove(ctx context.Context, key string, members ...string) error

	// Members returns all members of the set ordered by ascending score.
	Members(ctx context.Context, key string) ([]string, error)

	// MembersByScore returns the members whose score lies in [min, max],
	// ordered by ascending score.
	MembersByScore(ctx context.Context, key string, min, max int64) ([]string, error)

	// Card returns the number of members in the set.
	Card(ctx context.Context, key string) (int64, error)

	// Keys returns every key matching the glob pattern. Full scan; callers
	// are expected to keep key cardinality bounded.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Delete removes the given keys and their members.
	Delete(ctx context.Context, keys ...string) error

	// ReserveSlot performs the admission check-and-insert as a single atomic
	// operation, so two concurrent admissions for the same identity cannot
	// both pass at the limit boundary. Admission also prunes window members
	// older than WindowStart.
	ReserveSlot(ctx context.Context, res Reservation) (ReserveResult, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying client resources.
	Close() error
}
