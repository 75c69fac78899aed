// Package mock provides an in-memory implementation of kv.Store for testing.
package mock

import (
	"context"
	"path"
	"sort"
	"strconv"
	"sync"

	"github.com/MOSSV2/morphic/internal/kv"
)

type entry struct {
	member string
	score  int64
}

// Store is a mock implementation of kv.Store backed by in-memory sorted sets.
// It provides configurable error injection for tests.
//
// IMPORTANT: Error injection fields should be set BEFORE any concurrent
// operations begin. They are not protected by the mutex.
type Store struct {
	mu   sync.RWMutex
	sets map[string]map[string]int64 // key -> member -> score

	// Error injection for testing
	// NOTE: Set these BEFORE concurrent access begins
	FailAll      error // returned by every operation when set
	AddError     error
	RemoveError  error
	MembersError error
	CardError    error
	KeysError    error
	DeleteError  error
	ReserveError error
	PingError    error
}

// NewStore creates an empty mock store.
func NewStore() *Store {
	return &Store{sets: make(map[string]map[string]int64)}
}

func (s *Store) Add(ctx context.Context, key string, score int64, member string) error {
	if err := firstErr(s.FailAll, s.AddError); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.add(key, score, member)
	return nil
}

func (s *Store) Remove(ctx context.Context, key string, members ...string) error {
	if err := firstErr(s.FailAll, s.RemoveError); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.sets[key]
	for _, m := range members {
		delete(set, m)
	}
	if len(set) == 0 {
		delete(s.sets, key)
	}
	return nil
}

func (s *Store) Members(ctx context.Context, key string) ([]string, error) {
	if err := firstErr(s.FailAll, s.MembersError); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return membersOf(s.sorted(key)), nil
}

func (s *Store) MembersByScore(ctx context.Context, key string, min, max int64) ([]string, error) {
	if err := firstErr(s.FailAll, s.MembersError); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, e := range s.sorted(key) {
		if e.score >= min && e.score <= max {
			out = append(out, e.member)
		}
	}
	return out, nil
}

func (s *Store) Card(ctx context.Context, key string) (int64, error) {
	if err := firstErr(s.FailAll, s.CardError); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.sets[key])), nil
}

func (s *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	if err := firstErr(s.FailAll, s.KeysError); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.sets {
		if ok, _ := path.Match(pattern, k); ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if err := firstErr(s.FailAll, s.DeleteError); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.sets, k)
	}
	return nil
}

// ReserveSlot mirrors the Redis Lua script: the whole check-and-insert runs
// under one lock, so concurrent admissions serialize.
func (s *Store) ReserveSlot(ctx context.Context, res kv.Reservation) (kv.ReserveResult, error) {
	if err := firstErr(s.FailAll, s.ReserveError); err != nil {
		return kv.ReserveResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var windowCount, oldest int64
	var expired []string
	for _, e := range s.sorted(res.WindowKey) {
		if e.score >= res.WindowStart {
			if windowCount == 0 {
				oldest = e.score
			}
			windowCount++
		} else {
			expired = append(expired, e.member)
		}
	}

	var quotaCount int64
	if res.QuotaMax > 0 {
		quotaCount = int64(len(s.sets[res.QuotaKey]))
	}

	out := kv.ReserveResult{
		WindowCount: windowCount,
		QuotaCount:  quotaCount,
		OldestEvent: oldest,
	}

	if windowCount >= res.MaxRequests {
		out.DenyReason = kv.DenyWindow
		return out, nil
	}
	if res.QuotaMax > 0 && quotaCount >= res.QuotaMax {
		out.DenyReason = kv.DenyQuota
		return out, nil
	}

	member := strconv.FormatInt(res.Now, 10)
	s.add(res.WindowKey, res.Now, member)
	if res.QuotaMax > 0 {
		s.add(res.QuotaKey, res.Now, member)
	}
	set := s.sets[res.WindowKey]
	for _, m := range expired {
		delete(set, m)
	}

	out.Admitted = true
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return firstErr(s.FailAll, s.PingError)
}

func (s *Store) Close() error { return nil }

// Seed inserts a member without going through the reservation path.
// Test helper for constructing prior history.
func (s *Store) Seed(key string, score int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.add(key, score, strconv.FormatInt(score, 10))
}

// add assumes the caller holds the lock.
func (s *Store) add(key string, score int64, member string) {
	set, ok := s.sets[key]
	if !ok {
		set = make(map[string]int64)
		s.sets[key] = set
	}
	set[member] = score
}

// sorted returns the set's entries by ascending score, ties by member.
// Assumes the caller holds at least a read lock.
func (s *Store) sorted(key string) []entry {
	set := s.sets[key]
	entries := make([]entry, 0, len(set))
	for m, sc := range set {
		entries = append(entries, entry{member: m, score: sc})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score < entries[j].score
		}
		return entries[i].member < entries[j].member
	})
	return entries
}

func membersOf(entries []entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.member
	}
	return out
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
