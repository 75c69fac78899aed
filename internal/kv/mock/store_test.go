package mock

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/MOSSV2/morphic/internal/kv"
)

func TestAddAndMembers(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	// Insert out of order; Members must come back score-ascending.
	for _, score := range []int64{300, 100, 200} {
		if err := s.Add(ctx, "k", score, strconv.FormatInt(score, 10)); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	members, err := s.Members(ctx, "k")
	if err != nil {
		t.Fatalf("Members: %v", err)
	}
	want := []string{"100", "200", "300"}
	if len(members) != len(want) {
		t.Fatalf("got %d members, want %d", len(members), len(want))
	}
	for i := range want {
		if members[i] != want[i] {
			t.Errorf("members[%d] = %q, want %q", i, members[i], want[i])
		}
	}
}

func TestMembersByScore(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	for _, score := range []int64{100, 200, 300, 400} {
		s.Seed("k", score)
	}

	members, err := s.MembersByScore(ctx, "k", 150, 350)
	if err != nil {
		t.Fatalf("MembersByScore: %v", err)
	}
	if len(members) != 2 || members[0] != "200" || members[1] != "300" {
		t.Errorf("MembersByScore = %v, want [200 300]", members)
	}
}

func TestCardAndDelete(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	s.Seed("a", 1)
	s.Seed("a", 2)
	s.Seed("b", 1)

	if n, _ := s.Card(ctx, "a"); n != 2 {
		t.Errorf("Card(a) = %d, want 2", n)
	}

	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n, _ := s.Card(ctx, "a"); n != 0 {
		t.Errorf("Card(a) after delete = %d, want 0", n)
	}
	if n, _ := s.Card(ctx, "b"); n != 1 {
		t.Errorf("Card(b) = %d, want 1", n)
	}
}

func TestKeysPattern(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	s.Seed("rate_limit:u1:hourly", 1)
	s.Seed("rate_limit:anonymous:c1", 1)
	s.Seed("model_usage:gpt-4o-mini", 1)

	keys, err := s.Keys(ctx, "rate_limit:*")
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("got %d rate_limit keys, want 2: %v", len(keys), keys)
	}
	for _, k := range keys {
		if k == "model_usage:gpt-4o-mini" {
			t.Error("model usage key matched rate_limit pattern")
		}
	}
}

func TestReserveSlotAdmitsAndPrunes(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	// Two expired events and one in-window event.
	s.Seed("w", 100)
	s.Seed("w", 200)
	s.Seed("w", 5000)

	out, err := s.ReserveSlot(ctx, kv.Reservation{
		WindowKey:   "w",
		Now:         6000,
		WindowStart: 1000,
		MaxRequests: 10,
	})
	if err != nil {
		t.Fatalf("ReserveSlot: %v", err)
	}
	if !out.Admitted {
		t.Fatal("expected admission")
	}
	if out.WindowCount != 1 {
		t.Errorf("WindowCount = %d, want 1", out.WindowCount)
	}
	if out.OldestEvent != 5000 {
		t.Errorf("OldestEvent = %d, want 5000", out.OldestEvent)
	}

	// Expired events pruned, new event inserted.
	members, _ := s.Members(ctx, "w")
	if len(members) != 2 {
		t.Errorf("got %d members after prune, want 2: %v", len(members), members)
	}
}

func TestReserveSlotDeniesAtWindowLimit(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	for i := int64(0); i < 3; i++ {
		s.Seed("w", 1000+i)
	}

	out, err := s.ReserveSlot(ctx, kv.Reservation{
		WindowKey:   "w",
		Now:         2000,
		WindowStart: 500,
		MaxRequests: 3,
	})
	if err != nil {
		t.Fatalf("ReserveSlot: %v", err)
	}
	if out.Admitted {
		t.Fatal("expected denial")
	}
	if out.DenyReason != kv.DenyWindow {
		t.Errorf("DenyReason = %d, want DenyWindow", out.DenyReason)
	}

	// Denials must not write.
	if n, _ := s.Card(ctx, "w"); n != 3 {
		t.Errorf("Card = %d after denial, want 3", n)
	}
}

func TestReserveSlotDeniesAtQuota(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	for i := int64(0); i < 5; i++ {
		s.Seed("q", 1000+i)
	}

	out, err := s.ReserveSlot(ctx, kv.Reservation{
		WindowKey:   "w",
		QuotaKey:    "q",
		Now:         2000,
		WindowStart: 500,
		MaxRequests: 10,
		QuotaMax:    5,
	})
	if err != nil {
		t.Fatalf("ReserveSlot: %v", err)
	}
	if out.Admitted {
		t.Fatal("expected denial")
	}
	if out.DenyReason != kv.DenyQuota {
		t.Errorf("DenyReason = %d, want DenyQuota", out.DenyReason)
	}
}

func TestReserveSlotAtomicUnderConcurrency(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	const limit = 10
	const attempts = 100

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := s.ReserveSlot(ctx, kv.Reservation{
				WindowKey:   "w",
				Now:         int64(10000 + i),
				WindowStart: 1,
				MaxRequests: limit,
			})
			if err != nil {
				t.Errorf("ReserveSlot: %v", err)
				return
			}
			if out.Admitted {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if admitted != limit {
		t.Errorf("admitted %d concurrent requests, want exactly %d", admitted, limit)
	}
}

func TestErrorInjection(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	boom := errors.New("boom")

	s.FailAll = boom
	if err := s.Add(ctx, "k", 1, "1"); !errors.Is(err, boom) {
		t.Errorf("Add error = %v, want injected error", err)
	}
	if _, err := s.ReserveSlot(ctx, kv.Reservation{WindowKey: "k", MaxRequests: 1}); !errors.Is(err, boom) {
		t.Errorf("ReserveSlot error = %v, want injected error", err)
	}
	if err := s.Ping(ctx); !errors.Is(err, boom) {
		t.Errorf("Ping error = %v, want injected error", err)
	}
}
