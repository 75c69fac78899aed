package modelusage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MOSSV2/morphic/internal/kv"
	"github.com/MOSSV2/morphic/internal/kv/mock"
)

func newTestTracker(t *testing.T) (*Tracker, *mock.Store, *time.Time) {
	t.Helper()
	store := mock.NewStore()
	tr := New(store, 30*24*time.Hour)
	now := time.UnixMilli(0)
	tr.now = func() time.Time { return now }
	return tr, store, &now
}

func TestRecordInsertsEvent(t *testing.T) {
	tr, store, now := newTestTracker(t)
	ctx := context.Background()
	*now = time.UnixMilli(1000)

	if err := tr.Record(ctx, "gpt-4o-mini"); err != nil {
		t.Fatalf("Record: %v", err)
	}

	n, err := store.Card(ctx, kv.ModelKey("gpt-4o-mini").String())
	if err != nil {
		t.Fatalf("Card: %v", err)
	}
	if n != 1 {
		t.Errorf("Card = %d, want 1", n)
	}
}

func TestRecordPrunesOldEvents(t *testing.T) {
	tr, store, now := newTestTracker(t)
	ctx := context.Background()

	key := kv.ModelKey("gpt-4o-mini").String()
	retentionMs := int64(30 * 24 * time.Hour / time.Millisecond)

	// One event past retention, one inside it.
	store.Seed(key, 0)
	store.Seed(key, retentionMs)
	*now = time.UnixMilli(retentionMs + 1000)

	if err := tr.Record(ctx, "gpt-4o-mini"); err != nil {
		t.Fatalf("Record: %v", err)
	}

	n, _ := store.Card(ctx, key)
	if n != 2 {
		t.Errorf("Card = %d after prune, want 2 (expired event removed, fresh + new kept)", n)
	}
}

func TestRecordReturnsStoreError(t *testing.T) {
	tr, store, _ := newTestTracker(t)
	store.FailAll = errors.New("connection refused")

	if err := tr.Record(context.Background(), "gpt-4o-mini"); err == nil {
		t.Fatal("expected error from unavailable store")
	}
}

func TestTopUsageOrdering(t *testing.T) {
	tr, store, _ := newTestTracker(t)
	ctx := context.Background()

	seed := func(model string, count int) {
		key := kv.ModelKey(model).String()
		for i := 0; i < count; i++ {
			store.Seed(key, int64(i))
		}
	}
	seed("gpt-4o-mini", 3)
	seed("claude-sonnet", 5)
	seed("deepseek-r1", 3)

	// Rate-limit keys in the store must not leak into the ranking.
	store.Seed(kv.AnonymousKey("client-1").String(), 1)

	got, err := tr.TopUsage(ctx)
	if err != nil {
		t.Fatalf("TopUsage: %v", err)
	}

	want := []ModelCount{
		{Model: "claude-sonnet", Count: 5},
		{Model: "deepseek-r1", Count: 3}, // ties break by model id ascending
		{Model: "gpt-4o-mini", Count: 3},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d entries, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestTopUsageSkipsEmptyModels(t *testing.T) {
	tr, _, now := newTestTracker(t)
	ctx := context.Background()
	*now = time.UnixMilli(1000)

	if err := tr.Record(ctx, "gpt-4o-mini"); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := tr.TopUsage(ctx)
	if err != nil {
		t.Fatalf("TopUsage: %v", err)
	}
	if len(got) != 1 || got[0].Model != "gpt-4o-mini" || got[0].Count != 1 {
		t.Errorf("TopUsage = %v, want just gpt-4o-mini with count 1", got)
	}
}

func TestTopUsageReturnsScanError(t *testing.T) {
	tr, store, _ := newTestTracker(t)
	store.FailAll = errors.New("connection refused")

	if _, err := tr.TopUsage(context.Background()); err == nil {
		t.Fatal("expected error from unavailable store")
	}
}
