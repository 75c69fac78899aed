package stats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MOSSV2/morphic/internal/kv"
	"github.com/MOSSV2/morphic/internal/kv/mock"
	"github.com/MOSSV2/morphic/internal/modelusage"
)

func newTestAggregator(t *testing.T, now time.Time) (*Aggregator, *mock.Store) {
	t.Helper()
	store := mock.NewStore()
	tracker := modelusage.New(store, 30*24*time.Hour)
	agg := New(store, tracker)
	agg.now = func() time.Time { return now }
	return agg, store
}

func TestSnapshotCountsAndClassifiesIdentities(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	agg, store := newTestAggregator(t, now)
	ctx := context.Background()

	hourly, quota := kv.AuthenticatedKeys("user-1")
	store.Seed(hourly.String(), now.Add(-30*time.Minute).UnixMilli())
	store.Seed(quota.String(), now.Add(-30*time.Minute).UnixMilli())
	store.Seed(kv.AnonymousKey("client-1").String(), now.Add(-2*time.Hour).UnixMilli())
	store.Seed(kv.AnonymousKey("client-2").String(), now.Add(-3*time.Hour).UnixMilli())

	snap, err := agg.Snapshot(ctx, Range24h)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	if snap.TotalUsers != 3 {
		t.Errorf("TotalUsers = %d, want 3", snap.TotalUsers)
	}
	if snap.UserTypes.Authenticated != 1 {
		t.Errorf("UserTypes.Authenticated = %d, want 1", snap.UserTypes.Authenticated)
	}
	if snap.UserTypes.Anonymous != 2 {
		t.Errorf("UserTypes.Anonymous = %d, want 2", snap.UserTypes.Anonymous)
	}

	// The authenticated event appears in both the hourly and quota sets, so
	// the scan counts it twice: 2 + 1 + 1 = 4.
	if snap.TotalRequests != 4 {
		t.Errorf("TotalRequests = %d, want 4", snap.TotalRequests)
	}
}

func TestSnapshotTotalMatchesHistogram(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	agg, store := newTestAggregator(t, now)
	ctx := context.Background()

	key := kv.AnonymousKey("client-1").String()
	for i := 0; i < 5; i++ {
		store.Seed(key, now.Add(-time.Duration(i)*time.Hour).UnixMilli())
	}
	// One event outside the 24h range must not appear anywhere.
	store.Seed(key, now.Add(-25*time.Hour).UnixMilli())

	snap, err := agg.Snapshot(ctx, Range24h)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	sum := 0
	for _, h := range snap.HourlyRequests {
		sum += h.Count
	}
	if snap.TotalRequests != sum {
		t.Errorf("TotalRequests = %d, histogram sum = %d; must be identical", snap.TotalRequests, sum)
	}
	if snap.TotalRequests != 5 {
		t.Errorf("TotalRequests = %d, want 5", snap.TotalRequests)
	}
}

func TestSnapshotBucketShape(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 30, 0, 0, time.UTC)
	agg, store := newTestAggregator(t, now)
	ctx := context.Background()

	store.Seed(kv.AnonymousKey("c").String(), now.Add(-10*time.Minute).UnixMilli())

	snap, err := agg.Snapshot(ctx, Range24h)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	if len(snap.HourlyRequests) != 24 {
		t.Errorf("got %d hourly buckets, want 24", len(snap.HourlyRequests))
	}
	if len(snap.DailyRequests) != 1 {
		t.Errorf("got %d daily buckets, want 1", len(snap.DailyRequests))
	}

	// Newest first; the current hour holds the event.
	if snap.HourlyRequests[0].Hour != "2026-08-31T12:00:00.000Z" {
		t.Errorf("newest bucket = %q, want 2026-08-31T12:00:00.000Z", snap.HourlyRequests[0].Hour)
	}
	if snap.HourlyRequests[0].Count != 1 {
		t.Errorf("newest bucket count = %d, want 1", snap.HourlyRequests[0].Count)
	}
	for i := 1; i < len(snap.HourlyRequests); i++ {
		if snap.HourlyRequests[i].Hour >= snap.HourlyRequests[i-1].Hour {
			t.Fatalf("hourly buckets not newest-first at index %d", i)
		}
	}
	if snap.DailyRequests[0].Date != "2026-08-31" {
		t.Errorf("daily bucket = %q, want 2026-08-31", snap.DailyRequests[0].Date)
	}
}

func TestSnapshotRangeBucketCounts(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	tests := []struct {
		rng   string
		hours int
		days  int
	}{
		{Range24h, 24, 1},
		{Range7d, 168, 7},
		{Range30d, 720, 30},
		{"yearly", 24, 1}, // unknown ranges fall back to 24h
		{"", 24, 1},
	}

	for _, tt := range tests {
		t.Run(tt.rng, func(t *testing.T) {
			agg, _ := newTestAggregator(t, now)
			snap, err := agg.Snapshot(ctx, tt.rng)
			if err != nil {
				t.Fatalf("Snapshot(%q): %v", tt.rng, err)
			}
			if len(snap.HourlyRequests) != tt.hours {
				t.Errorf("hourly buckets = %d, want %d", len(snap.HourlyRequests), tt.hours)
			}
			if len(snap.DailyRequests) != tt.days {
				t.Errorf("daily buckets = %d, want %d", len(snap.DailyRequests), tt.days)
			}
		})
	}
}

func TestSnapshotIncludesModelRanking(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	agg, store := newTestAggregator(t, now)
	ctx := context.Background()

	modelKey := kv.ModelKey("gpt-4o-mini").String()
	store.Seed(modelKey, now.UnixMilli())
	store.Seed(modelKey, now.Add(-time.Minute).UnixMilli())

	snap, err := agg.Snapshot(ctx, Range24h)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	if len(snap.TopModels) != 1 {
		t.Fatalf("TopModels = %v, want one entry", snap.TopModels)
	}
	if snap.TopModels[0].Model != "gpt-4o-mini" || snap.TopModels[0].Count != 2 {
		t.Errorf("TopModels[0] = %+v, want gpt-4o-mini/2", snap.TopModels[0])
	}

	// Model events must not leak into the request histogram.
	if snap.TotalRequests != 0 {
		t.Errorf("TotalRequests = %d, want 0 (model usage is not a rate-limit event)", snap.TotalRequests)
	}
}

func TestSnapshotSurfacesScanError(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	agg, store := newTestAggregator(t, now)
	store.FailAll = errors.New("connection refused")

	if _, err := agg.Snapshot(context.Background(), Range24h); err == nil {
		t.Fatal("expected error when the store is unavailable")
	}
}
