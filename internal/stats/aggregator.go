// Package stats derives dashboard analytics from the raw event log.
//
// Snapshots are recomputed from scratch on every call by scanning every
// rate-limit key in the store. The cost is proportional to total stored
// events system-wide, which stays small because window pruning and retention
// bound the working set. Nothing here is cached or incrementally maintained.
package stats

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/MOSSV2/morphic/internal/kv"
	"github.com/MOSSV2/morphic/internal/metrics"
	"github.com/MOSSV2/morphic/internal/modelusage"
)

// Supported time ranges. Anything else falls back to DefaultRange.
const (
	Range24h     = "24h"
	Range7d      = "7d"
	Range30d     = "30d"
	DefaultRange = Range24h
)

// HourCount is one hourly histogram bucket. Hour is the bucket's start in
// the dashboard's wire format, e.g. "2026-08-31T14:00:00.000Z".
type HourCount struct {
	Hour  string `json:"hour"`
	Count int    `json:"count"`
}

// DayCount is one daily histogram bucket, keyed "2006-01-02".
type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// UserTypes partitions the distinct identities seen.
type UserTypes struct {
	Authenticated int `json:"authenticated"`
	Anonymous     int `json:"anonymous"`
}

// Snapshot is the derived dashboard view. TotalRequests is the sum of the
// hourly bucket counts, never an independently maintained counter, so the
// total always agrees with the displayed histogram.
type Snapshot struct {
	TotalUsers     int                     `json:"totalUsers"`
	TotalRequests  int                     `json:"totalRequests"`
	HourlyRequests []HourCount             `json:"hourlyRequests"`
	DailyRequests  []DayCount              `json:"dailyRequests"`
	TopModels      []modelusage.ModelCount `json:"topModels"`
	UserTypes      UserTypes               `json:"userTypes"`
}

// Aggregator computes snapshots over the store's full rate-limit keyspace.
type Aggregator struct {
	store  kv.Store
	models *modelusage.Tracker

	// now is replaceable in tests
	now func() time.Time
}

// New creates an aggregator. Model popularity is delegated to the tracker.
func New(store kv.Store, models *modelusage.Tracker) *Aggregator {
	return &Aggregator{
		store:  store,
		models: models,
		now:    time.Now,
	}
}

// Snapshot computes the dashboard view for the given range. A store scan
// failure is returned as an error so operators see the outage instead of an
// empty dashboard; per-key read failures are logged and skipped.
func (a *Aggregator) Snapshot(ctx context.Context, rng string) (*Snapshot, error) {
	start := time.Now()
	defer func() {
		metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
	}()

	now := a.now()
	hours, days := rangeBuckets(rng)
	startTime := now.Add(-time.Duration(hours) * time.Hour).UnixMilli()

	keys, err := a.store.Keys(ctx, kv.RateLimitPattern())
	if err != nil {
		metrics.StoreErrorsTotal.WithLabelValues("stats_scan").Inc()
		return nil, fmt.Errorf("scan rate limit keys: %w", err)
	}

	// Distinct identities, partitioned by kind. ParseKey classifies; keys
	// that fail to parse are ignored rather than miscounted.
	userIDs := make(map[string]struct{})
	authenticated := make(map[string]struct{})
	anonymous := make(map[string]struct{})
	for _, k := range keys {
		parsed, err := kv.ParseKey(k)
		if err != nil {
			slog.Warn("skipping unparsable rate limit key", "key", k, "error", err)
			continue
		}
		switch parsed.Kind {
		case kv.KindAnonymous:
			anonymous[parsed.ID] = struct{}{}
			userIDs[parsed.ID] = struct{}{}
		case kv.KindAuthenticated:
			authenticated[parsed.ID] = struct{}{}
			userIDs[parsed.ID] = struct{}{}
		}
	}

	hourly := makeHourBuckets(now, hours)
	daily := makeDayBuckets(now, days)

	// Full scan: every member of every rate-limit key is an event timestamp.
	for _, k := range keys {
		members, err := a.store.Members(ctx, k)
		if err != nil {
			slog.Warn("could not read events for key", "key", k, "error", err)
			continue
		}
		for _, m := range members {
			ts, err := strconv.ParseInt(m, 10, 64)
			if err != nil {
				continue
			}
			if ts < startTime {
				continue
			}
			ev := time.UnixMilli(ts)
			if _, ok := hourly[hourBucketKey(ev)]; ok {
				hourly[hourBucketKey(ev)]++
			}
			if _, ok := daily[dayBucketKey(ev)]; ok {
				daily[dayBucketKey(ev)]++
			}
		}
	}

	topModels, err := a.models.TopUsage(ctx)
	if err != nil {
		// The ranking is a secondary panel; degrade it to empty rather than
		// failing the whole snapshot.
		slog.Warn("could not compute model usage ranking", "error", err)
		topModels = []modelusage.ModelCount{}
	}

	snap := &Snapshot{
		TotalUsers:     len(userIDs),
		HourlyRequests: sortedHourCounts(hourly),
		DailyRequests:  sortedDayCounts(daily),
		TopModels:      topModels,
		UserTypes: UserTypes{
			Authenticated: len(authenticated),
			Anonymous:     len(anonymous),
		},
	}
	for _, h := range snap.HourlyRequests {
		snap.TotalRequests += h.Count
	}

	return snap, nil
}

// rangeBuckets maps a range name to its hourly and daily bucket counts.
func rangeBuckets(rng string) (hours, days int) {
	switch rng {
	case Range7d:
		return 7 * 24, 7
	case Range30d:
		return 30 * 24, 30
	default:
		return 24, 1
	}
}

func hourBucketKey(t time.Time) string {
	return t.UTC().Format("2006-01-02T15") + ":00:00.000Z"
}

func dayBucketKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func makeHourBuckets(now time.Time, hours int) map[string]int {
	buckets := make(map[string]int, hours)
	for i := hours - 1; i >= 0; i-- {
		buckets[hourBucketKey(now.Add(-time.Duration(i)*time.Hour))] = 0
	}
	return buckets
}

func makeDayBuckets(now time.Time, days int) map[string]int {
	buckets := make(map[string]int, days)
	for i := days - 1; i >= 0; i-- {
		buckets[dayBucketKey(now.Add(-time.Duration(i)*24*time.Hour))] = 0
	}
	return buckets
}

// sortedHourCounts returns the buckets newest first. Bucket keys are ISO
// timestamps, so lexicographic order is chronological order.
func sortedHourCounts(buckets map[string]int) []HourCount {
	out := make([]HourCount, 0, len(buckets))
	for hour, count := range buckets {
		out = append(out, HourCount{Hour: hour, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hour > out[j].Hour })
	return out
}

func sortedDayCounts(buckets map[string]int) []DayCount {
	out := make([]DayCount, 0, len(buckets))
	for date, count := range buckets {
		out = append(out, DayCount{Date: date, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out
}
