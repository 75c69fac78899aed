// Package modelusage tracks per-model request counts for the popularity
// ranking on the stats dashboard.
package modelusage

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/MOSSV2/morphic/internal/kv"
	"github.com/MOSSV2/morphic/internal/metrics"
)

// ModelCount is one entry of the popularity ranking.
type ModelCount struct {
	Model string `json:"model"`
	Count int64  `json:"count"`
}

// Tracker records model usage events in the store. Each model owns an
// append-only set of timestamps; cardinality is the popularity count.
type Tracker struct {
	store     kv.Store
	retention time.Duration

	// now is replaceable in tests
	now func() time.Time
}

// New creates a tracker keeping events for the given retention period.
func New(store kv.Store, retention time.Duration) *Tracker {
	return &Tracker{
		store:     store,
		retention: retention,
		now:       time.Now,
	}
}

// Record inserts one usage event for the model and prunes events older than
// the retention period. Callers on the chat path should log the error and
// move on; a failed usage sample must not fail the request.
func (t *Tracker) Record(ctx context.Context, modelID string) error {
	now := t.now().UnixMilli()
	key := kv.ModelKey(modelID).String()

	if err := t.store.Add(ctx, key, now, strconv.FormatInt(now, 10)); err != nil {
		metrics.StoreErrorsTotal.WithLabelValues("model_record").Inc()
		return fmt.Errorf("record model usage %s: %w", modelID, err)
	}
	metrics.ModelUsageRecordedTotal.Inc()

	// Retention prune is best-effort; the event itself is already stored.
	cutoff := now - t.retention.Milliseconds()
	expired, err := t.store.MembersByScore(ctx, key, 0, cutoff)
	if err != nil {
		return fmt.Errorf("prune model usage %s: %w", modelID, err)
	}
	if len(expired) > 0 {
		if err := t.store.Remove(ctx, key, expired...); err != nil {
			return fmt.Errorf("prune model usage %s: %w", modelID, err)
		}
	}

	return nil
}

// TopUsage returns every model with at least one recorded event, most used
// first. Ties break by model id ascending so the ranking is deterministic.
func (t *Tracker) TopUsage(ctx context.Context) ([]ModelCount, error) {
	keys, err := t.store.Keys(ctx, kv.ModelUsagePattern())
	if err != nil {
		metrics.StoreErrorsTotal.WithLabelValues("model_scan").Inc()
		return nil, fmt.Errorf("scan model usage keys: %w", err)
	}

	stats := make([]ModelCount, 0, len(keys))
	for _, k := range keys {
		parsed, err := kv.ParseKey(k)
		if err != nil || parsed.Kind != kv.KindModel {
			continue
		}
		count, err := t.store.Card(ctx, k)
		if err != nil {
			return nil, fmt.Errorf("count model usage %s: %w", parsed.ID, err)
		}
		if count > 0 {
			stats = append(stats, ModelCount{Model: parsed.ID, Count: count})
		}
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Count != stats[j].Count {
			return stats[i].Count > stats[j].Count
		}
		return stats[i].Model < stats[j].Model
	})

	return stats, nil
}
