// Package ratelimit implements sliding-window admission control and usage
// reporting over an ordered-set store.
//
// Every identity owns independent counters: anonymous clients get a single
// sliding-window set, authenticated users get a sliding-window set plus a
// lifetime-quota set whose cardinality is the quota count. Events are the
// request timestamps themselves (Unix milliseconds), scored by the same
// value, so counts are always computed by filtering on timestamp rather than
// trusting raw set size.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/MOSSV2/morphic/internal/kv"
	"github.com/MOSSV2/morphic/internal/metrics"
)

// DenyReason says which limit rejected a request.
type DenyReason string

const (
	DenyNone   DenyReason = ""
	DenyWindow DenyReason = "rate_limit_exceeded"
	DenyQuota  DenyReason = "quota_exceeded"
)

// failOpenRemaining is the synthetic headroom reported when the store is
// unreachable and requests are admitted unchecked.
const failOpenRemaining = 999

// ErrUnknownPurpose is returned by Reset for an unrecognized purpose.
var ErrUnknownPurpose = errors.New("unknown reset purpose")

// Limit is a windowed request cap.
type Limit struct {
	MaxRequests int
	Window      time.Duration
}

// Limits configures the limiter: per-identity sliding windows plus the
// lifetime quota applied to authenticated users only.
type Limits struct {
	Anonymous     Limit
	Authenticated Limit
	Quota         Limit
}

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed        bool
	Reason         DenyReason // set when denied
	Remaining      int        // window headroom after this decision
	ResetTime      time.Time  // when the window frees a slot
	QuotaApplies   bool       // true for authenticated identities
	QuotaUsed      int
	QuotaRemaining int
}

// UsageReport is the read-only view of an identity's counters.
type UsageReport struct {
	TotalRequests     int       // in-window events
	RemainingRequests int       // window headroom
	ResetTime         time.Time // nominal end of the current window
	QuotaApplies      bool
	QuotaUsed         int
	QuotaRemaining    int
}

// Limiter enforces the sliding-window and lifetime-quota limits. It holds no
// counter state itself; everything durable lives in the store, so any number
// of process replicas can share one limit space.
type Limiter struct {
	store  kv.Store
	limits Limits

	// now is replaceable in tests
	now func() time.Time
}

// New creates a limiter over the given store.
func New(store kv.Store, limits Limits) *Limiter {
	return &Limiter{
		store:  store,
		limits: limits,
		now:    time.Now,
	}
}

// Check decides whether to admit one request for the identity and, if
// admitted, records it. The check-and-insert runs as a single atomic store
// operation, so concurrent requests for the same identity cannot over-admit
// past the cap.
//
// If the store is unreachable the request is admitted with synthetic
// headroom: rate limiting is a cost control, not a security boundary, and a
// store outage must not take the chat feature down with it.
func (l *Limiter) Check(ctx context.Context, identity string, authenticated bool) Decision {
	now := l.now()
	limit := l.limits.Anonymous

	res := kv.Reservation{
		Now:         now.UnixMilli(),
		MaxRequests: int64(limit.MaxRequests),
	}
	if authenticated {
		limit = l.limits.Authenticated
		res.MaxRequests = int64(limit.MaxRequests)
		hourly, quota := kv.AuthenticatedKeys(identity)
		res.WindowKey = hourly.String()
		res.QuotaKey = quota.String()
		res.QuotaMax = int64(l.limits.Quota.MaxRequests)
	} else {
		res.WindowKey = kv.AnonymousKey(identity).String()
	}
	res.WindowStart = now.Add(-limit.Window).UnixMilli()

	out, err := l.store.ReserveSlot(ctx, res)
	if err != nil {
		slog.Error("rate limit check failed, failing open",
			"identity", identity,
			"authenticated", authenticated,
			"error", err,
		)
		metrics.StoreErrorsTotal.WithLabelValues("reserve").Inc()
		metrics.AdmissionsTotal.WithLabelValues("allowed", "fail_open").Inc()
		return Decision{
			Allowed:   true,
			Remaining: failOpenRemaining,
			ResetTime: now.Add(time.Hour),
		}
	}

	d := Decision{
		Allowed:      out.Admitted,
		QuotaApplies: authenticated,
	}
	quotaMax := l.limits.Quota.MaxRequests

	switch {
	case out.Admitted:
		d.Remaining = limit.MaxRequests - int(out.WindowCount) - 1
		d.ResetTime = now.Add(limit.Window)
		if authenticated {
			d.QuotaUsed = int(out.QuotaCount) + 1
			d.QuotaRemaining = quotaMax - int(out.QuotaCount) - 1
		}
		metrics.AdmissionsTotal.WithLabelValues("allowed", "none").Inc()

	case out.DenyReason == kv.DenyQuota:
		d.Reason = DenyQuota
		d.Remaining = max(0, limit.MaxRequests-int(out.WindowCount))
		// No slot ever frees up: signal a reset one quota window out.
		d.ResetTime = now.Add(l.limits.Quota.Window)
		d.QuotaUsed = int(out.QuotaCount)
		d.QuotaRemaining = 0
		metrics.AdmissionsTotal.WithLabelValues("denied", "quota").Inc()

	default:
		d.Reason = DenyWindow
		d.Remaining = 0
		if out.OldestEvent > 0 {
			d.ResetTime = time.UnixMilli(out.OldestEvent).Add(limit.Window)
		} else {
			d.ResetTime = now.Add(limit.Window)
		}
		if authenticated {
			d.QuotaUsed = int(out.QuotaCount)
			d.QuotaRemaining = max(0, quotaMax-int(out.QuotaCount))
		}
		metrics.AdmissionsTotal.WithLabelValues("denied", "window").Inc()
	}

	return d
}

// Usage reports the identity's current counts without mutating anything.
// Safe to poll: no insertion, no pruning. Store failures degrade to a
// zero-usage report rather than an error, matching the admission path's
// availability bias.
func (l *Limiter) Usage(ctx context.Context, identity string, authenticated bool) UsageReport {
	now := l.now()

	if !authenticated {
		limit := l.limits.Anonymous
		count, err := l.windowCount(ctx, kv.AnonymousKey(identity).String(), now.Add(-limit.Window))
		if err != nil {
			return l.degradedReport(now, identity, err)
		}
		return UsageReport{
			TotalRequests:     count,
			RemainingRequests: max(0, limit.MaxRequests-count),
			ResetTime:         now.Add(limit.Window),
		}
	}

	limit := l.limits.Authenticated
	hourly, quota := kv.AuthenticatedKeys(identity)

	count, err := l.windowCount(ctx, hourly.String(), now.Add(-limit.Window))
	if err != nil {
		return l.degradedReport(now, identity, err)
	}
	quotaCount, err := l.store.Card(ctx, quota.String())
	if err != nil {
		return l.degradedReport(now, identity, err)
	}

	quotaMax := l.limits.Quota.MaxRequests
	return UsageReport{
		TotalRequests:     count,
		RemainingRequests: max(0, limit.MaxRequests-count),
		ResetTime:         now.Add(limit.Window),
		QuotaApplies:      true,
		QuotaUsed:         int(quotaCount),
		QuotaRemaining:    max(0, quotaMax-int(quotaCount)),
	}
}

// Reset purposes understood by Reset.
const (
	PurposeAll       = ""
	PurposeHourly    = "hourly"
	PurposeQuota     = "quota"
	PurposeAnonymous = "anonymous"
)

// Reset deletes the identity's counters. With an empty purpose every counter
// for the identity goes (hourly, quota, and anonymous); otherwise only the
// named one. Administrative path: store errors are returned, not absorbed.
func (l *Limiter) Reset(ctx context.Context, identity, purpose string) error {
	hourly, quota := kv.AuthenticatedKeys(identity)

	var keys []string
	switch purpose {
	case PurposeAll:
		keys = []string{hourly.String(), quota.String(), kv.AnonymousKey(identity).String()}
	case PurposeHourly:
		keys = []string{hourly.String()}
	case PurposeQuota:
		keys = []string{quota.String()}
	case PurposeAnonymous:
		keys = []string{kv.AnonymousKey(identity).String()}
	default:
		return fmt.Errorf("%w %q", ErrUnknownPurpose, purpose)
	}

	if err := l.store.Delete(ctx, keys...); err != nil {
		metrics.StoreErrorsTotal.WithLabelValues("delete").Inc()
		return fmt.Errorf("reset %s: %w", identity, err)
	}

	slog.Info("rate limit reset", "identity", identity, "purpose", purpose)
	return nil
}

// CounterState is the raw view of an identity's counters, for the debug
// endpoint.
type CounterState struct {
	Identity      string
	Authenticated bool
	WindowEvents  []time.Time // all events in the window set, expired included
	WindowCount   int         // events inside the current window
	QuotaEvents   []time.Time
	WindowLimit   int
	QuotaLimit    int
}

// DebugState reads everything stored for the identity. Read-only; used by
// the debug endpoint to log counter internals.
func (l *Limiter) DebugState(ctx context.Context, identity string, authenticated bool) (*CounterState, error) {
	now := l.now()
	state := &CounterState{
		Identity:      identity,
		Authenticated: authenticated,
		QuotaLimit:    l.limits.Quota.MaxRequests,
	}

	var windowKey string
	var limit Limit
	if authenticated {
		limit = l.limits.Authenticated
		hourly, quota := kv.AuthenticatedKeys(identity)
		windowKey = hourly.String()

		quotaMembers, err := l.store.Members(ctx, quota.String())
		if err != nil {
			return nil, fmt.Errorf("debug state %s: %w", identity, err)
		}
		state.QuotaEvents = parseEvents(quotaMembers)
	} else {
		limit = l.limits.Anonymous
		windowKey = kv.AnonymousKey(identity).String()
	}
	state.WindowLimit = limit.MaxRequests

	members, err := l.store.Members(ctx, windowKey)
	if err != nil {
		return nil, fmt.Errorf("debug state %s: %w", identity, err)
	}
	state.WindowEvents = parseEvents(members)

	windowStart := now.Add(-limit.Window)
	for _, ev := range state.WindowEvents {
		if !ev.Before(windowStart) {
			state.WindowCount++
		}
	}

	return state, nil
}

// windowCount counts the set's events with timestamp at or after windowStart.
// Members are the timestamps themselves; unparsable members are skipped.
func (l *Limiter) windowCount(ctx context.Context, key string, windowStart time.Time) (int, error) {
	members, err := l.store.Members(ctx, key)
	if err != nil {
		return 0, err
	}
	startMs := windowStart.UnixMilli()
	count := 0
	for _, m := range members {
		ts, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		if ts >= startMs {
			count++
		}
	}
	return count, nil
}

func (l *Limiter) degradedReport(now time.Time, identity string, err error) UsageReport {
	slog.Error("usage report failed, returning degraded report",
		"identity", identity,
		"error", err,
	)
	metrics.StoreErrorsTotal.WithLabelValues("usage").Inc()
	return UsageReport{
		RemainingRequests: failOpenRemaining,
		ResetTime:         now.Add(time.Hour),
	}
}

func parseEvents(members []string) []time.Time {
	events := make([]time.Time, 0, len(members))
	for _, m := range members {
		ts, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		events = append(events, time.UnixMilli(ts))
	}
	return events
}
