package kv

import (
	"fmt"
	"strings"
)

// Key namespaces. Rate-limit keys and model-usage keys use distinct prefixes
// so a wildcard scan over one namespace never collides with the other.
const (
	rateLimitPrefix  = "rate_limit"
	modelUsagePrefix = "model_usage"
	anonymousLabel   = "anonymous"
)

// KeyKind classifies who (or what) a counter belongs to.
type KeyKind int

const (
	KindAuthenticated KeyKind = iota // per-user counter, hourly or quota
	KindAnonymous                    // per-client sliding window
	KindModel                        // per-model usage counter
)

// Counting purposes for authenticated identities.
const (
	PurposeHourly = "hourly"
	PurposeQuota  = "quota"
)

// Key is the typed form of a store key. It renders to and parses from the
// wire format used in the store:
//
//	rate_limit:<userID>:hourly
//	rate_limit:<userID>:quota
//	rate_limit:anonymous:<clientID>
//	model_usage:<modelID>
type Key struct {
	Kind    KeyKind
	ID      string // user id, anonymous client id, or model id
	Purpose string // PurposeHourly or PurposeQuota; only for KindAuthenticated
}

// String renders the key in its wire format.
func (k Key) String() string {
	switch k.Kind {
	case KindAnonymous:
		return rateLimitPrefix + ":" + anonymousLabel + ":" + k.ID
	case KindModel:
		return modelUsagePrefix + ":" + k.ID
	default:
		return rateLimitPrefix + ":" + k.ID + ":" + k.Purpose
	}
}

// AuthenticatedKeys returns the hourly and quota keys for a user id.
func AuthenticatedKeys(userID string) (hourly, quota Key) {
	hourly = Key{Kind: KindAuthenticated, ID: userID, Purpose: PurposeHourly}
	quota = Key{Kind: KindAuthenticated, ID: userID, Purpose: PurposeQuota}
	return hourly, quota
}

// AnonymousKey returns the sliding-window key for an anonymous client id.
func AnonymousKey(clientID string) Key {
	return Key{Kind: KindAnonymous, ID: clientID}
}

// ModelKey returns the usage-counter key for a model id.
func ModelKey(modelID string) Key {
	return Key{Kind: KindModel, ID: modelID}
}

// RateLimitPattern matches every rate-limit key (hourly, quota, anonymous).
func RateLimitPattern() string { return rateLimitPrefix + ":*" }

// ModelUsagePattern matches every model-usage key.
func ModelUsagePattern() string { return modelUsagePrefix + ":*" }

// ParseKey parses a wire-format key back into its typed form. The analytics
// scan relies on this to classify identities, so the parse must accept
// exactly what String produces.
func ParseKey(s string) (Key, error) {
	if rest, ok := strings.CutPrefix(s, modelUsagePrefix+":"); ok {
		if rest == "" {
			return Key{}, fmt.Errorf("parse key %q: empty model id", s)
		}
		return Key{Kind: KindModel, ID: rest}, nil
	}

	rest, ok := strings.CutPrefix(s, rateLimitPrefix+":")
	if !ok {
		return Key{}, fmt.Errorf("parse key %q: unknown namespace", s)
	}

	if id, ok := strings.CutPrefix(rest, anonymousLabel+":"); ok {
		if id == "" {
			return Key{}, fmt.Errorf("parse key %q: empty client id", s)
		}
		return Key{Kind: KindAnonymous, ID: id}, nil
	}

	// The purpose is the segment after the last colon; user ids never contain
	// colons (uuid or provider-issued ids), so this split is unambiguous.
	idx := strings.LastIndex(rest, ":")
	if idx <= 0 || idx == len(rest)-1 {
		return Key{}, fmt.Errorf("parse key %q: missing purpose", s)
	}
	id, purpose := rest[:idx], rest[idx+1:]
	if purpose != PurposeHourly && purpose != PurposeQuota {
		return Key{}, fmt.Errorf("parse key %q: unknown purpose %q", s, purpose)
	}
	return Key{Kind: KindAuthenticated, ID: id, Purpose: purpose}, nil
}
