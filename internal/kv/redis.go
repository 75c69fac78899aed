package kv

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// reserveScript performs the admission check-and-insert atomically on the
// server. It counts the in-window events, compares against the window limit
// and (when enabled) the quota cardinality, and only inserts when both checks
// pass. Old window members are pruned on admission. Running this as a single
// script closes the race where two concurrent admissions both observe
// count == limit-1 and both insert.
//
// KEYS[1] = window key, KEYS[2] = quota key (same as KEYS[1] when unused)
// ARGV[1] = now (ms), ARGV[2] = window start (ms),
// ARGV[3] = max requests, ARGV[4] = quota max (0 = no quota)
//
// Returns {admitted, windowCount, quotaCount, oldestInWindow, denyReason}.
var reserveScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local windowStart = tonumber(ARGV[2])
local maxRequests = tonumber(ARGV[3])
local quotaMax = tonumber(ARGV[4])

local inWindow = redis.call('ZRANGEBYSCORE', KEYS[1], windowStart, '+inf')
local windowCount = #inWindow
local oldest = 0
if windowCount > 0 then
  oldest = tonumber(inWindow[1])
end

local quotaCount = 0
if quotaMax > 0 then
  quotaCount = redis.call('ZCARD', KEYS[2])
end

if windowCount >= maxRequests then
  return {0, windowCount, quotaCount, oldest, 1}
end
if quotaMax > 0 and quotaCount >= quotaMax then
  return {0, windowCount, quotaCount, oldest, 2}
end

redis.call('ZADD', KEYS[1], now, tostring(now))
if quotaMax > 0 then
  redis.call('ZADD', KEYS[2], now, tostring(now))
end
redis.call('ZREMRANGEBYSCORE', KEYS[1], 0, windowStart - 1)
return {1, windowCount, quotaCount, oldest, 0}
`)

// RedisStore implements Store on a Redis sorted-set backend.
type RedisStore struct {
	client *redis.Client
}

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisStore creates a store backed by the given Redis instance. The
// connection is established lazily; call Ping to verify reachability.
func NewRedisStore(opts RedisOptions) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return &RedisStore{client: client}
}

func (s *RedisStore) Add(ctx context.Context, key string, score int64, member string) error {
	err := s.client.ZAdd(ctx, key, redis.Z{Score: float64(score), Member: member}).Err()
	if err != nil {
		return fmt.Errorf("zadd %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := s.client.ZRem(ctx, key, args...).Err(); err != nil {
		return fmt.Errorf("zrem %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Members(ctx context.Context, key string) ([]string, error) {
	members, err := s.client.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange %s: %w", key, err)
	}
	return members, nil
}

func (s *RedisStore) MembersByScore(ctx context.Context, key string, min, max int64) ([]string, error) {
	members, err := s.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: strconv.FormatInt(min, 10),
		Max: strconv.FormatInt(max, 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("zrangebyscore %s: %w", key, err)
	}
	return members, nil
}

func (s *RedisStore) Card(ctx context.Context, key string) (int64, error) {
	n, err := s.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard %s: %w", key, err)
	}
	return n, nil
}

func (s *RedisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	keys, err := s.client.Keys(ctx, pattern).Result()
	if err != nil {
		return nil, fmt.Errorf("keys %s: %w", pattern, err)
	}
	return keys, nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("del: %w", err)
	}
	return nil
}

func (s *RedisStore) ReserveSlot(ctx context.Context, res Reservation) (ReserveResult, error) {
	quotaKey := res.QuotaKey
	if quotaKey == "" {
		// Scripts must receive every key they touch; pass the window key as a
		// placeholder when no quota set exists.
		quotaKey = res.WindowKey
	}

	raw, err := reserveScript.Run(ctx, s.client,
		[]string{res.WindowKey, quotaKey},
		res.Now, res.WindowStart, res.MaxRequests, res.QuotaMax,
	).Result()
	if err != nil {
		return ReserveResult{}, fmt.Errorf("reserve %s: %w", res.WindowKey, err)
	}

	vals, ok := raw.([]interface{})
	if !ok || len(vals) != 5 {
		return ReserveResult{}, fmt.Errorf("reserve %s: unexpected script reply %T", res.WindowKey, raw)
	}
	nums := make([]int64, 5)
	for i, v := range vals {
		n, ok := v.(int64)
		if !ok {
			return ReserveResult{}, fmt.Errorf("reserve %s: unexpected script reply element %T", res.WindowKey, v)
		}
		nums[i] = n
	}

	return ReserveResult{
		Admitted:    nums[0] == 1,
		WindowCount: nums[1],
		QuotaCount:  nums[2],
		OldestEvent: nums[3],
		DenyReason:  int(nums[4]),
	}, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
