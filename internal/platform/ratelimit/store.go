// Package ratelimit bounds requests per client over a time window.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Result is the outcome of one Allow call.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the whole number of seconds until the window frees up, at
// least one.
func (r Result) RetryAfter(now time.Time) int {
	secs := int(r.ResetAt.Sub(now).Round(time.Second) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// Store counts requests per key.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
}

// pruneAbove is the key count past which idle windows are dropped.
const pruneAbove = 10_000

// MemoryStore keeps a sliding window of request times per key. It is local
// to one process.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string][]time.Time), now: time.Now}
}

func (s *MemoryStore) Allow(_ context.Context, key string, limit int, window time.Duration) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if len(s.windows) > pruneAbove {
		s.prune(now, window)
	}
	times := expire(s.windows[key], now, window)

	if len(times) >= limit {
		s.windows[key] = times
		return Result{Allowed: false, Limit: limit, ResetAt: times[0].Add(window)}, nil
	}
	times = append(times, now)
	s.windows[key] = times
	return Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - len(times),
		ResetAt:   times[0].Add(window),
	}, nil
}

func (s *MemoryStore) prune(now time.Time, window time.Duration) {
	for k, times := range s.windows {
		if len(expire(times, now, window)) == 0 {
			delete(s.windows, k)
		}
	}
}

// expire drops times that fell out of the window ending at now.
func expire(times []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	i := 0
	for i < len(times) && !times[i].After(cutoff) {
		i++
	}
	return times[i:]
}

const redisKeyPrefix = "ratelimit:"

// RedisStore counts requests in fixed windows shared by every replica.
type RedisStore struct {
	client redis.Cmdable
	now    func() time.Time
}

func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func (s *RedisStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	start := s.now().Truncate(window)
	k := fmt.Sprintf("%s%s:%d", redisKeyPrefix, key, start.UnixMilli())

	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.PExpire(ctx, k, window)
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("count request: %w", err)
	}

	count := int(incr.Val())
	res := Result{Allowed: count <= limit, Limit: limit, ResetAt: start.Add(window)}
	if res.Allowed {
		res.Remaining = limit - count
	}
	return res, nil
}
