package txid

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MemoryReserver keeps reservations in process memory. Like RedisReserver,
// a claim expires after ttl; expired claims are pruned at most once per ttl.
type MemoryReserver struct {
	mu        sync.Mutex
	ttl       time.Duration
	now       func() time.Time
	expires   map[string]time.Time
	nextPrune time.Time
}

// NewMemoryReserver returns a reserver whose claims expire after ttl. A zero
// ttl keeps claims forever.
func NewMemoryReserver(ttl time.Duration) *MemoryReserver {
	return &MemoryReserver{ttl: ttl, now: time.Now, expires: make(map[string]time.Time)}
}

func (m *MemoryReserver) Reserve(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if m.ttl > 0 && !now.Before(m.nextPrune) {
		m.prune(now)
		m.nextPrune = now.Add(m.ttl)
	}
	if exp, ok := m.expires[id]; ok && (m.ttl == 0 || now.Before(exp)) {
		return false, nil
	}
	var exp time.Time
	if m.ttl > 0 {
		exp = now.Add(m.ttl)
	}
	m.expires[id] = exp
	return true, nil
}

func (m *MemoryReserver) prune(now time.Time) {
	for id, exp := range m.expires {
		if !now.Before(exp) {
			delete(m.expires, id)
		}
	}
}

const redisKeyPrefix = "txid:"

// RedisReserver reserves ids with SET NX so every replica shares one namespace.
type RedisReserver struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisReserver returns a reserver whose claims expire after ttl. A zero
// ttl keeps claims forever.
func NewRedisReserver(client redis.Cmdable, ttl time.Duration) *RedisReserver {
	return &RedisReserver{client: client, ttl: ttl}
}

func (r *RedisReserver) Reserve(ctx context.Context, id string) (bool, error) {
	return r.client.SetNX(ctx, redisKeyPrefix+id, time.Now().UnixMilli(), r.ttl).Result()
}
