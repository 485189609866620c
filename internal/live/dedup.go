package live

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"genflow/internal/domain"
)

const defaultDedupTTL = 10 * time.Minute

// DedupSet remembers which (job, terminal state) pairs were already
// announced. Claim reports true only for the first caller.
type DedupSet interface {
	Claim(ctx context.Context, ownerID, jobID string, state domain.State) (bool, error)
}

func dedupKey(ownerID, jobID string, state domain.State) string {
	return ownerID + ":" + jobID + ":" + string(state)
}

// MemoryDedup is a process-local DedupSet. Entries expire after ttl, which
// only needs to outlive the notification window.
type MemoryDedup struct {
	mu        sync.Mutex
	seen      map[string]time.Time
	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func NewMemoryDedup(ttl time.Duration) *MemoryDedup {
	if ttl <= 0 {
		ttl = defaultDedupTTL
	}
	return &MemoryDedup{seen: make(map[string]time.Time), ttl: ttl, now: time.Now}
}

func (d *MemoryDedup) Claim(_ context.Context, ownerID, jobID string, state domain.State) (bool, error) {
	key := dedupKey(ownerID, jobID, state)
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()
	if now.Sub(d.lastSweep) > d.ttl {
		for k, exp := range d.seen {
			if now.After(exp) {
				delete(d.seen, k)
			}
		}
		d.lastSweep = now
	}
	if exp, ok := d.seen[key]; ok && !now.After(exp) {
		return false, nil
	}
	d.seen[key] = now.Add(d.ttl)
	return true, nil
}

type setNXer interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// RedisDedup shares claims between API instances so a user with sessions on
// two replicas is still notified once.
type RedisDedup struct {
	client    setNXer
	ttl       time.Duration
	keyPrefix string
}

func NewRedisDedup(client redis.UniversalClient, ttl time.Duration, keyPrefix string) (*RedisDedup, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return newRedisDedup(client, ttl, keyPrefix), nil
}

func newRedisDedup(client setNXer, ttl time.Duration, keyPrefix string) *RedisDedup {
	if ttl <= 0 {
		ttl = defaultDedupTTL
	}
	if strings.TrimSpace(keyPrefix) == "" {
		keyPrefix = "genflow:notified"
	}
	return &RedisDedup{client: client, ttl: ttl, keyPrefix: keyPrefix}
}

func (d *RedisDedup) Claim(ctx context.Context, ownerID, jobID string, state domain.State) (bool, error) {
	key := d.keyPrefix + ":" + dedupKey(ownerID, jobID, state)
	ok, err := d.client.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim notification %s: %w", key, err)
	}
	return ok, nil
}
