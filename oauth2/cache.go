package oauth2

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// IntrospectionCache stores introspection results keyed by token hash.
type IntrospectionCache interface {
	Get(ctx context.Context, key string) (*Introspection, bool)
	Set(ctx context.Context, key string, result *Introspection, ttl time.Duration)
}

type memoryCacheEntry struct {
	result    *Introspection
	expiresAt time.Time
}

// MemoryIntrospectionCache is a map-backed cache with lazy expiry.
type MemoryIntrospectionCache struct {
	mu      sync.RWMutex
	entries map[string]memoryCacheEntry
	now     func() time.Time
}

// NewMemoryIntrospectionCache creates an in-memory introspection cache.
func NewMemoryIntrospectionCache() *MemoryIntrospectionCache {
	return &MemoryIntrospectionCache{
		entries: map[string]memoryCacheEntry{},
		now:     time.Now,
	}
}

// Get implements IntrospectionCache.
func (m *MemoryIntrospectionCache) Get(_ context.Context, key string) (*Introspection, bool) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		return nil, false
	}

	if m.now().After(entry.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, false
	}

	return entry.result, true
}

// Set implements IntrospectionCache.
func (m *MemoryIntrospectionCache) Set(_ context.Context, key string, result *Introspection, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryCacheEntry{
		result:    result,
		expiresAt: m.now().Add(ttl),
	}
}

// RedisIntrospectionCache shares introspection results across instances.
type RedisIntrospectionCache struct {
	client *redis.Client
}

// NewRedisIntrospectionCache creates a Redis-backed introspection cache.
func NewRedisIntrospectionCache(client *redis.Client) *RedisIntrospectionCache {
	return &RedisIntrospectionCache{client: client}
}

// Get implements IntrospectionCache. Transport or decode failures behave as
// cache misses.
func (r *RedisIntrospectionCache) Get(ctx context.Context, key string) (*Introspection, bool) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}

	var result Introspection
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, false
	}

	return &result, true
}

// Set implements IntrospectionCache.
func (r *RedisIntrospectionCache) Set(ctx context.Context, key string, result *Introspection, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		return
	}

	r.client.Set(ctx, key, data, ttl)
}
