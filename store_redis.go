package auth

import (
	"context"
	"encoding/json"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/redis/go-redis/v9"
)

// RedisSessionStore is a redis-backed SessionStore. Records expire with the
// key TTL, so expired sessions vanish without a reaper.
type RedisSessionStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisSessionStore creates a redis-backed session store.
func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{
		client: client,
		prefix: "auth:session:",
		now:    time.Now,
	}
}

func (r *RedisSessionStore) key(id string) string {
	return r.prefix + id
}

// Create implements SessionStore.
func (r *RedisSessionStore) Create(ctx context.Context, rec SessionRecord) error {
	if rec.ID == "" || rec.Principal.ID == "" {
		return goerrors.New("session record missing id or principal", goerrors.CategoryValidation)
	}

	ttl := rec.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return goerrors.New("session record already expired", goerrors.CategoryValidation)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to marshal session record")
	}

	return r.client.Set(ctx, r.key(rec.ID), data, ttl).Err()
}

// Get implements SessionStore.
func (r *RedisSessionStore) Get(ctx context.Context, id string) (*SessionRecord, error) {
	val, err := r.client.Get(ctx, r.key(id)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rec SessionRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to unmarshal session record")
	}

	return &rec, nil
}

// Delete implements SessionStore.
func (r *RedisSessionStore) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, r.key(id)).Err()
}
