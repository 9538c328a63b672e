package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/flowkernel/kernel/internal/kernelerr"
)

const redisKeyPrefix = "flowkernel:checkpoint:"

// RedisStore persists checkpoints as JSON values in Redis (or a
// Redis-protocol-compatible store such as DragonflyDB), keyed by
// workflow id, for multi-process deployments that need a shared
// checkpoint backend.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to a Redis instance at url (redis://...).
func NewRedisStore(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	return &RedisStore{client: client}, nil
}

func redisKey(id string) string { return redisKeyPrefix + id }

func (r *RedisStore) Save(ctx context.Context, id string, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal checkpoint envelope: %w", err)
	}
	return r.client.Set(ctx, redisKey(id), data, 0).Err()
}

func (r *RedisStore) Load(ctx context.Context, id string) (Envelope, error) {
	data, err := r.client.Get(ctx, redisKey(id)).Bytes()
	if err == redis.Nil {
		return Envelope{}, kernelerr.New(kernelerr.NotFound, "no checkpoint for workflow %q", id)
	}
	if err != nil {
		return Envelope{}, err
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal checkpoint envelope: %w", err)
	}
	return env, nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, redisKey(id)).Err()
}

func (r *RedisStore) List(ctx context.Context) ([]string, error) {
	keys, err := r.client.Keys(ctx, redisKeyPrefix+"*").Result()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k[len(redisKeyPrefix):])
	}
	return out, nil
}

// Close releases the underlying Redis connection.
func (r *RedisStore) Close() error { return r.client.Close() }
