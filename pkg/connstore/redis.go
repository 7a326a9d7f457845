package connstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "clio:connection:"

// Redis is the credential store for multi-instance deployments. Redis key
// TTL replaces the memory store's sweeper.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis creates a Redis-backed credential store.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if client == nil {
		panic("redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl}
}

func redisKey(connectionID string) string {
	return redisKeyPrefix + connectionID
}

// Put stores a credential with the configured TTL.
func (r *Redis) Put(ctx context.Context, connectionID string, creds Credentials) error {
	data, err := json.Marshal(creds)
	if err != nil {
		storeErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("marshal credentials: %w", err)
	}
	if err := r.client.Set(ctx, redisKey(connectionID), data, r.ttl).Err(); err != nil {
		storeErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Get returns the credential or ErrNotFound.
func (r *Redis) Get(ctx context.Context, connectionID string) (Credentials, error) {
	data, err := r.client.Get(ctx, redisKey(connectionID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return Credentials{}, ErrNotFound
		}
		storeErrors.WithLabelValues("get").Inc()
		return Credentials{}, fmt.Errorf("redis get: %w", err)
	}
	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		storeErrors.WithLabelValues("get").Inc()
		return Credentials{}, fmt.Errorf("unmarshal credentials: %w", err)
	}
	return creds, nil
}

// Delete removes a credential. Deleting an unknown id is a no-op.
func (r *Redis) Delete(ctx context.Context, connectionID string) error {
	if err := r.client.Del(ctx, redisKey(connectionID)).Err(); err != nil {
		storeErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
