package securestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis is a Store backed by a Redis hash, for kiosk deployments where several
// dispenser terminals share one signed-in operator session.
// All keys live in a single hash named by the namespace.
type Redis struct {
	client *redis.Client
	hash   string
}

// NewRedis returns a Store keeping its values in the hash "securestore:<namespace>".
func NewRedis(client *redis.Client, namespace string) *Redis {
	return &Redis{client: client, hash: "securestore:" + namespace}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := r.client.HGet(ctx, r.hash, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("securestore: redis get: %w", err)
	}
	return v, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.HSet(ctx, r.hash, key, value).Err(); err != nil {
		return fmt.Errorf("securestore: redis set: %w", err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.HDel(ctx, r.hash, key).Err(); err != nil {
		return fmt.Errorf("securestore: redis delete: %w", err)
	}
	return nil
}
