package storage

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisMedium stores the document under one redis key so several app
// instances can share a local fallback. Writers are last-writer-wins.
type RedisMedium struct {
	client *redis.Client
	limit  int64
}

func NewRedisMedium(client *redis.Client, limit int64) *RedisMedium {
	return &RedisMedium{client: client, limit: limit}
}

func (m *RedisMedium) Load(ctx context.Context, key string) (string, bool, error) {
	val, err := m.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (m *RedisMedium) Store(ctx context.Context, key, value string) error {
	if err := checkLimit(m.limit, value); err != nil {
		return err
	}
	return m.client.Set(ctx, key, value, 0).Err()
}

func (m *RedisMedium) Close() error {
	return m.client.Close()
}
