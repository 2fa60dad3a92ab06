package rediscache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	Addr      string
	Namespace string
	TTL       time.Duration
}

// Cache is a shared key-presence cache backed by redis. Keys expire after the
// configured TTL. Contains and Add are deliberately separate operations;
// callers accept the window between them.
type Cache struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
}

func New(cfg Config) *Cache {
	return &Cache{
		client:    redis.NewClient(&redis.Options{Addr: cfg.Addr}),
		namespace: cfg.Namespace,
		ttl:       cfg.TTL,
	}
}

func (c *Cache) Contains(ctx context.Context, kind, key string) (bool, error) {
	_, err := c.client.Get(ctx, c.key(kind, key)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get failed: %w", err)
	}
	return true, nil
}

func (c *Cache) Add(ctx context.Context, kind, key string) error {
	if err := c.client.Set(ctx, c.key(kind, key), "1", c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *Cache) Close() error {
	return c.client.Close()
}

func (c *Cache) key(kind, key string) string {
	return fmt.Sprintf("%s:%s:%s", c.namespace, kind, key)
}
