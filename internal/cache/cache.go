// Package cache provides the key/value cache used for upstream responses
// and statistics. Redis is used when configured, otherwise an in-process
// ristretto cache.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

type Cache interface {
	// Get returns ok=false on a miss.
	Get(ctx context.Context, key string) (val []byte, ok bool, err error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeletePrefix(ctx context.Context, prefix string) error
	Close() error
}

type Config struct {
	RedisURL string
	MaxCost  int64
}

// New picks the backend from cfg.
func New(ctx context.Context, cfg Config, log zerolog.Logger) (Cache, error) {
	if cfg.RedisURL != "" {
		c, err := NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		log.Info().Msg("using redis cache")
		return c, nil
	}
	log.Info().Int64("max_cost", cfg.MaxCost).Msg("using in-process cache")
	return NewMemory(cfg.MaxCost)
}

// GetJSON decodes a cached value into dst. ok is false on a miss.
func GetJSON(ctx context.Context, c Cache, key string, dst any) (bool, error) {
	b, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return true, nil
}

func SetJSON(ctx context.Context, c Cache, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cached %s: %w", key, err)
	}
	return c.Set(ctx, key, b, ttl)
}
