// Package cache provides a small byte-oriented response cache with an
// in-memory TTL driver and a Redis driver.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMiss 表示缓存未命中或已过期。
var ErrMiss = errors.New("cache: key not found")

// Cache 定义缓存驱动需要实现的操作。
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

// Remember 先读缓存，未命中时调用 load 并写回。写缓存失败不会影响返回值。
func Remember[T any](ctx context.Context, c Cache, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	var value T
	if c == nil || ttl <= 0 {
		return load(ctx)
	}

	if raw, err := c.Get(ctx, key); err == nil {
		if jsonErr := json.Unmarshal(raw, &value); jsonErr == nil {
			return value, nil
		}
	}

	value, err := load(ctx)
	if err != nil {
		return value, err
	}
	if raw, err := json.Marshal(value); err == nil {
		_ = c.Set(ctx, key, raw, ttl)
	}
	return value, nil
}

// Key 拼接带命名空间的缓存键。
func Key(namespace string, parts ...any) string {
	key := namespace
	for _, p := range parts {
		key += fmt.Sprintf(":%v", p)
	}
	return key
}
