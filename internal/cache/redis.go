package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions 描述 Redis 缓存的连接参数。
type RedisOptions struct {
	Address  string
	Password string
	DB       int
	Prefix   string
}

// Redis 将缓存条目保存在 Redis 中，适合多实例共享。
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis 创建 Redis 缓存并检查连通性。
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	if strings.TrimSpace(opts.Address) == "" {
		return nil, errors.New("redis 地址不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接 redis 失败: %w", err)
	}
	prefix := strings.TrimSpace(opts.Prefix)
	if prefix == "" {
		prefix = "oracle:cache"
	}
	return &Redis{client: client, prefix: prefix}, nil
}

// Get 实现 Cache 接口。
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("读取 redis 缓存失败: %w", err)
	}
	return raw, nil
}

// Set 实现 Cache 接口。
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("写入 redis 缓存失败: %w", err)
	}
	return nil
}

// Close 释放 Redis 连接。
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) key(key string) string {
	return r.prefix + ":" + key
}
