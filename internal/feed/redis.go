package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisConfig 描述 Redis 价格流的连接参数。
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Key      string
	Capacity int
}

// Redis 使用 Redis list 保存最近的价格更新（LPUSH + LTRIM）。
type Redis struct {
	client   *redis.Client
	key      string
	capacity int64
}

// NewRedis 创建 Redis 价格流实例。
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	key := cfg.Key
	if key == "" {
		key = "oracle:prices"
	}
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = 256
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return &Redis{client: client, key: key, capacity: int64(capacity)}, nil
}

// Publish 将更新写入列表头部并裁剪到容量上限。
func (r *Redis) Publish(ctx context.Context, update Update) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("序列化价格更新失败: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, r.key, payload)
	pipe.LTrim(ctx, r.key, 0, r.capacity-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("Redis 发布价格失败: %w", err)
	}
	return nil
}

// Recent 实现 Reader。
func (r *Redis) Recent(ctx context.Context, limit int) ([]Update, error) {
	if limit <= 0 || int64(limit) > r.capacity {
		limit = int(r.capacity)
	}
	values, err := r.client.LRange(ctx, r.key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("Redis 读取价格失败: %w", err)
	}
	out := make([]Update, 0, len(values))
	for _, v := range values {
		var update Update
		if err := json.Unmarshal([]byte(v), &update); err != nil {
			continue
		}
		out = append(out, update)
	}
	return out, nil
}

// Close 关闭 Redis 连接。
func (r *Redis) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}
