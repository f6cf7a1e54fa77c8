package cache

import (
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	value    []byte
	expireAt time.Time
}

// Memory 是进程内的 TTL 缓存，超过容量时淘汰最早过期的条目。
type Memory struct {
	mu      sync.Mutex
	items   map[string]memoryItem
	maxSize int
	now     func() time.Time
}

// NewMemory 创建内存缓存。maxSize <= 0 时使用 1024。
func NewMemory(maxSize int) *Memory {
	if maxSize <= 0 {
		maxSize = 1024
	}
	return &Memory{
		items:   make(map[string]memoryItem),
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Get 实现 Cache 接口。
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[key]
	if !ok {
		return nil, ErrMiss
	}
	if !m.now().Before(item.expireAt) {
		delete(m.items, key)
		return nil, ErrMiss
	}
	out := make([]byte, len(item.value))
	copy(out, item.value)
	return out, nil
}

// Set 实现 Cache 接口。
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.items[key]; !exists && len(m.items) >= m.maxSize {
		m.evictLocked()
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	m.items[key] = memoryItem{value: stored, expireAt: m.now().Add(ttl)}
	return nil
}

// Close 清空缓存。
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string]memoryItem)
	return nil
}

// Len 返回当前条目数，包含尚未清理的过期条目。
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *Memory) evictLocked() {
	now := m.now()
	var (
		oldestKey string
		oldestAt  time.Time
	)
	for key, item := range m.items {
		if !now.Before(item.expireAt) {
			delete(m.items, key)
			continue
		}
		if oldestKey == "" || item.expireAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = item.expireAt
		}
	}
	if len(m.items) >= m.maxSize && oldestKey != "" {
		delete(m.items, oldestKey)
	}
}
