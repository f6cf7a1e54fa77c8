package feed

import (
	"context"
	"sync"
)

// Memory 是固定容量的环形缓冲区，适合单进程或测试场景。
type Memory struct {
	mu       sync.RWMutex
	buf      []Update
	next     int
	size     int
	capacity int
}

// NewMemory 创建内存价格流，capacity <= 0 时使用 256。
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 256
	}
	return &Memory{buf: make([]Update, capacity), capacity: capacity}
}

// Publish 实现 Sink，超过容量时覆盖最旧的记录。
func (m *Memory) Publish(_ context.Context, update Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.buf[m.next] = update
	m.next = (m.next + 1) % m.capacity
	if m.size < m.capacity {
		m.size++
	}
	return nil
}

// Recent 实现 Reader。
func (m *Memory) Recent(_ context.Context, limit int) ([]Update, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > m.size {
		limit = m.size
	}
	out := make([]Update, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (m.next - i + m.capacity) % m.capacity
		out = append(out, m.buf[idx])
	}
	return out, nil
}

// Close 实现 Sink。
func (m *Memory) Close() error { return nil }
