// Package feed fans out published oracle prices so the query responder and
// dashboards can show recent submissions without reading the chain.
package feed

import (
	"context"
	"errors"
	"time"

	xerrors "Agentic-Oracle/internal/errors"
)

// Update 描述一次成功提交到链上的价格。
type Update struct {
	Symbol      string    `json:"symbol"`
	Price       string    `json:"price"`
	Amount      string    `json:"amount"`
	Sources     []string  `json:"sources,omitempty"`
	TxHash      string    `json:"txHash"`
	Agent       string    `json:"agent"`
	PublishedAt time.Time `json:"publishedAt"`
}

// Sink 负责投递价格更新。
type Sink interface {
	Publish(ctx context.Context, update Update) error
	Close() error
}

// Reader 返回最近的价格更新，最新的排在最前。
type Reader interface {
	Recent(ctx context.Context, limit int) ([]Update, error)
}

// ErrUnsupported 表示驱动不支持读取历史。
var ErrUnsupported = errors.New("feed: driver does not support reading")

// Nop 丢弃所有更新。
type Nop struct{}

// Publish 实现 Sink。
func (Nop) Publish(context.Context, Update) error { return nil }

// Close 实现 Sink。
func (Nop) Close() error { return nil }

// Recent 实现 Reader。
func (Nop) Recent(context.Context, int) ([]Update, error) { return nil, nil }

// Detached 是收不到发布器更新的读取端。memory 驱动只在单个进程内可见，
// 独立运行的 oracled 用它明确报告价格历史不可用，而不是返回空列表。
type Detached struct {
	Driver string
}

// NewDetached 为指定驱动创建 Detached 读取端。
func NewDetached(driver string) Detached {
	if driver == "" {
		driver = "memory"
	}
	return Detached{Driver: driver}
}

// Recent 实现 Reader，总是返回 INITIALIZATION_FAILURE。
func (d Detached) Recent(context.Context, int) ([]Update, error) {
	return nil, xerrors.New(xerrors.CodeInitializationFailure,
		"价格流驱动 "+d.Driver+" 无法跨进程读取发布器的更新，请改用 redis 或 rabbitmq",
		xerrors.WithMetadata("driver", d.Driver))
}
