package mysql

import (
	"context"
	"database/sql"
	"strings"
	"sync"

	xerrors "Agentic-Oracle/internal/errors"
)

// 聊天消息的角色。
const (
	RoleUser = "user"
	RoleBot  = "bot"
)

const maxMemoryMessages = 4096

// ChatMessage 表示一条问答记录。
type ChatMessage struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Intent    string `json:"intent,omitempty"`
	CreatedAt int64  `json:"createdAt"`
}

// ChatRepository 抽象聊天记录的持久化接口。
type ChatRepository interface {
	Save(ctx context.Context, messages ...ChatMessage) error
	ListByUser(ctx context.Context, userID string, limit int) ([]ChatMessage, error)
	Close() error
}

// MemoryChatRepository 只在进程内保存聊天记录，进程退出即丢失。
type MemoryChatRepository struct {
	mu       sync.RWMutex
	capacity int
	messages []ChatMessage
}

// NewMemoryChatRepository 创建进程内仓库，capacity <= 0 时使用默认上限。
func NewMemoryChatRepository(capacity int) *MemoryChatRepository {
	if capacity <= 0 {
		capacity = maxMemoryMessages
	}
	return &MemoryChatRepository{capacity: capacity}
}

// Save 追加消息，超出上限时丢弃最旧的记录。
func (m *MemoryChatRepository) Save(_ context.Context, messages ...ChatMessage) error {
	if len(messages) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.messages = append(m.messages, messages...)
	if len(m.messages) > m.capacity {
		m.messages = append([]ChatMessage(nil), m.messages[len(m.messages)-m.capacity:]...)
	}
	return nil
}

// ListByUser 返回某个用户最近的 limit 条消息，按时间正序排列。
func (m *MemoryChatRepository) ListByUser(_ context.Context, userID string, limit int) ([]ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	var results []ChatMessage
	for i := len(m.messages) - 1; i >= 0 && len(results) < limit; i-- {
		if m.messages[i].UserID == userID {
			results = append(results, m.messages[i])
		}
	}
	for i, j := 0, len(results)-1; i < j; i, j = i+1, j-1 {
		results[i], results[j] = results[j], results[i]
	}
	return results, nil
}

// Close 清空内存中的记录。
func (m *MemoryChatRepository) Close() error {
	m.mu.Lock()
	m.messages = nil
	m.mu.Unlock()
	return nil
}

// SQLChatRepository 使用 MySQL 存储聊天记录。
type SQLChatRepository struct {
	db *sql.DB
}

// NewSQLChatRepository 创建连接池并执行内置迁移。
func NewSQLChatRepository(ctx context.Context, cfg Config) (*SQLChatRepository, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "")
	}
	repo := &SQLChatRepository{db: db}
	if err := repo.runMigrations(ctx); err != nil {
		db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "")
	}
	return repo, nil
}

const insertChatMessageSQL = `INSERT INTO chat_messages
    (id, user_id, role, content, intent, created_at)
    VALUES (?, ?, ?, ?, ?, ?)`

// Save 在同一个事务中写入多条消息。
func (s *SQLChatRepository) Save(ctx context.Context, messages ...ChatMessage) error {
	if len(messages) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "开启事务失败")
	}
	for _, msg := range messages {
		if _, err := tx.ExecContext(ctx, insertChatMessageSQL,
			msg.ID, msg.UserID, msg.Role, msg.Content, msg.Intent, msg.CreatedAt); err != nil {
			tx.Rollback()
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入聊天记录失败")
		}
	}
	if err := tx.Commit(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "提交事务失败")
	}
	return nil
}

// ListByUser 查询某个用户最近的若干条消息，按时间正序返回。
func (s *SQLChatRepository) ListByUser(ctx context.Context, userID string, limit int) ([]ChatMessage, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "userId 不能为空")
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, user_id, role, content, intent, created_at
    FROM chat_messages WHERE user_id = ? ORDER BY seq DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询聊天记录失败")
	}
	defer rows.Close()

	var messages []ChatMessage
	for rows.Next() {
		var msg ChatMessage
		if err := rows.Scan(&msg.ID, &msg.UserID, &msg.Role, &msg.Content, &msg.Intent, &msg.CreatedAt); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析聊天记录失败")
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历聊天记录失败")
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// Close 关闭底层数据库连接。
func (s *SQLChatRepository) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
