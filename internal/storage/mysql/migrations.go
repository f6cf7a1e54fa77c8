package mysql

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"Agentic-Oracle/deploy/migrations"
	xerrors "Agentic-Oracle/internal/errors"
	"Agentic-Oracle/pkg/logger"
)

var embeddedMigrations fs.FS = migrations.Files

// 聊天记录专用的迁移表，和其它服务共用数据库时互不干扰。
const chatMigrationsTable = "chat_schema_migrations"

const createChatMigrationsSQL = `CREATE TABLE IF NOT EXISTS chat_schema_migrations (
        version INT NOT NULL PRIMARY KEY,
        name VARCHAR(255) NOT NULL,
        checksum CHAR(64) NOT NULL,
        applied_at BIGINT NOT NULL
)`

const (
	selectChatMigrationsSQL = `SELECT version, name, checksum FROM chat_schema_migrations`
	insertChatMigrationSQL  = `INSERT INTO chat_schema_migrations (version, name, checksum, applied_at) VALUES (?, ?, ?, ?)`
)

type chatMigration struct {
	version    int
	name       string
	checksum   string
	statements []string
}

type appliedMigration struct {
	name     string
	checksum string
}

func (s *SQLChatRepository) runMigrations(ctx context.Context) error {
	return migrateChatSchema(ctx, s.db, embeddedMigrations, logger.Named("storage.mysql"))
}

// migrateChatSchema 按版本号顺序执行 chat_messages 的迁移。已执行的迁移若内容被改动，
// 校验和不一致时直接失败，不会静默跳过。
func migrateChatSchema(ctx context.Context, db *sql.DB, files fs.FS, lg *slog.Logger) error {
	pending, err := loadChatMigrations(files)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, createChatMigrationsSQL); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建 "+chatMigrationsTable+" 表失败")
	}

	applied, err := loadAppliedChatMigrations(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range pending {
		if prev, ok := applied[m.version]; ok {
			if prev.checksum != m.checksum {
				return xerrors.New(xerrors.CodeStorageFailure,
					fmt.Sprintf("迁移 %s 已执行过但内容发生变化", m.name),
					xerrors.WithMetadata("applied", prev.name),
					xerrors.WithMetadata("version", strconv.Itoa(m.version)))
			}
			continue
		}
		if err := applyChatMigration(ctx, db, m); err != nil {
			return err
		}
		lg.Info("聊天记录迁移完成", slog.Int("version", m.version), slog.String("name", m.name))
	}
	return nil
}

func loadAppliedChatMigrations(ctx context.Context, db *sql.DB) (map[int]appliedMigration, error) {
	rows, err := db.QueryContext(ctx, selectChatMigrationsSQL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询迁移记录失败")
	}
	defer rows.Close()

	applied := make(map[int]appliedMigration)
	for rows.Next() {
		var (
			version int
			rec     appliedMigration
		)
		if err := rows.Scan(&version, &rec.name, &rec.checksum); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析迁移记录失败")
		}
		applied[version] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历迁移记录失败")
	}
	return applied, nil
}

func applyChatMigration(ctx context.Context, db *sql.DB, m chatMigration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "开启迁移事务失败")
	}

	for _, stmt := range m.statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "执行迁移 "+m.name+" 失败")
		}
	}
	if _, err := tx.ExecContext(ctx, insertChatMigrationSQL, m.version, m.name, m.checksum, time.Now().Unix()); err != nil {
		tx.Rollback()
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "记录迁移版本失败")
	}
	if err := tx.Commit(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "提交迁移事务失败")
	}
	return nil
}

// loadChatMigrations 读取 NNNN_name.sql 形式的文件，版本号重复或文件名不合法都视为错误。
func loadChatMigrations(files fs.FS) ([]chatMigration, error) {
	entries, err := fs.ReadDir(files, ".")
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取迁移目录失败")
	}

	seen := make(map[int]string)
	var list []chatMigration
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".sql" {
			continue
		}
		name := entry.Name()
		version, err := parseMigrationVersion(name)
		if err != nil {
			return nil, err
		}
		if other, dup := seen[version]; dup {
			return nil, xerrors.New(xerrors.CodeStorageFailure, fmt.Sprintf("迁移版本 %d 重复: %s 与 %s", version, other, name))
		}
		seen[version] = name

		content, err := fs.ReadFile(files, name)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取迁移文件 "+name+" 失败")
		}
		statements := splitSQLStatements(string(content))
		if len(statements) == 0 {
			continue
		}
		sum := sha256.Sum256(content)
		list = append(list, chatMigration{
			version:    version,
			name:       name,
			checksum:   hex.EncodeToString(sum[:]),
			statements: statements,
		})
	}

	sort.Slice(list, func(i, j int) bool { return list[i].version < list[j].version })
	return list, nil
}

func splitSQLStatements(content string) []string {
	var statements []string
	for _, stmt := range strings.Split(content, ";") {
		if trimmed := strings.TrimSpace(stmt); trimmed != "" {
			statements = append(statements, trimmed)
		}
	}
	return statements
}

func parseMigrationVersion(name string) (int, error) {
	prefix, _, ok := strings.Cut(name, "_")
	if !ok {
		return 0, xerrors.New(xerrors.CodeStorageFailure, "迁移文件名缺少版本前缀: "+name)
	}
	version, err := strconv.Atoi(prefix)
	if err != nil || version <= 0 {
		return 0, xerrors.New(xerrors.CodeStorageFailure, "迁移文件版本号不合法: "+name)
	}
	return version, nil
}
