package mysql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"testing/fstest"

	xerrors "Agentic-Oracle/internal/errors"
)

func TestMemoryChatRepositoryListByUser(t *testing.T) {
	t.Parallel()

	repo := NewMemoryChatRepository(0)
	ctx := context.Background()
	err := repo.Save(ctx,
		ChatMessage{ID: "1", UserID: "0xabc", Role: RoleUser, Content: "price?", CreatedAt: 1},
		ChatMessage{ID: "2", UserID: "0xabc", Role: RoleBot, Content: "Current price of ethereum is : $101", Intent: "price", CreatedAt: 2},
		ChatMessage{ID: "3", UserID: "0xdef", Role: RoleUser, Content: "stake 5", CreatedAt: 3},
	)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	list, err := repo.ListByUser(ctx, "0xabc", 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != "1" || list[1].Role != RoleBot {
		t.Fatalf("unexpected history: %+v", list)
	}

	latest, err := repo.ListByUser(ctx, "0xabc", 1)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(latest) != 1 || latest[0].ID != "2" {
		t.Fatalf("expected only the newest message, got %+v", latest)
	}
}

func TestMemoryChatRepositoryIsProcessLocal(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	ctx := context.Background()
	first := NewMemoryChatRepository(0)
	if err := first.Save(ctx, ChatMessage{ID: "1", UserID: "0xabc", Role: RoleUser, Content: "stake 12.5 secret", CreatedAt: 1}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	restarted := NewMemoryChatRepository(0)
	list, err := restarted.ListByUser(ctx, "0xabc", 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty history after restart, got %+v", list)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected nothing written to disk, found %d entries", len(entries))
	}
}

func TestMemoryChatRepositoryDropsOldest(t *testing.T) {
	t.Parallel()

	repo := NewMemoryChatRepository(2)
	ctx := context.Background()
	for i, id := range []string{"a", "b", "c"} {
		if err := repo.Save(ctx, ChatMessage{ID: id, UserID: "u", Role: RoleUser, CreatedAt: int64(i)}); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}
	list, err := repo.ListByUser(ctx, "u", 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != "b" || list[1].ID != "c" {
		t.Fatalf("unexpected history: %+v", list)
	}
}

func TestSQLChatRepositorySave(t *testing.T) {
	t.Parallel()

	db, driver := newMockDB(t, []mockOperation{
		beginOp(),
		execOp(insertChatMessageSQL, mockResult{lastInsertID: 1, rowsAffected: 1}),
		execOp(insertChatMessageSQL, mockResult{lastInsertID: 2, rowsAffected: 1}),
		commitOp(),
	})
	defer driver.assertConsumed(t)
	defer db.Close()

	repo := &SQLChatRepository{db: db}
	err := repo.Save(context.Background(),
		ChatMessage{ID: "a", UserID: "u", Role: RoleUser, Content: "hi", CreatedAt: 1},
		ChatMessage{ID: "b", UserID: "u", Role: RoleBot, Content: "hello", CreatedAt: 2},
	)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
}

func TestSQLChatRepositorySaveRollsBack(t *testing.T) {
	t.Parallel()

	failing := execOp(insertChatMessageSQL, mockResult{})
	failing.err = errors.New("duplicate entry")
	db, driver := newMockDB(t, []mockOperation{
		beginOp(),
		failing,
		rollbackOp(),
	})
	defer driver.assertConsumed(t)
	defer db.Close()

	repo := &SQLChatRepository{db: db}
	err := repo.Save(context.Background(), ChatMessage{ID: "a", UserID: "u", Role: RoleUser, Content: "hi"})
	if xerrors.CodeOf(err) != xerrors.CodeStorageFailure {
		t.Fatalf("expected storage failure, got %v", err)
	}
}

func TestSQLChatRepositoryListByUser(t *testing.T) {
	t.Parallel()

	rows := mockRowsData{
		columns: []string{"id", "user_id", "role", "content", "intent", "created_at"},
		values: [][]driver.Value{
			{"b", "u", RoleBot, "hello", "price", int64(20)},
			{"a", "u", RoleUser, "hi", "", int64(10)},
		},
	}
	db, driver := newMockDB(t, []mockOperation{
		queryOp(`SELECT id, user_id, role, content, intent, created_at
    FROM chat_messages WHERE user_id = ? ORDER BY seq DESC LIMIT ?`, rows),
	})
	defer driver.assertConsumed(t)
	defer db.Close()

	repo := &SQLChatRepository{db: db}
	list, err := repo.ListByUser(context.Background(), "u", 2)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != "a" || list[1].Intent != "price" {
		t.Fatalf("unexpected list: %+v", list)
	}

	if _, err := repo.ListByUser(context.Background(), " ", 2); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument for empty user, got %v", err)
	}
}

func TestSQLChatRepositoryRunMigrations(t *testing.T) {
	t.Parallel()

	migration := readEmbeddedMigration(t)
	ops := []mockOperation{
		execOp(createChatMigrationsSQL, mockResult{}),
		queryOp(selectChatMigrationsSQL, mockRowsData{columns: []string{"version", "name", "checksum"}}),
		beginOp(),
		execOp(migration.statements[0], mockResult{rowsAffected: 0}),
		execOp(insertChatMigrationSQL, mockResult{rowsAffected: 1}),
		commitOp(),
	}
	db, driver := newMockDB(t, ops)
	defer driver.assertConsumed(t)
	defer db.Close()

	repo := &SQLChatRepository{db: db}
	if err := repo.runMigrations(context.Background()); err != nil {
		t.Fatalf("run migrations failed: %v", err)
	}
}

func TestSQLChatRepositorySkipsAppliedMigrations(t *testing.T) {
	t.Parallel()

	migration := readEmbeddedMigration(t)
	ops := []mockOperation{
		execOp(createChatMigrationsSQL, mockResult{}),
		queryOp(selectChatMigrationsSQL, mockRowsData{
			columns: []string{"version", "name", "checksum"},
			values:  [][]driver.Value{{int64(migration.version), migration.name, migration.checksum}},
		}),
	}
	db, driver := newMockDB(t, ops)
	defer driver.assertConsumed(t)
	defer db.Close()

	repo := &SQLChatRepository{db: db}
	if err := repo.runMigrations(context.Background()); err != nil {
		t.Fatalf("run migrations failed: %v", err)
	}
}

func TestMigrateChatSchemaRejectsChangedMigration(t *testing.T) {
	t.Parallel()

	files := fstest.MapFS{
		"0001_create_chat_messages.sql": {Data: []byte("CREATE TABLE chat_messages (id CHAR(36));")},
	}
	ops := []mockOperation{
		execOp(createChatMigrationsSQL, mockResult{}),
		queryOp(selectChatMigrationsSQL, mockRowsData{
			columns: []string{"version", "name", "checksum"},
			values:  [][]driver.Value{{int64(1), "0001_create_chat_messages.sql", strings.Repeat("0", 64)}},
		}),
	}
	db, driver := newMockDB(t, ops)
	defer driver.assertConsumed(t)
	defer db.Close()

	err := migrateChatSchema(context.Background(), db, files, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if xerrors.CodeOf(err) != xerrors.CodeStorageFailure {
		t.Fatalf("expected storage failure for changed migration, got %v", err)
	}
}

func TestLoadChatMigrationsOrdersAndValidates(t *testing.T) {
	t.Parallel()

	files := fstest.MapFS{
		"0010_add_index.sql":  {Data: []byte("CREATE INDEX idx ON chat_messages (role);")},
		"0002_add_column.sql": {Data: []byte("ALTER TABLE chat_messages ADD COLUMN x INT; ALTER TABLE chat_messages ADD COLUMN y INT;")},
		"0003_empty.sql":      {Data: []byte(" ; ")},
		"README.md":           {Data: []byte("not a migration")},
	}
	list, err := loadChatMigrations(files)
	if err != nil {
		t.Fatalf("load migrations: %v", err)
	}
	if len(list) != 2 || list[0].version != 2 || list[1].version != 10 {
		t.Fatalf("unexpected migration order: %+v", list)
	}
	if len(list[0].statements) != 2 || len(list[0].checksum) != 64 {
		t.Fatalf("unexpected migration contents: %+v", list[0])
	}

	bad := fstest.MapFS{"create.sql": {Data: []byte("SELECT 1;")}}
	if _, err := loadChatMigrations(bad); err == nil {
		t.Fatalf("expected error for migration without version prefix")
	}
	dup := fstest.MapFS{
		"0001_a.sql": {Data: []byte("SELECT 1;")},
		"1_b.sql":    {Data: []byte("SELECT 2;")},
	}
	if _, err := loadChatMigrations(dup); err == nil {
		t.Fatalf("expected error for duplicate version")
	}
}

func readEmbeddedMigration(t *testing.T) chatMigration {
	t.Helper()

	list, err := loadChatMigrations(embeddedMigrations)
	if err != nil {
		t.Fatalf("load embedded migrations: %v", err)
	}
	if len(list) != 1 || list[0].name != "0001_create_chat_messages.sql" {
		t.Fatalf("unexpected embedded migrations: %+v", list)
	}
	return list[0]
}

type operationType int

const (
	opExec operationType = iota
	opQuery
	opBegin
	opCommit
	opRollback
)

type mockOperation struct {
	typ    operationType
	query  string
	result mockResult
	rows   mockRowsData
	err    error
}

type mockResult struct {
	lastInsertID int64
	rowsAffected int64
}

func (r mockResult) LastInsertId() (int64, error) { return r.lastInsertID, nil }
func (r mockResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }

type mockRowsData struct {
	columns []string
	values  [][]driver.Value
}

type queueDriver struct {
	ops []mockOperation
	idx int32
}

var driverSeq atomic.Int32

func newMockDB(t *testing.T, ops []mockOperation) (*sql.DB, *queueDriver) {
	t.Helper()

	drv := &queueDriver{ops: ops}
	name := fmt.Sprintf("mock-mysql-%d", driverSeq.Add(1))
	sql.Register(name, drv)

	db, err := sql.Open(name, "")
	if err != nil {
		t.Fatalf("open mock db failed: %v", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, drv
}

func execOp(query string, result mockResult) mockOperation {
	return mockOperation{typ: opExec, query: query, result: result}
}

func queryOp(query string, rows mockRowsData) mockOperation {
	return mockOperation{typ: opQuery, query: query, rows: rows}
}

func beginOp() mockOperation { return mockOperation{typ: opBegin} }

func commitOp() mockOperation { return mockOperation{typ: opCommit} }

func rollbackOp() mockOperation { return mockOperation{typ: opRollback} }

func (d *queueDriver) assertConsumed(t *testing.T) {
	t.Helper()

	if int(atomic.LoadInt32(&d.idx)) != len(d.ops) {
		t.Fatalf("not all operations consumed: %d/%d", atomic.LoadInt32(&d.idx), len(d.ops))
	}
}

func (d *queueDriver) Open(name string) (driver.Conn, error) {
	return &mockConn{driver: d}, nil
}

type mockConn struct {
	driver *queueDriver
}

func (c *mockConn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("prepare not supported: %s", query)
}

func (c *mockConn) Close() error { return nil }

func (c *mockConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *mockConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	op, err := c.driver.next(opBegin, "")
	if err != nil {
		return nil, err
	}
	if op.err != nil {
		return nil, op.err
	}
	return &mockTx{driver: c.driver}, nil
}

func (c *mockConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	op, err := c.driver.next(opExec, query)
	if err != nil {
		return nil, err
	}
	if op.err != nil {
		return nil, op.err
	}
	return op.result, nil
}

func (c *mockConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	op, err := c.driver.next(opQuery, query)
	if err != nil {
		return nil, err
	}
	if op.err != nil {
		return nil, op.err
	}
	return &mockRows{columns: op.rows.columns, values: op.rows.values}, nil
}

func (c *mockConn) Ping(ctx context.Context) error { return nil }

func (d *queueDriver) next(expected operationType, query string) (*mockOperation, error) {
	idx := int(atomic.LoadInt32(&d.idx))
	if idx >= len(d.ops) {
		return nil, fmt.Errorf("unexpected operation: %v", expected)
	}
	op := &d.ops[idx]
	if op.typ != expected {
		return nil, fmt.Errorf("expected operation %v, got %v", expected, op.typ)
	}
	atomic.AddInt32(&d.idx, 1)
	if op.query != "" && normalizeSQL(op.query) != normalizeSQL(query) {
		return nil, fmt.Errorf("unexpected query. want %q got %q", normalizeSQL(op.query), normalizeSQL(query))
	}
	return op, nil
}

type mockTx struct {
	driver *queueDriver
}

func (t *mockTx) Commit() error {
	op, err := t.driver.next(opCommit, "")
	if err != nil {
		return err
	}
	return op.err
}

func (t *mockTx) Rollback() error {
	op, err := t.driver.next(opRollback, "")
	if err != nil {
		return err
	}
	return op.err
}

type mockRows struct {
	columns []string
	values  [][]driver.Value
	idx     int
}

func (r *mockRows) Columns() []string { return r.columns }
func (r *mockRows) Close() error      { return nil }

func (r *mockRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.values) {
		return io.EOF
	}
	copy(dest, r.values[r.idx])
	r.idx++
	return nil
}

func normalizeSQL(query string) string {
	return strings.Join(strings.Fields(query), " ")
}
