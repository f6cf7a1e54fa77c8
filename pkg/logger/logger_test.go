package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitWritesJSONToFileAndAudit(t *testing.T) {
	dir := t.TempDir()
	appPath := filepath.Join(dir, "app.log")
	auditPath := filepath.Join(dir, "audit", "audit.log")

	if err := Init(Config{
		Level:       "debug",
		OutputPaths: []string{appPath},
		Audit:       AuditConfig{Enabled: true, Path: auditPath},
	}); err != nil {
		t.Fatalf("init logger: %v", err)
	}
	t.Cleanup(func() {
		_ = Sync()
		_ = Init(Config{})
	})

	Named("publisher").Debug("price fetched", "symbol", "ETHUSDT")
	Audit().Info("price submitted", "tx_hash", "0xabc")

	if err := Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}

	appLine := readFirstLine(t, appPath)
	var entry map[string]any
	if err := json.Unmarshal([]byte(appLine), &entry); err != nil {
		t.Fatalf("decode app log: %v", err)
	}
	if entry["component"] != "publisher" || entry["symbol"] != "ETHUSDT" {
		t.Fatalf("unexpected app entry: %v", entry)
	}

	auditLine := readFirstLine(t, auditPath)
	if !strings.Contains(auditLine, "0xabc") {
		t.Fatalf("audit log missing tx hash: %s", auditLine)
	}
}

func TestInitRejectsAuditWithoutPath(t *testing.T) {
	if err := Init(Config{Audit: AuditConfig{Enabled: true}}); err == nil {
		t.Fatalf("expected error for empty audit path")
	}
}

func TestParseLevel(t *testing.T) {
	if parseLevel("WARNING").String() != "WARN" {
		t.Fatalf("unexpected level for WARNING")
	}
	if parseLevel("unknown").String() != "INFO" {
		t.Fatalf("unknown level should default to INFO")
	}
}

func readFirstLine(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	line, _, _ := strings.Cut(string(content), "\n")
	return line
}
