package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "oracle.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":3002" {
		t.Fatalf("unexpected server address %q", cfg.Server.Address)
	}
	if cfg.Publisher.Interval() != 16*time.Minute {
		t.Fatalf("unexpected interval %s", cfg.Publisher.Interval())
	}
	if cfg.Oracle.Decimals != 8 || cfg.Oracle.RegistrationStake != "100000000" {
		t.Fatalf("unexpected oracle defaults: %+v", cfg.Oracle)
	}
	if cfg.Market.NewsURL != "https://api.coingecko.com/api/v3/events" {
		t.Fatalf("unexpected news url %q", cfg.Market.NewsURL)
	}
	if cfg.Runtime.DataDir != filepath.Join(dir, "data") {
		t.Fatalf("unexpected data dir %q", cfg.Runtime.DataDir)
	}
	if len(cfg.Server.CORSOrigins) != 1 || cfg.Server.CORSOrigins[0] != "*" {
		t.Fatalf("unexpected cors origins %v", cfg.Server.CORSOrigins)
	}
}

func TestLoadOverridesAndValidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "oracle.json")
	content := `{
  "publisher": {"interval_seconds": 60, "symbol": "BTCUSDT"},
  "web3": {"chain_config": "chain.yaml"},
  "oracle": {"contract_address": "0x0000000000000000000000000000000000000001"}
}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Publisher.Symbol != "BTCUSDT" || cfg.Publisher.Interval() != time.Minute {
		t.Fatalf("overrides not applied: %+v", cfg.Publisher)
	}
	if cfg.Web3.ChainConfig != filepath.Join(dir, "chain.yaml") {
		t.Fatalf("chain config not resolved: %q", cfg.Web3.ChainConfig)
	}
	if err := cfg.ValidatePublisher(); err != nil {
		t.Fatalf("publisher validation: %v", err)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"cache": {"driver": "memcached"}}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(bad); err == nil {
		t.Fatalf("expected validation error for unknown cache driver")
	}
}

func TestValidatePublisherRequiresContract(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.ValidatePublisher(); err == nil {
		t.Fatalf("expected error without contract address")
	}
}

func TestLoadKeepsExplicitZeroValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "oracle.json")
	content := `{"cache": {"ttl_seconds": 0}, "oracle": {"decimals": 0}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Cache.TTLSeconds != 0 || cfg.Oracle.Decimals != 0 {
		t.Fatalf("explicit zero values overwritten: ttl=%d decimals=%d", cfg.Cache.TTLSeconds, cfg.Oracle.Decimals)
	}
	if cfg.Cache.Driver != "memory" || cfg.Feed.Capacity != 256 {
		t.Fatalf("omitted fields should keep defaults: %+v %+v", cfg.Cache, cfg.Feed)
	}
}

func TestValidatePublisherRejectsMalformedContract(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "oracle.json")
	content := `{
  "web3": {"chain_config": "chain.yaml"},
  "oracle": {"contract_address": "0xnot-an-address"}
}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.ValidatePublisher(); err == nil {
		t.Fatalf("expected error for malformed contract address")
	}

	cfg.Oracle.ContractAddress = "0x00000000000000000000000000000000000001"
	if err := cfg.ValidatePublisher(); err == nil {
		t.Fatalf("expected error for short contract address")
	}
}

func TestSecretPrefersExplicitValue(t *testing.T) {
	t.Setenv("ORACLE_TEST_SECRET", "from-env")
	if got := Secret("", "ORACLE_TEST_SECRET"); got != "from-env" {
		t.Fatalf("unexpected secret %q", got)
	}
	if got := Secret(" explicit ", "ORACLE_TEST_SECRET"); got != "explicit" {
		t.Fatalf("unexpected secret %q", got)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("ORACLE_DOTENV_CHECK=yes\n"), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("ORACLE_DOTENV_CHECK") })

	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("load dotenv: %v", err)
	}
	if os.Getenv("ORACLE_DOTENV_CHECK") != "yes" {
		t.Fatalf("dotenv variable not loaded")
	}
}
