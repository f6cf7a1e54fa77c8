package web3

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadChainDefinitions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chain.yaml")
	content := `chains:
  sepolia:
    type: evm
    rpc_url: https://rpc.sepolia.example
    chain_id: 11155111
    description: test network
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write chain config: %v", err)
	}

	defs, err := LoadChainDefinitions(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	chain, ok := defs.Chains["sepolia"]
	if !ok {
		t.Fatalf("sepolia missing: %+v", defs.Chains)
	}
	if chain.ChainID != 11155111 || chain.RPCURL != "https://rpc.sepolia.example" {
		t.Fatalf("unexpected definition %+v", chain)
	}
}

func TestLoadChainDefinitionsRequiresRPC(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.yaml")
	if err := os.WriteFile(path, []byte("chains:\n  broken:\n    type: evm\n"), 0o644); err != nil {
		t.Fatalf("write chain config: %v", err)
	}
	if _, err := LoadChainDefinitions(path); err == nil {
		t.Fatalf("expected error for chain without rpc_url")
	}
}

func TestLoadChainDefinitionsEmptyPath(t *testing.T) {
	defs, err := LoadChainDefinitions(" ")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(defs.Chains) != 0 {
		t.Fatalf("expected no chains, got %d", len(defs.Chains))
	}
}
