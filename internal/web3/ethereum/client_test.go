package ethereum

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
)

func TestSimulatedClientChainInfo(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)
	backend := simulated.NewBackend(types.GenesisAlloc{
		addr: {Balance: big.NewInt(1_000_000_000_000_000_000)},
	})
	client := NewSimulatedClient("simulated", backend)
	t.Cleanup(client.Close)

	before, err := client.ChainInfo(ctx)
	if err != nil {
		t.Fatalf("chain info: %v", err)
	}
	if before.ChainID.Int64() != 1337 {
		t.Fatalf("unexpected chain id %s", before.ChainID)
	}
	if before.Name != "simulated" {
		t.Fatalf("unexpected name %q", before.Name)
	}

	backend.Commit()

	after, err := client.ChainInfo(ctx)
	if err != nil {
		t.Fatalf("chain info: %v", err)
	}
	if after.BlockNumber <= before.BlockNumber {
		t.Fatalf("expected block number to advance: %d -> %d", before.BlockNumber, after.BlockNumber)
	}
}

func TestNewClientRequiresRPC(t *testing.T) {
	if _, err := NewClient(context.Background(), Config{Name: "empty"}); err == nil {
		t.Fatalf("expected error for empty rpc url")
	}
}

func TestClosedClientRejectsCalls(t *testing.T) {
	backend := simulated.NewBackend(types.GenesisAlloc{})
	client := NewSimulatedClient("closed", backend)
	client.Close()

	if _, err := client.ChainID(context.Background()); err == nil {
		t.Fatalf("expected error after close")
	}
}
