package web3

import (
	"context"
	"math/big"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
)

// ChainInfo represents summarized network metadata for health reporting.
type ChainInfo struct {
	Name        string
	ChainID     *big.Int
	BlockNumber uint64
	Notes       string
}

// Backend is the subset of node access the oracle binding relies on. Both
// ethclient.Client and the simulated backend client satisfy it.
type Backend interface {
	bind.ContractBackend
	gethcore.ChainIDReader
	gethcore.TransactionReader
	BlockNumber(ctx context.Context) (uint64, error)
}

// Client defines the common interface that any chain implementation must
// provide so higher layers can interact with different networks uniformly.
type Client interface {
	Name() string
	Backend() Backend
	ChainInfo(ctx context.Context) (ChainInfo, error)
	Close()
}
