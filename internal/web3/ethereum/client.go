package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"Agentic-Oracle/internal/web3"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// Config describes how to construct an EVM compatible client.
type Config struct {
	Name    string
	RPCURL  string
	ChainID int64
	Notes   string
}

// Client implements the web3.Client interface for EVM compatible chains.
type Client struct {
	name      string
	notes     string
	rpcClient *gethrpc.Client
	eth       *ethclient.Client
	backend   web3.Backend
	chainID   *big.Int
	closer    func()
	mu        sync.Mutex
}

// NewClient dials the configured RPC endpoint and returns a ready-to-use client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置以太坊 RPC 地址")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接以太坊节点失败: %w", err)
	}
	eth := ethclient.NewClient(rpcClient)

	client := &Client{
		name:      cfg.Name,
		notes:     cfg.Notes,
		rpcClient: rpcClient,
		eth:       eth,
		backend:   eth,
	}
	if cfg.ChainID > 0 {
		client.chainID = big.NewInt(cfg.ChainID)
	}
	return client, nil
}

// NewSimulatedClient wraps a go-ethereum simulated backend for testing purposes.
// The backend is closed together with the client.
func NewSimulatedClient(name string, backend *simulated.Backend) *Client {
	return &Client{
		name:    name,
		notes:   "simulated backend",
		backend: backend.Client(),
		closer:  func() { _ = backend.Close() },
	}
}

// Name returns the configured chain name.
func (c *Client) Name() string {
	if c == nil {
		return ""
	}
	return c.name
}

// Backend exposes the contract backend used by bindings.
func (c *Client) Backend() web3.Backend {
	if c == nil {
		return nil
	}
	return c.backend
}

// ChainID 返回链 ID，首次调用时向节点查询并缓存。配置了 chain_id 时会校验节点返回值。
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	if c == nil || c.backend == nil {
		return nil, errors.New("未初始化的以太坊客户端")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	remote, err := c.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取链 ID 失败: %w", err)
	}
	if c.chainID != nil && c.chainID.Cmp(remote) != 0 {
		return nil, fmt.Errorf("链 ID 不匹配: 配置 %s, 节点 %s", c.chainID, remote)
	}
	c.chainID = new(big.Int).Set(remote)
	return new(big.Int).Set(remote), nil
}

// ChainInfo gathers lightweight metadata from the chain.
func (c *Client) ChainInfo(ctx context.Context) (web3.ChainInfo, error) {
	chainID, err := c.ChainID(ctx)
	if err != nil {
		return web3.ChainInfo{}, err
	}
	blockNumber, err := c.backend.BlockNumber(ctx)
	if err != nil {
		return web3.ChainInfo{}, fmt.Errorf("获取最新区块高度失败: %w", err)
	}
	return web3.ChainInfo{
		Name:        c.name,
		ChainID:     chainID,
		BlockNumber: blockNumber,
		Notes:       c.notes,
	}, nil
}

// Close releases network connections held by the client.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.eth != nil {
		c.eth.Close()
		c.eth = nil
		c.rpcClient = nil
	}
	if c.closer != nil {
		c.closer()
		c.closer = nil
	}
	c.backend = nil
}

var _ web3.Client = (*Client)(nil)
