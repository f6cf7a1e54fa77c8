package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	xerrors "Agentic-Oracle/internal/errors"
	"Agentic-Oracle/internal/web3"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// AgentDetails 是 getAgentDetails 的返回值。
type AgentDetails struct {
	Address    common.Address `json:"address"`
	Registered bool           `json:"registered"`
	Stake      *big.Int       `json:"stake"`
	Rewards    *big.Int       `json:"rewards"`
}

// Contract 封装预言机合约的读写调用。identity 为空时只能执行只读调用。
type Contract struct {
	address  common.Address
	abi      abi.ABI
	bound    *bind.BoundContract
	backend  web3.Backend
	identity *Identity
}

// ParseABI 解析内置 ABI。
func ParseABI() (abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(ABI))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("解析预言机 ABI 失败: %w", err)
	}
	return parsed, nil
}

// NewContract 绑定指定地址的预言机合约。
func NewContract(address common.Address, backend web3.Backend, identity *Identity) (*Contract, error) {
	if backend == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未提供链访问后端")
	}
	if address == (common.Address{}) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "预言机合约地址为空")
	}
	parsed, err := ParseABI()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "")
	}
	return &Contract{
		address:  address,
		abi:      parsed,
		bound:    bind.NewBoundContract(address, parsed, backend, backend, backend),
		backend:  backend,
		identity: identity,
	}, nil
}

// Address 返回合约地址。
func (c *Contract) Address() common.Address {
	return c.address
}

// Identity 返回绑定的签名身份，可能为空。
func (c *Contract) Identity() *Identity {
	return c.identity
}

// AgentDetails 查询任意代理的注册信息。
func (c *Contract) AgentDetails(ctx context.Context, agent common.Address) (AgentDetails, error) {
	var out []any
	if err := c.bound.Call(&bind.CallOpts{Context: ctx}, &out, methodAgentDetails, agent); err != nil {
		return AgentDetails{}, xerrors.Wrap(xerrors.CodeUpstreamUnavailable, err, "查询代理信息失败",
			xerrors.WithMetadata("agent", agent.Hex()))
	}
	if len(out) != 3 {
		return AgentDetails{}, xerrors.New(xerrors.CodeUpstreamUnavailable, fmt.Sprintf("getAgentDetails 返回了 %d 个值", len(out)))
	}
	registered, _ := out[0].(bool)
	stake, _ := out[1].(*big.Int)
	rewards, _ := out[2].(*big.Int)
	return AgentDetails{
		Address:    agent,
		Registered: registered,
		Stake:      nonNil(stake),
		Rewards:    nonNil(rewards),
	}, nil
}

// IsRegistered 判断当前签名身份是否已注册为代理。
func (c *Contract) IsRegistered(ctx context.Context) (bool, error) {
	if c.identity == nil {
		return false, xerrors.New(xerrors.CodeSigningFailure, "未配置代理签名身份")
	}
	details, err := c.AgentDetails(ctx, c.identity.Address())
	if err != nil {
		return false, err
	}
	return details.Registered, nil
}

// LatestPrice 返回链上最新价格的定点数表示。
func (c *Contract) LatestPrice(ctx context.Context) (*big.Int, error) {
	var out []any
	if err := c.bound.Call(&bind.CallOpts{Context: ctx}, &out, methodLatestPrice); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUpstreamUnavailable, err, "查询链上价格失败")
	}
	if len(out) != 1 {
		return nil, xerrors.New(xerrors.CodeUpstreamUnavailable, fmt.Sprintf("getLatestPrice 返回了 %d 个值", len(out)))
	}
	price, _ := out[0].(*big.Int)
	return nonNil(price), nil
}

// Register 以指定质押额注册为代理。
func (c *Contract) Register(ctx context.Context, stake *big.Int) (*types.Transaction, error) {
	return c.transact(ctx, methodRegister, stake)
}

// SubmitPrice 提交定点数形式的价格。
func (c *Contract) SubmitPrice(ctx context.Context, amount *big.Int) (*types.Transaction, error) {
	return c.transact(ctx, methodSubmitPrice, amount)
}

func (c *Contract) transact(ctx context.Context, method string, amount *big.Int) (*types.Transaction, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, xerrors.New(xerrors.CodeInvalidAmount, fmt.Sprintf("%s 需要正数金额", method))
	}
	opts, err := c.identity.TransactOpts(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := c.bound.Transact(opts, method, amount)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeSubmissionFailure, err, fmt.Sprintf("发送 %s 交易失败", method),
			xerrors.WithMetadata("method", method))
	}
	return tx, nil
}

// WaitMined 等待交易上链，回执状态失败时返回 SUBMISSION_FAILURE。
func (c *Contract) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, c.backend, tx)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeTimeout, err, "等待交易上链失败",
			xerrors.WithMetadata("tx", tx.Hash().Hex()))
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, xerrors.New(xerrors.CodeSubmissionFailure, "交易执行失败",
			xerrors.WithMetadata("tx", tx.Hash().Hex()))
	}
	return receipt, nil
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
