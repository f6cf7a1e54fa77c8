package oracle

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"

	xerrors "Agentic-Oracle/internal/errors"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Identity 是预言机代理的签名身份，进程启动时加载一次。
type Identity struct {
	key      *ecdsa.PrivateKey
	address  common.Address
	chainID  *big.Int
	gasLimit uint64
}

// IdentityOption 定义可选配置。
type IdentityOption func(*Identity)

// WithGasLimit 固定交易的 gas 上限，0 表示由节点估算。
func WithGasLimit(limit uint64) IdentityOption {
	return func(i *Identity) {
		i.gasLimit = limit
	}
}

// NewIdentity 从十六进制私钥创建签名身份。
func NewIdentity(hexKey string, chainID *big.Int, opts ...IdentityOption) (*Identity, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, xerrors.New(xerrors.CodeSigningFailure, "未提供代理私钥")
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "链 ID 无效")
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeSigningFailure, err, "解析代理私钥失败")
	}
	id := &Identity{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: new(big.Int).Set(chainID),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(id)
		}
	}
	return id, nil
}

// Address 返回代理地址。
func (i *Identity) Address() common.Address {
	if i == nil {
		return common.Address{}
	}
	return i.address
}

// ChainID 返回签名使用的链 ID。
func (i *Identity) ChainID() *big.Int {
	if i == nil {
		return nil
	}
	return new(big.Int).Set(i.chainID)
}

// TransactOpts 为一次交易生成签名参数。
func (i *Identity) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	if i == nil {
		return nil, xerrors.New(xerrors.CodeSigningFailure, "未配置代理签名身份")
	}
	opts, err := bind.NewKeyedTransactorWithChainID(i.key, i.chainID)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeSigningFailure, err, "创建交易签名器失败")
	}
	opts.Context = ctx
	opts.GasLimit = i.gasLimit
	return opts, nil
}
