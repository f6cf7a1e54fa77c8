package pricefeed

import (
	"math/big"

	xerrors "Agentic-Oracle/internal/errors"

	"github.com/shopspring/decimal"
)

// DefaultDecimals 是预言机合约使用的定点精度 (10^8)。
const DefaultDecimals int32 = 8

// ToFixedPoint 返回 round(value * 10^decimals)，舍入方式为四舍五入（远离零）。
func ToFixedPoint(value decimal.Decimal, decimals int32) (*big.Int, error) {
	if !value.IsPositive() {
		return nil, xerrors.New(xerrors.CodeInvalidAmount, "价格必须为正数",
			xerrors.WithMetadata("value", value.String()))
	}
	scaled := value.Shift(decimals).Round(0)
	if !scaled.IsPositive() {
		return nil, xerrors.New(xerrors.CodeInvalidAmount, "价格低于定点精度",
			xerrors.WithMetadata("value", value.String()))
	}
	return scaled.BigInt(), nil
}

// FromFixedPoint 将链上定点数还原为十进制价格。
func FromFixedPoint(amount *big.Int, decimals int32) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -decimals)
}
