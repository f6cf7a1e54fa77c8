package pricefeed

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sample 是一次行情抓取的结果，仅在提交前短暂存在。
type Sample struct {
	Source    string          `json:"source"`
	Symbol    string          `json:"symbol"`
	Value     decimal.Decimal `json:"value"`
	Timestamp time.Time       `json:"timestamp"`
}

// Usable 判断价格是否可以提交。
func (s Sample) Usable() bool {
	return s.Value.IsPositive()
}
