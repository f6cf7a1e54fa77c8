package pricefeed

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	xerrors "Agentic-Oracle/internal/errors"

	"github.com/shopspring/decimal"
)

// SpotSource 返回某个交易对的即时价格。
type SpotSource interface {
	Name() string
	Spot(ctx context.Context, symbol string) (Sample, error)
}

// Binance 读取 /api/v3/ticker/price。
type Binance struct {
	httpSource
}

// NewBinance 创建 Binance 数据源，baseURL 形如 https://api.binance.com。
func NewBinance(baseURL string, opts ...Option) *Binance {
	return &Binance{httpSource: newHTTPSource("binance", strings.TrimRight(baseURL, "/"), opts...)}
}

// Name 实现 SpotSource。
func (b *Binance) Name() string { return b.name }

// Spot 实现 SpotSource。
func (b *Binance) Spot(ctx context.Context, symbol string) (Sample, error) {
	var payload struct {
		Symbol string          `json:"symbol"`
		Price  decimal.Decimal `json:"price"`
	}
	if err := b.getJSON(ctx, "/api/v3/ticker/price", url.Values{"symbol": {symbol}}, &payload); err != nil {
		return Sample{}, err
	}
	return b.sample(symbol, payload.Price, b.now())
}

// Bitget 读取 /api/v2/spot/market/tickers。
type Bitget struct {
	httpSource
}

// NewBitget 创建 Bitget 数据源，baseURL 形如 https://api.bitget.com。
func NewBitget(baseURL string, opts ...Option) *Bitget {
	return &Bitget{httpSource: newHTTPSource("bitget", strings.TrimRight(baseURL, "/"), opts...)}
}

// Name 实现 SpotSource。
func (b *Bitget) Name() string { return b.name }

// Spot 实现 SpotSource。
func (b *Bitget) Spot(ctx context.Context, symbol string) (Sample, error) {
	var payload struct {
		Code string `json:"code"`
		Data []struct {
			Symbol string          `json:"symbol"`
			LastPr decimal.Decimal `json:"lastPr"`
			Ts     string          `json:"ts"`
		} `json:"data"`
	}
	if err := b.getJSON(ctx, "/api/v2/spot/market/tickers", url.Values{"symbol": {symbol}}, &payload); err != nil {
		return Sample{}, err
	}
	if len(payload.Data) == 0 {
		return Sample{}, b.fail(errEmptyTicker, "未返回行情数据")
	}
	ticker := payload.Data[0]
	ts := b.now()
	if ms, err := strconv.ParseInt(ticker.Ts, 10, 64); err == nil && ms > 0 {
		ts = time.UnixMilli(ms).UTC()
	}
	return b.sample(symbol, ticker.LastPr, ts)
}

func (s *httpSource) sample(symbol string, value decimal.Decimal, ts time.Time) (Sample, error) {
	sample := Sample{Source: s.name, Symbol: symbol, Value: value, Timestamp: ts}
	if !sample.Usable() {
		return Sample{}, xerrors.New(xerrors.CodeInvalidAmount, s.name+" 返回了不可用的价格",
			xerrors.WithMetadata("source", s.name),
			xerrors.WithMetadata("value", value.String()))
	}
	return sample, nil
}

var errEmptyTicker = errors.New("empty ticker list")
