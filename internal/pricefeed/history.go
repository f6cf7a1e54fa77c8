package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"Agentic-Oracle/internal/cache"
	xerrors "Agentic-Oracle/internal/errors"

	"github.com/shopspring/decimal"
)

// PricePoint 是历史价格序列中的一个点。
type PricePoint struct {
	Time  time.Time       `json:"time"`
	Price decimal.Decimal `json:"price"`
}

// CoinGecko 提供历史价格与新闻事件。
type CoinGecko struct {
	httpSource
	newsURL string
	cache   cache.Cache
	ttl     time.Duration
}

// CoinGeckoOption 定义 CoinGecko 的额外配置。
type CoinGeckoOption func(*CoinGecko)

// WithNewsURL 指定新闻接口的完整地址。
func WithNewsURL(newsURL string) CoinGeckoOption {
	return func(c *CoinGecko) {
		if strings.TrimSpace(newsURL) != "" {
			c.newsURL = newsURL
		}
	}
}

// WithCache 为历史价格与新闻启用缓存。
func WithCache(store cache.Cache, ttl time.Duration) CoinGeckoOption {
	return func(c *CoinGecko) {
		c.cache = store
		c.ttl = ttl
	}
}

// NewCoinGecko 创建数据源，baseURL 形如 https://api.coingecko.com/api/v3。
func NewCoinGecko(baseURL string, opts []Option, cgOpts ...CoinGeckoOption) *CoinGecko {
	baseURL = strings.TrimRight(baseURL, "/")
	c := &CoinGecko{
		httpSource: newHTTPSource("coingecko", baseURL, opts...),
		newsURL:    baseURL + "/events",
	}
	for _, opt := range cgOpts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// History 返回最近 days 天的美元价格序列，按时间升序。
func (c *CoinGecko) History(ctx context.Context, coin string, days int) ([]PricePoint, error) {
	if strings.TrimSpace(coin) == "" || days <= 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "历史价格查询参数无效")
	}
	return cache.Remember(ctx, c.cache, cache.Key("history", coin, days), c.ttl, func(ctx context.Context) ([]PricePoint, error) {
		return c.fetchHistory(ctx, coin, days)
	})
}

func (c *CoinGecko) fetchHistory(ctx context.Context, coin string, days int) ([]PricePoint, error) {
	var payload struct {
		Prices [][]decimal.Decimal `json:"prices"`
	}
	query := url.Values{"vs_currency": {"usd"}, "days": {strconv.Itoa(days)}}
	if err := c.getJSON(ctx, "/coins/"+url.PathEscape(coin)+"/market_chart", query, &payload); err != nil {
		return nil, err
	}
	points := make([]PricePoint, 0, len(payload.Prices))
	for _, pair := range payload.Prices {
		if len(pair) < 2 {
			continue
		}
		points = append(points, PricePoint{
			Time:  time.UnixMilli(pair[0].IntPart()).UTC(),
			Price: pair[1],
		})
	}
	if len(points) == 0 {
		return nil, c.fail(fmt.Errorf("coin %s has no price points", coin), "历史价格为空")
	}
	return points, nil
}

// Headlines 返回最多 n 条新闻标题。
func (c *CoinGecko) Headlines(ctx context.Context, n int) ([]string, error) {
	if n <= 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "新闻条数必须为正数")
	}
	return cache.Remember(ctx, c.cache, cache.Key("news", n), c.ttl, func(ctx context.Context) ([]string, error) {
		return c.fetchHeadlines(ctx, n)
	})
}

type newsItem struct {
	Title string `json:"title"`
}

func (c *CoinGecko) fetchHeadlines(ctx context.Context, n int) ([]string, error) {
	var raw json.RawMessage
	news := c.httpSource
	news.baseURL = c.newsURL
	if err := news.getJSON(ctx, "", nil, &raw); err != nil {
		return nil, err
	}

	items, err := decodeNews(raw)
	if err != nil {
		return nil, c.fail(err, "新闻格式无法识别")
	}
	headlines := make([]string, 0, n)
	for _, item := range items {
		title := strings.TrimSpace(item.Title)
		if title == "" {
			continue
		}
		headlines = append(headlines, title)
		if len(headlines) == n {
			break
		}
	}
	if len(headlines) == 0 {
		return nil, c.fail(fmt.Errorf("no headlines in response"), "新闻列表为空")
	}
	return headlines, nil
}

// decodeNews 同时兼容顶层数组与 {"data": [...]} 两种格式。
func decodeNews(raw json.RawMessage) ([]newsItem, error) {
	var items []newsItem
	if err := json.Unmarshal(raw, &items); err == nil {
		return items, nil
	}
	var wrapped struct {
		Data []newsItem `json:"data"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Data, nil
}

// LastPrices 返回序列末尾最多 n 个价格。
func LastPrices(points []PricePoint, n int) []decimal.Decimal {
	if n <= 0 {
		return nil
	}
	if len(points) < n {
		n = len(points)
	}
	out := make([]decimal.Decimal, 0, n)
	for _, p := range points[len(points)-n:] {
		out = append(out, p.Price)
	}
	return out
}
