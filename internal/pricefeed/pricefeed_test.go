package pricefeed

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"Agentic-Oracle/internal/cache"
	xerrors "Agentic-Oracle/internal/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestToFixedPoint(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"3456.78", "345678000000"},
		{"0.000000015", "2"},
		{"0.000000014", "1"},
		{"101", "10100000000"},
		{"2500.123456789", "250012345679"},
	}
	for _, tc := range cases {
		got, err := ToFixedPoint(decimal.RequireFromString(tc.in), DefaultDecimals)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got.String(), tc.in)
	}

	for _, bad := range []string{"0", "-1", "0.000000004"} {
		_, err := ToFixedPoint(decimal.RequireFromString(bad), DefaultDecimals)
		require.Equal(t, xerrors.CodeInvalidAmount, xerrors.CodeOf(err), bad)
	}
}

func TestFromFixedPoint(t *testing.T) {
	got := FromFixedPoint(big.NewInt(345678000000), DefaultDecimals)
	require.Equal(t, "3456.78", got.String())
	require.True(t, FromFixedPoint(nil, DefaultDecimals).IsZero())
}

func TestBinanceSpot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v3/ticker/price", r.URL.Path)
		require.Equal(t, "ETHUSDT", r.URL.Query().Get("symbol"))
		_, _ = w.Write([]byte(`{"symbol":"ETHUSDT","price":"3456.78000000"}`))
	}))
	defer srv.Close()

	sample, err := NewBinance(srv.URL).Spot(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	require.Equal(t, "binance", sample.Source)
	require.Equal(t, "3456.78", sample.Value.String())
}

func TestBitgetSpot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v2/spot/market/tickers", r.URL.Path)
		_, _ = w.Write([]byte(`{"code":"00000","data":[{"symbol":"ETHUSDT","lastPr":"3455.1","ts":"1700000000000"}]}`))
	}))
	defer srv.Close()

	sample, err := NewBitget(srv.URL).Spot(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	require.Equal(t, "3455.1", sample.Value.String())
	require.Equal(t, time.UnixMilli(1700000000000).UTC(), sample.Timestamp)
}

func TestSpotFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/ticker/price":
			_, _ = w.Write([]byte(`{"symbol":"ETHUSDT","price":"0"}`))
		default:
			http.Error(w, "maintenance", http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	_, err := NewBinance(srv.URL).Spot(context.Background(), "ETHUSDT")
	require.Equal(t, xerrors.CodeInvalidAmount, xerrors.CodeOf(err))

	_, err = NewBitget(srv.URL).Spot(context.Background(), "ETHUSDT")
	require.Equal(t, xerrors.CodeUpstreamUnavailable, xerrors.CodeOf(err))
}

type fixedSource struct {
	name  string
	value string
	err   error
}

func (f fixedSource) Name() string { return f.name }

func (f fixedSource) Spot(_ context.Context, symbol string) (Sample, error) {
	if f.err != nil {
		return Sample{}, f.err
	}
	return Sample{Source: f.name, Symbol: symbol, Value: decimal.RequireFromString(f.value)}, nil
}

func TestAggregatorAverage(t *testing.T) {
	agg := NewAggregator(fixedSource{name: "a", value: "100"}, fixedSource{name: "b", value: "102"})
	avg, samples, err := agg.Average(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	require.Len(t, samples, 2)
	require.Equal(t, "101", avg.String())
	require.Equal(t, []string{"a", "b"}, agg.Sources())
}

func TestAggregatorSkipsFailedSources(t *testing.T) {
	down := xerrors.New(xerrors.CodeUpstreamUnavailable, "down")
	agg := NewAggregator(fixedSource{name: "a", err: down}, fixedSource{name: "b", value: "3000.5"})
	avg, samples, err := agg.Average(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	require.Len(t, samples, 1)
	require.Equal(t, "3000.5", avg.String())

	agg = NewAggregator(fixedSource{name: "a", err: down}, fixedSource{name: "b", err: down})
	_, _, err = agg.Average(context.Background(), "ETHUSDT")
	require.Equal(t, xerrors.CodeUpstreamUnavailable, xerrors.CodeOf(err))
}

func TestCoinGeckoHistoryIsCached(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		require.Equal(t, "/coins/ethereum/market_chart", r.URL.Path)
		require.Equal(t, "usd", r.URL.Query().Get("vs_currency"))
		require.Equal(t, "7", r.URL.Query().Get("days"))
		_, _ = w.Write([]byte(`{"prices":[[1700000000000,1.5],[1700000100000,2],[1700000200000,2.25],[1700000300000,3],[1700000400000,3.5],[1700000500000,4]]}`))
	}))
	defer srv.Close()

	cg := NewCoinGecko(srv.URL, nil, WithCache(cache.NewMemory(8), time.Minute))
	for i := 0; i < 2; i++ {
		points, err := cg.History(context.Background(), "ethereum", 7)
		require.NoError(t, err)
		require.Len(t, points, 6)
		last := LastPrices(points, 5)
		require.Len(t, last, 5)
		require.Equal(t, "2", last[0].String())
		require.Equal(t, "4", last[4].String())
	}
	require.Equal(t, int32(1), hits.Load())
}

func TestCoinGeckoHeadlines(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"title":"a"},{"title":""},{"title":"b"},{"title":"c"},{"title":"d"},{"title":"e"},{"title":"f"}]`))
	})
	mux.HandleFunc("/wrapped", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"title":"x"},{"title":"y"}]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	headlines, err := NewCoinGecko(srv.URL, nil).Headlines(context.Background(), 5)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c", "d", "e"}, headlines)

	headlines, err = NewCoinGecko(srv.URL, nil, WithNewsURL(srv.URL+"/wrapped")).Headlines(context.Background(), 5)
	require.NoError(t, err)
	require.Equal(t, []string{"x", "y"}, headlines)
}
