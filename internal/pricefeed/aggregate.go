package pricefeed

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	xerrors "Agentic-Oracle/internal/errors"
	"Agentic-Oracle/pkg/logger"

	"github.com/shopspring/decimal"
)

// Aggregator 并发查询多个现货数据源并求平均值。
type Aggregator struct {
	sources []SpotSource
	logger  *slog.Logger
}

// NewAggregator 创建聚合器。
func NewAggregator(sources ...SpotSource) *Aggregator {
	filtered := make([]SpotSource, 0, len(sources))
	for _, src := range sources {
		if src != nil {
			filtered = append(filtered, src)
		}
	}
	return &Aggregator{sources: filtered, logger: logger.Named("pricefeed")}
}

// Sources 返回参与聚合的数据源名称。
func (a *Aggregator) Sources() []string {
	names := make([]string, 0, len(a.sources))
	for _, src := range a.sources {
		names = append(names, src.Name())
	}
	return names
}

// Average 返回成功数据源的算术平均值，以及每个成功的样本。全部失败时返回最后一个错误。
func (a *Aggregator) Average(ctx context.Context, symbol string) (decimal.Decimal, []Sample, error) {
	if len(a.sources) == 0 {
		return decimal.Zero, nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置任何现货数据源")
	}

	type result struct {
		sample Sample
		err    error
	}
	results := make([]result, len(a.sources))

	var wg sync.WaitGroup
	for i, src := range a.sources {
		wg.Add(1)
		go func(i int, src SpotSource) {
			defer wg.Done()
			sample, err := src.Spot(ctx, symbol)
			results[i] = result{sample: sample, err: err}
		}(i, src)
	}
	wg.Wait()

	samples := make([]Sample, 0, len(results))
	var errs []error
	for i, r := range results {
		if r.err != nil {
			a.logger.Warn("现货价格获取失败", slog.String("source", a.sources[i].Name()), slog.Any("error", r.err))
			errs = append(errs, r.err)
			continue
		}
		samples = append(samples, r.sample)
	}
	if len(samples) == 0 {
		return decimal.Zero, nil, xerrors.Wrap(xerrors.CodeUpstreamUnavailable, errors.Join(errs...), "所有现货数据源均不可用")
	}
	return Mean(samples), samples, nil
}

// Mean 计算样本的算术平均值。
func Mean(samples []Sample) decimal.Decimal {
	if len(samples) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, s := range samples {
		sum = sum.Add(s.Value)
	}
	return sum.Div(decimal.NewFromInt(int64(len(samples))))
}
