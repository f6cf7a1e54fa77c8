// Package publisher periodically submits the spot price of one trading pair
// to the on-chain oracle contract using the agent identity.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	xerrors "Agentic-Oracle/internal/errors"
	"Agentic-Oracle/internal/feed"
	"Agentic-Oracle/internal/observability/metrics"
	"Agentic-Oracle/internal/oracle"
	"Agentic-Oracle/internal/pricefeed"
	"Agentic-Oracle/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// DefaultInterval 是两次发布之间的默认间隔。
const DefaultInterval = 16 * time.Minute

// OracleContract 是发布流程依赖的合约操作，*oracle.Contract 实现了该接口。
type OracleContract interface {
	IsRegistered(ctx context.Context) (bool, error)
	Register(ctx context.Context, stake *big.Int) (*types.Transaction, error)
	SubmitPrice(ctx context.Context, amount *big.Int) (*types.Transaction, error)
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// Config 描述发布参数。
type Config struct {
	Symbol            string
	Decimals          int32
	RegistrationStake *big.Int
}

// Result 是一次成功发布的结果。
type Result struct {
	Sample         pricefeed.Sample
	Amount         *big.Int
	TxHash         common.Hash
	RegistrationTx *common.Hash
}

// Status 用于健康检查。
type Status struct {
	Runs        int64     `json:"runs"`
	Submissions int64     `json:"submissions"`
	Registered  bool      `json:"registered"`
	LastRun     time.Time `json:"lastRun,omitempty"`
	LastTxHash  string    `json:"lastTxHash,omitempty"`
	LastPrice   string    `json:"lastPrice,omitempty"`
	LastError   string    `json:"lastError,omitempty"`
}

// Option 定义可选配置。
type Option func(*Publisher)

// WithLogger 替换默认日志实例。
func WithLogger(l *slog.Logger) Option {
	return func(p *Publisher) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithAuditLogger 替换审计日志实例。
func WithAuditLogger(l *slog.Logger) Option {
	return func(p *Publisher) {
		if l != nil {
			p.audit = l
		}
	}
}

// WithSink 设置价格更新的投递目标。
func WithSink(sink feed.Sink) Option {
	return func(p *Publisher) {
		if sink != nil {
			p.sink = sink
		}
	}
}

// WithClock 替换时间函数，便于测试。
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		if now != nil {
			p.now = now
		}
	}
}

// Publisher 负责抓取价格、确保代理已注册并提交价格交易。
type Publisher struct {
	source   pricefeed.SpotSource
	contract OracleContract
	identity *oracle.Identity
	sink     feed.Sink
	cfg      Config

	logger *slog.Logger
	audit  *slog.Logger
	now    func() time.Time

	runMu      sync.Mutex
	registered bool

	statusMu sync.RWMutex
	status   Status
}

// New 创建发布器。identity 仅用于日志与价格流中的代理地址。
func New(source pricefeed.SpotSource, contract OracleContract, identity *oracle.Identity, cfg Config, opts ...Option) (*Publisher, error) {
	if source == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置现货数据源")
	}
	if contract == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置预言机合约")
	}
	if identity == nil {
		return nil, xerrors.New(xerrors.CodeSigningFailure, "未配置代理签名身份")
	}
	if strings.TrimSpace(cfg.Symbol) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "交易对不能为空")
	}
	if cfg.Decimals <= 0 {
		cfg.Decimals = pricefeed.DefaultDecimals
	}
	if cfg.RegistrationStake == nil || cfg.RegistrationStake.Sign() <= 0 {
		cfg.RegistrationStake = big.NewInt(100_000_000)
	}

	p := &Publisher{
		source:   source,
		contract: contract,
		identity: identity,
		sink:     feed.Nop{},
		cfg:      cfg,
		logger:   logger.Named("publisher"),
		audit:    logger.Audit(),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// PublishOnce 执行一次完整的发布流程。获取价格失败时不会发起任何交易。
func (p *Publisher) PublishOnce(ctx context.Context) (Result, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	result, err := p.publish(ctx)
	p.record(result, err)
	return result, err
}

func (p *Publisher) publish(ctx context.Context) (Result, error) {
	var result Result
	agent := p.identity.Address().Hex()

	sample, err := p.source.Spot(ctx, p.cfg.Symbol)
	if err == nil && !sample.Usable() {
		err = xerrors.New(xerrors.CodeInvalidAmount, "价格不可用", xerrors.WithMetadata("value", sample.Value.String()))
	}
	if err != nil {
		metrics.PublishOutcome(metrics.OutcomeFetchFailed)
		p.logger.Warn("获取价格失败，跳过本轮提交",
			slog.String("source", p.source.Name()),
			slog.String("symbol", p.cfg.Symbol),
			slog.Any("error", err))
		return result, err
	}
	result.Sample = sample

	regTx, err := p.ensureRegistered(ctx)
	if err != nil {
		metrics.PublishOutcome(metrics.OutcomeRegistrationFail)
		p.logger.Error("代理注册检查失败，跳过本轮提交", slog.String("agent", agent), slog.Any("error", err))
		return result, err
	}
	result.RegistrationTx = regTx

	amount, err := pricefeed.ToFixedPoint(sample.Value, p.cfg.Decimals)
	if err != nil {
		metrics.PublishOutcome(metrics.OutcomeFetchFailed)
		p.logger.Warn("价格无法转换为定点数", slog.String("value", sample.Value.String()), slog.Any("error", err))
		return result, err
	}
	result.Amount = amount

	tx, err := p.contract.SubmitPrice(ctx, amount)
	if err != nil {
		metrics.PublishOutcome(metrics.OutcomeSubmitFailed)
		p.logger.Error("提交价格失败",
			slog.String("symbol", p.cfg.Symbol),
			slog.String("amount", amount.String()),
			slog.Any("error", err))
		p.audit.Error("submit_price_failed",
			slog.String("agent", agent),
			slog.String("symbol", p.cfg.Symbol),
			slog.String("amount", amount.String()),
			slog.String("error", err.Error()))
		return result, err
	}
	result.TxHash = tx.Hash()

	now := p.now()
	metrics.PublishOutcome(metrics.OutcomeSubmitted)
	metrics.PricePublished(p.cfg.Symbol, sample.Value.InexactFloat64(), now)
	p.logger.Info("价格已提交",
		slog.String("symbol", p.cfg.Symbol),
		slog.String("price", sample.Value.String()),
		slog.String("tx", tx.Hash().Hex()))
	p.audit.Info("submit_price",
		slog.String("agent", agent),
		slog.String("symbol", p.cfg.Symbol),
		slog.String("source", sample.Source),
		slog.String("price", sample.Value.String()),
		slog.String("amount", amount.String()),
		slog.String("tx", tx.Hash().Hex()))

	update := feed.Update{
		Symbol:      p.cfg.Symbol,
		Price:       sample.Value.String(),
		Amount:      amount.String(),
		Sources:     []string{sample.Source},
		TxHash:      tx.Hash().Hex(),
		Agent:       agent,
		PublishedAt: now.UTC(),
	}
	if err := p.sink.Publish(ctx, update); err != nil {
		p.logger.Warn("价格更新投递失败", slog.Any("error", err))
	}
	return result, nil
}

// ensureRegistered 在首次成功之前的每一轮检查注册状态，未注册时发送且仅发送一笔注册交易。
func (p *Publisher) ensureRegistered(ctx context.Context) (*common.Hash, error) {
	if p.registered {
		return nil, nil
	}
	registered, err := p.contract.IsRegistered(ctx)
	if err != nil {
		return nil, err
	}
	if registered {
		p.registered = true
		return nil, nil
	}

	agent := p.identity.Address().Hex()
	tx, err := p.contract.Register(ctx, p.cfg.RegistrationStake)
	if err != nil {
		p.audit.Error("register_agent_failed", slog.String("agent", agent), slog.String("error", err.Error()))
		return nil, err
	}
	hash := tx.Hash()
	metrics.RegistrationSubmitted()
	p.audit.Info("register_agent",
		slog.String("agent", agent),
		slog.String("stake", p.cfg.RegistrationStake.String()),
		slog.String("tx", hash.Hex()))

	// 注册交易已广播，即便等待回执失败也不再重复注册。
	p.registered = true
	if _, err := p.contract.WaitMined(ctx, tx); err != nil {
		return &hash, xerrors.Wrap(xerrors.CodeNotRegistered, err, "注册交易未确认",
			xerrors.WithMetadata("tx", hash.Hex()))
	}
	p.logger.Info("代理注册完成", slog.String("agent", agent), slog.String("tx", hash.Hex()))
	return &hash, nil
}

func (p *Publisher) record(result Result, err error) {
	p.statusMu.Lock()
	defer p.statusMu.Unlock()

	p.status.Runs++
	p.status.LastRun = p.now().UTC()
	p.status.Registered = p.registered
	if err != nil {
		p.status.LastError = err.Error()
		return
	}
	p.status.Submissions++
	p.status.LastError = ""
	p.status.LastTxHash = result.TxHash.Hex()
	p.status.LastPrice = result.Sample.Value.String()
}

// Status 返回最近一次运行的状态快照。
func (p *Publisher) Status() Status {
	p.statusMu.RLock()
	defer p.statusMu.RUnlock()
	return p.status
}

// Task 是定时发布任务的句柄。
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Schedule 立即执行一次，然后每隔 interval 执行一次。所有运行都在同一个
// goroutine 中完成，因此不会重叠；耗时过长的运行会跳过错过的节拍。
func (p *Publisher) Schedule(ctx context.Context, interval time.Duration) *Task {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ctx, cancel := context.WithCancel(ctx)
	task := &Task{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(task.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		p.runScheduled(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.runScheduled(ctx)
			}
		}
	}()
	return task
}

func (p *Publisher) runScheduled(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := p.PublishOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
		p.logger.Debug("本轮发布未完成", slog.Any("error", err))
	}
}

// Stop 取消任务并等待当前运行结束。
func (t *Task) Stop() {
	t.cancel()
	<-t.done
}

// Wait 阻塞直到任务退出。
func (t *Task) Wait() {
	<-t.done
}

// Done 返回任务退出时关闭的通道。
func (t *Task) Done() <-chan struct{} {
	return t.done
}
