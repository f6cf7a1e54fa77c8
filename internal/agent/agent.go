package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	xerrors "Agentic-Oracle/internal/errors"
	"Agentic-Oracle/internal/intent"
	"Agentic-Oracle/internal/llm"
	"Agentic-Oracle/internal/observability/metrics"
	"Agentic-Oracle/internal/pricefeed"
	"Agentic-Oracle/internal/storage/mysql"
	"Agentic-Oracle/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PriceSource 返回多个现货数据源的平均价格，*pricefeed.Aggregator 实现了该接口。
type PriceSource interface {
	Average(ctx context.Context, symbol string) (decimal.Decimal, []pricefeed.Sample, error)
}

// MarketData 提供历史价格与新闻标题，*pricefeed.CoinGecko 实现了该接口。
type MarketData interface {
	History(ctx context.Context, coin string, days int) ([]pricefeed.PricePoint, error)
	Headlines(ctx context.Context, n int) ([]string, error)
}

// Settings 描述回复中涉及的资产参数。
type Settings struct {
	Asset         string
	Symbol        string
	Coin          string
	HistoryDays   int
	NewsBatchSize int
}

const (
	defaultAsset         = "ethereum"
	defaultSymbol        = "ETHUSDT"
	defaultHistoryDays   = 7
	defaultNewsBatchSize = 5
	promptPoints         = 5
	defaultHistoryLimit  = 50
)

// Responder 负责意图识别与分发，是查询服务的业务核心。
type Responder struct {
	classifier llm.Classifier
	sentiment  llm.SentimentAnalyzer
	generator  llm.Generator
	prices     PriceSource
	market     MarketData
	history    mysql.ChatRepository
	settings   Settings

	logger *slog.Logger
	audit  *slog.Logger
	now    func() time.Time
	newID  func() string
}

// Option 定义可选的 Responder 配置。
type Option func(*Responder)

// WithSentimentAnalyzer 配置情绪分析模型。
func WithSentimentAnalyzer(s llm.SentimentAnalyzer) Option {
	return func(r *Responder) { r.sentiment = s }
}

// WithGenerator 配置文本生成模型。
func WithGenerator(g llm.Generator) Option {
	return func(r *Responder) { r.generator = g }
}

// WithPriceSource 配置现货价格来源。
func WithPriceSource(p PriceSource) Option {
	return func(r *Responder) { r.prices = p }
}

// WithMarketData 配置历史价格与新闻来源。
func WithMarketData(m MarketData) Option {
	return func(r *Responder) { r.market = m }
}

// WithHistory 配置聊天记录仓库，未配置时不保存。
func WithHistory(repo mysql.ChatRepository) Option {
	return func(r *Responder) { r.history = repo }
}

// WithSettings 覆盖资产参数，零值字段保持默认。
func WithSettings(s Settings) Option {
	return func(r *Responder) {
		if s.Asset != "" {
			r.settings.Asset = s.Asset
		}
		if s.Symbol != "" {
			r.settings.Symbol = s.Symbol
		}
		if s.Coin != "" {
			r.settings.Coin = s.Coin
		}
		if s.HistoryDays > 0 {
			r.settings.HistoryDays = s.HistoryDays
		}
		if s.NewsBatchSize > 0 {
			r.settings.NewsBatchSize = s.NewsBatchSize
		}
	}
}

// WithLogger 替换默认日志实例。
func WithLogger(l *slog.Logger) Option {
	return func(r *Responder) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithAuditLogger 替换审计日志实例。
func WithAuditLogger(l *slog.Logger) Option {
	return func(r *Responder) {
		if l != nil {
			r.audit = l
		}
	}
}

// WithClock 替换时间函数。
func WithClock(now func() time.Time) Option {
	return func(r *Responder) {
		if now != nil {
			r.now = now
		}
	}
}

// New 创建一个 Responder，分类器为必需依赖。
func New(classifier llm.Classifier, opts ...Option) (*Responder, error) {
	if classifier == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置意图分类模型")
	}
	r := &Responder{
		classifier: classifier,
		settings: Settings{
			Asset:         defaultAsset,
			Symbol:        defaultSymbol,
			HistoryDays:   defaultHistoryDays,
			NewsBatchSize: defaultNewsBatchSize,
		},
		logger: logger.Named("agent"),
		audit:  logger.Audit(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.settings.Coin == "" {
		r.settings.Coin = r.settings.Asset
	}
	return r, nil
}

// Respond 识别查询意图并生成回复。返回错误时 Reply 仍然是可以直接输出的错误回复：
// 未知意图与空查询对应 INVALID_ARGUMENT / UNKNOWN_INTENT，分类失败对应其它错误码。
func (r *Responder) Respond(ctx context.Context, q Query) (Reply, error) {
	text := strings.TrimSpace(q.UserQuery)
	if text == "" {
		return ErrorReply(MsgEmptyQuery), xerrors.New(xerrors.CodeInvalidArgument, "查询内容不能为空")
	}

	classification, err := r.classifier.Classify(ctx, text, intent.Labels)
	if err != nil {
		r.logger.Error("意图识别失败", slog.String("user", q.UserID), slog.Any("error", err))
		return ErrorReply(MsgInternalError), err
	}

	kind := classification.Top()
	metrics.IntentClassified(kind.String())
	r.audit.Info("query",
		slog.String("user", q.UserID),
		slog.String("intent", kind.String()),
		slog.Float64("score", classification.TopScore()))

	reply, err := r.dispatch(ctx, kind, text)
	r.record(ctx, q, kind, reply)
	return reply, err
}

// dispatch 对所有意图做穷尽分发。
func (r *Responder) dispatch(ctx context.Context, kind intent.Kind, text string) (Reply, error) {
	switch kind {
	case intent.Price:
		return r.price(ctx), nil
	case intent.Sentiment:
		return r.sentimentReply(ctx, text), nil
	case intent.Prediction:
		return r.prediction(ctx), nil
	case intent.News:
		return r.news(ctx), nil
	case intent.Stake:
		if amount, ok := intent.ExtractAmount(text); ok {
			return Reply{Type: TypeStakeAmount, Action: flag(true), Data: AmountData{Amount: amount}}, nil
		}
		return Reply{Type: TypeStaking, Action: flag(false), Data: MsgStakingHelp}, nil
	case intent.Unstake:
		if amount, ok := intent.ExtractAmount(text); ok {
			return Reply{Type: TypeUnstakeAmount, Action: flag(true), Data: AmountData{Amount: amount}}, nil
		}
		return Reply{Type: TypeUnstaking, Data: MsgUnstakingHelp}, nil
	case intent.Reward:
		if amount, ok := intent.ExtractAmount(text); ok {
			return Reply{Type: TypeReward, Action: flag(true), Data: AmountData{Amount: amount}}, nil
		}
		return Reply{Type: TypeRewardCount, Action: flag(true), Data: struct{}{}}, nil
	case intent.Unknown:
		fallthrough
	default:
		return ErrorReply(MsgUnknownQuery), xerrors.New(xerrors.CodeUnknownIntent, "")
	}
}

func (r *Responder) price(ctx context.Context) Reply {
	if r.prices == nil {
		return Reply{Type: TypePrice, Data: MsgPriceUnavailable}
	}
	avg, samples, err := r.prices.Average(ctx, r.settings.Symbol)
	if err != nil {
		r.logger.Warn("获取现货价格失败", slog.String("symbol", r.settings.Symbol), slog.Any("error", err))
		return Reply{Type: TypePrice, Data: MsgPriceUnavailable}
	}
	r.logger.Debug("现货价格", slog.String("average", avg.String()), slog.Int("sources", len(samples)))
	return Reply{Type: TypePrice, Data: fmt.Sprintf("Current price of %s is : $%s", r.settings.Asset, avg.String())}
}

func (r *Responder) sentimentReply(ctx context.Context, text string) Reply {
	label := r.classifySentiment(ctx, text)
	return Reply{
		Type: TypeSentiment,
		Data: fmt.Sprintf("According to my study the current sentiment of %s is %s", r.settings.Asset, label),
	}
}

// classifySentiment 在模型不可用时返回 neutral。
func (r *Responder) classifySentiment(ctx context.Context, text string) string {
	if r.sentiment == nil {
		return llm.SentimentNeutral
	}
	label, err := r.sentiment.Sentiment(ctx, text)
	if err != nil {
		r.logger.Warn("情绪分析失败", slog.Any("error", err))
		return llm.SentimentNeutral
	}
	return llm.NormalizeSentiment(label)
}

func (r *Responder) prediction(ctx context.Context) Reply {
	if r.market == nil {
		return Reply{Type: TypePrediction, Data: MsgHistoryUnavailable}
	}
	points, err := r.market.History(ctx, r.settings.Coin, r.settings.HistoryDays)
	if err != nil || len(points) == 0 {
		r.logger.Warn("获取历史价格失败", slog.String("coin", r.settings.Coin), slog.Any("error", err))
		return Reply{Type: TypePrediction, Data: MsgHistoryUnavailable}
	}
	if r.generator == nil {
		return Reply{Type: TypePrediction, Data: MsgPredictionUnavailable}
	}

	prompt := PredictionPrompt(pricefeed.LastPrices(points, promptPoints))
	completion, err := r.generator.Generate(ctx, prompt)
	if err != nil {
		r.logger.Warn("生成预测失败", slog.Any("error", err))
		return Reply{Type: TypePrediction, Data: MsgPredictionUnavailable}
	}
	return Reply{Type: TypePrediction, Data: completion}
}

// PredictionPrompt 构造预测提示词。
func PredictionPrompt(prices []decimal.Decimal) string {
	parts := make([]string, 0, len(prices))
	for _, p := range prices {
		parts = append(parts, p.String())
	}
	return fmt.Sprintf("Given the last %d prices: %s, predict trend:", promptPoints, strings.Join(parts, ", "))
}

func (r *Responder) news(ctx context.Context) Reply {
	if r.market == nil {
		return Reply{Type: TypeNews, Data: MsgNewsUnavailable}
	}
	headlines, err := r.market.Headlines(ctx, r.settings.NewsBatchSize)
	if err != nil {
		r.logger.Warn("获取新闻失败", slog.Any("error", err))
		return Reply{Type: TypeNews, Data: MsgNewsUnavailable}
	}

	sentiments := make([]string, len(headlines))
	var wg sync.WaitGroup
	for i, headline := range headlines {
		wg.Add(1)
		go func(i int, headline string) {
			defer wg.Done()
			sentiments[i] = r.classifySentiment(ctx, headline)
		}(i, headline)
	}
	wg.Wait()

	return Reply{Type: TypeNews, Data: NewsData{Headlines: headlines, Sentiments: sentiments}}
}

// record 保存一问一答两条消息，失败只记录日志。
func (r *Responder) record(ctx context.Context, q Query, kind intent.Kind, reply Reply) {
	if r.history == nil || strings.TrimSpace(q.UserID) == "" {
		return
	}
	now := r.now().Unix()
	label := kind.String()
	messages := []mysql.ChatMessage{
		{ID: r.newID(), UserID: q.UserID, Role: mysql.RoleUser, Content: q.UserQuery, Intent: label, CreatedAt: now},
		{ID: r.newID(), UserID: q.UserID, Role: mysql.RoleBot, Content: replyContent(reply), Intent: label, CreatedAt: now},
	}
	if err := r.history.Save(ctx, messages...); err != nil {
		r.logger.Warn("保存聊天记录失败", slog.String("user", q.UserID), slog.Any("error", err))
	}
}

func replyContent(reply Reply) string {
	if s, ok := reply.Data.(string); ok {
		return s
	}
	encoded, err := json.Marshal(reply.Data)
	if err != nil {
		return fmt.Sprint(reply.Data)
	}
	return string(encoded)
}

// ListHistory 获取某个用户最近的聊天记录，按时间正序排列。
func (r *Responder) ListHistory(ctx context.Context, userID string, limit int) ([]mysql.ChatMessage, error) {
	if r.history == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置聊天记录仓库")
	}
	if strings.TrimSpace(userID) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "用户 ID 不能为空")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	messages, err := r.history.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询聊天记录失败")
	}
	return messages, nil
}
