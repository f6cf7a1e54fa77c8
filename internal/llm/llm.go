package llm

import (
	"context"
	"strings"

	"Agentic-Oracle/internal/intent"
)

// Classifier 使用零样本分类为文本挑选候选标签。
type Classifier interface {
	Classify(ctx context.Context, text string, labels []string) (intent.Classification, error)
}

// SentimentAnalyzer 返回文本的情绪标签（positive / negative / neutral）。
type SentimentAnalyzer interface {
	Sentiment(ctx context.Context, text string) (string, error)
}

// Generator 根据提示词生成一段续写文本。
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// 情绪标签。
const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
)

// NormalizeSentiment 将模型输出的标签统一为 positive、negative 或 neutral。
func NormalizeSentiment(label string) string {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "pos", "positive", "label_2":
		return SentimentPositive
	case "neg", "negative", "label_0":
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}
