// Package intent models the closed set of query intents and the helpers
// that turn a classifier label or free text into dispatchable values.
package intent

import (
	"regexp"
	"strings"
)

// Kind 是意图的标签联合类型。
type Kind int

const (
	Unknown Kind = iota
	Price
	Sentiment
	Prediction
	News
	Stake
	Unstake
	Reward
)

// Labels 是零样本分类使用的候选标签，顺序固定。
var Labels = []string{"price", "sentiment", "prediction", "news", "staking", "unstake", "reward"}

var labelKinds = map[string]Kind{
	"price":      Price,
	"sentiment":  Sentiment,
	"prediction": Prediction,
	"news":       News,
	"staking":    Stake,
	"unstake":    Unstake,
	"reward":     Reward,
}

// ParseLabel 将分类标签映射为 Kind，未知标签返回 Unknown。
func ParseLabel(label string) Kind {
	if kind, ok := labelKinds[strings.ToLower(strings.TrimSpace(label))]; ok {
		return kind
	}
	return Unknown
}

// String 返回分类器使用的标签。
func (k Kind) String() string {
	for label, kind := range labelKinds {
		if kind == k {
			return label
		}
	}
	return "unknown"
}

// Classification 是一次意图识别的结果，Labels 按置信度从高到低排列。
type Classification struct {
	Labels []string  `json:"labels"`
	Scores []float64 `json:"scores"`
}

// Top 返回置信度最高的意图。
func (c Classification) Top() Kind {
	if len(c.Labels) == 0 {
		return Unknown
	}
	return ParseLabel(c.Labels[0])
}

// TopScore 返回最高置信度，没有结果时为 0。
func (c Classification) TopScore() float64 {
	if len(c.Scores) == 0 {
		return 0
	}
	return c.Scores[0]
}

var amountPattern = regexp.MustCompile(`\d+(\.\d+)?`)

// ExtractAmount 返回文本中第一个数字子串。
func ExtractAmount(text string) (string, bool) {
	match := amountPattern.FindString(text)
	return match, match != ""
}
