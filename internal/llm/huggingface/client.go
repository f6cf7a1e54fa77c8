// Package huggingface implements the llm contracts on top of the hosted
// inference API.
package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	xerrors "Agentic-Oracle/internal/errors"
	"Agentic-Oracle/internal/intent"
	"Agentic-Oracle/internal/llm"
	"Agentic-Oracle/internal/observability/metrics"
)

const (
	defaultBaseURL         = "https://api-inference.huggingface.co"
	defaultClassifierModel = "facebook/bart-large-mnli"
	defaultSentimentModel  = "finiteautomata/bertweet-base-sentiment-analysis"
	defaultGeneratorModel  = "microsoft/DialoGPT-medium"
	defaultMaxLength       = 50
	defaultTimeout         = 30 * time.Second
)

// Config 描述托管推理服务的访问参数。
type Config struct {
	APIKey          string
	BaseURL         string
	ClassifierModel string
	SentimentModel  string
	GeneratorModel  string
	MaxLength       int
	Timeout         time.Duration
}

// Client 通过 HTTP 调用托管推理接口。
type Client struct {
	apiKey          string
	baseURL         string
	classifierModel string
	sentimentModel  string
	generatorModel  string
	maxLength       int
	httpClient      *http.Client
}

// NewClient 根据配置创建客户端。
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("未提供推理服务凭证")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxLength := cfg.MaxLength
	if maxLength <= 0 {
		maxLength = defaultMaxLength
	}
	return &Client{
		apiKey:          apiKey,
		baseURL:         baseURL,
		classifierModel: orDefault(cfg.ClassifierModel, defaultClassifierModel),
		sentimentModel:  orDefault(cfg.SentimentModel, defaultSentimentModel),
		generatorModel:  orDefault(cfg.GeneratorModel, defaultGeneratorModel),
		maxLength:       maxLength,
		httpClient:      &http.Client{Timeout: timeout},
	}, nil
}

// Classify 实现 llm.Classifier。
func (c *Client) Classify(ctx context.Context, text string, labels []string) (intent.Classification, error) {
	body := map[string]any{
		"inputs":     text,
		"parameters": map[string]any{"candidate_labels": labels},
	}
	raw, err := c.post(ctx, c.classifierModel, body)
	if err != nil {
		return intent.Classification{}, err
	}

	var direct intent.Classification
	if err := json.Unmarshal(raw, &direct); err == nil && len(direct.Labels) > 0 {
		return direct, nil
	}
	// 部分部署以 [{label, score}] 列表返回。
	scored, err := decodeScored(raw)
	if err != nil || len(scored) == 0 {
		return intent.Classification{}, c.fail(c.classifierModel, fmt.Errorf("unexpected classification payload: %s", truncate(raw)))
	}
	out := intent.Classification{}
	for _, s := range scored {
		out.Labels = append(out.Labels, s.Label)
		out.Scores = append(out.Scores, s.Score)
	}
	return out, nil
}

// Sentiment 实现 llm.SentimentAnalyzer，返回得分最高的标签。
func (c *Client) Sentiment(ctx context.Context, text string) (string, error) {
	raw, err := c.post(ctx, c.sentimentModel, map[string]any{"inputs": text})
	if err != nil {
		return "", err
	}
	scored, err := decodeScored(raw)
	if err != nil || len(scored) == 0 {
		return "", c.fail(c.sentimentModel, fmt.Errorf("unexpected sentiment payload: %s", truncate(raw)))
	}
	return llm.NormalizeSentiment(scored[0].Label), nil
}

// Generate 实现 llm.Generator。
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	body := map[string]any{
		"inputs":     prompt,
		"parameters": map[string]any{"max_length": c.maxLength},
	}
	raw, err := c.post(ctx, c.generatorModel, body)
	if err != nil {
		return "", err
	}

	type generated struct {
		GeneratedText string `json:"generated_text"`
	}
	var list []generated
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		return list[0].GeneratedText, nil
	}
	var single generated
	if err := json.Unmarshal(raw, &single); err == nil && single.GeneratedText != "" {
		return single.GeneratedText, nil
	}
	return "", c.fail(c.generatorModel, fmt.Errorf("unexpected generation payload: %s", truncate(raw)))
}

type scoredLabel struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// decodeScored 兼容 [{label,score}] 与 [[{label,score}]] 两种返回，并按得分降序排列。
func decodeScored(raw []byte) ([]scoredLabel, error) {
	var nested [][]scoredLabel
	var flat []scoredLabel
	if err := json.Unmarshal(raw, &nested); err == nil && len(nested) > 0 {
		flat = nested[0]
	} else if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, err
	}
	sort.SliceStable(flat, func(i, j int) bool { return flat[i].Score > flat[j].Score })
	return flat, nil
}

func (c *Client) post(ctx context.Context, model string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("序列化推理请求失败: %w", err)
	}

	endpoint := c.baseURL + "/models/" + model
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("构建推理请求失败: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.fail(model, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, c.fail(model, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, c.fail(model, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(raw)))
	}
	return raw, nil
}

func (c *Client) fail(model string, cause error) error {
	metrics.UpstreamFailure("huggingface")
	return xerrors.Wrap(xerrors.CodeUpstreamUnavailable, cause, "推理服务调用失败",
		xerrors.WithMetadata("model", model))
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}

func truncate(raw []byte) string {
	text := strings.TrimSpace(string(raw))
	if len(text) > 200 {
		return text[:200] + "..."
	}
	return text
}

var (
	_ llm.Classifier        = (*Client)(nil)
	_ llm.SentimentAnalyzer = (*Client)(nil)
	_ llm.Generator         = (*Client)(nil)
)
