// Package openai implements llm.Generator on top of the Chat Completions API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	xerrors "Agentic-Oracle/internal/errors"
	"Agentic-Oracle/internal/llm"
	"Agentic-Oracle/internal/observability/metrics"
)

const (
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultModelName = "gpt-4o-mini"
	defaultTimeout   = 60 * time.Second
	defaultMaxTokens = 50
)

// Config 描述了调用 OpenAI Chat Completions API 所需的信息。
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// Client 通过 HTTP 调用 OpenAI 提供的大模型能力。
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	maxTokens  int
	httpClient *http.Client
}

// NewClient 根据配置创建 OpenAI 客户端。
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("未提供 OpenAI API Key")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModelName
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &Client{
		apiKey:    apiKey,
		baseURL:   baseURL,
		model:     model,
		maxTokens: maxTokens,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Generate 实现 llm.Generator，返回模型对提示词的续写。
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	payload, err := c.buildPayload(prompt)
	if err != nil {
		return "", err
	}

	endpoint := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("构建 OpenAI 请求失败: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", c.fail(fmt.Errorf("请求 OpenAI 失败: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", c.fail(fmt.Errorf("OpenAI 返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", c.fail(fmt.Errorf("解析 OpenAI 响应失败: %w", err))
	}
	if len(decoded.Choices) == 0 {
		return "", c.fail(errors.New("OpenAI 响应中没有有效的 choices"))
	}

	content := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if content == "" {
		return "", c.fail(errors.New("OpenAI 响应内容为空"))
	}
	return content, nil
}

func (c *Client) buildPayload(prompt string) ([]byte, error) {
	type message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	body := map[string]any{
		"model": c.model,
		"messages": []message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: strings.TrimSpace(prompt)},
		},
		"max_tokens":  c.maxTokens,
		"temperature": 0.2,
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("序列化 OpenAI 请求失败: %w", err)
	}
	return encoded, nil
}

func (c *Client) fail(cause error) error {
	metrics.UpstreamFailure("openai")
	return xerrors.Wrap(xerrors.CodeUpstreamUnavailable, cause, "文本生成失败")
}

const systemPrompt = "" +
	"You are a crypto market assistant. " +
	"Continue the user's prompt with one short sentence describing the likely price trend."

var _ llm.Generator = (*Client)(nil)
