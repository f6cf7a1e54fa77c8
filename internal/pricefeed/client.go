package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	xerrors "Agentic-Oracle/internal/errors"
	"Agentic-Oracle/internal/observability/metrics"
)

const maxBodyBytes = 4 << 20

// Option 定义行情数据源的可选配置。
type Option func(*httpSource)

// WithHTTPClient 替换底层 HTTP 客户端，主要用于测试。
func WithHTTPClient(client *http.Client) Option {
	return func(s *httpSource) {
		if client != nil {
			s.client = client
		}
	}
}

// WithTimeout 设置请求超时。
func WithTimeout(timeout time.Duration) Option {
	return func(s *httpSource) {
		if timeout > 0 {
			s.client = &http.Client{Timeout: timeout}
		}
	}
}

// WithClock 替换时间函数。
func WithClock(now func() time.Time) Option {
	return func(s *httpSource) {
		if now != nil {
			s.now = now
		}
	}
}

// httpSource 封装了各数据源共用的 GET + JSON 解析逻辑。
type httpSource struct {
	name    string
	baseURL string
	client  *http.Client
	now     func() time.Time
}

func newHTTPSource(name, baseURL string, opts ...Option) httpSource {
	s := httpSource{
		name:    name,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	return s
}

// getJSON 发送 GET 请求并解析 JSON 响应。任何失败都归类为 UPSTREAM_UNAVAILABLE。
func (s *httpSource) getJSON(ctx context.Context, path string, query url.Values, dest any) error {
	endpoint := s.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return s.fail(err, "构造请求失败")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return s.fail(err, "请求失败")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return s.fail(err, "读取响应失败")
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return s.fail(fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(body, 256)), "响应状态异常")
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return s.fail(err, "解析响应失败")
	}
	return nil
}

func (s *httpSource) fail(cause error, message string) error {
	metrics.UpstreamFailure(s.name)
	return xerrors.Wrap(xerrors.CodeUpstreamUnavailable, cause, s.name+" "+message,
		xerrors.WithMetadata("source", s.name))
}

func truncate(body []byte, n int) string {
	if len(body) <= n {
		return string(body)
	}
	return string(body[:n]) + "..."
}
