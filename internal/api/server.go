package api

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"Agentic-Oracle/internal/agent"
	"Agentic-Oracle/internal/feed"
	"Agentic-Oracle/internal/oracle"
	"Agentic-Oracle/internal/storage/mysql"
	"Agentic-Oracle/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
)

// Responder 是 /query 背后的业务接口，*agent.Responder 实现了该接口。
type Responder interface {
	Respond(ctx context.Context, q agent.Query) (agent.Reply, error)
	ListHistory(ctx context.Context, userID string, limit int) ([]mysql.ChatMessage, error)
}

// ChainReader 提供只读的链上查询，*oracle.Contract 实现了该接口。
type ChainReader interface {
	AgentDetails(ctx context.Context, addr common.Address) (oracle.AgentDetails, error)
	LatestPrice(ctx context.Context) (*big.Int, error)
}

// Server 负责暴露 REST 接口。
type Server struct {
	addr      string
	responder Responder
	chain     ChainReader
	prices    feed.Reader
	symbol    string
	decimals  int32
	origins   []string
	logger    *slog.Logger
}

// Option 定义可选配置。
type Option func(*Server)

// WithChainReader 启用链上查询接口。
func WithChainReader(chain ChainReader) Option {
	return func(s *Server) { s.chain = chain }
}

// WithPriceFeed 启用价格历史接口。
func WithPriceFeed(reader feed.Reader) Option {
	return func(s *Server) { s.prices = reader }
}

// WithPriceFormat 设置链上价格的交易对与定点精度。
func WithPriceFormat(symbol string, decimals int32) Option {
	return func(s *Server) {
		if symbol != "" {
			s.symbol = symbol
		}
		if decimals > 0 {
			s.decimals = decimals
		}
	}
}

// WithCORSOrigins 设置允许跨域访问的来源。
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.origins = origins
		}
	}
}

// WithLogger 替换默认日志实例。
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, responder Responder, opts ...Option) *Server {
	s := &Server{
		addr:      addr,
		responder: responder,
		symbol:    "ETHUSDT",
		decimals:  8,
		origins:   []string{"*"},
		logger:    logger.Named("api"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Info("API 服务已启动", slog.String("addr", s.addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
