package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"Agentic-Oracle/internal/config"
	"Agentic-Oracle/internal/feed"
	"Agentic-Oracle/internal/observability/metrics"
	"Agentic-Oracle/internal/oracle"
	"Agentic-Oracle/internal/pricefeed"
	"Agentic-Oracle/internal/publisher"
	"Agentic-Oracle/internal/web3/provider"
	"Agentic-Oracle/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
)

// main 是价格发布进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("publisherd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	configPath := os.Getenv("ORACLE_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "oracle.json")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.ValidatePublisher(); err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.Outputs,
		Audit: logger.AuditConfig{
			Enabled: cfg.Logging.AuditEnabled,
			Path:    cfg.Logging.AuditPath,
		},
	}); err != nil {
		return err
	}
	defer logger.Sync()
	lg := logger.Named("publisherd")

	registry, err := provider.NewRegistry(ctx, cfg.Web3)
	if err != nil {
		return err
	}
	defer registry.Close()

	client, err := registry.DefaultClient()
	if err != nil {
		return err
	}
	info, err := client.ChainInfo(ctx)
	if err != nil {
		return err
	}
	lg.Info("链客户端就绪", slog.Any("chains", registry.Chains()), slog.String("default", client.Name()), slog.String("chainId", info.ChainID.String()))

	// 签名身份只在启动时加载一次，之后显式传给合约绑定。
	identity, err := oracle.NewIdentity(config.Secret("", cfg.Oracle.PrivateKeyEnv), info.ChainID)
	if err != nil {
		return err
	}
	contract, err := oracle.NewContract(common.HexToAddress(cfg.Oracle.ContractAddress), client.Backend(), identity)
	if err != nil {
		return err
	}

	stake, ok := new(big.Int).SetString(cfg.Oracle.RegistrationStake, 10)
	if !ok {
		return fmt.Errorf("注册质押额无效: %s", cfg.Oracle.RegistrationStake)
	}

	source, err := createSource(cfg)
	if err != nil {
		return err
	}
	sink, err := openSink(ctx, cfg)
	if err != nil {
		return err
	}
	defer sink.Close()

	pub, err := publisher.New(source, contract, identity, publisher.Config{
		Symbol:            cfg.Publisher.Symbol,
		Decimals:          int32(cfg.Oracle.Decimals),
		RegistrationStake: stake,
	}, publisher.WithSink(sink))
	if err != nil {
		return err
	}

	fmt.Println("    Welcome To Agentic-Oracle")
	lg.Info("价格发布器已启动",
		slog.String("chain", client.Name()),
		slog.String("chain_id", info.ChainID.String()),
		slog.String("agent", identity.Address().Hex()),
		slog.String("contract", contract.Address().Hex()),
		slog.String("source", source.Name()),
		slog.Duration("interval", cfg.Publisher.Interval()))

	task := pub.Schedule(ctx, cfg.Publisher.Interval())
	defer task.Stop()

	health := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(pub.Status())
	})
	if err := metrics.StartServer(ctx, cfg.Publisher.MetricsAddress, health); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func createSource(cfg *config.Config) (pricefeed.SpotSource, error) {
	opts := []pricefeed.Option{pricefeed.WithTimeout(cfg.Market.Timeout())}
	switch cfg.Publisher.Source {
	case "", "binance":
		return pricefeed.NewBinance(cfg.Market.BinanceURL, opts...), nil
	case "bitget":
		return pricefeed.NewBitget(cfg.Market.BitgetURL, opts...), nil
	default:
		return nil, fmt.Errorf("未知的现货数据源: %s", cfg.Publisher.Source)
	}
}

func openSink(ctx context.Context, cfg *config.Config) (feed.Sink, error) {
	switch cfg.Feed.Driver {
	case "none":
		return feed.Nop{}, nil
	case "", "memory":
		return feed.NewMemory(cfg.Feed.Capacity), nil
	case "redis":
		return feed.NewRedis(ctx, feed.RedisConfig{
			Address:  cfg.Feed.Redis.Address,
			Password: cfg.Feed.Redis.Password,
			DB:       cfg.Feed.Redis.DB,
			Key:      cfg.Feed.Redis.Key,
			Capacity: cfg.Feed.Capacity,
		})
	case "rabbitmq":
		return feed.NewRabbitMQ(feed.RabbitMQConfig{
			URL:     cfg.Feed.RabbitMQ.URL,
			Queue:   cfg.Feed.RabbitMQ.Queue,
			Durable: cfg.Feed.RabbitMQ.Durable,
		})
	default:
		return nil, fmt.Errorf("未知的价格流驱动: %s", cfg.Feed.Driver)
	}
}
