package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"Agentic-Oracle/internal/agent"
	"Agentic-Oracle/internal/api"
	"Agentic-Oracle/internal/cache"
	"Agentic-Oracle/internal/config"
	"Agentic-Oracle/internal/feed"
	"Agentic-Oracle/internal/llm"
	"Agentic-Oracle/internal/llm/huggingface"
	"Agentic-Oracle/internal/llm/openai"
	"Agentic-Oracle/internal/oracle"
	"Agentic-Oracle/internal/pricefeed"
	"Agentic-Oracle/internal/storage/mysql"
	"Agentic-Oracle/internal/web3/provider"
	"Agentic-Oracle/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
)

// main 是问答服务的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("oracled 运行失败: %v", err)
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

	if err := logger.Init(loggerConfig(cfg)); err != nil {
		return err
	}
	defer logger.Sync()
	lg := logger.Named("oracled")

	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return err
	}

	// 初始化推理客户端。
	inference, err := huggingface.NewClient(huggingface.Config{
		APIKey:          config.Secret(cfg.Inference.APIKey, cfg.Inference.APIKeyEnv),
		BaseURL:         cfg.Inference.BaseURL,
		ClassifierModel: cfg.Inference.ClassifierModel,
		SentimentModel:  cfg.Inference.SentimentModel,
		GeneratorModel:  cfg.Inference.GeneratorModel,
		MaxLength:       cfg.Inference.MaxLength,
		Timeout:         cfg.Inference.Timeout(),
	})
	if err != nil {
		return err
	}
	generator, err := createGenerator(cfg, inference)
	if err != nil {
		return err
	}

	store, err := openCache(ctx, cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	sourceOpts := []pricefeed.Option{pricefeed.WithTimeout(cfg.Market.Timeout())}
	aggregator := pricefeed.NewAggregator(
		pricefeed.NewBinance(cfg.Market.BinanceURL, sourceOpts...),
		pricefeed.NewBitget(cfg.Market.BitgetURL, sourceOpts...),
	)
	market := pricefeed.NewCoinGecko(cfg.Market.CoinGeckoURL, sourceOpts,
		pricefeed.WithNewsURL(cfg.Market.NewsURL),
		pricefeed.WithCache(store, cfg.Cache.TTL()),
	)

	history, err := openHistory(ctx, cfg)
	if err != nil {
		return err
	}
	if history != nil {
		defer history.Close()
	}

	prices, closeFeed, err := openFeedReader(ctx, cfg, lg)
	if err != nil {
		return err
	}
	defer closeFeed()

	serverOpts := []api.Option{
		api.WithPriceFeed(prices),
		api.WithPriceFormat(cfg.Market.Symbol, int32(cfg.Oracle.Decimals)),
		api.WithCORSOrigins(cfg.Server.CORSOrigins),
	}

	// 链上只读查询是可选的，未配置合约时相关接口返回 503。
	if cfg.Web3.Enabled() && cfg.Oracle.ContractAddress != "" {
		registry, err := provider.NewRegistry(ctx, cfg.Web3)
		if err != nil {
			return err
		}
		defer registry.Close()

		client, err := registry.DefaultClient()
		if err != nil {
			return err
		}
		contract, err := oracle.NewContract(common.HexToAddress(cfg.Oracle.ContractAddress), client.Backend(), nil)
		if err != nil {
			return err
		}
		serverOpts = append(serverOpts, api.WithChainReader(contract))
		lg.Info("已连接预言机合约",
			slog.String("chain", client.Name()),
			slog.Any("chains", registry.Chains()),
			slog.String("contract", contract.Address().Hex()))
	}

	responderOpts := []agent.Option{
		agent.WithSentimentAnalyzer(inference),
		agent.WithGenerator(generator),
		agent.WithPriceSource(aggregator),
		agent.WithMarketData(market),
		agent.WithSettings(agent.Settings{
			Asset:         cfg.Market.Asset,
			Symbol:        cfg.Market.Symbol,
			Coin:          cfg.Market.Coin,
			HistoryDays:   cfg.Market.HistoryDays,
			NewsBatchSize: cfg.Market.NewsBatchSize,
		}),
	}
	if history != nil {
		responderOpts = append(responderOpts, agent.WithHistory(history))
	}
	responder, err := agent.New(inference, responderOpts...)
	if err != nil {
		return err
	}

	printBanner()
	server := api.NewServer(cfg.Server.Address, responder, serverOpts...)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func createGenerator(cfg *config.Config, fallback llm.Generator) (llm.Generator, error) {
	switch cfg.Inference.Generator {
	case "", "huggingface":
		return fallback, nil
	case "openai":
		return openai.NewClient(openai.Config{
			APIKey:    config.Secret(cfg.Inference.OpenAI.APIKey, cfg.Inference.OpenAI.APIKeyEnv),
			BaseURL:   cfg.Inference.OpenAI.BaseURL,
			Model:     cfg.Inference.OpenAI.Model,
			MaxTokens: cfg.Inference.MaxLength,
			Timeout:   cfg.Inference.OpenAI.Timeout(),
		})
	default:
		return nil, fmt.Errorf("未知的文本生成后端: %s", cfg.Inference.Generator)
	}
}

func openCache(ctx context.Context, cfg *config.Config) (cache.Cache, error) {
	switch cfg.Cache.Driver {
	case "none":
		return nil, nil
	case "", "memory":
		return cache.NewMemory(1024), nil
	case "redis":
		return cache.NewRedis(ctx, cache.RedisOptions{
			Address:  cfg.Cache.Redis.Address,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			Prefix:   cfg.Cache.Redis.Key,
		})
	default:
		return nil, fmt.Errorf("未知的缓存驱动: %s", cfg.Cache.Driver)
	}
}

func openHistory(ctx context.Context, cfg *config.Config) (mysql.ChatRepository, error) {
	hs := cfg.Storage.History
	switch hs.Driver {
	case "none":
		return nil, nil
	case "", "memory":
		return mysql.NewMemoryChatRepository(0), nil
	case "mysql":
		return mysql.NewSQLChatRepository(ctx, mysql.Config{
			DSN:             hs.DSN,
			MaxOpenConns:    hs.MaxOpenConns,
			MaxIdleConns:    hs.MaxIdleConns,
			ConnMaxLifetime: time.Duration(hs.ConnMaxLifetimeSeconds) * time.Second,
		})
	default:
		return nil, fmt.Errorf("未知的聊天记录驱动: %s", hs.Driver)
	}
}

// openFeedReader 返回价格历史的读取端。RabbitMQ 只能投递，因此把队列镜像到本地环形缓冲区。
func openFeedReader(ctx context.Context, cfg *config.Config, lg *slog.Logger) (feed.Reader, func(), error) {
	noop := func() {}
	switch cfg.Feed.Driver {
	case "none":
		return feed.Nop{}, noop, nil
	case "", "memory":
		// 发布器在另一个进程，内存环形缓冲区永远收不到更新。
		lg.Warn("价格流使用 memory 驱动，价格历史接口将返回 503", slog.String("hint", "feed.driver=redis|rabbitmq"))
		return feed.NewDetached(cfg.Feed.Driver), noop, nil
	case "redis":
		r, err := feed.NewRedis(ctx, feed.RedisConfig{
			Address:  cfg.Feed.Redis.Address,
			Password: cfg.Feed.Redis.Password,
			DB:       cfg.Feed.Redis.DB,
			Key:      cfg.Feed.Redis.Key,
			Capacity: cfg.Feed.Capacity,
		})
		if err != nil {
			return nil, noop, err
		}
		return r, func() { _ = r.Close() }, nil
	case "rabbitmq":
		q, err := feed.NewRabbitMQ(feed.RabbitMQConfig{
			URL:     cfg.Feed.RabbitMQ.URL,
			Queue:   cfg.Feed.RabbitMQ.Queue,
			Durable: cfg.Feed.RabbitMQ.Durable,
		})
		if err != nil {
			return nil, noop, err
		}
		ring := feed.NewMemory(cfg.Feed.Capacity)
		go func() {
			if err := q.Mirror(ctx, ring); err != nil && !errors.Is(err, context.Canceled) {
				lg.Warn("价格队列消费中断", slog.Any("error", err))
			}
		}()
		return ring, func() { _ = q.Close() }, nil
	default:
		return nil, noop, fmt.Errorf("未知的价格流驱动: %s", cfg.Feed.Driver)
	}
}

func loggerConfig(cfg *config.Config) logger.Config {
	return logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.Outputs,
		Audit: logger.AuditConfig{
			Enabled: cfg.Logging.AuditEnabled,
			Path:    cfg.Logging.AuditPath,
		},
	}
}

func printBanner() {
	fmt.Println(`
     _                    _   _         ___                 _
    / \   __ _  ___ _ __ | |_(_) ___   / _ \ _ __ __ _  ___| | ___
   / _ \ / _' |/ _ \ '_ \| __| |/ __| | | | | '__/ _' |/ __| |/ _ \
  / ___ \ (_| |  __/ | | | |_| | (__  | |_| | | | (_| | (__| |  __/
 /_/   \_\__, |\___|_| |_|\__|_|\___|  \___/|_|  \__,_|\___|_|\___|
         |___/`)
	fmt.Println("    Welcome To Agentic-Oracle")
}
