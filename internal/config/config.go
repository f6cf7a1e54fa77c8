package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config 描述了 Agentic Oracle 两个进程在启动阶段需要加载的配置。
type Config struct {
	Server    ServerConfig    `json:"server"`
	Publisher PublisherConfig `json:"publisher"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Cache     CacheConfig     `json:"cache"`
	Feed      FeedConfig      `json:"feed"`
	Market    MarketConfig    `json:"market"`
	Inference InferenceConfig `json:"inference"`
	Web3      Web3Config      `json:"web3"`
	Oracle    OracleConfig    `json:"oracle"`
	Runtime   RuntimeConfig   `json:"runtime"`
}

// ServerConfig 控制问答服务的监听地址。
type ServerConfig struct {
	Address     string   `json:"address" default:":3002" validate:"required"`
	CORSOrigins []string `json:"cors_origins" default:"[\"*\"]"`
}

// PublisherConfig 控制价格发布进程。
type PublisherConfig struct {
	MetricsAddress  string `json:"metrics_address" default:":3003"`
	IntervalSeconds int    `json:"interval_seconds" default:"960" validate:"gt=0"`
	Symbol          string `json:"symbol" default:"ETHUSDT" validate:"required"`
	Source          string `json:"source" default:"binance" validate:"oneof=binance bitget"`
}

// Interval 返回发布周期。
func (p PublisherConfig) Interval() time.Duration {
	return time.Duration(p.IntervalSeconds) * time.Second
}

// LoggingConfig 对应 pkg/logger 的配置项。
type LoggingConfig struct {
	Level        string   `json:"level" default:"info"`
	Format       string   `json:"format" default:"json" validate:"oneof=json text"`
	Outputs      []string `json:"outputs"`
	AuditEnabled bool     `json:"audit_enabled"`
	AuditPath    string   `json:"audit_path"`
}

// StorageConfig 描述聊天记录的存储后端。
type StorageConfig struct {
	History HistoryStoreConfig `json:"history"`
}

// HistoryStoreConfig 支持 none、memory（仅进程内）与 mysql（需显式开启）。
type HistoryStoreConfig struct {
	Driver                 string `json:"driver" default:"memory" validate:"oneof=none memory mysql"`
	DSN                    string `json:"dsn" validate:"required_if=Driver mysql"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
}

// RedisConfig 是缓存与价格流共用的 Redis 连接参数。
type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Key      string `json:"key"`
}

// CacheConfig 控制外部行情接口的响应缓存。
type CacheConfig struct {
	Driver     string      `json:"driver" default:"memory" validate:"oneof=none memory redis"`
	TTLSeconds int         `json:"ttl_seconds" default:"60" validate:"gte=0"`
	Redis      RedisConfig `json:"redis"`
}

// TTL 返回缓存有效期。
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// FeedConfig 控制价格更新事件的分发方式。
type FeedConfig struct {
	Driver   string         `json:"driver" default:"memory" validate:"oneof=none memory redis rabbitmq"`
	Capacity int            `json:"capacity" default:"256" validate:"gt=0"`
	Redis    RedisConfig    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RabbitMQConfig 描述 RabbitMQ 连接参数。
type RabbitMQConfig struct {
	URL     string `json:"url"`
	Queue   string `json:"queue" default:"oracle.prices"`
	Durable bool   `json:"durable"`
}

// MarketConfig 描述行情、历史价格与新闻接口。
type MarketConfig struct {
	Asset          string `json:"asset" default:"ethereum"`
	Symbol         string `json:"symbol" default:"ETHUSDT" validate:"required"`
	Coin           string `json:"coin" default:"ethereum"`
	HistoryDays    int    `json:"history_days" default:"7" validate:"gt=0"`
	NewsBatchSize  int    `json:"news_batch_size" default:"5" validate:"gt=0"`
	TimeoutSeconds int    `json:"timeout_seconds" default:"15" validate:"gt=0"`
	BinanceURL     string `json:"binance_url" default:"https://api.binance.com"`
	BitgetURL      string `json:"bitget_url" default:"https://api.bitget.com"`
	CoinGeckoURL   string `json:"coingecko_url" default:"https://api.coingecko.com/api/v3"`
	NewsURL        string `json:"news_url"`
}

// Timeout 返回行情接口的超时时间。
func (m MarketConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutSeconds) * time.Second
}

// InferenceConfig 描述托管推理服务（零样本分类、情绪分析、文本生成）。
type InferenceConfig struct {
	BaseURL         string       `json:"base_url" default:"https://api-inference.huggingface.co"`
	APIKey          string       `json:"api_key"`
	APIKeyEnv       string       `json:"api_key_env" default:"HUGGING_FACE"`
	TimeoutSeconds  int          `json:"timeout_seconds" default:"30" validate:"gt=0"`
	ClassifierModel string       `json:"classifier_model" default:"facebook/bart-large-mnli"`
	SentimentModel  string       `json:"sentiment_model" default:"finiteautomata/bertweet-base-sentiment-analysis"`
	GeneratorModel  string       `json:"generator_model" default:"microsoft/DialoGPT-medium"`
	MaxLength       int          `json:"max_length" default:"50"`
	Generator       string       `json:"generator" default:"huggingface" validate:"oneof=huggingface openai"`
	OpenAI          OpenAIConfig `json:"openai"`
}

// Timeout 返回推理接口的超时时间。
func (i InferenceConfig) Timeout() time.Duration {
	return time.Duration(i.TimeoutSeconds) * time.Second
}

// OpenAIConfig 描述可选的 OpenAI 文本生成后端。
type OpenAIConfig struct {
	APIKey         string `json:"api_key"`
	APIKeyEnv      string `json:"api_key_env" default:"OPENAI_API_KEY"`
	BaseURL        string `json:"base_url"`
	Model          string `json:"model"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// Timeout 返回 OpenAI 请求的超时时间。
func (o OpenAIConfig) Timeout() time.Duration {
	if o.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(o.TimeoutSeconds) * time.Second
}

// Web3Config 包含访问区块链节点所需的 RPC 地址或链配置文件。
type Web3Config struct {
	RPCURL       string `json:"rpc_url"`
	ChainConfig  string `json:"chain_config"`
	DefaultChain string `json:"default_chain"`
}

// Enabled 判断是否配置了任何链端点。
func (w Web3Config) Enabled() bool {
	return strings.TrimSpace(w.RPCURL) != "" || strings.TrimSpace(w.ChainConfig) != ""
}

// OracleConfig 描述预言机合约与签名身份。
type OracleConfig struct {
	ContractAddress   string `json:"contract_address"`
	PrivateKeyEnv     string `json:"private_key_env" default:"PRIVATE_KEY"`
	Decimals          int    `json:"decimals" default:"8" validate:"gte=0,lte=18"`
	RegistrationStake string `json:"registration_stake" default:"100000000" validate:"numeric"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir"`
}

var validate = validator.New()

// LoadDotEnv 读取 .env 文件中的变量，文件不存在时静默跳过。
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	existing := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("加载 .env 失败: %w", err)
	}
	return nil
}

// Load 负责解析指定路径的 JSON 配置文件。文件不存在时全部使用默认值。
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("配置文件路径为空")
	}

	// 先填充默认值再解析文件，显式写出的 0 或空串不会被默认值覆盖。
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("填充默认配置失败: %w", err)
	}
	content, err := readFile(path)
	if err != nil {
		return nil, err
	}
	if len(content) > 0 {
		if err := json.Unmarshal(content, &cfg); err != nil {
			return nil, fmt.Errorf("解析配置失败: %w", err)
		}
	}

	cfg.applyDefaults(filepath.Dir(path))

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("配置校验失败: %w", err)
	}
	return &cfg, nil
}

func readFile(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	return content, nil
}

// applyDefaults 处理无法用标签表达的默认值，例如相对路径。
func (c *Config) applyDefaults(baseDir string) {
	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}

	if c.Web3.ChainConfig != "" && !filepath.IsAbs(c.Web3.ChainConfig) {
		c.Web3.ChainConfig = filepath.Join(baseDir, c.Web3.ChainConfig)
	}

	if c.Logging.AuditEnabled && c.Logging.AuditPath == "" {
		c.Logging.AuditPath = filepath.Join(c.Runtime.DataDir, "audit.log")
	}

	if c.Market.NewsURL == "" {
		c.Market.NewsURL = strings.TrimRight(c.Market.CoinGeckoURL, "/") + "/events"
	}

	if c.Cache.Redis.Key == "" {
		c.Cache.Redis.Key = "oracle:cache"
	}
	if c.Feed.Redis.Key == "" {
		c.Feed.Redis.Key = "oracle:prices"
	}
}

// ValidatePublisher 检查价格发布进程额外需要的字段。
func (c *Config) ValidatePublisher() error {
	if strings.TrimSpace(c.Oracle.ContractAddress) == "" {
		return errors.New("未配置预言机合约地址 oracle.contract_address")
	}
	if !common.IsHexAddress(c.Oracle.ContractAddress) {
		return fmt.Errorf("预言机合约地址格式错误: %q", c.Oracle.ContractAddress)
	}
	if !c.Web3.Enabled() {
		return errors.New("未配置任何链的 RPC 端点")
	}
	return nil
}

// Secret 优先返回显式配置的值，否则读取指定的环境变量。
func Secret(explicit, envName string) string {
	if v := strings.TrimSpace(explicit); v != "" {
		return v
	}
	if envName == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(envName))
}
