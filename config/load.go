package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"options-mm/infrastructure/logger"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env         string            `yaml:"env"`
	Gateway     GatewayConfig     `yaml:"gateway"`
	MarketMaker MarketMakerConfig `yaml:"marketMaker"`
	Log         logger.Config     `yaml:"log"`
	HTTP        HTTPConfig        `yaml:"http"`
}

type GatewayConfig struct {
	APIKey    string  `yaml:"apiKey"`
	APISecret string  `yaml:"apiSecret"`
	URL       string  `yaml:"url"`
	RateLimit float64 `yaml:"rateLimit"` // 每秒发送批次数
	Burst     int     `yaml:"burst"`
}

// MarketMakerConfig 报价与风控参数，可热更新。
type MarketMakerConfig struct {
	TimeBetweenCyclesSeconds int             `yaml:"timeBetweenCyclesSeconds"`
	FuturesSpreadFraction    decimal.Decimal `yaml:"futuresSpreadFraction"`
	FairVolatility           float64         `yaml:"fairVolatility"`
	VolatilitySpreadFraction float64         `yaml:"volatilitySpreadFraction"`
	NumLevels                int             `yaml:"numLevels"`
	QuantityOnLevel          int64           `yaml:"quantityOnLevel"`
	DeltaLimit               float64         `yaml:"deltaLimit"`
	VegaLimit                float64         `yaml:"vegaLimit"`
	MaxBatchSize             int             `yaml:"maxBatchSize"`
	FairPriceSource          string          `yaml:"fairPriceSource"` // last 或 mid
	QueueSize                int             `yaml:"queueSize"`
	ShutdownGraceSeconds     int             `yaml:"shutdownGraceSeconds"`
}

func (c MarketMakerConfig) TimeBetweenCycles() time.Duration {
	return time.Duration(c.TimeBetweenCyclesSeconds) * time.Second
}

func (c MarketMakerConfig) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownGraceSeconds) * time.Second
}

type HTTPConfig struct {
	Addr        string   `yaml:"addr"` // 为空时不启动状态接口
	CORSOrigins []string `yaml:"corsOrigins"`
}

const (
	defaultQueueSize     = 4096
	defaultShutdownGrace = 10
	defaultRateLimit     = 10
	defaultBurst         = 20
)

// Load reads YAML config from path, fills defaults and validates.
func Load(path string) (AppConfig, error) {
	cfg, err := parse(path)
	if err != nil {
		return cfg, err
	}
	return cfg, Validate(cfg)
}

func parse(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	applyDefaults(&cfg)
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides sensitive fields from env vars if present.
// 当前目录下的 .env 会先被载入（不覆盖已有环境变量）。
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	if err := LoadDotEnv(); err != nil {
		return AppConfig{}, err
	}
	cfg, err := parse(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("MM_GATEWAY_API_KEY"); v != "" {
		cfg.Gateway.APIKey = v
	}
	if v := os.Getenv("MM_GATEWAY_API_SECRET"); v != "" {
		cfg.Gateway.APISecret = v
	}
	if v := os.Getenv("MM_GATEWAY_URL"); v != "" {
		cfg.Gateway.URL = v
	}
	return cfg, Validate(cfg)
}

// LoadDotEnv 载入 .env 文件，文件不存在时忽略。
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Log.Level == "" {
		cfg.Log = logger.DefaultConfig()
	}
	if cfg.Gateway.RateLimit == 0 {
		cfg.Gateway.RateLimit = defaultRateLimit
	}
	if cfg.Gateway.Burst == 0 {
		cfg.Gateway.Burst = defaultBurst
	}
	mm := &cfg.MarketMaker
	if mm.FairPriceSource == "" {
		mm.FairPriceSource = "last"
	}
	if mm.QueueSize == 0 {
		mm.QueueSize = defaultQueueSize
	}
	if mm.ShutdownGraceSeconds == 0 {
		mm.ShutdownGraceSeconds = defaultShutdownGrace
	}
}
