package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"vol-index-go/infrastructure/logger"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env       string          `yaml:"env"`
	Feed      FeedConfig      `yaml:"feed"`
	Estimator EstimatorConfig `yaml:"estimator"`
	Log       logger.Config   `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Redis     RedisConfig     `yaml:"redis"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Alert     AlertConfig     `yaml:"alert"`
}

type FeedConfig struct {
	Endpoint       string `yaml:"endpoint"`
	Index          string `yaml:"index"`          // 指数名，例如 btc_usd
	SeedRange      string `yaml:"seedRange"`      // 历史数据范围，例如 1y
	MaxRetries     int    `yaml:"maxRetries"`     // 连续重连失败上限
	RetryBackoffMs int    `yaml:"retryBackoffMs"` // 线性退避基数（毫秒）
	ReadTimeoutMs  int    `yaml:"readTimeoutMs"`
}

type EstimatorConfig struct {
	LookbackDays int `yaml:"lookbackDays"` // 波动率窗口覆盖的天数
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // 为空则关闭 /metrics 与 /status
}

type RedisConfig struct {
	Addr   string `yaml:"addr"` // host:port 或 redis:// URL；为空则不发布
	Stream string `yaml:"stream"`
}

type ArchiveConfig struct {
	Path string `yaml:"path"` // parquet 文件路径；为空则不归档
}

type AlertConfig struct {
	VolThreshold    float64 `yaml:"volThreshold"`    // 年化波动率告警阈值，0 表示关闭
	ThrottleSeconds int     `yaml:"throttleSeconds"` // 同类告警最小间隔
	Console         bool    `yaml:"console"`         // 额外输出彩色告警到终端
}

// Lookback returns the estimator window as a duration.
func (c EstimatorConfig) Lookback() time.Duration {
	return time.Duration(c.LookbackDays) * 24 * time.Hour
}

func (c FeedConfig) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMs) * time.Millisecond
}

func (c FeedConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutMs) * time.Millisecond
}

func (c AlertConfig) Throttle() time.Duration {
	return time.Duration(c.ThrottleSeconds) * time.Second
}

// Default returns a configuration that tracks the BTC index over 30 days.
func Default() AppConfig {
	return AppConfig{
		Env: "dev",
		Feed: FeedConfig{
			Endpoint:       "wss://www.deribit.com/ws/api/v2",
			Index:          "btc_usd",
			SeedRange:      "1y",
			MaxRetries:     5,
			RetryBackoffMs: 3000,
			ReadTimeoutMs:  30000,
		},
		Estimator: EstimatorConfig{LookbackDays: 30},
		Log:       logger.DefaultConfig(),
		Metrics:   MetricsConfig{Addr: ":9100"},
		Redis:     RedisConfig{Stream: "volidx:points"},
		Alert:     AlertConfig{ThrottleSeconds: 300},
	}
}

// Load reads YAML config from path on top of Default and validates it.
func Load(path string) (AppConfig, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides deployment fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("VOLIDX_FEED_ENDPOINT"); v != "" {
		cfg.Feed.Endpoint = v
	}
	if v := os.Getenv("VOLIDX_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("VOLIDX_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	return cfg, Validate(cfg)
}
