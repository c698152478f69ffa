package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

const sampleConfig = `
env: dev
feed:
  index: eth_usd
  maxRetries: 3
estimator:
  lookbackDays: 7
log:
  level: debug
redis:
  addr: localhost:6379
  stream: vol
alert:
  volThreshold: 1.5
`

func TestLoad(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Env != "dev" || cfg.Feed.Index != "eth_usd" || cfg.Feed.MaxRetries != 3 {
		t.Fatalf("unexpected cfg values: %+v", cfg)
	}
	// 未设置的字段沿用默认值
	if cfg.Feed.Endpoint != Default().Feed.Endpoint || cfg.Feed.SeedRange != "1y" {
		t.Fatalf("defaults not kept: %+v", cfg.Feed)
	}
	if cfg.Estimator.Lookback() != 7*24*time.Hour {
		t.Fatalf("lookback = %s", cfg.Estimator.Lookback())
	}
	if cfg.Log.Level != "debug" || cfg.Alert.VolThreshold != 1.5 {
		t.Fatalf("unexpected cfg values: %+v", cfg)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)
	t.Setenv("VOLIDX_FEED_ENDPOINT", "ws://127.0.0.1:9999")
	t.Setenv("VOLIDX_REDIS_ADDR", "redis:6380")
	t.Setenv("VOLIDX_LOG_LEVEL", "warn")
	cfg, err := LoadWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Feed.Endpoint != "ws://127.0.0.1:9999" || cfg.Redis.Addr != "redis:6380" || cfg.Log.Level != "warn" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
}

func TestLoadWithEnvOverridesValidates(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)
	t.Setenv("VOLIDX_LOG_LEVEL", "loud")
	if _, err := LoadWithEnvOverrides(path); err == nil {
		t.Fatalf("expected invalid log level to fail")
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(AppConfig{}); err == nil {
		t.Fatalf("expected error for empty config")
	}
	if err := Validate(Default()); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	cases := map[string]func(*AppConfig){
		"no index":          func(c *AppConfig) { c.Feed.Index = "" },
		"zero lookback":     func(c *AppConfig) { c.Estimator.LookbackDays = 0 },
		"negative retries":  func(c *AppConfig) { c.Feed.MaxRetries = -1 },
		"redis w/o stream":  func(c *AppConfig) { c.Redis.Addr = "x:1"; c.Redis.Stream = "" },
		"negative vol":      func(c *AppConfig) { c.Alert.VolThreshold = -0.1 },
		"bad level":         func(c *AppConfig) { c.Log.Level = "verbose" },
		"negative throttle": func(c *AppConfig) { c.Alert.ThrottleSeconds = -1 },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(&cfg)
		if err := Validate(cfg); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
