package config

import (
	"errors"
	"fmt"

	"go.uber.org/zap/zapcore"
)

// Validate ensures required fields are present and sane.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return errors.New("env is required")
	}
	if cfg.Feed.Endpoint == "" {
		return errors.New("feed.endpoint is required")
	}
	if cfg.Feed.Index == "" {
		return errors.New("feed.index is required")
	}
	if cfg.Feed.MaxRetries < 0 {
		return errors.New("feed.maxRetries must be >= 0")
	}
	if cfg.Feed.RetryBackoffMs < 0 {
		return errors.New("feed.retryBackoffMs must be >= 0")
	}
	if cfg.Feed.ReadTimeoutMs < 0 {
		return errors.New("feed.readTimeoutMs must be >= 0")
	}
	if cfg.Estimator.LookbackDays <= 0 {
		return errors.New("estimator.lookbackDays must be > 0")
	}
	if _, err := zapcore.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if cfg.Redis.Addr != "" && cfg.Redis.Stream == "" {
		return errors.New("redis.stream is required when redis.addr is set")
	}
	if cfg.Alert.VolThreshold < 0 {
		return errors.New("alert.volThreshold must be >= 0")
	}
	if cfg.Alert.ThrottleSeconds < 0 {
		return errors.New("alert.throttleSeconds must be >= 0")
	}
	return nil
}
