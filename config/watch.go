package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"vol-index-go/infrastructure/logger"
)

// Watcher 监听配置文件变化并回调最新配置。
// 监听的是所在目录，编辑器先写临时文件再 rename 的情况也能捕获。
type Watcher struct {
	Path     string
	Cooldown time.Duration // 两次重载的最小间隔，避免一次保存触发多次
	Logger   *logger.Logger
}

// Start blocks until ctx is done; onUpdate receives every config that loads and validates.
func (w Watcher) Start(ctx context.Context, onUpdate func(AppConfig)) error {
	log := w.Logger
	if log == nil {
		log = logger.Nop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	target := filepath.Clean(w.Path)
	if err := fw.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch config dir: %w", err)
	}

	var lastReload time.Time
	reload := func() {
		cfg, err := LoadWithEnvOverrides(target)
		if err != nil {
			// 保留旧配置
			log.Warn("config reload rejected", zap.String("path", target), zap.Error(err))
			return
		}
		lastReload = time.Now()
		log.LogEvent("config_reloaded", map[string]interface{}{
			"path":     target,
			"logLevel": cfg.Log.Level,
		})
		if onUpdate != nil {
			onUpdate(cfg)
		}
	}

	// 冷却期内的写入推迟到冷却结束再读一次，最后一次保存不会丢
	var pending *time.Timer
	var pendingC <-chan time.Time
	defer func() {
		if pending != nil {
			pending.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-pendingC:
			pending, pendingC = nil, nil
			reload()
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			// 只处理写入和创建事件
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if wait := w.Cooldown - time.Since(lastReload); wait > 0 {
				if pending == nil {
					pending = time.NewTimer(wait)
					pendingC = pending.C
				}
				continue
			}
			reload()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			// 记录错误但继续监听
			log.Warn("config watcher error", zap.Error(err))
		}
	}
}
