package container

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"go.uber.org/zap"

	"vol-index-go/infrastructure/logger"
)

// 便于测试替换
var (
	sdNotify          = daemon.SdNotify
	sdWatchdogEnabled = daemon.SdWatchdogEnabled
)

func notifyReady(log *logger.Logger) {
	if ok, err := sdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warn("sd_notify READY failed", zap.Error(err))
	} else if ok {
		log.Info("sd_notify READY sent")
	}
}

func notifyStopping(log *logger.Logger) {
	if _, err := sdNotify(false, daemon.SdNotifyStopping); err != nil {
		log.Warn("sd_notify STOPPING failed", zap.Error(err))
	}
}

// watchdogLoop pings the systemd watchdog at half its interval while healthy.
// Without WATCHDOG_USEC it blocks until ctx is done.
func watchdogLoop(ctx context.Context, log *logger.Logger, healthy func() error) error {
	interval, err := sdWatchdogEnabled(false)
	if err != nil {
		log.Warn("systemd watchdog config invalid", zap.Error(err))
	}
	if err != nil || interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			// 不健康时停止喂狗，让 systemd 重启进程
			if herr := healthy(); herr != nil {
				log.Warn("skip watchdog ping", zap.Error(herr))
				continue
			}
			if _, err := sdNotify(false, daemon.SdNotifyWatchdog); err != nil {
				log.Warn("sd_notify WATCHDOG failed", zap.Error(err))
			}
		}
	}
}
