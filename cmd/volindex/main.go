package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"vol-index-go/internal/container"
)

// 实时波动率指数服务。
// 用法：
//
//	go run ./cmd/volindex -config configs/volindex.yaml -metricsAddr :9100
func main() {
	cfgPath := flag.String("config", "configs/volindex.yaml", "配置文件路径")
	metricsAddr := flag.String("metricsAddr", "", "覆盖配置中的 /metrics 与 /status 监听地址")
	flag.Parse()

	c, err := container.New(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if *metricsAddr != "" {
		c.SetMetricsAddr(*metricsAddr)
	}
	if err := c.Build(); err != nil {
		log.Fatalf("初始化失败: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := c.Start(ctx); err != nil {
		log.Fatalf("启动失败: %v", err)
	}
	runErr := c.Wait()
	stopErr := c.Stop()

	if runErr != nil {
		log.Printf("运行失败: %v", runErr)
		os.Exit(1)
	}
	if stopErr != nil && !errors.Is(stopErr, context.Canceled) {
		log.Printf("停止失败: %v", stopErr)
		os.Exit(1)
	}
}
