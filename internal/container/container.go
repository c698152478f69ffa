package container

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"vol-index-go/analytics"
	"vol-index-go/config"
	"vol-index-go/gateway"
	"vol-index-go/infrastructure/alert"
	"vol-index-go/infrastructure/logger"
	"vol-index-go/infrastructure/monitor"
	"vol-index-go/market"
	"vol-index-go/publish"
	"vol-index-go/storage"
)

// Container 依赖注入容器，管理所有组件的生命周期
type Container struct {
	cfg        config.AppConfig
	configPath string

	// 基础设施
	logger  *logger.Logger
	monitor *monitor.Monitor
	alerts  *alert.Manager
	guard   *alert.VolGuard

	// 行情与计算
	feed    *gateway.DeribitFeed
	service *market.Service
	tracker *analytics.Tracker

	// 下游
	sink    publish.Sink
	archive *storage.ArchiveWriter

	httpServer *httpServerComponent
	lifecycle  *LifecycleManager
	group      *errgroup.Group
	groupCtx   context.Context
}

// New 读取配置文件并创建容器
func New(configPath string) (*Container, error) {
	cfg, err := config.LoadWithEnvOverrides(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	c := NewWithConfig(cfg)
	c.configPath = configPath
	return c, nil
}

// NewWithConfig creates a container from an already validated config; no file watcher is run.
func NewWithConfig(cfg config.AppConfig) *Container {
	return &Container{
		cfg:       cfg,
		lifecycle: NewLifecycleManager(),
	}
}

// Config returns the config the container was built from.
func (c *Container) Config() config.AppConfig { return c.cfg }

// SetMetricsAddr overrides the listen address before Build.
func (c *Container) SetMetricsAddr(addr string) { c.cfg.Metrics.Addr = addr }

// Build 构建所有组件
func (c *Container) Build() error {
	if err := c.buildInfrastructure(); err != nil {
		return fmt.Errorf("build infrastructure failed: %w", err)
	}
	if err := c.buildCoreServices(); err != nil {
		return fmt.Errorf("build core services failed: %w", err)
	}
	if err := c.buildSinks(); err != nil {
		return fmt.Errorf("build sinks failed: %w", err)
	}
	c.buildFeed()
	c.registerLifecycleComponents()
	c.logger.Info("container built", zap.String("env", c.cfg.Env), zap.String("index", c.cfg.Feed.Index))
	return nil
}

func (c *Container) buildInfrastructure() error {
	log, err := logger.New(c.cfg.Log)
	if err != nil {
		return err
	}
	c.logger = log
	c.monitor = monitor.New(monitor.DefaultConfig())

	channels := []alert.Channel{alert.NewLogChannel("log", log)}
	if c.cfg.Alert.Console {
		channels = append(channels, alert.NewConsoleChannel("console", nil))
	}
	c.alerts = alert.NewManager(channels, c.cfg.Alert.Throttle())
	c.alerts.SetRecorder(c.monitor)
	c.guard = alert.NewVolGuard(c.alerts, c.cfg.Alert.VolThreshold)
	return nil
}

func (c *Container) buildCoreServices() error {
	pub := market.NewPublisher()
	c.service = market.NewService(pub, c.cfg.Estimator.Lookback())

	tracker, err := analytics.NewTracker(0.01)
	if err != nil {
		return err
	}
	c.tracker = tracker

	pub.AddSink(market.SinkFunc(c.observePoint))
	pub.AddSink(c.tracker)
	pub.AddSink(c.guard)
	return nil
}

func (c *Container) buildSinks() error {
	pub := c.service.Publisher()

	c.sink = publish.NoopSink{}
	if c.cfg.Redis.Addr != "" {
		sink, err := publish.NewRedisSink(c.cfg.Redis.Addr, c.cfg.Redis.Stream, c.logger, c.monitor)
		if err != nil {
			return err
		}
		c.sink = sink
	}
	pub.AddSink(c.sink)

	if c.cfg.Archive.Path != "" {
		w, err := storage.NewArchiveWriter(c.cfg.Archive.Path, 0)
		if err != nil {
			return err
		}
		w.OnError = func(err error) {
			c.monitor.RecordPublishError("archive")
			c.logger.LogError(err, map[string]interface{}{"component": "archive"})
		}
		c.archive = w
		pub.AddSink(w)
	}
	return nil
}

func (c *Container) buildFeed() {
	f := gateway.NewDeribitFeed(c.cfg.Feed.Index)
	f.Endpoint = c.cfg.Feed.Endpoint
	f.SeedRange = c.cfg.Feed.SeedRange
	f.MaxRetries = c.cfg.Feed.MaxRetries
	f.RetryBackoff = c.cfg.Feed.RetryBackoff()
	f.ReadTimeout = c.cfg.Feed.ReadTimeout()
	f.Logger = c.logger
	f.Observer = c.monitor
	c.feed = f
}

// observePoint 更新 prometheus，并记录非修订点。
func (c *Container) observePoint(p market.Point) {
	c.monitor.ObservePoint(p.Index, p.Price, p.Volatility, p.Ready, p.Revision)
	if snap, ok := c.service.Snapshot(p.Index); ok {
		c.monitor.ObserveMoments(p.Index, snap.Summary.Mean, snap.Summary.PopulationVariance, snap.Count, snap.Window)
	}
	if !p.Revision {
		c.logger.Debug("vol_point",
			zap.String("index", p.Index),
			zap.Int64("time", p.Time),
			zap.Float64("price", p.Price),
			zap.Float64("volatility", p.Volatility),
			zap.Bool("ready", p.Ready))
	}
}

func (c *Container) runFeed(ctx context.Context) error {
	h := &gateway.ServiceHandler{Svc: c.service, Logger: c.logger, Observer: c.monitor}
	err := c.feed.Run(ctx, h)
	if errors.Is(err, gateway.ErrRetriesExhausted) {
		c.guard.FeedFailed(c.cfg.Feed.Index, err)
	}
	return err
}

func (c *Container) runWatcher(ctx context.Context) error {
	w := config.Watcher{Path: c.configPath, Cooldown: time.Second, Logger: c.logger}
	return w.Start(ctx, c.applyReload)
}

// applyReload 只应用可热更新的字段：日志级别与告警阈值。
func (c *Container) applyReload(cfg config.AppConfig) {
	if err := c.logger.SetLevel(cfg.Log.Level); err != nil {
		c.logger.Warn("reload log level", zap.Error(err))
	}
	c.guard.SetThreshold(cfg.Alert.VolThreshold)
	c.cfg.Log.Level = cfg.Log.Level
	c.cfg.Alert.VolThreshold = cfg.Alert.VolThreshold
}

func (c *Container) registerLifecycleComponents() {
	if c.cfg.Metrics.Addr != "" {
		c.httpServer = &httpServerComponent{
			name:    "http_server",
			handler: c.Handler(),
			addr:    c.cfg.Metrics.Addr,
			logger:  c.logger,
		}
		c.lifecycle.Register(c.httpServer)
	}
	if c.archive != nil {
		c.lifecycle.Register(&funcComponent{name: "archive", stop: c.archive.Close})
	}
	c.lifecycle.Register(&runComponent{name: "publish", run: c.sink.Run, group: &c.group})
	if c.configPath != "" {
		c.lifecycle.Register(&runComponent{name: "config_watcher", run: c.runWatcher, group: &c.group})
	}
	c.lifecycle.Register(&runComponent{name: "feed", run: c.runFeed, group: &c.group})
	c.lifecycle.Register(&runComponent{
		name:  "watchdog",
		run:   func(ctx context.Context) error { return watchdogLoop(ctx, c.logger, c.lifecycle.CheckHealth) },
		group: &c.group,
	})
}

// Start 启动所有组件并通知 systemd
func (c *Container) Start(ctx context.Context) error {
	c.logger.Info("starting container...")
	c.group, c.groupCtx = errgroup.WithContext(ctx)

	if err := c.lifecycle.StartAll(c.groupCtx); err != nil {
		return fmt.Errorf("start failed: %w", err)
	}
	notifyReady(c.logger)
	c.logger.Info("container started")
	return nil
}

// Wait blocks until ctx is done or a run component fails; it returns that failure.
func (c *Container) Wait() error {
	<-c.groupCtx.Done()
	// groupCtx 取消时，失败组件的 goroutine 已经退出，其余组件由 Stop 收尾
	if err := c.lifecycle.CheckHealth(); err != nil {
		return err
	}
	return nil
}

// Stop 逆序停止组件
func (c *Container) Stop() error {
	c.logger.Info("stopping container...")
	notifyStopping(c.logger)

	err := c.lifecycle.StopAll()
	if c.group != nil {
		if gerr := c.group.Wait(); gerr != nil && err == nil {
			err = gerr
		}
	}
	if cerr := c.sink.Close(); cerr != nil {
		c.logger.LogError(cerr, map[string]interface{}{"action": "close_sink"})
	}
	if err != nil {
		c.logger.LogError(err, map[string]interface{}{"action": "stop"})
	}
	c.logger.Info("container stopped")
	_ = c.logger.Close()
	return err
}

// HealthCheck 检查所有组件
func (c *Container) HealthCheck() error {
	return c.lifecycle.CheckHealth()
}

// Service exposes the estimator service (tests, embedding).
func (c *Container) Service() *market.Service { return c.service }

// HTTPAddr returns the bound address of the status server, if any.
func (c *Container) HTTPAddr() string {
	if c.httpServer == nil {
		return ""
	}
	return c.httpServer.Addr()
}

// Handler 暴露 /metrics、/status、/healthz
func (c *Container) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.monitor.Handler())
	mux.HandleFunc("/status", c.handleStatus)
	mux.HandleFunc("/healthz", c.handleHealth)
	return mux
}
