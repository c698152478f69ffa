package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor Prometheus监控指标收集器
type Monitor struct {
	registry *prometheus.Registry

	// 指数指标
	price      *prometheus.GaugeVec
	volatility *prometheus.GaugeVec
	mean       *prometheus.GaugeVec
	variance   *prometheus.GaugeVec
	windowFill *prometheus.GaugeVec
	ready      *prometheus.GaugeVec

	// 输入指标
	ticks         *prometheus.CounterVec
	revisions     *prometheus.CounterVec
	rejectedTicks *prometheus.CounterVec
	seeds         *prometheus.CounterVec
	updateLatency prometheus.Histogram

	// 系统指标
	wsConnections prometheus.Counter
	wsDisconnects prometheus.Counter
	parseErrors   prometheus.Counter
	publishErrors *prometheus.CounterVec
	alerts        *prometheus.CounterVec
}

// Config 监控配置
type Config struct {
	Namespace string
	Subsystem string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Namespace: "volidx",
		Subsystem: "index",
	}
}

// New 创建新的Monitor实例
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	gauge := func(name, help string) *prometheus.GaugeVec {
		return factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      name,
			Help:      help,
		}, []string{"index"})
	}
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      name,
			Help:      help,
		}, labels)
	}

	return &Monitor{
		registry: reg,

		price:      gauge("price", "最新指数价格"),
		volatility: gauge("annualized_volatility", "年化波动率（窗口未满时不更新）"),
		mean:       gauge("log_return_mean", "窗口内对数收益均值"),
		variance:   gauge("log_return_variance", "窗口内对数收益总体方差"),
		windowFill: gauge("window_fill_ratio", "窗口填充比例"),
		ready:      gauge("ready", "波动率是否可用(0/1)"),

		ticks:         counter("ticks_total", "处理的价格点总数", "index"),
		revisions:     counter("revisions_total", "修订当前桶的价格点数", "index"),
		rejectedTicks: counter("rejected_ticks_total", "被拒绝的价格点数", "index", "reason"),
		seeds:         counter("seeds_total", "历史数据初始化次数", "index"),
		updateLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "update_latency_seconds",
			Help:      "单次更新耗时（秒）",
			Buckets:   []float64{1e-7, 5e-7, 1e-6, 5e-6, 1e-5, 5e-5, 1e-4, 1e-3},
		}),

		wsConnections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "feed",
			Name:      "ws_connections_total",
			Help:      "WebSocket连接次数",
		}),
		wsDisconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "feed",
			Name:      "ws_disconnects_total",
			Help:      "WebSocket断开次数",
		}),
		parseErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "feed",
			Name:      "parse_errors_total",
			Help:      "无法解析的消息数",
		}),
		publishErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "publish",
			Name:      "errors_total",
			Help:      "下游发布失败次数",
		}, []string{"sink"}),
		alerts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "alerts_total",
			Help:      "已发送告警数",
		}, []string{"level"}),
	}
}

// ObservePoint 更新某个指数的价格与波动率。
func (m *Monitor) ObservePoint(index string, price, vol float64, ready, revision bool) {
	m.price.WithLabelValues(index).Set(price)
	m.ticks.WithLabelValues(index).Inc()
	if revision {
		m.revisions.WithLabelValues(index).Inc()
	}
	if ready {
		m.volatility.WithLabelValues(index).Set(vol)
		m.ready.WithLabelValues(index).Set(1)
	} else {
		m.ready.WithLabelValues(index).Set(0)
	}
}

// ObserveMoments 更新窗口统计量。
func (m *Monitor) ObserveMoments(index string, mean, variance float64, count, capacity int) {
	m.mean.WithLabelValues(index).Set(mean)
	m.variance.WithLabelValues(index).Set(variance)
	if capacity > 0 {
		m.windowFill.WithLabelValues(index).Set(float64(count) / float64(capacity))
	}
}

func (m *Monitor) RecordUpdateLatency(seconds float64) {
	m.updateLatency.Observe(seconds)
}

func (m *Monitor) RecordRejectedTick(index, reason string) {
	m.rejectedTicks.WithLabelValues(index, reason).Inc()
}

func (m *Monitor) RecordSeed(index string) {
	m.seeds.WithLabelValues(index).Inc()
}

// 系统相关方法
func (m *Monitor) RecordWSConnection() {
	m.wsConnections.Inc()
}

func (m *Monitor) RecordWSDisconnect() {
	m.wsDisconnects.Inc()
}

func (m *Monitor) RecordParseError() {
	m.parseErrors.Inc()
}

func (m *Monitor) RecordPublishError(sink string) {
	m.publishErrors.WithLabelValues(sink).Inc()
}

func (m *Monitor) RecordAlert(level string) {
	m.alerts.WithLabelValues(level).Inc()
}

// Handler 返回HTTP handler用于暴露指标
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回prometheus registry
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}
