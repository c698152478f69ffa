package alert

import (
	"math"
	"sync/atomic"

	"vol-index-go/market"
)

// VolGuard 订阅波动率点，超过阈值时告警；同一指数的告警按 Manager 的间隔限流。
type VolGuard struct {
	mgr       *Manager
	threshold atomic.Uint64 // float64 bits
}

// NewVolGuard returns a guard; a threshold of 0 disables volatility alerts.
func NewVolGuard(mgr *Manager, threshold float64) *VolGuard {
	g := &VolGuard{mgr: mgr}
	g.SetThreshold(threshold)
	return g
}

// SetThreshold 热更新阈值
func (g *VolGuard) SetThreshold(v float64) {
	g.threshold.Store(math.Float64bits(v))
}

func (g *VolGuard) Threshold() float64 {
	return math.Float64frombits(g.threshold.Load())
}

// OnPoint implements market.Sink.
func (g *VolGuard) OnPoint(p market.Point) {
	th := g.Threshold()
	if th <= 0 || !p.Ready || p.Volatility <= th {
		return
	}
	_ = g.mgr.SendAlert(Alert{
		Level:   LevelWarning,
		Key:     "vol:" + p.Index,
		Message: "annualized volatility above threshold",
		Fields: map[string]interface{}{
			"index":      p.Index,
			"time":       p.Time,
			"volatility": p.Volatility,
			"threshold":  th,
		},
	})
}

// FeedFailed 行情源放弃重连时调用。
func (g *VolGuard) FeedFailed(index string, err error) {
	_ = g.mgr.SendAlert(Alert{
		Level:   LevelCritical,
		Key:     "feed:" + index,
		Message: "price feed stopped",
		Fields: map[string]interface{}{
			"index": index,
			"error": err.Error(),
		},
	})
}
