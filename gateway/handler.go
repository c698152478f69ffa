package gateway

import (
	"errors"
	"time"

	"vol-index-go/infrastructure/logger"
	"vol-index-go/market"
)

// TickObserver 记录输入层面的指标。
type TickObserver interface {
	RecordSeed(index string)
	RecordRejectedTick(index, reason string)
	RecordUpdateLatency(seconds float64)
}

// ServiceHandler 实现 Handler，将种子与实时价格推送给 market.Service。
type ServiceHandler struct {
	Svc      *market.Service
	Logger   *logger.Logger
	Observer TickObserver
}

func (h *ServiceHandler) OnSeed(index string, points []market.Tick) error {
	bucket, err := h.Svc.Seed(index, points)
	if err != nil {
		h.log().LogError(err, map[string]interface{}{"component": "seed", "index": index})
		return err
	}
	if h.Observer != nil {
		h.Observer.RecordSeed(index)
	}
	snap, _ := h.Svc.Snapshot(index)
	h.log().LogEvent("seed_loaded", map[string]interface{}{
		"index":    index,
		"points":   len(points),
		"bucketMs": bucket.Milliseconds(),
		"window":   snap.Window,
		"ready":    snap.Ready,
	})
	return nil
}

func (h *ServiceHandler) OnPrice(index string, t market.Tick) error {
	start := time.Now()
	_, err := h.Svc.OnPrice(index, t)
	if h.Observer != nil {
		h.Observer.RecordUpdateLatency(time.Since(start).Seconds())
	}
	if err != nil {
		reason := RejectReason(err)
		if h.Observer != nil {
			h.Observer.RecordRejectedTick(index, reason)
		}
		h.log().LogEvent("tick_rejected", map[string]interface{}{
			"index":  index,
			"time":   t.Time,
			"price":  t.Value,
			"reason": reason,
		})
		return err
	}
	return nil
}

func (h *ServiceHandler) log() *logger.Logger {
	if h.Logger == nil {
		return logger.Nop()
	}
	return h.Logger
}

// RejectReason maps estimator errors to a metric label.
func RejectReason(err error) string {
	switch {
	case errors.Is(err, market.ErrOutOfOrderTick):
		return "out_of_order"
	case errors.Is(err, market.ErrInvalidPrice):
		return "invalid_price"
	case errors.Is(err, market.ErrUnknownIndex):
		return "unseeded"
	default:
		return "other"
	}
}
