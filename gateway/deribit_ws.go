package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"vol-index-go/infrastructure/logger"
	"vol-index-go/market"
)

// DeribitWSEndpoint is the public Deribit v2 websocket API.
const DeribitWSEndpoint = "wss://www.deribit.com/ws/api/v2"

// Handler receives decoded feed events.
type Handler interface {
	OnSeed(index string, points []market.Tick) error
	OnPrice(index string, t market.Tick) error
}

// Observer 连接层指标回调。
type Observer interface {
	RecordWSConnection()
	RecordWSDisconnect()
	RecordParseError()
}

type nopObserver struct{}

func (nopObserver) RecordWSConnection() {}
func (nopObserver) RecordWSDisconnect() {}
func (nopObserver) RecordParseError()   {}

// DeribitFeed 订阅指数价格：先拉取历史种子数据，再订阅实时推送，断线自动重连。
type DeribitFeed struct {
	Endpoint     string
	Index        string // e.g. btc_usd
	SeedRange    string // e.g. 1y
	MaxRetries   int
	RetryBackoff time.Duration
	ReadTimeout  time.Duration
	Dialer       *websocket.Dialer
	Logger       *logger.Logger
	Observer     Observer

	mu        sync.Mutex
	connected bool
}

// NewDeribitFeed returns a feed for index with production defaults.
func NewDeribitFeed(index string) *DeribitFeed {
	return &DeribitFeed{
		Endpoint:     DeribitWSEndpoint,
		Index:        index,
		SeedRange:    "1y",
		MaxRetries:   5,
		RetryBackoff: 3 * time.Second,
		ReadTimeout:  30 * time.Second,
		Dialer:       websocket.DefaultDialer,
	}
}

// ErrRetriesExhausted is returned by Run once MaxRetries consecutive
// sessions failed.
var ErrRetriesExhausted = errors.New("feed reconnection retries exhausted")

// Run connects and processes messages until ctx is done or retries are
// exhausted. Every session reseeds, so a gap in the stream never becomes a
// return sample.
func (f *DeribitFeed) Run(ctx context.Context, h Handler) error {
	f.defaults()
	retries := 0
	for {
		seeded, err := f.session(ctx, h)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if seeded {
			retries = 0
		}
		f.Logger.LogEvent("feed_disconnected", map[string]interface{}{
			"endpoint": f.Endpoint,
			"error":    errString(err),
		})
		if retries >= f.MaxRetries {
			return fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, retries, err)
		}
		retries++
		backoff := time.Duration(retries) * f.RetryBackoff
		f.Logger.Warn("feed reconnecting",
			zap.Int("retry", retries),
			zap.Int("maxRetries", f.MaxRetries),
			zap.Duration("backoff", backoff))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

// Connected reports whether a session is currently open.
func (f *DeribitFeed) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *DeribitFeed) setConnected(v bool) {
	f.mu.Lock()
	f.connected = v
	f.mu.Unlock()
}

func (f *DeribitFeed) defaults() {
	if f.Dialer == nil {
		f.Dialer = websocket.DefaultDialer
	}
	if f.Logger == nil {
		f.Logger = logger.Nop()
	}
	if f.Observer == nil {
		f.Observer = nopObserver{}
	}
	if f.ReadTimeout <= 0 {
		f.ReadTimeout = 30 * time.Second
	}
	if f.RetryBackoff <= 0 {
		f.RetryBackoff = time.Second
	}
	if f.SeedRange == "" {
		f.SeedRange = "1y"
	}
}

// session runs one connection. seeded reports whether the seed was applied.
func (f *DeribitFeed) session(ctx context.Context, h Handler) (seeded bool, err error) {
	conn, _, err := f.Dialer.DialContext(ctx, f.Endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", f.Endpoint, err)
	}
	f.Observer.RecordWSConnection()
	f.setConnected(true)
	defer func() {
		f.setConnected(false)
		f.Observer.RecordWSDisconnect()
	}()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
		case <-done:
			_ = conn.Close()
		}
	}()

	f.Logger.LogEvent("feed_connected", map[string]interface{}{
		"endpoint": f.Endpoint,
		"index":    f.Index,
	})

	if err := conn.WriteJSON(SeedRequest(f.Index, f.SeedRange)); err != nil {
		return false, fmt.Errorf("write seed request: %w", err)
	}

	extend := func() { _ = conn.SetReadDeadline(time.Now().Add(f.ReadTimeout)) }
	extend()
	conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return seeded, fmt.Errorf("read: %w", err)
		}
		extend()

		msg, err := Classify(raw)
		if err != nil {
			var rpcErr *RPCError
			if errors.As(err, &rpcErr) && !seeded {
				return false, err
			}
			f.Observer.RecordParseError()
			f.Logger.LogError(err, map[string]interface{}{"component": "feed"})
			continue
		}

		switch msg.Kind {
		case KindSeed:
			if err := h.OnSeed(f.Index, msg.Seed); err != nil {
				return false, fmt.Errorf("apply seed: %w", err)
			}
			seeded = true
			sub := SubscribeRequest(1, PriceIndexChannel(f.Index))
			if err := conn.WriteJSON(sub); err != nil {
				return seeded, fmt.Errorf("write subscribe: %w", err)
			}
		case KindPriceIndex:
			if !seeded || msg.Index != f.Index {
				continue
			}
			// 单个点被拒绝不影响连接
			_ = h.OnPrice(msg.Index, msg.Tick)
		}
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
