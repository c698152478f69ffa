package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vol-index-go/market"
)

type recordingHandler struct {
	mu     sync.Mutex
	seeds  [][]market.Tick
	prices []market.Tick
	got    chan struct{}
}

func (h *recordingHandler) OnSeed(index string, points []market.Tick) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seeds = append(h.seeds, points)
	return nil
}

func (h *recordingHandler) OnPrice(index string, t market.Tick) error {
	h.mu.Lock()
	h.prices = append(h.prices, t)
	n := len(h.prices)
	h.mu.Unlock()
	if n == 2 {
		close(h.got)
	}
	return nil
}

type countingObserver struct {
	mu                  sync.Mutex
	connects, parseErrs int
}

func (o *countingObserver) RecordWSConnection() { o.mu.Lock(); o.connects++; o.mu.Unlock() }
func (o *countingObserver) RecordWSDisconnect() {}
func (o *countingObserver) RecordParseError()   { o.mu.Lock(); o.parseErrs++; o.mu.Unlock() }

// fakeDeribit answers the seed request then pushes index notifications.
func fakeDeribit(t *testing.T) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req RPCRequest
		if err := conn.ReadJSON(&req); err != nil || req.Method != "public/get_index_chart_data" {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"jsonrpc":"2.0","id":"seed","result":[[0,100],[1000,101],[2000,102]]}`))

		if err := conn.ReadJSON(&req); err != nil || req.Method != "public/subscribe" {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","id":1,"result":["deribit_price_index.btc_usd"]}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`garbage`))
		for i, px := range []float64{102.5, 103} {
			frame := fmt.Sprintf(`{"jsonrpc":"2.0","method":"subscription","params":{"channel":"deribit_price_index.btc_usd","data":{"index_name":"btc_usd","price":%v,"timestamp":%d}}}`, px, 2100+i*100)
			_ = conn.WriteMessage(websocket.TextMessage, []byte(frame))
		}
		// hold the connection until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func TestDeribitFeedSeedThenLive(t *testing.T) {
	srv := fakeDeribit(t)
	defer srv.Close()

	feed := NewDeribitFeed("btc_usd")
	feed.Endpoint = "ws" + strings.TrimPrefix(srv.URL, "http")
	obs := &countingObserver{}
	feed.Observer = obs
	h := &recordingHandler{got: make(chan struct{})}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- feed.Run(ctx, h) }()

	select {
	case <-h.got:
	case <-time.After(2 * time.Second):
		t.Fatal("expected two live prices")
	}
	assert.True(t, feed.Connected())
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.seeds, 1)
	assert.Len(t, h.seeds[0], 3)
	assert.Equal(t, []market.Tick{{Time: 2100, Value: 102.5}, {Time: 2200, Value: 103}}, h.prices)
	obs.mu.Lock()
	assert.Equal(t, 1, obs.connects)
	assert.Equal(t, 1, obs.parseErrs)
	obs.mu.Unlock()
}

func TestDeribitFeedGivesUpAfterRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	feed := NewDeribitFeed("btc_usd")
	feed.Endpoint = "ws" + strings.TrimPrefix(srv.URL, "http")
	feed.MaxRetries = 2
	feed.RetryBackoff = time.Millisecond

	err := feed.Run(context.Background(), &recordingHandler{got: make(chan struct{})})
	assert.ErrorIs(t, err, ErrRetriesExhausted)
}

func TestDeribitFeedSeedRejected(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var req json.RawMessage
		_ = conn.ReadJSON(&req)
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","id":"seed","error":{"code":-32602,"message":"Invalid params"}}`))
	}))
	defer srv.Close()

	feed := NewDeribitFeed("btc_usd")
	feed.Endpoint = "ws" + strings.TrimPrefix(srv.URL, "http")
	feed.MaxRetries = 0
	err := feed.Run(context.Background(), &recordingHandler{got: make(chan struct{})})
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Contains(t, err.Error(), "Invalid params")
}

// droppingDeribit 每次连接都回应种子、推送两个价格后直接断开；前 sessions 次之后拒绝握手。
func droppingDeribit(t *testing.T, sessions int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var n atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := n.Add(1)
		if session > sessions {
			http.Error(w, "maintenance", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req RPCRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		base := int64(session) * 10000
		_ = conn.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf(
			`{"jsonrpc":"2.0","id":"seed","result":[[%d,100],[%d,101],[%d,102]]}`, base, base+1000, base+2000)))
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		for i := int64(0); i < 2; i++ {
			frame := fmt.Sprintf(`{"jsonrpc":"2.0","method":"subscription","params":{"channel":"deribit_price_index.btc_usd","data":{"index_name":"btc_usd","price":103,"timestamp":%d}}}`, base+2100+i*100)
			_ = conn.WriteMessage(websocket.TextMessage, []byte(frame))
		}
	}))
	return srv, &n
}

func TestDeribitFeedReseedsAfterDrop(t *testing.T) {
	srv, dials := droppingDeribit(t, 3)
	defer srv.Close()

	feed := NewDeribitFeed("btc_usd")
	feed.Endpoint = "ws" + strings.TrimPrefix(srv.URL, "http")
	// 只允许 1 次连续失败：若成功初始化后不清零，第二次断线就会放弃
	feed.MaxRetries = 1
	feed.RetryBackoff = time.Millisecond
	h := &recordingHandler{got: make(chan struct{})}

	err := feed.Run(context.Background(), h)
	require.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, int32(4), dials.Load())

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.seeds, 3)
	for i, seed := range h.seeds {
		assert.Equal(t, int64(i+1)*10000, seed[0].Time, "session %d reseeds from its own history", i+1)
	}
	assert.Len(t, h.prices, 6)
	assert.False(t, feed.Connected())
}
