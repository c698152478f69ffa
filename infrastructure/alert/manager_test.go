package alert

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"vol-index-go/infrastructure/logger"
	"vol-index-go/market"
)

type countingRecorder struct{ levels []string }

func (r *countingRecorder) RecordAlert(level string) { r.levels = append(r.levels, level) }

func TestNewManager(t *testing.T) {
	ch := NewMockChannel("test")
	mgr := NewManager([]Channel{ch}, 5*time.Minute)
	assert.Equal(t, []string{"test"}, mgr.GetChannels())

	mgr.AddChannel(NewMockChannel("second"))
	assert.Equal(t, []string{"test", "second"}, mgr.GetChannels())
}

func TestSendAlert(t *testing.T) {
	mock := NewMockChannel("mock")
	rec := &countingRecorder{}
	mgr := NewManager([]Channel{mock}, 5*time.Minute)
	mgr.SetRecorder(rec)

	err := mgr.SendAlert(Alert{
		Level:   LevelWarning,
		Message: "test message",
		Fields:  map[string]interface{}{"key": "value"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, mock.Count())

	a := mock.GetAlerts()[0]
	assert.Equal(t, LevelWarning, a.Level)
	assert.Equal(t, "test message", a.Message)
	assert.Equal(t, "value", a.Fields["key"])
	assert.False(t, a.Timestamp.IsZero())
	assert.Equal(t, []string{LevelWarning}, rec.levels)
}

func TestSendAlertLevels(t *testing.T) {
	tests := []struct {
		name    string
		sendFn  func(*Manager) error
		wantLvl string
	}{
		{"SendWarning", func(m *Manager) error { return m.SendWarning("w", nil) }, LevelWarning},
		{"SendError", func(m *Manager) error { return m.SendError("e", nil) }, LevelError},
		{"SendCritical", func(m *Manager) error { return m.SendCritical("c", nil) }, LevelCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := NewMockChannel("mock")
			mgr := NewManager([]Channel{mock}, time.Minute)
			require.NoError(t, tt.sendFn(mgr))
			require.Equal(t, 1, mock.Count())
			assert.Equal(t, tt.wantLvl, mock.GetAlerts()[0].Level)
		})
	}
}

func TestThrottle(t *testing.T) {
	mock := NewMockChannel("mock")
	mgr := NewManager([]Channel{mock}, time.Hour)

	for i := 0; i < 3; i++ {
		require.NoError(t, mgr.SendWarning("same", nil))
	}
	assert.Equal(t, 1, mock.Count())

	// 不同 key 不受影响
	require.NoError(t, mgr.SendAlert(Alert{Level: LevelWarning, Key: "other", Message: "same"}))
	assert.Equal(t, 2, mock.Count())

	mgr.ResetThrottle()
	require.NoError(t, mgr.SendWarning("same", nil))
	assert.Equal(t, 3, mock.Count())
}

func TestThrottlerInterval(t *testing.T) {
	th := NewThrottler(time.Minute)
	now := time.Unix(1000, 0)
	th.now = func() time.Time { return now }

	assert.True(t, th.Allow("k"))
	assert.False(t, th.Allow("k"))
	now = now.Add(time.Minute)
	assert.True(t, th.Allow("k"))
}

func TestAllChannelsFail(t *testing.T) {
	bad := NewMockChannel("bad")
	bad.SetShouldError(true)
	mgr := NewManager([]Channel{bad}, time.Minute)
	err := mgr.SendError("boom", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel bad failed")

	// 只要有一个通道成功就不报错
	good := NewMockChannel("good")
	mgr = NewManager([]Channel{bad, good}, time.Minute)
	require.NoError(t, mgr.SendError("boom", nil))
	assert.Equal(t, 1, good.Count())
}

func TestLogChannel(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	ch := NewLogChannel("log", logger.NewWithCore(core))
	require.NoError(t, ch.Send(Alert{
		Level:     LevelWarning,
		Message:   "vol high",
		Timestamp: time.Now(),
		Fields:    map[string]interface{}{"index": "btc_usd"},
	}))
	entries := logs.FilterMessage("alert_event").All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "vol high", ctx["message"])
	assert.Equal(t, "btc_usd", ctx["index"])
	assert.Equal(t, "log", ch.Name())
}

func TestConsoleChannel(t *testing.T) {
	var buf bytes.Buffer
	ch := NewConsoleChannel("console", &buf)
	ts := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	require.NoError(t, ch.Send(Alert{
		Level:     LevelCritical,
		Message:   "feed failed",
		Timestamp: ts,
		Fields:    map[string]interface{}{"retries": 5, "index": "btc_usd"},
	}))
	assert.Equal(t, "\033[35m[CRITICAL]\033[0m 2024-05-06 07:08:09 - feed failed index=btc_usd retries=5\n", buf.String())
	assert.Equal(t, "console", ch.Name())

	// 经 Manager 分发时与日志通道一起收到
	buf.Reset()
	m := NewManager([]Channel{NewMockChannel("mock"), ch}, time.Minute)
	require.NoError(t, m.SendWarning("vol high", nil))
	assert.True(t, strings.HasPrefix(buf.String(), "\033[33m[WARNING]"))
}

func TestVolGuard(t *testing.T) {
	mock := NewMockChannel("mock")
	g := NewVolGuard(NewManager([]Channel{mock}, time.Hour), 0.8)

	g.OnPoint(market.Point{Index: "btc_usd", Volatility: 0.9, Ready: false})
	g.OnPoint(market.Point{Index: "btc_usd", Volatility: 0.7, Ready: true})
	assert.Equal(t, 0, mock.Count())

	g.OnPoint(market.Point{Index: "btc_usd", Volatility: 0.9, Ready: true})
	g.OnPoint(market.Point{Index: "btc_usd", Volatility: 1.1, Ready: true})
	g.OnPoint(market.Point{Index: "eth_usd", Volatility: 1.1, Ready: true})
	require.Equal(t, 2, mock.Count())
	assert.Equal(t, "btc_usd", mock.GetAlerts()[0].Fields["index"])
	assert.Equal(t, "eth_usd", mock.GetAlerts()[1].Fields["index"])

	g.SetThreshold(0)
	assert.Equal(t, 0.0, g.Threshold())
	g.OnPoint(market.Point{Index: "sol_usd", Volatility: 5, Ready: true})
	assert.Equal(t, 2, mock.Count())
}

func TestVolGuardFeedFailed(t *testing.T) {
	mock := NewMockChannel("mock")
	g := NewVolGuard(NewManager([]Channel{mock}, time.Hour), 0)
	g.FeedFailed("btc_usd", errors.New("retries exhausted"))
	require.Equal(t, 1, mock.Count())
	a := mock.GetAlerts()[0]
	assert.Equal(t, LevelCritical, a.Level)
	assert.Equal(t, "retries exhausted", a.Fields["error"])
}
