package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestSetLevel(t *testing.T) {
	l, err := New(Config{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.Equal(t, "info", l.Level())
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))

	require.NoError(t, l.SetLevel("debug"))
	assert.Equal(t, "debug", l.Level())
	assert.Error(t, l.SetLevel("nope"))
}

func TestLogEventFlagsSchemaErrors(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := NewWithCore(core)

	l.LogEvent("vol_point", map[string]interface{}{"index": "btc_usd"})
	l.LogEvent("seed_loaded", map[string]interface{}{
		"index": "btc_usd", "points": 10, "bucketMs": int64(1000), "window": 5,
	})

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Contains(t, entries[0].ContextMap(), "schema_error")
	assert.NotContains(t, entries[1].ContextMap(), "schema_error")
	assert.Equal(t, "seed_loaded", entries[1].ContextMap()["event"])
}

func TestLogErrorAndAlert(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewWithCore(core)

	l.LogError(errors.New("boom"), map[string]interface{}{"component": "feed"})
	l.LogAlert("WARNING", "vol high", nil)

	require.Equal(t, 1, logs.FilterMessage("error_event").Len())
	alert := logs.FilterMessage("alert_event").All()
	require.Len(t, alert, 1)
	assert.Equal(t, "vol high", alert[0].ContextMap()["message"])
}

func TestWithFieldsKeepsLevel(t *testing.T) {
	l, err := New(Config{Level: "warn"})
	require.NoError(t, err)
	child := l.WithFields(map[string]interface{}{"component": "feed"})
	require.NoError(t, l.SetLevel("error"))
	assert.Equal(t, "error", child.Level())
}
