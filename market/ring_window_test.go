package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRingWindowRejectsBadCapacity(t *testing.T) {
	for _, c := range []int{0, -1, -100} {
		w, err := NewRingWindow(c)
		assert.ErrorIs(t, err, ErrInvalidCapacity, "capacity %d", c)
		assert.Nil(t, w)
	}
}

func TestRingWindowFillThenEvict(t *testing.T) {
	w, err := NewRingWindow(3)
	require.NoError(t, err)

	for i, v := range []float64{1, 2, 3} {
		_, ok := w.Append(v, false)
		assert.False(t, ok, "no eviction while filling")
		assert.Equal(t, i+1, w.Len())
	}
	assert.True(t, w.Full())

	ev, ok := w.Append(4, false)
	require.True(t, ok)
	assert.Equal(t, 1.0, ev)
	assert.Equal(t, 3, w.Len())
	assert.Equal(t, []float64{4, 2, 3}, w.Values())

	ev, ok = w.Append(5, false)
	require.True(t, ok)
	assert.Equal(t, 2.0, ev)
}

func TestRingWindowReplaceTop(t *testing.T) {
	w, _ := NewRingWindow(3)
	w.Append(1, false)
	w.Append(2, false)

	ev, ok := w.Append(20, true)
	require.True(t, ok, "revision overwrites the occupied slot")
	assert.Equal(t, 2.0, ev)
	assert.Equal(t, 2, w.Len())
	assert.Equal(t, []float64{1, 20}, w.Values())
}

func TestRingWindowReplaceTopOnEmpty(t *testing.T) {
	w, _ := NewRingWindow(2)
	_, ok := w.Append(7, true)
	assert.False(t, ok)
	assert.Equal(t, 1, w.Len())
	assert.Equal(t, []float64{7}, w.Values())
}

func TestRingWindowLengthBound(t *testing.T) {
	const capacity = 5
	w, _ := NewRingWindow(capacity)
	for i := 1; i <= 17; i++ {
		w.Append(float64(i), false)
		assert.LessOrEqual(t, w.Len(), capacity)
		assert.Equal(t, min(i, capacity), w.Len())
	}
}

func TestRingWindowCapacityOne(t *testing.T) {
	w, _ := NewRingWindow(1)
	_, ok := w.Append(1, false)
	assert.False(t, ok)
	ev, ok := w.Append(2, false)
	assert.True(t, ok)
	assert.Equal(t, 1.0, ev)
	assert.Equal(t, 1, w.Len())
}
