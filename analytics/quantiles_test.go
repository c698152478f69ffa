package analytics

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vol-index-go/market"
)

func TestVolDistributionQuantiles(t *testing.T) {
	d, err := NewVolDistribution(0.01)
	require.NoError(t, err)

	_, err = d.Quantiles()
	require.ErrorIs(t, err, ErrEmpty)

	for i := 1; i <= 1000; i++ {
		require.NoError(t, d.Add(float64(i)/1000))
	}
	q, err := d.Quantiles()
	require.NoError(t, err)
	assert.Equal(t, int64(1000), q.Count)
	assert.InEpsilon(t, 0.50, q.P50, 0.02)
	assert.InEpsilon(t, 0.90, q.P90, 0.02)
	assert.InEpsilon(t, 0.99, q.P99, 0.02)
	assert.InEpsilon(t, 0.001, q.Min, 0.02)
	assert.InEpsilon(t, 1.0, q.Max, 0.02)

	d.Reset()
	_, err = d.Quantiles()
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestVolDistributionBadAccuracy(t *testing.T) {
	_, err := NewVolDistribution(0)
	assert.Error(t, err)
	_, err = NewTracker(1.5)
	assert.Error(t, err)
}

func TestTrackerIgnoresNotReady(t *testing.T) {
	tr, err := NewTracker(0.01)
	require.NoError(t, err)

	tr.OnPoint(market.Point{Index: "btc_usd", Volatility: 0, Ready: false})
	_, err = tr.Quantiles("btc_usd")
	require.ErrorIs(t, err, ErrEmpty)

	tr.OnPoint(market.Point{Index: "btc_usd", Volatility: 0.6, Ready: true})
	tr.OnPoint(market.Point{Index: "btc_usd", Volatility: 0.8, Ready: true})
	tr.OnPoint(market.Point{Index: "eth_usd", Volatility: 0.9, Ready: true})

	q, err := tr.Quantiles("btc_usd")
	require.NoError(t, err)
	assert.Equal(t, int64(2), q.Count)
	assert.InEpsilon(t, 0.6, q.Min, 0.02)
	assert.InEpsilon(t, 0.8, q.Max, 0.02)

	all := tr.All()
	assert.Len(t, all, 2)
	assert.Equal(t, int64(1), all["eth_usd"].Count)
}

func TestTrackerNotDoubleCountedOnReseed(t *testing.T) {
	tr, err := NewTracker(0.01)
	require.NoError(t, err)
	pub := market.NewPublisher()
	pub.AddSink(tr)
	svc := market.NewService(pub, 4*time.Second)

	points := make([]market.Tick, 20)
	for i := range points {
		points[i] = market.Tick{Time: int64(i) * 1000, Value: 100 * math.Exp(0.01*float64(i%3))}
	}
	_, err = svc.Seed("btc_usd", points)
	require.NoError(t, err)
	first, err := tr.Quantiles("btc_usd")
	require.NoError(t, err)
	require.Greater(t, first.Count, int64(0))

	_, err = svc.Seed("btc_usd", points)
	require.NoError(t, err)
	again, err := tr.Quantiles("btc_usd")
	require.NoError(t, err)
	assert.Equal(t, first.Count, again.Count)
}
