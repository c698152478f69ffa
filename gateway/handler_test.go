package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vol-index-go/market"
)

type tickObs struct {
	seeds    int
	rejected map[string]int
	updates  int
}

func (o *tickObs) RecordSeed(string)              { o.seeds++ }
func (o *tickObs) RecordRejectedTick(_, r string) { o.rejected[r]++ }
func (o *tickObs) RecordUpdateLatency(float64)    { o.updates++ }

func TestServiceHandler(t *testing.T) {
	obs := &tickObs{rejected: map[string]int{}}
	h := &ServiceHandler{Svc: market.NewService(nil, 3*time.Second), Observer: obs}

	assert.ErrorIs(t, h.OnPrice("btc_usd", market.Tick{Time: 1, Value: 1}), market.ErrUnknownIndex)
	assert.Equal(t, 1, obs.rejected["unseeded"])

	require.NoError(t, h.OnSeed("btc_usd", []market.Tick{{Time: 0, Value: 100}, {Time: 1000, Value: 101}, {Time: 2000, Value: 102}, {Time: 3000, Value: 103}, {Time: 4000, Value: 104}}))
	assert.Equal(t, 1, obs.seeds)

	require.NoError(t, h.OnPrice("btc_usd", market.Tick{Time: 3500, Value: 104}))
	assert.Error(t, h.OnPrice("btc_usd", market.Tick{Time: 3600, Value: -1}))
	assert.Equal(t, 1, obs.rejected["invalid_price"])
	assert.Equal(t, 3, obs.updates)

	assert.Error(t, h.OnSeed("eth_usd", []market.Tick{{Time: 0, Value: 1}}))
}

func TestRejectReason(t *testing.T) {
	assert.Equal(t, "out_of_order", RejectReason(market.ErrOutOfOrderTick))
	assert.Equal(t, "other", RejectReason(assert.AnError))
}
