// Package analytics keeps streaming distributions of the published volatility.
package analytics

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/DataDog/sketches-go/ddsketch"

	"vol-index-go/market"
)

// ErrEmpty is returned when quantiles are requested before any value was added.
var ErrEmpty = errors.New("distribution is empty")

// Quantiles summarizes a VolDistribution.
type Quantiles struct {
	P50   float64 `json:"p50"`
	P90   float64 `json:"p90"`
	P99   float64 `json:"p99"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int64   `json:"count"`
}

// VolDistribution tracks the distribution of annualized volatility values
// with bounded relative error.
type VolDistribution struct {
	mu       sync.Mutex
	accuracy float64
	sketch   *ddsketch.DDSketch
	count    int64
}

// NewVolDistribution creates a distribution with the given relative accuracy (e.g. 0.01).
func NewVolDistribution(relativeAccuracy float64) (*VolDistribution, error) {
	sketch, err := ddsketch.NewDefaultDDSketch(relativeAccuracy)
	if err != nil {
		return nil, fmt.Errorf("ddsketch accuracy %v: %w", relativeAccuracy, err)
	}
	return &VolDistribution{accuracy: relativeAccuracy, sketch: sketch}, nil
}

// Add records one value.
func (d *VolDistribution) Add(v float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.sketch.Add(v); err != nil {
		return err
	}
	d.count++
	return nil
}

// Quantiles returns p50/p90/p99 with min and max.
func (d *VolDistribution) Quantiles() (Quantiles, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.count == 0 {
		return Quantiles{}, ErrEmpty
	}
	qs, err := d.sketch.GetValuesAtQuantiles([]float64{0.50, 0.90, 0.99})
	if err != nil {
		return Quantiles{}, err
	}
	lo, err := d.sketch.GetMinValue()
	if err != nil {
		return Quantiles{}, err
	}
	hi, err := d.sketch.GetMaxValue()
	if err != nil {
		return Quantiles{}, err
	}
	return Quantiles{P50: qs[0], P90: qs[1], P99: qs[2], Min: lo, Max: hi, Count: d.count}, nil
}

// Reset drops all values.
func (d *VolDistribution) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	// DDSketch 没有 Clear，重建一个
	if s, err := ddsketch.NewDefaultDDSketch(d.accuracy); err == nil {
		d.sketch = s
		d.count = 0
	}
}

// Tracker 按指数维护分布，作为 market.Sink 挂到 Publisher 上。只统计 ready 的点。
type Tracker struct {
	accuracy float64
	mu       sync.Mutex
	dists    map[string]*VolDistribution
}

// NewTracker validates relativeAccuracy up front so OnPoint never fails on it.
func NewTracker(relativeAccuracy float64) (*Tracker, error) {
	if _, err := NewVolDistribution(relativeAccuracy); err != nil {
		return nil, err
	}
	return &Tracker{accuracy: relativeAccuracy, dists: make(map[string]*VolDistribution)}, nil
}

// OnPoint implements market.Sink.
func (t *Tracker) OnPoint(p market.Point) {
	if !p.Ready {
		return
	}
	t.mu.Lock()
	d, ok := t.dists[p.Index]
	if !ok {
		d, _ = NewVolDistribution(t.accuracy)
		t.dists[p.Index] = d
	}
	t.mu.Unlock()
	_ = d.Add(p.Volatility)
}

// Quantiles returns the distribution summary for index.
func (t *Tracker) Quantiles(index string) (Quantiles, error) {
	t.mu.Lock()
	d, ok := t.dists[index]
	t.mu.Unlock()
	if !ok {
		return Quantiles{}, ErrEmpty
	}
	return d.Quantiles()
}

// All returns summaries for every index that has values, sorted by name.
func (t *Tracker) All() map[string]Quantiles {
	t.mu.Lock()
	names := make([]string, 0, len(t.dists))
	for k := range t.dists {
		names = append(names, k)
	}
	t.mu.Unlock()
	sort.Strings(names)

	out := make(map[string]Quantiles, len(names))
	for _, name := range names {
		if q, err := t.Quantiles(name); err == nil {
			out[name] = q
		}
	}
	return out
}
