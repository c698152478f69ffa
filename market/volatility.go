package market

import (
	"math"
	"time"
)

// msPerYear is the annualization base: a 365-day year in milliseconds.
const msPerYear = 365 * 24 * 60 * 60 * 1000

// Moments is the running mean and sum of squared deviations (D²) of the
// samples resident in a window.
type Moments struct {
	Mean     float64
	SumSqDev float64
}

// Insert folds sample into m as the count-th value (Welford insertion).
func (m Moments) Insert(sample float64, count int) Moments {
	if count <= 1 {
		return Moments{Mean: sample}
	}
	newMean := m.Mean + (sample-m.Mean)/float64(count)
	return Moments{
		Mean:     newMean,
		SumSqDev: nonNegative(m.SumSqDev + (sample-newMean)*(sample-m.Mean)),
	}
}

// Replace swaps evicted for sample in a window of count values.
func (m Moments) Replace(sample, evicted float64, count int) Moments {
	newMean := m.Mean + (sample-evicted)/float64(count)
	return Moments{
		Mean:     newMean,
		SumSqDev: nonNegative(m.SumSqDev + (sample-evicted)*(sample-newMean+evicted-m.Mean)),
	}
}

// nonNegative 消除浮点误差导致的负 D²，避免 sqrt 得到 NaN。
func nonNegative(d2 float64) float64 {
	if d2 < 0 {
		return 0
	}
	return d2
}

// Summary is a read-only snapshot of the window statistics.
type Summary struct {
	Mean               float64 `json:"mean"`
	SumSqDev           float64 `json:"sumSqDev"`
	PopulationVariance float64 `json:"populationVariance"`
	SampleVariance     float64 `json:"sampleVariance"`
	PopulationStdev    float64 `json:"populationStdev"`
	SampleStdev        float64 `json:"sampleStdev"`
}

// State is a deep copy of an estimator, safe to keep and compare.
type State struct {
	Window        []float64
	Moments       Moments
	LastEntered   *Tick
	LastFinalized *Tick
	Ready         bool
}

// Estimator keeps windowed log-return moments for one price stream.
// Each Update is O(1); nothing is rescanned. Not safe for concurrent use.
type Estimator struct {
	window        *RingWindow
	moments       Moments
	lastEntered   *Tick
	lastFinalized *Tick
	ready         bool
}

// NewEstimator creates an estimator retaining windowLength buckets.
func NewEstimator(windowLength int) (*Estimator, error) {
	w, err := NewRingWindow(windowLength)
	if err != nil {
		return nil, err
	}
	return &Estimator{window: w}, nil
}

// IsRevision reports whether t would revise the currently open bucket.
func (e *Estimator) IsRevision(t Tick) bool {
	return e.lastEntered != nil && t.Time == e.lastEntered.Time
}

// Update folds t into the window. A tick with the same time as the previous
// one replaces that bucket's sample instead of opening a new bucket.
// Rejected ticks leave the estimator untouched.
func (e *Estimator) Update(t Tick) error {
	if !validPrice(t.Value) {
		return ErrInvalidPrice
	}
	if e.lastEntered != nil && t.Time < e.lastEntered.Time {
		return ErrOutOfOrderTick
	}

	revise := e.IsRevision(t)
	if !revise {
		e.lastFinalized = e.lastEntered
	}
	entered := t
	e.lastEntered = &entered

	sample := 0.0
	if e.lastFinalized != nil {
		sample = math.Log(t.Value) - math.Log(e.lastFinalized.Value)
	}

	evicted, ok := e.window.Append(sample, revise)
	if !revise && e.window.Full() {
		e.ready = true
	}

	count := e.window.Len()
	switch {
	case ok:
		e.moments = e.moments.Replace(sample, evicted, count)
	default:
		e.moments = e.moments.Insert(sample, count)
	}
	return nil
}

// Count returns the number of samples in the window.
func (e *Estimator) Count() int { return e.window.Len() }

// Capacity returns the window length.
func (e *Estimator) Capacity() int { return e.window.Cap() }

// Ready reports whether the window has been filled once.
func (e *Estimator) Ready() bool { return e.ready }

// Mean returns the running mean of the window samples.
func (e *Estimator) Mean() float64 { return e.moments.Mean }

// SumSqDev returns the running sum of squared deviations.
func (e *Estimator) SumSqDev() float64 { return e.moments.SumSqDev }

// Variance returns the sample (n-1) or population (n) variance.
func (e *Estimator) Variance(sample bool) float64 {
	c := e.window.Len()
	if c == 0 || e.moments.SumSqDev <= 0 {
		return 0
	}
	if sample {
		if c > 1 {
			return e.moments.SumSqDev / float64(c-1)
		}
		return 0
	}
	return e.moments.SumSqDev / float64(c)
}

// StandardDeviation returns the square root of Variance(sample).
func (e *Estimator) StandardDeviation(sample bool) float64 {
	return math.Sqrt(e.Variance(sample))
}

// Volatility annualizes the population standard deviation for buckets of the
// given width. ok is false until the window has been filled once.
func (e *Estimator) Volatility(bucket time.Duration) (float64, bool) {
	if !e.ready || bucket <= 0 {
		return 0, false
	}
	bucketMs := float64(bucket) / float64(time.Millisecond)
	return e.StandardDeviation(false) * math.Sqrt(msPerYear/bucketMs), true
}

// Summary returns the current statistics without mutating anything.
func (e *Estimator) Summary() Summary {
	return Summary{
		Mean:               e.moments.Mean,
		SumSqDev:           e.moments.SumSqDev,
		PopulationVariance: e.Variance(false),
		SampleVariance:     e.Variance(true),
		PopulationStdev:    e.StandardDeviation(false),
		SampleStdev:        e.StandardDeviation(true),
	}
}

// State returns a deep copy of the estimator.
func (e *Estimator) State() State {
	s := State{
		Window:  e.window.Values(),
		Moments: e.moments,
		Ready:   e.ready,
	}
	if e.lastEntered != nil {
		t := *e.lastEntered
		s.LastEntered = &t
	}
	if e.lastFinalized != nil {
		t := *e.lastFinalized
		s.LastFinalized = &t
	}
	return s
}

// Clone returns an independent copy that can be advanced without touching e.
func (e *Estimator) Clone() *Estimator {
	c := &Estimator{
		window:  e.window.clone(),
		moments: e.moments,
		ready:   e.ready,
	}
	if e.lastEntered != nil {
		t := *e.lastEntered
		c.lastEntered = &t
	}
	if e.lastFinalized != nil {
		t := *e.lastFinalized
		c.lastFinalized = &t
	}
	return c
}

// Replay feeds ticks into a fresh estimator and returns its final state.
func Replay(windowLength int, ticks []Tick) (State, error) {
	e, err := NewEstimator(windowLength)
	if err != nil {
		return State{}, err
	}
	for _, t := range ticks {
		if err := e.Update(t); err != nil {
			return e.State(), err
		}
	}
	return e.State(), nil
}
