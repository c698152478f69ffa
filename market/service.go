package market

import (
	"fmt"
	"sync"
	"time"
)

// Snapshot 某个指数当前的统计快照。
type Snapshot struct {
	Index      string        `json:"index"`
	Bucket     time.Duration `json:"bucket"`
	Window     int           `json:"window"`
	Count      int           `json:"count"`
	Ready      bool          `json:"ready"`
	Volatility float64       `json:"volatility"`
	LastTime   int64         `json:"lastTime"`
	LastPrice  float64       `json:"lastPrice"`
	Summary    Summary       `json:"summary"`
}

type instrument struct {
	est    *Estimator
	bucket time.Duration
	last   Tick
}

// Service 维护每个指数的波动率估计器，并向订阅者广播。
// All estimator access goes through mu; the estimator itself is unsynchronized.
type Service struct {
	pub      *Publisher
	lookback time.Duration
	mu       sync.RWMutex
	inst     map[string]*instrument
}

// NewService creates a service whose windows cover lookback.
func NewService(pub *Publisher, lookback time.Duration) *Service {
	if pub == nil {
		pub = NewPublisher()
	}
	return &Service{
		pub:      pub,
		lookback: lookback,
		inst:     make(map[string]*instrument),
	}
}

// Publisher returns the publisher points are broadcast on.
func (s *Service) Publisher() *Publisher { return s.pub }

// Seed (re)initializes index from historical points. The bucket width is the
// spacing of the first two points; the final point is the still-open bucket
// and is left for the live feed. On a reseed only points after the last one
// already published are broadcast again.
func (s *Service) Seed(index string, points []Tick) (time.Duration, error) {
	if len(points) < 2 {
		return 0, ErrShortSeed
	}
	spacing := points[1].Time - points[0].Time
	if spacing <= 0 {
		return 0, ErrInvalidBucket
	}
	bucket := time.Duration(spacing) * time.Millisecond
	n, err := WindowLength(s.lookback, bucket)
	if err != nil {
		return 0, fmt.Errorf("window for %s bucket %s: %w", index, bucket, err)
	}
	est, err := NewEstimator(n)
	if err != nil {
		return 0, err
	}
	inst := &instrument{est: est, bucket: bucket}
	var out []Point
	for _, p := range points[:len(points)-1] {
		pt, err := inst.apply(index, p)
		if err != nil {
			return 0, fmt.Errorf("seed %s at %d: %w", index, p.Time, err)
		}
		out = append(out, pt)
	}

	s.mu.Lock()
	prev, reseed := s.inst[index]
	s.inst[index] = inst
	s.mu.Unlock()

	// 重连后的重新初始化只发布上次之后的新点，下游不会重复计数
	for _, pt := range out {
		if reseed && pt.Time <= prev.last.Time {
			continue
		}
		s.pub.Publish(pt)
	}
	return bucket, nil
}

// OnPrice folds a live observation into index. The timestamp is moved to the
// close of its bucket so updates inside one bucket revise it.
func (s *Service) OnPrice(index string, t Tick) (Point, error) {
	s.mu.Lock()
	inst, ok := s.inst[index]
	if !ok {
		s.mu.Unlock()
		return Point{}, ErrUnknownIndex
	}
	t.Time = BucketTime(t.Time, inst.bucket.Milliseconds())
	pt, err := inst.apply(index, t)
	s.mu.Unlock()
	if err != nil {
		return Point{}, err
	}
	s.pub.Publish(pt)
	return pt, nil
}

func (in *instrument) apply(index string, t Tick) (Point, error) {
	revision := in.est.IsRevision(t)
	if err := in.est.Update(t); err != nil {
		return Point{}, err
	}
	in.last = t
	vol, ready := in.est.Volatility(in.bucket)
	return Point{
		Index:      index,
		Time:       t.Time,
		Price:      t.Value,
		Volatility: vol,
		Ready:      ready,
		Revision:   revision,
	}, nil
}

// Snapshot returns the current statistics for index.
func (s *Service) Snapshot(index string) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.inst[index]
	if !ok {
		return Snapshot{}, false
	}
	vol, ready := inst.est.Volatility(inst.bucket)
	return Snapshot{
		Index:      index,
		Bucket:     inst.bucket,
		Window:     inst.est.Capacity(),
		Count:      inst.est.Count(),
		Ready:      ready,
		Volatility: vol,
		LastTime:   inst.last.Time,
		LastPrice:  inst.last.Value,
		Summary:    inst.est.Summary(),
	}, true
}

// Indexes returns the seeded index names.
func (s *Service) Indexes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.inst))
	for k := range s.inst {
		out = append(out, k)
	}
	return out
}
