package market

import "sync"

// Point is one emitted observation of an index: its price and, once the
// window is ready, the annualized volatility.
type Point struct {
	Index      string  `json:"index"`
	Time       int64   `json:"time"`
	Price      float64 `json:"price"`
	Volatility float64 `json:"volatility"`
	Ready      bool    `json:"ready"`
	Revision   bool    `json:"revision"`
}

// Sink receives every published point synchronously.
type Sink interface {
	OnPoint(Point)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Point)

func (f SinkFunc) OnPoint(p Point) { f(p) }

// Publisher 一个轻量事件分发器。
type Publisher struct {
	mu    sync.RWMutex
	subs  []chan Point
	sinks []Sink
}

func NewPublisher() *Publisher {
	return &Publisher{
		subs: make([]chan Point, 0),
	}
}

// Subscribe returns a channel of points. Slow readers miss points rather
// than block the feed.
func (p *Publisher) Subscribe(buffer int) <-chan Point {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Point, buffer)
	p.mu.Lock()
	p.subs = append(p.subs, ch)
	p.mu.Unlock()
	return ch
}

// AddSink registers s to receive every point.
func (p *Publisher) AddSink(s Sink) {
	p.mu.Lock()
	p.sinks = append(p.sinks, s)
	p.mu.Unlock()
}

func (p *Publisher) Publish(pt Point) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, s := range p.sinks {
		s.OnPoint(pt)
	}
	for _, ch := range p.subs {
		select {
		case ch <- pt:
		default:
		}
	}
}
