// Package publish forwards volatility points to downstream consumers.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"vol-index-go/infrastructure/logger"
	"vol-index-go/market"
)

// EventType is the envelope type of every published point.
const EventType = "vol_point"

// Sink receives points and forwards them until ctx is done.
type Sink interface {
	market.Sink
	Run(ctx context.Context) error
	Close() error
}

// ErrorRecorder counts failed publishes (prometheus).
type ErrorRecorder interface {
	RecordPublishError(sink string)
}

// RedisSink XADDs points to a Redis stream from a background loop so the
// estimator never waits on the network.
type RedisSink struct {
	client  *redis.Client
	stream  string
	queue   chan market.Point
	timeout time.Duration
	log     *logger.Logger
	errs    ErrorRecorder
	drain   time.Duration
}

// NewRedisSink connects to addr ("host:port" or a redis:// URL) and pings it.
func NewRedisSink(addr, stream string, log *logger.Logger, errs ErrorRecorder) (*RedisSink, error) {
	opts, err := redis.ParseURL(addr)
	if err != nil {
		opts = &redis.Options{Addr: addr}
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return NewRedisSinkWithClient(client, stream, log, errs), nil
}

// NewRedisSinkWithClient wraps an existing client without pinging it.
func NewRedisSinkWithClient(client *redis.Client, stream string, log *logger.Logger, errs ErrorRecorder) *RedisSink {
	if log == nil {
		log = logger.Nop()
	}
	return &RedisSink{
		client:  client,
		stream:  stream,
		queue:   make(chan market.Point, 4096),
		timeout: 2 * time.Second,
		drain:   time.Second,
		log:     log,
		errs:    errs,
	}
}

// OnPoint enqueues p; a full queue drops it and counts an error.
func (s *RedisSink) OnPoint(p market.Point) {
	select {
	case s.queue <- p:
	default:
		s.fail(fmt.Errorf("queue full, dropped point %s@%d", p.Index, p.Time))
	}
}

// Run drains the queue until ctx is done, then flushes what is still
// queued within a short deadline.
func (s *RedisSink) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.flush()
			return ctx.Err()
		case p := <-s.queue:
			if err := s.Publish(ctx, p); err != nil {
				s.fail(err)
			}
		}
	}
}

// flush 关闭时把队列里剩余的点发出去，超过 drain 时限的计为丢弃
func (s *RedisSink) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), s.drain)
	defer cancel()
	for {
		select {
		case p := <-s.queue:
			if ctx.Err() != nil {
				s.fail(fmt.Errorf("shutdown, dropped point %s@%d", p.Index, p.Time))
				continue
			}
			if err := s.Publish(ctx, p); err != nil {
				s.fail(err)
			}
		default:
			return
		}
	}
}

// Publish sends one point synchronously.
func (s *RedisSink) Publish(ctx context.Context, p market.Point) error {
	values, err := Envelope(p, time.Now())
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: values,
	}).Err()
}

func (s *RedisSink) fail(err error) {
	if s.errs != nil {
		s.errs.RecordPublishError("redis")
	}
	s.log.Warn("redis publish failed", zap.String("stream", s.stream), zap.Error(err))
}

// Close closes the Redis client.
func (s *RedisSink) Close() error {
	return s.client.Close()
}

// Envelope builds the stream entry: type, ts and the JSON-encoded point.
func Envelope(p market.Point, now time.Time) (map[string]interface{}, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"type":    EventType,
		"ts":      now.UTC().Format(time.RFC3339Nano),
		"payload": string(payload),
	}, nil
}

// NoopSink is used when Redis is not configured.
type NoopSink struct{}

func (NoopSink) OnPoint(market.Point) {}

func (NoopSink) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (NoopSink) Close() error { return nil }

var (
	_ Sink = (*RedisSink)(nil)
	_ Sink = NoopSink{}
)
