// Package sampling runs the per-family acquisition loops that read Doly's
// sensors at a fixed cadence.
//
// A Loop never blocks on its consumer. Samples go into a bounded ring and,
// when the consumer falls behind, the oldest unconsumed sample is dropped.
package sampling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-doly/pkg/driver"
)

// DefaultQueueSize is the ring capacity used when none is given.
const DefaultQueueSize = 32

// ErrUnexpectedReading is returned by Typed when the driver reports a reading
// of another type than the loop expects.
var ErrUnexpectedReading = errors.New("sampling: unexpected reading type")

// Sample is one acquisition result. Err is set instead of Reading when the
// read failed.
type Sample[R any] struct {
	Seq     uint64
	At      time.Time
	Reading R
	Err     error
}

// OK reports whether the sample carries a reading.
func (s Sample[R]) OK() bool {
	return s.Err == nil
}

// Stats are the loop counters.
type Stats struct {
	Produced uint64 `json:"produced"`
	Dropped  uint64 `json:"dropped"`
	Faults   uint64 `json:"faults"`
}

// ReadFunc reads one sample. Loops call it with a deadline of one interval.
type ReadFunc[R any] func(ctx context.Context) (R, error)

// Typed adapts a driver.Sensor to a ReadFunc for one family.
func Typed[R driver.Reading](s driver.Sensor, family driver.Family) ReadFunc[R] {
	return func(ctx context.Context) (R, error) {
		var zero R
		raw, err := s.ReadSample(ctx, family)
		if err != nil {
			return zero, err
		}
		r, ok := raw.(R)
		if !ok {
			return zero, fmt.Errorf("%w: %s got %T", ErrUnexpectedReading, family, raw)
		}
		return r, nil
	}
}

type options struct {
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Loop.
type Option func(*options)

// WithClock sets the clock that stamps samples.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Loop samples one sensor family. Run and Consume are meant to run on
// separate goroutines; all methods are safe for concurrent use.
type Loop[R any] struct {
	family   driver.Family
	interval time.Duration
	read     ReadFunc[R]
	now      func() time.Time
	logger   *slog.Logger

	mu    sync.Mutex
	ring  []Sample[R]
	head  int
	size  int
	seq   uint64
	ready chan struct{}

	produced atomic.Uint64
	dropped  atomic.Uint64
	faults   atomic.Uint64
}

// NewLoop creates a loop that reads every interval into a ring of queueSize
// samples. A queueSize <= 0 uses DefaultQueueSize.
func NewLoop[R any](family driver.Family, interval time.Duration, queueSize int, read ReadFunc[R], opts ...Option) *Loop[R] {
	o := options{now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Loop[R]{
		family:   family,
		interval: interval,
		read:     read,
		now:      o.now,
		logger:   o.logger.With("component", "sampling", "family", string(family)),
		ring:     make([]Sample[R], queueSize),
		ready:    make(chan struct{}, 1),
	}
}

// Family returns the sensor family.
func (l *Loop[R]) Family() driver.Family {
	return l.family
}

// Interval returns the sampling interval.
func (l *Loop[R]) Interval() time.Duration {
	return l.interval
}

// Run samples until ctx is done.
func (l *Loop[R]) Run(ctx context.Context) error {
	if l.interval <= 0 {
		return fmt.Errorf("sampling [%s]: interval must be positive", l.family)
	}
	l.logger.Debug("acquisition started", "interval", l.interval)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			l.logger.Debug("acquisition stopped", "produced", l.produced.Load(), "dropped", l.dropped.Load())
			return ctx.Err()
		case <-ticker.C:
			l.Tick(ctx)
		}
	}
}

// Tick performs one acquisition and queues the result.
func (l *Loop[R]) Tick(ctx context.Context) Sample[R] {
	rctx := ctx
	if l.interval > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, l.interval)
		defer cancel()
	}
	r, err := l.read(rctx)
	at := l.now()

	l.mu.Lock()
	l.seq++
	s := Sample[R]{Seq: l.seq, At: at}
	if err != nil {
		s.Err = err
	} else {
		s.Reading = r
	}
	if l.size == len(l.ring) {
		l.head = (l.head + 1) % len(l.ring)
		l.size--
		l.dropped.Add(1)
	}
	l.ring[(l.head+l.size)%len(l.ring)] = s
	l.size++
	l.mu.Unlock()

	l.produced.Add(1)
	if err != nil {
		l.faults.Add(1)
	}
	select {
	case l.ready <- struct{}{}:
	default:
	}
	return s
}

// TryNext pops the oldest queued sample.
func (l *Loop[R]) TryNext() (Sample[R], bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.size == 0 {
		return Sample[R]{}, false
	}
	s := l.ring[l.head]
	l.ring[l.head] = Sample[R]{}
	l.head = (l.head + 1) % len(l.ring)
	l.size--
	return s, true
}

// Next blocks until a sample is queued or ctx is done.
func (l *Loop[R]) Next(ctx context.Context) (Sample[R], error) {
	for {
		if s, ok := l.TryNext(); ok {
			return s, nil
		}
		select {
		case <-ctx.Done():
			return Sample[R]{}, ctx.Err()
		case <-l.ready:
		}
	}
}

// Consume calls fn with every sample, in order, until ctx is done.
func (l *Loop[R]) Consume(ctx context.Context, fn func(Sample[R])) error {
	for {
		s, err := l.Next(ctx)
		if err != nil {
			return err
		}
		fn(s)
	}
}

// Len returns the number of queued samples.
func (l *Loop[R]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

// Dropped returns how many samples were discarded unconsumed.
func (l *Loop[R]) Dropped() uint64 {
	return l.dropped.Load()
}

// Stats returns a snapshot of the counters.
func (l *Loop[R]) Stats() Stats {
	return Stats{
		Produced: l.produced.Load(),
		Dropped:  l.dropped.Load(),
		Faults:   l.faults.Load(),
	}
}
