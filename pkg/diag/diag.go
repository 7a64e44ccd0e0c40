// Package diag collects the faults the HAL tolerates: listener delivery
// faults and sensor read faults.
//
// Every fault is counted and forwarded to diag listeners. Log lines are
// suppressed per key so a sensor that fails on every tick logs once per
// window.
package diag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/teslashibe/go-doly/pkg/driver"
	"github.com/teslashibe/go-doly/pkg/event"
)

// DefaultWindow is how long a logged fault key stays quiet.
const DefaultWindow = 5 * time.Second

// Listener receives every fault, suppressed or not.
type Listener interface {
	OnDeliveryFault(f event.Fault)
	OnSensorFault(family driver.Family, err error)
}

// NopListener implements Listener with no-ops.
type NopListener struct{}

func (NopListener) OnDeliveryFault(event.Fault) {}
func (NopListener) OnSensorFault(driver.Family, error) {}

// Snapshot is a copy of the fault counters.
type Snapshot struct {
	Delivery   map[string]uint64 `json:"delivery"`
	Sensor     map[string]uint64 `json:"sensor"`
	Suppressed uint64            `json:"suppressed"`
	Last       string            `json:"last,omitempty"`
	LastAt     time.Time         `json:"last_at,omitempty"`
}

type options struct {
	window time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Sink.
type Option func(*options)

// WithWindow sets the log suppression window.
func WithWindow(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.window = d
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

// Sink implements event.FaultSink and sampling.FaultReporter. It is safe
// for concurrent use.
type Sink struct {
	logger    *slog.Logger
	seen      *gocache.Cache
	window    time.Duration
	now       func() time.Time
	listeners *event.Registry[Listener]

	mu         sync.Mutex
	delivery   map[string]uint64
	sensor     map[string]uint64
	suppressed uint64
	last       string
	lastAt     time.Time
}

// New creates a sink.
func New(opts ...Option) *Sink {
	o := options{window: DefaultWindow, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.With("component", "diag")
	return &Sink{
		logger: logger,
		seen:   gocache.New(o.window, 2*o.window),
		window: o.window,
		now:    o.now,
		// Faults of diag listeners are only logged, never fed back in.
		listeners: event.NewRegistry[Listener]("diag", event.WithLogger(logger)),
		delivery:  make(map[string]uint64),
		sensor:    make(map[string]uint64),
	}
}

// AddListener registers l.
func (s *Sink) AddListener(l Listener) bool {
	return s.listeners.Register(l)
}

// RemoveListener unregisters l.
func (s *Sink) RemoveListener(l Listener) bool {
	return s.listeners.Unregister(l)
}

// ReportFault implements event.FaultSink.
func (s *Sink) ReportFault(f event.Fault) {
	s.mu.Lock()
	s.delivery[f.Registry+"/"+f.Kind.String()]++
	s.last, s.lastAt = f.Error(), s.now()
	s.mu.Unlock()

	key := fmt.Sprintf("delivery|%s|%s|%s", f.Registry, f.Listener, f.Kind)
	if s.admit(key) {
		s.logger.Warn("listener delivery fault",
			"registry", f.Registry,
			"listener", f.Listener,
			"index", f.Index,
			"kind", f.Kind.String(),
			"error", f.Err)
	}
	s.listeners.Dispatch(func(l Listener) { l.OnDeliveryFault(f) })
}

// ReportSensorFault implements sampling.FaultReporter.
func (s *Sink) ReportSensorFault(family driver.Family, err error) {
	s.mu.Lock()
	s.sensor[string(family)]++
	s.last, s.lastAt = fmt.Sprintf("sensor [%s]: %v", family, err), s.now()
	s.mu.Unlock()

	key := fmt.Sprintf("sensor|%s|%v", family, err)
	if s.admit(key) {
		level := slog.LevelWarn
		if errors.Is(err, driver.ErrDataNotReady) {
			level = slog.LevelDebug
		}
		s.logger.Log(context.Background(), level, "sensor fault", "family", string(family), "error", err)
	}
	s.listeners.Dispatch(func(l Listener) { l.OnSensorFault(family, err) })
}

// admit reports whether key has not been logged within the window.
func (s *Sink) admit(key string) bool {
	if err := s.seen.Add(key, struct{}{}, s.window); err != nil {
		s.mu.Lock()
		s.suppressed++
		s.mu.Unlock()
		return false
	}
	return true
}

// Snapshot returns a copy of the counters.
func (s *Sink) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Delivery:   make(map[string]uint64, len(s.delivery)),
		Sensor:     make(map[string]uint64, len(s.sensor)),
		Suppressed: s.suppressed,
		Last:       s.last,
		LastAt:     s.lastAt,
	}
	for k, v := range s.delivery {
		snap.Delivery[k] = v
	}
	for k, v := range s.sensor {
		snap.Sensor[k] = v
	}
	return snap
}

// Reset clears counters and the suppression window.
func (s *Sink) Reset() {
	s.mu.Lock()
	s.delivery = make(map[string]uint64)
	s.sensor = make(map[string]uint64)
	s.suppressed = 0
	s.last, s.lastAt = "", time.Time{}
	s.mu.Unlock()
	s.seen.Flush()
}

// Close releases diag listeners.
func (s *Sink) Close() {
	s.listeners.Close()
}
