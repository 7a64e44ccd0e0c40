package touch

import (
	"sync"

	"github.com/teslashibe/go-doly/pkg/driver"
	"github.com/teslashibe/go-doly/pkg/event"
	"github.com/teslashibe/go-doly/pkg/sampling"
)

// Monitor feeds touch samples through a Detector and dispatches the results.
type Monitor struct {
	listeners *event.Registry[Listener]
	faults    sampling.FaultReporter

	mu  sync.Mutex
	det *Detector
}

// NewMonitor creates a monitor. Failed reads go to faults, which may be nil.
func NewMonitor(cfg Config, faults sampling.FaultReporter, opts ...event.Option) (*Monitor, error) {
	det, err := NewDetector(cfg)
	if err != nil {
		return nil, err
	}
	return &Monitor{
		listeners: event.NewRegistry[Listener]("touch", opts...),
		faults:    sampling.OrNop(faults),
		det:       det,
	}, nil
}

// AddListener registers l.
func (m *Monitor) AddListener(l Listener) bool {
	return m.listeners.Register(l)
}

// RemoveListener unregisters l.
func (m *Monitor) RemoveListener(l Listener) bool {
	return m.listeners.Unregister(l)
}

// Handle processes one sample. Touch events are delivered before the
// activities they complete.
func (m *Monitor) Handle(s sampling.Sample[driver.TouchReading]) {
	if !s.OK() {
		m.faults.ReportSensorFault(driver.FamilyTouch, s.Err)
		return
	}

	m.mu.Lock()
	res := m.det.Process(s)
	m.mu.Unlock()

	for _, e := range res.Touches {
		m.listeners.Dispatch(func(l Listener) { l.OnTouchEvent(e.Side, e.State) })
	}
	for _, a := range res.Activities {
		m.listeners.Dispatch(func(l Listener) { l.OnTouchActivityEvent(a.Side, a.Activity) })
	}
}

// IsTouched reports whether a zone is down. SideBoth requires both zones.
func (m *Monitor) IsTouched(side Side) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.det.IsTouched(side)
}

// Reset releases both zones.
func (m *Monitor) Reset() {
	m.mu.Lock()
	m.det.Reset()
	m.mu.Unlock()
}

// Close releases listeners.
func (m *Monitor) Close() {
	m.listeners.Close()
}
