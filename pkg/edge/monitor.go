package edge

import (
	"sync"

	"github.com/teslashibe/go-doly/pkg/driver"
	"github.com/teslashibe/go-doly/pkg/event"
	"github.com/teslashibe/go-doly/pkg/sampling"
)

// Monitor feeds edge samples through a Detector and dispatches the results.
type Monitor struct {
	listeners *event.Registry[Listener]
	faults    sampling.FaultReporter

	mu  sync.Mutex
	det *Detector
}

// NewMonitor creates a monitor. Failed reads go to faults, which may be nil.
func NewMonitor(cfg Config, faults sampling.FaultReporter, opts ...event.Option) *Monitor {
	return &Monitor{
		listeners: event.NewRegistry[Listener]("edge", opts...),
		faults:    sampling.OrNop(faults),
		det:       NewDetector(cfg),
	}
}

// AddListener registers l.
func (m *Monitor) AddListener(l Listener) bool {
	return m.listeners.Register(l)
}

// RemoveListener unregisters l.
func (m *Monitor) RemoveListener(l Listener) bool {
	return m.listeners.Unregister(l)
}

// Handle processes one sample. OnEdgeChange is delivered before the gap it
// causes.
func (m *Monitor) Handle(s sampling.Sample[driver.EdgeReading]) {
	if !s.OK() {
		m.faults.ReportSensorFault(driver.FamilyEdge, s.Err)
		return
	}

	m.mu.Lock()
	res := m.det.Process(s)
	m.mu.Unlock()

	if len(res.Changed) > 0 {
		m.listeners.Dispatch(func(l Listener) { l.OnEdgeChange(res.Changed) })
	}
	if res.HasGap {
		m.listeners.Dispatch(func(l Listener) { l.OnGapDetect(res.Gap) })
	}
}

// Sensors returns every sensor, in hardware order.
func (m *Monitor) Sensors() []Sensor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.det.Sensors()
}

// SensorsIn returns the sensors currently in state.
func (m *Monitor) SensorsIn(state State) []Sensor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.det.SensorsIn(state)
}

// Reset puts every sensor back on the ground.
func (m *Monitor) Reset() {
	m.mu.Lock()
	m.det.Reset()
	m.mu.Unlock()
}

// Close releases listeners.
func (m *Monitor) Close() {
	m.listeners.Close()
}
