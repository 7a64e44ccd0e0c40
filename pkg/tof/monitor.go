package tof

import (
	"sync"

	"github.com/teslashibe/go-doly/pkg/driver"
	"github.com/teslashibe/go-doly/pkg/event"
	"github.com/teslashibe/go-doly/pkg/sampling"
)

// Monitor feeds range samples through a Detector and dispatches the results.
type Monitor struct {
	listeners *event.Registry[Listener]
	faults    sampling.FaultReporter

	mu   sync.Mutex
	det  *Detector
	last [2]Data
}

// NewMonitor creates a monitor. Failed reads also go to faults, which may
// be nil.
func NewMonitor(cfg Config, faults sampling.FaultReporter, opts ...event.Option) (*Monitor, error) {
	det, err := NewDetector(cfg)
	if err != nil {
		return nil, err
	}
	return &Monitor{
		listeners: event.NewRegistry[Listener]("tof", opts...),
		faults:    sampling.OrNop(faults),
		det:       det,
		last: [2]Data{
			{Side: SideLeft, Error: DataNotReady},
			{Side: SideRight, Error: DataNotReady},
		},
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

// Handle processes one sample. Errors are delivered first, then gestures,
// then the threshold crossing.
func (m *Monitor) Handle(s sampling.Sample[driver.RangeReading]) {
	if !s.OK() {
		m.faults.ReportSensorFault(driver.FamilyTOF, s.Err)
	}

	m.mu.Lock()
	res := m.det.Process(s)
	m.last = [2]Data{res.Left, res.Right}
	m.mu.Unlock()

	for _, e := range res.Errors {
		m.listeners.Dispatch(func(l Listener) { l.OnTofError(e) })
	}
	if res.HasGesture {
		left, right := res.Gestures[SideLeft], res.Gestures[SideRight]
		m.listeners.Dispatch(func(l Listener) { l.OnProximityGesture(left, right) })
	}
	if res.Threshold {
		m.listeners.Dispatch(func(l Listener) { l.OnProximityThreshold(res.Left, res.Right) })
	}
}

// SensorsData returns the latest reading of both sides, left first.
func (m *Monitor) SensorsData() []Data {
	m.mu.Lock()
	defer m.mu.Unlock()
	return []Data{m.last[SideLeft], m.last[SideRight]}
}

// SetThreshold changes the proximity threshold in millimeters. Zero
// disables it.
func (m *Monitor) SetThreshold(mm int) {
	m.mu.Lock()
	m.det.SetThreshold(mm)
	m.mu.Unlock()
}

// Reset clears the detector state.
func (m *Monitor) Reset() {
	m.mu.Lock()
	m.det.Reset()
	m.mu.Unlock()
}

// Close releases listeners.
func (m *Monitor) Close() {
	m.listeners.Close()
}
