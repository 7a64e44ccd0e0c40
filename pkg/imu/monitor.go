package imu

import (
	"sync"

	"github.com/teslashibe/go-doly/pkg/driver"
	"github.com/teslashibe/go-doly/pkg/event"
	"github.com/teslashibe/go-doly/pkg/sampling"
)

// Monitor feeds IMU samples through a Detector and dispatches the results.
type Monitor struct {
	listeners *event.Registry[Listener]
	faults    sampling.FaultReporter

	mu   sync.Mutex
	det  *Detector
	last Data
	seen bool
}

// NewMonitor creates a monitor. Faulted samples go to faults, which may be
// nil.
func NewMonitor(cfg Config, faults sampling.FaultReporter, opts ...event.Option) (*Monitor, error) {
	det, err := NewDetector(cfg)
	if err != nil {
		return nil, err
	}
	return &Monitor{
		listeners: event.NewRegistry[Listener]("imu", opts...),
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

// Handle processes one sample. Every good sample is delivered through
// OnImuUpdate before any gesture it concludes.
func (m *Monitor) Handle(s sampling.Sample[driver.IMUReading]) {
	if !s.OK() {
		m.faults.ReportSensorFault(driver.FamilyIMU, s.Err)
		return
	}
	data := DataFrom(s.Reading)

	m.mu.Lock()
	m.last, m.seen = data, true
	ev, ok := m.det.Process(s)
	m.mu.Unlock()

	m.listeners.Dispatch(func(l Listener) { l.OnImuUpdate(data) })
	if ok {
		m.listeners.Dispatch(func(l Listener) { l.OnImuGesture(ev.Gesture, ev.Direction) })
	}
}

// Data returns the latest snapshot. ok is false before the first good
// sample.
func (m *Monitor) Data() (data Data, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, m.seen
}

// Temperature returns the latest die temperature.
func (m *Monitor) Temperature() (float64, bool) {
	d, ok := m.Data()
	return d.Temperature, ok
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
