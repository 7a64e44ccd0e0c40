package edge

import (
	"errors"

	"github.com/teslashibe/go-doly/pkg/driver"
	"github.com/teslashibe/go-doly/pkg/sampling"
)

// Config holds the edge detector settings.
type Config struct {
	// Debounce is how many consecutive samples must agree before a sensor
	// changes state.
	Debounce int `mapstructure:"debounce" yaml:"debounce"`
}

// DefaultConfig reports every transition on the first sample.
func DefaultConfig() Config {
	return Config{Debounce: 1}
}

// Validate checks the settings.
func (c Config) Validate() error {
	if c.Debounce < 1 {
		return errors.New("edge: debounce must be at least one sample")
	}
	return nil
}

// Result is what one sample produced.
type Result struct {
	// Changed lists the sensors that changed state, in hardware order.
	Changed []Sensor

	// Gap is valid when HasGap is set: the set of gap sensors changed and
	// is not empty.
	Gap    GapDirection
	HasGap bool
}

// Detector tracks the four sensors. It is not safe for concurrent use.
type Detector struct {
	cfg     Config
	states  [driver.EdgeSensorCount]State
	pending [driver.EdgeSensorCount]int
}

// NewDetector creates a detector with every sensor on the ground.
func NewDetector(cfg Config) *Detector {
	if cfg.Debounce < 1 {
		cfg.Debounce = 1
	}
	return &Detector{cfg: cfg}
}

// Reset puts every sensor back on the ground.
func (d *Detector) Reset() {
	d.states = [driver.EdgeSensorCount]State{}
	d.pending = [driver.EdgeSensorCount]int{}
}

// Process feeds one sample. A failed read holds the previous states.
func (d *Detector) Process(s sampling.Sample[driver.EdgeReading]) Result {
	var res Result
	if !s.OK() {
		return res
	}

	before := d.gaps()
	for i, gap := range s.Reading.Gap {
		want := StateGround
		if gap {
			want = StateGap
		}
		if want == d.states[i] {
			d.pending[i] = 0
			continue
		}
		d.pending[i]++
		if d.pending[i] < d.cfg.Debounce {
			continue
		}
		d.pending[i] = 0
		d.states[i] = want
		res.Changed = append(res.Changed, Sensor{ID: SensorID(i), State: want})
	}

	if after := d.gaps(); after != before && after != 0 {
		res.Gap, res.HasGap = directions[after], true
	}
	return res
}

// Sensors returns every sensor, in hardware order.
func (d *Detector) Sensors() []Sensor {
	out := make([]Sensor, len(d.states))
	for i, st := range d.states {
		out[i] = Sensor{ID: SensorID(i), State: st}
	}
	return out
}

// SensorsIn returns the sensors currently in state.
func (d *Detector) SensorsIn(state State) []Sensor {
	var out []Sensor
	for i, st := range d.states {
		if st == state {
			out = append(out, Sensor{ID: SensorID(i), State: st})
		}
	}
	return out
}

func (d *Detector) gaps() mask {
	var m mask
	for i, st := range d.states {
		if st == StateGap {
			m |= bit(SensorID(i))
		}
	}
	return m
}
