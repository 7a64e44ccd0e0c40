package imu

import (
	"errors"
	"math"
	"time"

	"github.com/teslashibe/go-doly/pkg/driver"
	"github.com/teslashibe/go-doly/pkg/sampling"
)

// Config holds the gesture thresholds. Accelerations are in g with gravity
// removed.
type Config struct {
	// ActiveAccel or ActiveRotation (degrees per second) starts an episode.
	ActiveAccel    float64 `mapstructure:"active_accel" yaml:"active_accel"`
	ActiveRotation float64 `mapstructure:"active_rotation" yaml:"active_rotation"`

	// QuietTime below both thresholds ends an episode; MaxEpisode caps it.
	QuietTime  time.Duration `mapstructure:"quiet_time" yaml:"quiet_time"`
	MaxEpisode time.Duration `mapstructure:"max_episode" yaml:"max_episode"`

	// Shocks are short episodes graded by their peak.
	ShockMaxDuration time.Duration `mapstructure:"shock_max_duration" yaml:"shock_max_duration"`
	ShockLight       float64       `mapstructure:"shock_light" yaml:"shock_light"`
	ShockMedium      float64       `mapstructure:"shock_medium" yaml:"shock_medium"`
	ShockHard        float64       `mapstructure:"shock_hard" yaml:"shock_hard"`
	ShockExtreme     float64       `mapstructure:"shock_extreme" yaml:"shock_extreme"`

	// ReversalAccel is the magnitude an axis must reach for a sign change
	// to count as a reversal.
	ReversalAccel    float64       `mapstructure:"reversal_accel" yaml:"reversal_accel"`
	VibrateReversals int           `mapstructure:"vibrate_reversals" yaml:"vibrate_reversals"`
	VibrateFreq      float64       `mapstructure:"vibrate_freq" yaml:"vibrate_freq"`
	VibrateExtreme   float64       `mapstructure:"vibrate_extreme" yaml:"vibrate_extreme"`
	ShakeReversals   int           `mapstructure:"shake_reversals" yaml:"shake_reversals"`
	LongShake        time.Duration `mapstructure:"long_shake" yaml:"long_shake"`

	// Debounce suppresses new episodes after a gesture.
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

// DefaultConfig returns thresholds tuned for Doly's IMU at 50 Hz.
func DefaultConfig() Config {
	return Config{
		ActiveAccel:      0.25,
		ActiveRotation:   60,
		QuietTime:        150 * time.Millisecond,
		MaxEpisode:       3 * time.Second,
		ShockMaxDuration: 80 * time.Millisecond,
		ShockLight:       1.5,
		ShockMedium:      3,
		ShockHard:        6,
		ShockExtreme:     10,
		ReversalAccel:    0.2,
		VibrateReversals: 8,
		VibrateFreq:      12,
		VibrateExtreme:   2.5,
		ShakeReversals:   3,
		LongShake:        time.Second,
		Debounce:         300 * time.Millisecond,
	}
}

// Validate checks the thresholds.
func (c Config) Validate() error {
	if c.ActiveAccel <= 0 || c.ActiveRotation <= 0 {
		return errors.New("imu: activity thresholds must be positive")
	}
	if c.QuietTime <= 0 || c.MaxEpisode <= c.QuietTime {
		return errors.New("imu: max episode must exceed quiet time")
	}
	if !(c.ShockLight <= c.ShockMedium && c.ShockMedium <= c.ShockHard && c.ShockHard <= c.ShockExtreme) {
		return errors.New("imu: shock levels must be ascending")
	}
	if c.VibrateReversals <= 0 || c.ShakeReversals <= 0 {
		return errors.New("imu: reversal counts must be positive")
	}
	return nil
}

// Event is one classified gesture.
type Event struct {
	Gesture   Gesture
	Direction Direction
	At        time.Time
	Peak      float64
	Duration  time.Duration
}

type episode struct {
	start      time.Time
	lastActive time.Time
	peak       float64
	peakAxis   int
	peakSign   float64
	signs      [3]float64
	reversals  [3]int
}

// Detector classifies motion episodes. It is not safe for concurrent use;
// Monitor serializes access.
type Detector struct {
	cfg Config

	ep       *episode
	prev     driver.IMUReading
	prevAt   time.Time
	hasPrev  bool
	quietFor time.Time
}

// NewDetector creates a detector. Zero fields of cfg take their
// DefaultConfig value; the result must pass Validate.
func NewDetector(cfg Config) (*Detector, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{cfg: cfg}, nil
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.ActiveAccel == 0 {
		c.ActiveAccel = def.ActiveAccel
	}
	if c.ActiveRotation == 0 {
		c.ActiveRotation = def.ActiveRotation
	}
	if c.QuietTime == 0 {
		c.QuietTime = def.QuietTime
	}
	if c.MaxEpisode == 0 {
		c.MaxEpisode = def.MaxEpisode
	}
	if c.ShockMaxDuration == 0 {
		c.ShockMaxDuration = def.ShockMaxDuration
	}
	if c.ShockLight == 0 {
		c.ShockLight = def.ShockLight
	}
	if c.ShockMedium == 0 {
		c.ShockMedium = def.ShockMedium
	}
	if c.ShockHard == 0 {
		c.ShockHard = def.ShockHard
	}
	if c.ShockExtreme == 0 {
		c.ShockExtreme = def.ShockExtreme
	}
	if c.ReversalAccel == 0 {
		c.ReversalAccel = def.ReversalAccel
	}
	if c.VibrateReversals == 0 {
		c.VibrateReversals = def.VibrateReversals
	}
	if c.VibrateFreq == 0 {
		c.VibrateFreq = def.VibrateFreq
	}
	if c.VibrateExtreme == 0 {
		c.VibrateExtreme = def.VibrateExtreme
	}
	if c.ShakeReversals == 0 {
		c.ShakeReversals = def.ShakeReversals
	}
	if c.LongShake == 0 {
		c.LongShake = def.LongShake
	}
	if c.Debounce == 0 {
		c.Debounce = def.Debounce
	}
	return c
}

// Config returns the thresholds in use.
func (d *Detector) Config() Config {
	return d.cfg
}

// Reset clears all carried state.
func (d *Detector) Reset() {
	*d = Detector{cfg: d.cfg}
}

// Process feeds one sample and returns the gesture it concludes, if any.
// Faulted samples are ignored.
func (d *Detector) Process(s sampling.Sample[driver.IMUReading]) (Event, bool) {
	if !s.OK() {
		return Event{}, false
	}
	r, at := s.Reading, s.At
	accel := [3]float64{r.AccelX, r.AccelY, r.AccelZ}
	mag := math.Sqrt(accel[0]*accel[0] + accel[1]*accel[1] + accel[2]*accel[2])

	rate := 0.0
	if d.hasPrev {
		if dt := at.Sub(d.prevAt).Seconds(); dt > 0 {
			delta := math.Max(math.Abs(angleDelta(d.prev.Yaw, r.Yaw)),
				math.Max(math.Abs(angleDelta(d.prev.Pitch, r.Pitch)), math.Abs(angleDelta(d.prev.Roll, r.Roll))))
			rate = delta / dt
		}
	}
	d.prev, d.prevAt, d.hasPrev = r, at, true

	active := mag >= d.cfg.ActiveAccel || rate >= d.cfg.ActiveRotation

	if d.ep == nil {
		if !active || at.Before(d.quietFor) {
			return Event{}, false
		}
		d.ep = &episode{start: at, lastActive: at}
	}

	ep := d.ep
	ep.record(accel, mag, d.cfg.ReversalAccel)
	if active {
		ep.lastActive = at
	}

	switch {
	case at.Sub(ep.lastActive) >= d.cfg.QuietTime:
		return d.conclude(at, ep.lastActive.Sub(ep.start)), true
	case at.Sub(ep.start) >= d.cfg.MaxEpisode:
		return d.conclude(at, at.Sub(ep.start)), true
	}
	return Event{}, false
}

func (ep *episode) record(accel [3]float64, mag, reversal float64) {
	if mag > ep.peak {
		ep.peak = mag
		ep.peakAxis = dominant(accel)
		ep.peakSign = math.Copysign(1, accel[ep.peakAxis])
	}
	for i, a := range accel {
		if math.Abs(a) < reversal {
			continue
		}
		sign := math.Copysign(1, a)
		if ep.signs[i] != 0 && sign != ep.signs[i] {
			ep.reversals[i]++
		}
		ep.signs[i] = sign
	}
}

func (d *Detector) conclude(at time.Time, duration time.Duration) Event {
	ep := d.ep
	d.ep = nil
	d.quietFor = at.Add(d.cfg.Debounce)

	return Event{
		Gesture:   d.classify(ep, duration),
		Direction: direction(ep.peakAxis, ep.peakSign),
		At:        at,
		Peak:      ep.peak,
		Duration:  duration,
	}
}

func (d *Detector) classify(ep *episode, duration time.Duration) Gesture {
	c := d.cfg
	if duration <= c.ShockMaxDuration && ep.peak >= c.ShockLight {
		switch {
		case ep.peak >= c.ShockExtreme:
			return GestureShockExtreme
		case ep.peak >= c.ShockHard:
			return GestureShockHard
		case ep.peak >= c.ShockMedium:
			return GestureShockMedium
		default:
			return GestureShockLight
		}
	}

	reversals := ep.reversals[ep.peakAxis]
	if reversals >= c.VibrateReversals && duration > 0 {
		// two reversals per oscillation
		freq := float64(reversals) / 2 / duration.Seconds()
		if freq >= c.VibrateFreq {
			if ep.peak >= c.VibrateExtreme {
				return GestureVibrateExtreme
			}
			return GestureVibrate
		}
	}
	if reversals >= c.ShakeReversals {
		if duration >= c.LongShake {
			return GestureLongShake
		}
		return GestureShortShake
	}
	return GestureMove
}

func dominant(v [3]float64) int {
	axis := 0
	for i := 1; i < 3; i++ {
		if math.Abs(v[i]) > math.Abs(v[axis]) {
			axis = i
		}
	}
	return axis
}

func direction(axis int, sign float64) Direction {
	switch {
	case axis == 0 && sign > 0:
		return DirectionFront
	case axis == 0:
		return DirectionBack
	case axis == 1 && sign > 0:
		return DirectionLeft
	case axis == 1:
		return DirectionRight
	case sign > 0:
		return DirectionUp
	default:
		return DirectionDown
	}
}

// angleDelta returns b-a wrapped to [-180, 180).
func angleDelta(a, b float64) float64 {
	return math.Mod(b-a+540, 360) - 180
}
