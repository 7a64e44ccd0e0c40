package tof

import (
	"errors"
	"time"

	"github.com/teslashibe/go-doly/pkg/driver"
	"github.com/teslashibe/go-doly/pkg/sampling"
)

// Config holds the proximity thresholds, in millimeters unless noted.
type Config struct {
	// Window is how many good ranges per side the trend looks back over.
	Window int `mapstructure:"window" yaml:"window"`

	// TrendEnter is the change that makes a trend; after a trend fires the
	// range must reverse by TrendExit before the same trend fires again.
	TrendEnter int `mapstructure:"trend_enter" yaml:"trend_enter"`
	TrendExit  int `mapstructure:"trend_exit" yaml:"trend_exit"`

	// A side is near below NearMM and far again above NearMM+NearHysteresis.
	NearMM         int `mapstructure:"near_mm" yaml:"near_mm"`
	NearHysteresis int `mapstructure:"near_hysteresis" yaml:"near_hysteresis"`

	SwipeWindow time.Duration `mapstructure:"swipe_window" yaml:"swipe_window"`
	ScrubWindow time.Duration `mapstructure:"scrub_window" yaml:"scrub_window"`
	ScrubCount  int           `mapstructure:"scrub_count" yaml:"scrub_count"`

	// Threshold fires OnProximityThreshold when a side first drops below
	// it. Zero disables it. It re-arms ThresholdRearm above the threshold.
	Threshold      int `mapstructure:"threshold" yaml:"threshold"`
	ThresholdRearm int `mapstructure:"threshold_rearm" yaml:"threshold_rearm"`
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		Window:         8,
		TrendEnter:     40,
		TrendExit:      15,
		NearMM:         120,
		NearHysteresis: 20,
		SwipeWindow:    400 * time.Millisecond,
		ScrubWindow:    time.Second,
		ScrubCount:     3,
		ThresholdRearm: 10,
	}
}

// Validate checks the thresholds.
func (c Config) Validate() error {
	switch {
	case c.Window < 2:
		return errors.New("tof: window must hold at least two ranges")
	case c.TrendEnter <= 0 || c.TrendExit <= 0:
		return errors.New("tof: trend thresholds must be positive")
	case c.TrendExit >= c.TrendEnter:
		return errors.New("tof: trend exit must be below trend enter")
	case c.NearMM <= 0 || c.NearHysteresis < 0:
		return errors.New("tof: invalid near range")
	case c.ScrubCount < 2:
		return errors.New("tof: scrub count must be at least two")
	case c.Threshold < 0:
		return errors.New("tof: threshold must not be negative")
	}
	return nil
}

// Result is what one sample produced.
type Result struct {
	// Left and Right are the readings of this sample.
	Left, Right Data

	// Gestures is indexed by Side and valid when HasGesture is set.
	Gestures   [2]Gesture
	HasGesture bool

	// Threshold is set when a side crossed the proximity threshold.
	Threshold bool

	// Errors holds every side that reported a status code.
	Errors []Data
}

type sideState struct {
	window  []int
	latched GestureType
	extreme int

	near      bool
	lastEntry time.Time
	entries   []time.Time

	disarmed bool
}

// Detector tracks both sensors. It is not safe for concurrent use.
type Detector struct {
	cfg   Config
	sides [2]sideState
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
	if c.Window == 0 {
		c.Window = def.Window
	}
	if c.TrendEnter == 0 {
		c.TrendEnter = def.TrendEnter
	}
	if c.TrendExit == 0 {
		c.TrendExit = def.TrendExit
	}
	if c.NearMM == 0 {
		c.NearMM = def.NearMM
	}
	if c.NearHysteresis == 0 {
		c.NearHysteresis = def.NearHysteresis
	}
	if c.SwipeWindow == 0 {
		c.SwipeWindow = def.SwipeWindow
	}
	if c.ScrubWindow == 0 {
		c.ScrubWindow = def.ScrubWindow
	}
	if c.ScrubCount == 0 {
		c.ScrubCount = def.ScrubCount
	}
	if c.ThresholdRearm == 0 {
		c.ThresholdRearm = def.ThresholdRearm
	}
	return c
}

// Config returns the thresholds in use.
func (d *Detector) Config() Config {
	return d.cfg
}

// SetThreshold changes the proximity threshold. Zero disables it.
func (d *Detector) SetThreshold(mm int) {
	d.cfg.Threshold = mm
	for i := range d.sides {
		d.sides[i].disarmed = false
	}
}

// Reset clears all carried state.
func (d *Detector) Reset() {
	d.sides = [2]sideState{}
}

// Process feeds one sample. A side with a status code leaves that side's
// state untouched.
func (d *Detector) Process(s sampling.Sample[driver.RangeReading]) Result {
	var res Result
	if !s.OK() {
		code := codeOf(s.Err)
		res.Left = Data{UpdatedAt: s.At, Error: code, Side: SideLeft}
		res.Right = Data{UpdatedAt: s.At, Error: code, Side: SideRight}
		res.Errors = []Data{res.Left, res.Right}
		return res
	}

	raw := [2]driver.RangeSide{s.Reading.Left, s.Reading.Right}
	var entered [2]bool
	for i, r := range raw {
		side := Side(i)
		data := Data{UpdatedAt: s.At, RangeMM: r.RangeMM, Error: Error(r.Status), Side: side}
		if side == SideLeft {
			res.Left = data
		} else {
			res.Right = data
		}
		if r.Status != 0 {
			res.Errors = append(res.Errors, data)
			continue
		}

		st := &d.sides[i]
		if g := d.trend(st, r.RangeMM); g != GestureUndefined {
			res.Gestures[i] = Gesture{Type: g, RangeMM: r.RangeMM}
			res.HasGesture = true
		}
		entered[i] = d.nearness(st, r.RangeMM)
		if d.threshold(st, r.RangeMM) {
			res.Threshold = true
		}
	}

	d.patterns(&res, raw, entered, s.At)
	return res
}

func (d *Detector) trend(st *sideState, r int) GestureType {
	released := false
	switch st.latched {
	case GestureObjectComing:
		if r < st.extreme {
			st.extreme = r
		} else if r-st.extreme >= d.cfg.TrendExit {
			released = true
		}
	case GestureObjectGoing:
		if r > st.extreme {
			st.extreme = r
		} else if st.extreme-r >= d.cfg.TrendExit {
			released = true
		}
	}
	if released {
		// a new trend is measured from the turning point
		st.latched = GestureUndefined
		st.window = st.window[:0]
	}

	st.push(r, d.cfg.Window)
	hi, lo := r, r
	for _, v := range st.window {
		hi, lo = max(hi, v), min(lo, v)
	}

	g := GestureUndefined
	switch {
	case hi-r >= d.cfg.TrendEnter && st.latched != GestureObjectComing:
		g = GestureObjectComing
	case r-lo >= d.cfg.TrendEnter && st.latched != GestureObjectGoing:
		g = GestureObjectGoing
	}
	if g != GestureUndefined {
		st.latched, st.extreme = g, r
		st.window = append(st.window[:0], r)
	}
	return g
}

func (st *sideState) push(r, size int) {
	if len(st.window) == size {
		copy(st.window, st.window[1:])
		st.window = st.window[:size-1]
	}
	st.window = append(st.window, r)
}

// nearness reports whether the side just became near.
func (d *Detector) nearness(st *sideState, r int) bool {
	switch {
	case !st.near && r < d.cfg.NearMM:
		st.near = true
		return true
	case st.near && r > d.cfg.NearMM+d.cfg.NearHysteresis:
		st.near = false
	}
	return false
}

func (d *Detector) threshold(st *sideState, r int) bool {
	if d.cfg.Threshold <= 0 {
		return false
	}
	switch {
	case !st.disarmed && r < d.cfg.Threshold:
		st.disarmed = true
		return true
	case st.disarmed && r > d.cfg.Threshold+d.cfg.ThresholdRearm:
		st.disarmed = false
	}
	return false
}

// patterns turns near entries into swipe and scrub gestures. They replace
// any trend gesture of the same sample.
func (d *Detector) patterns(res *Result, raw [2]driver.RangeSide, entered [2]bool, at time.Time) {
	left, right := &d.sides[SideLeft], &d.sides[SideRight]

	swipe := GestureUndefined
	switch {
	case entered[SideLeft] && entered[SideRight]:
		// both at once is neither direction
	case entered[SideLeft] && within(right.lastEntry, at, d.cfg.SwipeWindow):
		swipe = GestureToLeft
	case entered[SideRight] && within(left.lastEntry, at, d.cfg.SwipeWindow):
		swipe = GestureToRight
	}

	for i, in := range entered {
		if !in {
			continue
		}
		st := &d.sides[i]
		st.lastEntry = at
		st.entries = append(prune(st.entries, at, d.cfg.ScrubWindow), at)
	}

	if swipe != GestureUndefined {
		for i := range d.sides {
			res.Gestures[i] = Gesture{Type: swipe, RangeMM: raw[i].RangeMM}
			d.sides[i].lastEntry = time.Time{}
			d.sides[i].entries = d.sides[i].entries[:0]
		}
		res.HasGesture = true
		return
	}

	for i := range d.sides {
		st := &d.sides[i]
		if entered[i] && len(st.entries) >= d.cfg.ScrubCount {
			res.Gestures[i] = Gesture{Type: GestureScrubbing, RangeMM: raw[i].RangeMM}
			res.HasGesture = true
			st.entries = st.entries[:0]
			st.lastEntry = time.Time{}
		}
	}
}

func within(prev, at time.Time, window time.Duration) bool {
	return !prev.IsZero() && at.After(prev) && at.Sub(prev) <= window
}

func prune(entries []time.Time, at time.Time, window time.Duration) []time.Time {
	keep := entries[:0]
	for _, t := range entries {
		if at.Sub(t) <= window {
			keep = append(keep, t)
		}
	}
	return keep
}

func codeOf(err error) Error {
	var re *driver.RangeError
	if errors.As(err, &re) {
		return Error(re.Code)
	}
	return DataNotReady
}
