package touch

import (
	"errors"
	"time"

	"github.com/teslashibe/go-doly/pkg/driver"
	"github.com/teslashibe/go-doly/pkg/sampling"
)

// Config holds the touch timings.
type Config struct {
	// Debounce is how long a raw state must be stable to count.
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`

	// PatTaps taps within PatWindow, none longer than TapMax, are patting.
	// The same count with a longer tap is disturbing.
	TapMax    time.Duration `mapstructure:"tap_max" yaml:"tap_max"`
	PatWindow time.Duration `mapstructure:"pat_window" yaml:"pat_window"`
	PatTaps   int           `mapstructure:"pat_taps" yaml:"pat_taps"`

	// DisturbHold is how long a held contact takes to count as disturbing.
	DisturbHold time.Duration `mapstructure:"disturb_hold" yaml:"disturb_hold"`
}

// DefaultConfig returns the default timings.
func DefaultConfig() Config {
	return Config{
		Debounce:    30 * time.Millisecond,
		TapMax:      300 * time.Millisecond,
		PatWindow:   1500 * time.Millisecond,
		PatTaps:     3,
		DisturbHold: 1500 * time.Millisecond,
	}
}

// Validate checks the timings.
func (c Config) Validate() error {
	switch {
	case c.Debounce < 0:
		return errors.New("touch: debounce must not be negative")
	case c.TapMax <= 0 || c.PatWindow <= c.TapMax:
		return errors.New("touch: pat window must exceed the tap length")
	case c.PatTaps < 2:
		return errors.New("touch: patting needs at least two taps")
	case c.DisturbHold <= c.TapMax:
		return errors.New("touch: disturb hold must exceed the tap length")
	}
	return nil
}

// Event is a debounced zone transition.
type Event struct {
	Side  Side
	State State
}

// ActivityEvent is a recognized pattern.
type ActivityEvent struct {
	Side     Side
	Activity Activity
}

// Result is what one sample produced.
type Result struct {
	Touches    []Event
	Activities []ActivityEvent
}

type tap struct {
	at   time.Time
	long bool
}

type zone struct {
	candidate State
	since     time.Time
	stable    State
	downAt    time.Time
	held      bool
	taps      []tap
}

// Detector tracks both zones. It is not safe for concurrent use.
type Detector struct {
	cfg   Config
	zones [2]zone
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
	if c.Debounce == 0 {
		c.Debounce = def.Debounce
	}
	if c.TapMax == 0 {
		c.TapMax = def.TapMax
	}
	if c.PatWindow == 0 {
		c.PatWindow = def.PatWindow
	}
	if c.PatTaps == 0 {
		c.PatTaps = def.PatTaps
	}
	if c.DisturbHold == 0 {
		c.DisturbHold = def.DisturbHold
	}
	return c
}

// Reset releases both zones and forgets taps.
func (d *Detector) Reset() {
	d.zones = [2]zone{}
}

// IsTouched reports whether the zone is down. SideBoth requires both.
func (d *Detector) IsTouched(side Side) bool {
	left, right := d.zones[0].stable == StateDown, d.zones[1].stable == StateDown
	switch side {
	case driver.SideLeft:
		return left
	case driver.SideRight:
		return right
	default:
		return left && right
	}
}

// Process feeds one sample. A failed read holds the previous state.
func (d *Detector) Process(s sampling.Sample[driver.TouchReading]) Result {
	var res Result
	if !s.OK() {
		return res
	}

	raw := [2]bool{s.Reading.Left, s.Reading.Right}
	var (
		changed    [2]bool
		activities [2]*Activity
	)
	for i, down := range raw {
		z := &d.zones[i]
		want := StateUp
		if down {
			want = StateDown
		}
		if want != z.candidate {
			z.candidate, z.since = want, s.At
		}
		if z.candidate != z.stable && s.At.Sub(z.since) >= d.cfg.Debounce {
			z.stable = z.candidate
			changed[i] = true
			activities[i] = d.transition(z)
		}
		if a := d.hold(z, s.At); a != nil {
			activities[i] = a
		}
	}

	if changed[0] && changed[1] && d.zones[0].stable == d.zones[1].stable {
		res.Touches = append(res.Touches, Event{Side: driver.SideBoth, State: d.zones[0].stable})
	} else {
		for i, c := range changed {
			if c {
				res.Touches = append(res.Touches, Event{Side: zoneSide(i), State: d.zones[i].stable})
			}
		}
	}

	if activities[0] != nil && activities[1] != nil && *activities[0] == *activities[1] {
		res.Activities = append(res.Activities, ActivityEvent{Side: driver.SideBoth, Activity: *activities[0]})
	} else {
		for i, a := range activities {
			if a != nil {
				res.Activities = append(res.Activities, ActivityEvent{Side: zoneSide(i), Activity: *a})
			}
		}
	}
	return res
}

// transition handles a debounced change. Transition times are taken from
// when the raw state first changed.
func (d *Detector) transition(z *zone) *Activity {
	if z.stable == StateDown {
		z.downAt, z.held = z.since, false
		return nil
	}
	if z.held {
		// released after a disturbing hold
		return nil
	}

	keep := z.taps[:0]
	for _, t := range z.taps {
		if z.since.Sub(t.at) <= d.cfg.PatWindow {
			keep = append(keep, t)
		}
	}
	z.taps = append(keep, tap{at: z.since, long: z.since.Sub(z.downAt) > d.cfg.TapMax})
	if len(z.taps) < d.cfg.PatTaps {
		return nil
	}

	a := ActivityPatting
	for _, t := range z.taps {
		if t.long {
			a = ActivityDisturb
		}
	}
	z.taps = z.taps[:0]
	return &a
}

func (d *Detector) hold(z *zone, at time.Time) *Activity {
	if z.stable != StateDown || z.held || at.Sub(z.downAt) < d.cfg.DisturbHold {
		return nil
	}
	z.held = true
	z.taps = z.taps[:0]
	a := ActivityDisturb
	return &a
}

func zoneSide(i int) Side {
	if i == 0 {
		return driver.SideLeft
	}
	return driver.SideRight
}
