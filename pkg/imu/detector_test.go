package imu

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/teslashibe/go-doly/pkg/driver"
	"github.com/teslashibe/go-doly/pkg/event"
	"github.com/teslashibe/go-doly/pkg/sampling"
)

const tick = 20 * time.Millisecond

var epoch = time.Unix(1000, 0)

// series builds samples every tick from accel(i).
func series(n int, accel func(i int) driver.IMUReading) []sampling.Sample[driver.IMUReading] {
	out := make([]sampling.Sample[driver.IMUReading], n)
	for i := range out {
		out[i] = sampling.Sample[driver.IMUReading]{
			Seq:     uint64(i + 1),
			At:      epoch.Add(time.Duration(i) * tick),
			Reading: accel(i),
		}
	}
	return out
}

func newDetector(t require.TestingT, cfg Config) *Detector {
	d, err := NewDetector(cfg)
	require.NoError(t, err)
	return d
}

func run(d *Detector, samples []sampling.Sample[driver.IMUReading]) []Event {
	var out []Event
	for _, s := range samples {
		if ev, ok := d.Process(s); ok {
			out = append(out, ev)
		}
	}
	return out
}

// burst is active for the first active samples and still afterwards.
func burst(active int, f func(i int) driver.IMUReading) func(int) driver.IMUReading {
	return func(i int) driver.IMUReading {
		if i < active {
			return f(i)
		}
		return driver.IMUReading{}
	}
}

func TestShockGrades(t *testing.T) {
	tests := []struct {
		peak float64
		want Gesture
	}{
		{1.6, GestureShockLight},
		{3.5, GestureShockMedium},
		{7, GestureShockHard},
		{12, GestureShockExtreme},
	}
	for _, tt := range tests {
		samples := series(20, burst(1, func(int) driver.IMUReading {
			return driver.IMUReading{AccelZ: -tt.peak}
		}))
		events := run(newDetector(t, DefaultConfig()), samples)
		require.Len(t, events, 1, "peak %g", tt.peak)
		assert.Equal(t, tt.want, events[0].Gesture)
		assert.Equal(t, DirectionDown, events[0].Direction)
	}
}

func TestMoveDirection(t *testing.T) {
	tests := []struct {
		reading driver.IMUReading
		want    Direction
	}{
		{driver.IMUReading{AccelX: 0.5}, DirectionFront},
		{driver.IMUReading{AccelX: -0.5}, DirectionBack},
		{driver.IMUReading{AccelY: 0.5}, DirectionLeft},
		{driver.IMUReading{AccelY: -0.5}, DirectionRight},
		{driver.IMUReading{AccelZ: 0.5}, DirectionUp},
	}
	for _, tt := range tests {
		samples := series(30, burst(10, func(int) driver.IMUReading { return tt.reading }))
		events := run(newDetector(t, DefaultConfig()), samples)
		require.Len(t, events, 1)
		assert.Equal(t, GestureMove, events[0].Gesture)
		assert.Equal(t, tt.want, events[0].Direction)
	}
}

func TestShakes(t *testing.T) {
	// flip sign every five samples: 5 Hz oscillation
	shake := func(i int) driver.IMUReading {
		if (i/5)%2 == 0 {
			return driver.IMUReading{AccelY: 0.8}
		}
		return driver.IMUReading{AccelY: -0.8}
	}

	events := run(newDetector(t, DefaultConfig()), series(45, burst(30, shake)))
	require.Len(t, events, 1)
	assert.Equal(t, GestureShortShake, events[0].Gesture)

	events = run(newDetector(t, DefaultConfig()), series(80, burst(60, shake)))
	require.Len(t, events, 1)
	assert.Equal(t, GestureLongShake, events[0].Gesture)
}

func TestVibrate(t *testing.T) {
	buzz := func(peak float64) func(int) driver.IMUReading {
		return func(i int) driver.IMUReading {
			if i%2 == 0 {
				return driver.IMUReading{AccelX: peak}
			}
			return driver.IMUReading{AccelX: -peak}
		}
	}

	events := run(newDetector(t, DefaultConfig()), series(60, burst(40, buzz(0.6))))
	require.Len(t, events, 1)
	assert.Equal(t, GestureVibrate, events[0].Gesture)

	events = run(newDetector(t, DefaultConfig()), series(60, burst(40, buzz(3))))
	require.Len(t, events, 1)
	assert.Equal(t, GestureVibrateExtreme, events[0].Gesture)
}

func TestRotationStartsEpisode(t *testing.T) {
	// 2 degrees per 20ms is 100 deg/s
	turn := func(i int) driver.IMUReading {
		return driver.IMUReading{Yaw: float64(i) * 2}
	}
	samples := series(10, turn)
	samples = append(samples, series(20, func(int) driver.IMUReading {
		return driver.IMUReading{Yaw: 18}
	})...)
	for i := 10; i < len(samples); i++ {
		samples[i].At = epoch.Add(time.Duration(i) * tick)
	}

	events := run(newDetector(t, DefaultConfig()), samples)
	require.Len(t, events, 1)
	assert.Equal(t, GestureMove, events[0].Gesture)
}

func TestDebounceSuppressesRetrigger(t *testing.T) {
	spike := func(i int) driver.IMUReading {
		// second spike lands inside the debounce window of the first
		if i == 0 || i == 12 {
			return driver.IMUReading{AccelX: 2}
		}
		return driver.IMUReading{}
	}
	events := run(newDetector(t, DefaultConfig()), series(40, spike))
	require.Len(t, events, 1)
}

func TestPartialConfig(t *testing.T) {
	d := newDetector(t, Config{Debounce: time.Second})
	assert.Equal(t, time.Second, d.Config().Debounce)
	assert.Equal(t, DefaultConfig().QuietTime, d.Config().QuietTime)

	spike := func(i int) driver.IMUReading {
		if i == 0 || i == 12 {
			return driver.IMUReading{AccelX: 2}
		}
		return driver.IMUReading{}
	}
	require.Len(t, run(d, series(40, spike)), 1)

	_, err := NewDetector(Config{ShockLight: 20})
	assert.Error(t, err, "light above the default medium level")
	_, err = NewMonitor(Config{QuietTime: 5 * time.Second}, nil)
	assert.Error(t, err)
}

func TestMaxEpisode(t *testing.T) {
	cfg := DefaultConfig()
	steady := func(int) driver.IMUReading { return driver.IMUReading{AccelX: 0.4} }
	events := run(newDetector(t, cfg), series(int(cfg.MaxEpisode/tick)+1, steady))
	require.Len(t, events, 1)
	assert.Equal(t, cfg.MaxEpisode, events[0].Duration)
}

func TestFaultedSamplesIgnored(t *testing.T) {
	d := newDetector(t, DefaultConfig())
	_, ok := d.Process(sampling.Sample[driver.IMUReading]{At: epoch, Err: driver.ErrDataNotReady})
	require.False(t, ok)
}

func TestDetectorDeterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 200).Draw(t, "n")
		axis := rapid.SliceOfN(rapid.Float64Range(-4, 4), n, n).Draw(t, "accel")
		yaw := rapid.SliceOfN(rapid.Float64Range(-180, 180), n, n).Draw(t, "yaw")
		samples := series(n, func(i int) driver.IMUReading {
			return driver.IMUReading{AccelX: axis[i], AccelY: axis[(i+1)%n] / 2, Yaw: yaw[i]}
		})

		d := newDetector(t, DefaultConfig())
		first := run(d, samples)
		d.Reset()
		second := run(d, samples)
		third := run(newDetector(t, DefaultConfig()), samples)
		if !assert.ObjectsAreEqual(first, second) || !assert.ObjectsAreEqual(first, third) {
			t.Fatalf("replay diverged: %v / %v / %v", first, second, third)
		}
	})
}

type recorder struct {
	mu       sync.Mutex
	updates  int
	gestures []Gesture
}

func (r *recorder) OnImuUpdate(Data) {
	r.mu.Lock()
	r.updates++
	r.mu.Unlock()
}

func (r *recorder) OnImuGesture(g Gesture, _ Direction) {
	r.mu.Lock()
	r.gestures = append(r.gestures, g)
	r.mu.Unlock()
}

func TestMonitorDispatch(t *testing.T) {
	var faults []error
	reporter := sampling.FaultReporterFunc(func(_ driver.Family, err error) { faults = append(faults, err) })
	m, err := NewMonitor(DefaultConfig(), reporter, event.WithTimeout(0))
	require.NoError(t, err)
	rec := &recorder{}
	m.AddListener(rec)

	_, ok := m.Data()
	require.False(t, ok)

	m.Handle(sampling.Sample[driver.IMUReading]{At: epoch, Err: driver.ErrDataNotReady})
	for _, s := range series(20, burst(1, func(int) driver.IMUReading {
		return driver.IMUReading{AccelX: 2, Temperature: 38}
	})) {
		m.Handle(s)
	}

	require.Len(t, faults, 1)
	require.True(t, errors.Is(faults[0], driver.ErrDataNotReady))
	assert.Equal(t, 20, rec.updates)
	assert.Equal(t, []Gesture{GestureShockLight}, rec.gestures)

	temp, ok := m.Temperature()
	require.True(t, ok)
	assert.Equal(t, 0.0, temp)
}

func TestStrings(t *testing.T) {
	assert.Equal(t, "SHOCK_EXTREME", GestureShockExtreme.String())
	assert.Equal(t, "VIBRATE_EXTREME", GestureVibrateExtreme.String())
	assert.Equal(t, "BACK", DirectionBack.String())
	assert.Equal(t, "GESTURE(42)", Gesture(42).String())
}
