package robot

import (
	"time"

	"github.com/teslashibe/go-doly/pkg/driver"
	"github.com/teslashibe/go-doly/pkg/imu"
	"github.com/teslashibe/go-doly/pkg/sampling"
)

// ArmStatus is one arm.
type ArmStatus struct {
	Side  string  `json:"side"`
	State string  `json:"state"`
	Angle float64 `json:"angle"`
}

// DriveStatus is the wheel pair.
type DriveStatus struct {
	State string `json:"state"`
	Type  string `json:"type"`
}

// LedStatus is one eye.
type LedStatus struct {
	Side  string `json:"side"`
	State string `json:"state"`
}

// SoundStatus is the speaker.
type SoundStatus struct {
	State   string `json:"state"`
	Volume  uint8  `json:"volume"`
	Pending int    `json:"pending"`
}

// RangeStatus is one time-of-flight sensor.
type RangeStatus struct {
	Side    string `json:"side"`
	RangeMM int    `json:"range_mm"`
	Error   string `json:"error"`
}

// Status represents the robot's status
type Status struct {
	Running   bool                      `json:"running"`
	StartedAt time.Time                 `json:"started_at,omitzero"`
	Arms      []ArmStatus               `json:"arms"`
	Drive     DriveStatus               `json:"drive"`
	LEDs      []LedStatus               `json:"leds"`
	Sound     SoundStatus               `json:"sound"`
	FanSpeed  uint8                     `json:"fan_speed"`
	IMU       *imu.Data                 `json:"imu,omitempty"`
	Ranges    []RangeStatus             `json:"ranges"`
	Edges     map[string]string         `json:"edges"`
	Touch     map[string]bool           `json:"touch"`
	Sampling  map[string]sampling.Stats `json:"sampling"`
}

// Status returns a snapshot of every subsystem.
func (r *Robot) Status() Status {
	r.mu.Lock()
	running := r.cancel != nil && !r.closed
	startedAt := r.startedAt
	r.mu.Unlock()

	st := Status{
		Running:   running,
		StartedAt: startedAt,
		Drive: DriveStatus{
			State: r.drive.State().String(),
			Type:  r.drive.Type().String(),
		},
		Sound: SoundStatus{
			State:   r.sound.State().String(),
			Volume:  r.sound.Volume(),
			Pending: r.sound.Pending(),
		},
		FanSpeed: r.fan.Speed(),
		Edges:    make(map[string]string),
		Touch: map[string]bool{
			driver.SideLeft.String():  r.touch.IsTouched(driver.SideLeft),
			driver.SideRight.String(): r.touch.IsTouched(driver.SideRight),
		},
		Sampling: make(map[string]sampling.Stats, len(r.runners)),
	}

	for _, side := range []driver.Side{driver.SideLeft, driver.SideRight} {
		angle := 0.0
		if data := r.arm.CurrentAngle(side); len(data) > 0 {
			angle = data[0].Angle
		}
		st.Arms = append(st.Arms, ArmStatus{Side: side.String(), State: r.arm.State(side).String(), Angle: angle})
		st.LEDs = append(st.LEDs, LedStatus{Side: side.String(), State: r.led.State(side).String()})
	}
	if data, ok := r.imu.Data(); ok {
		st.IMU = &data
	}
	for _, d := range r.tof.SensorsData() {
		st.Ranges = append(st.Ranges, RangeStatus{Side: d.Side.String(), RangeMM: d.RangeMM, Error: d.Error.String()})
	}
	for _, s := range r.edge.Sensors() {
		st.Edges[s.ID.String()] = s.State.String()
	}
	for _, run := range r.runners {
		if _, ok := run.(*fanLoop); ok {
			continue
		}
		st.Sampling[run.name()] = run.stats()
	}
	return st
}
