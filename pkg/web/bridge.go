package web

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-doly/pkg/arm"
	"github.com/teslashibe/go-doly/pkg/diag"
	"github.com/teslashibe/go-doly/pkg/drive"
	"github.com/teslashibe/go-doly/pkg/driver"
	"github.com/teslashibe/go-doly/pkg/edge"
	"github.com/teslashibe/go-doly/pkg/event"
	"github.com/teslashibe/go-doly/pkg/imu"
	"github.com/teslashibe/go-doly/pkg/led"
	"github.com/teslashibe/go-doly/pkg/protocol"
	"github.com/teslashibe/go-doly/pkg/servo"
	"github.com/teslashibe/go-doly/pkg/sound"
	"github.com/teslashibe/go-doly/pkg/tof"
	"github.com/teslashibe/go-doly/pkg/touch"
)

// DefaultUpdateInterval limits how often IMU updates are forwarded.
const DefaultUpdateInterval = 200 * time.Millisecond

// Broadcaster sends one JSON frame to every client, e.g. *hub.Hub.
type Broadcaster interface {
	BroadcastJSON(v any) error
}

// Bridge implements every family's listener interface and forwards each
// callback as a protocol message.
type Bridge struct {
	out      Broadcaster
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time

	mu         sync.Mutex
	lastUpdate time.Time
}

// NewBridge creates a bridge writing to out. IMU updates are forwarded at
// most once per interval; zero forwards all of them.
func NewBridge(out Broadcaster, interval time.Duration, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		out:      out,
		logger:   logger.With("component", "bridge"),
		interval: interval,
		now:      time.Now,
	}
}

func (b *Bridge) emit(data protocol.EventData) {
	msg, err := protocol.NewEventMessage(data)
	if err == nil {
		err = b.out.BroadcastJSON(msg)
	}
	if err != nil {
		b.logger.Warn("event not forwarded", "family", data.Family, "name", data.Name, "error", err)
	}
}

func (b *Bridge) command(family driver.Family, name string, id uint16, side string, fields map[string]any) {
	b.emit(protocol.EventData{Family: string(family), Name: name, Side: side, ID: protocol.CommandID(id), Fields: fields})
}

func (b *Bridge) sensor(family driver.Family, name string, side string, fields map[string]any) {
	b.emit(protocol.EventData{Family: string(family), Name: name, Side: side, Fields: fields})
}

// Arm

func (b *Bridge) OnArmComplete(id uint16, side driver.Side) {
	b.command(driver.FamilyArm, "ArmComplete", id, side.String(), nil)
}

func (b *Bridge) OnArmError(id uint16, side driver.Side, errType arm.ErrorType) {
	b.command(driver.FamilyArm, "ArmError", id, side.String(), map[string]any{"error": errType.String()})
}

func (b *Bridge) OnArmStateChange(side driver.Side, state arm.State) {
	b.sensor(driver.FamilyArm, "ArmStateChange", side.String(), map[string]any{"state": state.String()})
}

func (b *Bridge) OnArmMovement(side driver.Side, degreeChange float64) {
	b.sensor(driver.FamilyArm, "ArmMovement", side.String(), map[string]any{"degree_change": degreeChange})
}

// Drive

func (b *Bridge) OnDriveComplete(id uint16) {
	b.command(driver.FamilyDrive, "DriveComplete", id, "", nil)
}

func (b *Bridge) OnDriveError(id uint16, side driver.Side, errType drive.ErrorType) {
	b.command(driver.FamilyDrive, "DriveError", id, side.String(), map[string]any{"error": errType.String()})
}

func (b *Bridge) OnDriveStateChange(driveType drive.Type, state drive.State) {
	b.sensor(driver.FamilyDrive, "DriveStateChange", "", map[string]any{"type": driveType.String(), "state": state.String()})
}

// LED

func (b *Bridge) OnLedComplete(id uint16, side driver.Side) {
	b.command(driver.FamilyLED, "LedComplete", id, side.String(), nil)
}

func (b *Bridge) OnLedError(id uint16, side driver.Side, errType led.ErrorType) {
	b.command(driver.FamilyLED, "LedError", id, side.String(), map[string]any{"error": errType.String()})
}

// Servo

func (b *Bridge) OnServoComplete(id uint16, ch servo.ID) {
	b.command(driver.FamilyServo, "ServoComplete", id, "", map[string]any{"channel": ch.String()})
}

func (b *Bridge) OnServoAbort(id uint16, ch servo.ID) {
	b.command(driver.FamilyServo, "ServoAbort", id, "", map[string]any{"channel": ch.String()})
}

func (b *Bridge) OnServoError(id uint16, ch servo.ID) {
	b.command(driver.FamilyServo, "ServoError", id, "", map[string]any{"channel": ch.String()})
}

// Sound

func (b *Bridge) OnSoundBegin(id uint16, volume float64) {
	b.command(driver.FamilySound, "SoundBegin", id, "", map[string]any{"volume": volume})
}

func (b *Bridge) OnSoundComplete(id uint16) {
	b.command(driver.FamilySound, "SoundComplete", id, "", nil)
}

func (b *Bridge) OnSoundAbort(id uint16) {
	b.command(driver.FamilySound, "SoundAbort", id, "", nil)
}

func (b *Bridge) OnSoundError(id uint16) {
	b.command(driver.FamilySound, "SoundError", id, "", nil)
}

// IMU

func (b *Bridge) OnImuUpdate(data imu.Data) {
	if b.interval > 0 {
		now := b.now()
		b.mu.Lock()
		if now.Sub(b.lastUpdate) < b.interval {
			b.mu.Unlock()
			return
		}
		b.lastUpdate = now
		b.mu.Unlock()
	}
	b.sensor(driver.FamilyIMU, "ImuUpdate", "", map[string]any{
		"yaw":         data.YPR.Yaw,
		"pitch":       data.YPR.Pitch,
		"roll":        data.YPR.Roll,
		"accel":       data.LinearAccel,
		"temperature": data.Temperature,
	})
}

func (b *Bridge) OnImuGesture(gesture imu.Gesture, from imu.Direction) {
	b.sensor(driver.FamilyIMU, "ImuGesture", "", map[string]any{"gesture": gesture.String(), "direction": from.String()})
}

// TOF

func (b *Bridge) OnProximityGesture(left, right tof.Gesture) {
	b.sensor(driver.FamilyTOF, "ProximityGesture", "", map[string]any{
		"left":           left.Type.String(),
		"right":          right.Type.String(),
		"left_range_mm":  left.RangeMM,
		"right_range_mm": right.RangeMM,
	})
}

func (b *Bridge) OnProximityThreshold(left, right tof.Data) {
	b.sensor(driver.FamilyTOF, "ProximityThreshold", "", map[string]any{
		"left_range_mm":  left.RangeMM,
		"right_range_mm": right.RangeMM,
	})
}

func (b *Bridge) OnTofError(data tof.Data) {
	b.sensor(driver.FamilyTOF, "TofError", data.Side.String(), map[string]any{"error": data.Error.String(), "range_mm": data.RangeMM})
}

// Edge

func (b *Bridge) OnEdgeChange(sensors []edge.Sensor) {
	states := make(map[string]any, len(sensors))
	for _, s := range sensors {
		states[s.ID.String()] = s.State.String()
	}
	b.sensor(driver.FamilyEdge, "EdgeChange", "", states)
}

func (b *Bridge) OnGapDetect(direction edge.GapDirection) {
	b.sensor(driver.FamilyEdge, "GapDetect", "", map[string]any{"direction": direction.String()})
}

// Touch

func (b *Bridge) OnTouchEvent(side touch.Side, state touch.State) {
	b.sensor(driver.FamilyTouch, "TouchEvent", side.String(), map[string]any{"state": state.String()})
}

func (b *Bridge) OnTouchActivityEvent(side touch.Side, activity touch.Activity) {
	b.sensor(driver.FamilyTouch, "TouchActivityEvent", side.String(), map[string]any{"activity": activity.String()})
}

// Diagnostics

func (b *Bridge) OnDeliveryFault(f event.Fault) {
	b.fault(protocol.FaultData{
		Source:   "delivery",
		Family:   f.Registry,
		Kind:     f.Kind.String(),
		Listener: f.Listener,
		Error:    errString(f.Err),
	})
}

func (b *Bridge) OnSensorFault(family driver.Family, err error) {
	// Not-ready reads happen every tick on an idle sensor.
	if errors.Is(err, driver.ErrDataNotReady) {
		return
	}
	b.fault(protocol.FaultData{Source: "sensor", Family: string(family), Error: errString(err)})
}

func (b *Bridge) fault(data protocol.FaultData) {
	msg, err := protocol.NewFaultMessage(data)
	if err == nil {
		err = b.out.BroadcastJSON(msg)
	}
	if err != nil {
		b.logger.Warn("fault not forwarded", "family", data.Family, "error", err)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

var (
	_ arm.Listener   = (*Bridge)(nil)
	_ drive.Listener = (*Bridge)(nil)
	_ led.Listener   = (*Bridge)(nil)
	_ servo.Listener = (*Bridge)(nil)
	_ sound.Listener = (*Bridge)(nil)
	_ imu.Listener   = (*Bridge)(nil)
	_ tof.Listener   = (*Bridge)(nil)
	_ edge.Listener  = (*Bridge)(nil)
	_ touch.Listener = (*Bridge)(nil)
	_ diag.Listener  = (*Bridge)(nil)
)
