// Package imu turns Doly's inertial measurement samples into motion
// gestures.
package imu

import (
	"fmt"

	"github.com/teslashibe/go-doly/pkg/driver"
)

// Gesture is a motion gesture classified from one episode of movement.
type Gesture uint8

const (
	GestureUndefined Gesture = iota
	GestureMove
	GestureLongShake
	GestureShortShake
	GestureVibrate
	GestureVibrateExtreme
	GestureShockLight
	GestureShockMedium
	GestureShockHard
	GestureShockExtreme
)

var gestureNames = [...]string{
	GestureUndefined:      "UNDEFINED",
	GestureMove:           "MOVE",
	GestureLongShake:      "LONG_SHAKE",
	GestureShortShake:     "SHORT_SHAKE",
	GestureVibrate:        "VIBRATE",
	GestureVibrateExtreme: "VIBRATE_EXTREME",
	GestureShockLight:     "SHOCK_LIGHT",
	GestureShockMedium:    "SHOCK_MEDIUM",
	GestureShockHard:      "SHOCK_HARD",
	GestureShockExtreme:   "SHOCK_EXTREME",
}

func (g Gesture) String() string {
	if int(g) < len(gestureNames) {
		return gestureNames[g]
	}
	return fmt.Sprintf("GESTURE(%d)", uint8(g))
}

// Direction is where a gesture's motion came from.
type Direction uint8

const (
	DirectionLeft Direction = iota
	DirectionRight
	DirectionUp
	DirectionDown
	DirectionFront
	DirectionBack
)

var directionNames = [...]string{
	DirectionLeft:  "LEFT",
	DirectionRight: "RIGHT",
	DirectionUp:    "UP",
	DirectionDown:  "DOWN",
	DirectionFront: "FRONT",
	DirectionBack:  "BACK",
}

func (d Direction) String() string {
	if int(d) < len(directionNames) {
		return directionNames[d]
	}
	return fmt.Sprintf("DIRECTION(%d)", uint8(d))
}

// Vector is a three axis value.
type Vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// YawPitchRoll is an orientation in degrees.
type YawPitchRoll struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
}

// Data is one IMU snapshot delivered to OnImuUpdate.
type Data struct {
	YPR         YawPitchRoll `json:"ypr"`
	LinearAccel Vector       `json:"linear_accel"`
	Temperature float64      `json:"temperature"`
}

// DataFrom converts a driver reading.
func DataFrom(r driver.IMUReading) Data {
	return Data{
		YPR:         YawPitchRoll{Yaw: r.Yaw, Pitch: r.Pitch, Roll: r.Roll},
		LinearAccel: Vector{X: r.AccelX, Y: r.AccelY, Z: r.AccelZ},
		Temperature: r.Temperature,
	}
}

// Listener receives IMU events.
type Listener interface {
	OnImuUpdate(data Data)
	OnImuGesture(gesture Gesture, from Direction)
}

// NopListener implements Listener with no-ops.
type NopListener struct{}

func (NopListener) OnImuUpdate(Data) {}
func (NopListener) OnImuGesture(Gesture, Direction) {}

// ListenerFuncs adapts plain functions to Listener. Register it by pointer.
type ListenerFuncs struct {
	Update  func(data Data)
	Gesture func(gesture Gesture, from Direction)
}

func (f *ListenerFuncs) OnImuUpdate(data Data) {
	if f.Update != nil {
		f.Update(data)
	}
}

func (f *ListenerFuncs) OnImuGesture(gesture Gesture, from Direction) {
	if f.Gesture != nil {
		f.Gesture(gesture, from)
	}
}
