package driver

import (
	"errors"
	"fmt"
)

// Sentinel errors for common driver conditions.
var (
	// ErrDataNotReady is returned by ReadSample when no fresh data is available.
	ErrDataNotReady = errors.New("driver: data not ready")

	// ErrUnsupported is returned for a family or command kind the driver lacks.
	ErrUnsupported = errors.New("driver: unsupported")

	// ErrNotRunning is returned when stopping an actuator that is idle.
	ErrNotRunning = errors.New("driver: not running")
)

// FaultCode classifies an actuator fault.
type FaultCode uint8

const (
	FaultMotor FaultCode = iota
	FaultForce
	FaultRotate
	FaultTimeout
)

func (c FaultCode) String() string {
	switch c {
	case FaultMotor:
		return "motor"
	case FaultForce:
		return "force"
	case FaultRotate:
		return "rotate"
	case FaultTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("fault(%d)", uint8(c))
	}
}

// Fault is an actuator fault reported through Progress.Err or WriteCommand.
type Fault struct {
	Target Target
	Code   FaultCode

	// Side is the motor that faulted, for bilateral actuators driven as one.
	Side Side
	Msg  string
}

// Error implements the error interface.
func (f *Fault) Error() string {
	if f.Msg != "" {
		return fmt.Sprintf("driver [%s]: %s fault: %s", f.Target, f.Code, f.Msg)
	}
	return fmt.Sprintf("driver [%s]: %s fault", f.Target, f.Code)
}

// FaultCodeOf extracts the fault code from err. ok is false when err carries no Fault.
func FaultCodeOf(err error) (code FaultCode, side Side, ok bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f.Code, f.Side, true
	}
	return 0, SideBoth, false
}

// RangeError is returned by ReadSample for the time-of-flight family when the
// sensor produced no distance. Code is the sensor's status code.
type RangeError struct {
	Code uint8
}

// Error implements the error interface.
func (e *RangeError) Error() string {
	return fmt.Sprintf("driver [tof]: ranging status %d", e.Code)
}
