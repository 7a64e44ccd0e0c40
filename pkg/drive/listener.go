package drive

import (
	"fmt"

	"github.com/teslashibe/go-doly/pkg/command"
	"github.com/teslashibe/go-doly/pkg/driver"
)

// ErrorType classifies a failed drive command.
type ErrorType uint8

const (
	ErrorAbort ErrorType = iota
	ErrorForce
	ErrorRotate
	ErrorMotor
)

func (t ErrorType) String() string {
	switch t {
	case ErrorAbort:
		return "abort"
	case ErrorForce:
		return "force"
	case ErrorRotate:
		return "rotate"
	case ErrorMotor:
		return "motor"
	default:
		return fmt.Sprintf("error(%d)", uint8(t))
	}
}

// Type is the kind of drive command.
type Type uint8

const (
	TypeFreestyle Type = iota
	TypeXY
	TypeDistance
	TypeRotate
)

func (t Type) String() string {
	switch t {
	case TypeFreestyle:
		return "freestyle"
	case TypeXY:
		return "xy"
	case TypeDistance:
		return "distance"
	case TypeRotate:
		return "rotate"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// State is the lifecycle state reported by OnDriveStateChange.
type State = command.State

const (
	StateRunning   = command.StateRunning
	StateCompleted = command.StateCompleted
	StateError     = command.StateError
)

// Listener receives drive events.
type Listener interface {
	OnDriveComplete(id uint16)
	OnDriveError(id uint16, side driver.Side, errType ErrorType)
	OnDriveStateChange(driveType Type, state State)
}

// NopListener implements Listener with no-ops.
type NopListener struct{}

func (NopListener) OnDriveComplete(uint16) {}
func (NopListener) OnDriveError(uint16, driver.Side, ErrorType) {}
func (NopListener) OnDriveStateChange(Type, State) {}

// ListenerFuncs adapts plain functions to Listener. Register it by pointer.
type ListenerFuncs struct {
	Complete    func(id uint16)
	Error       func(id uint16, side driver.Side, errType ErrorType)
	StateChange func(driveType Type, state State)
}

func (f *ListenerFuncs) OnDriveComplete(id uint16) {
	if f.Complete != nil {
		f.Complete(id)
	}
}

func (f *ListenerFuncs) OnDriveError(id uint16, side driver.Side, errType ErrorType) {
	if f.Error != nil {
		f.Error(id, side, errType)
	}
}

func (f *ListenerFuncs) OnDriveStateChange(driveType Type, state State) {
	if f.StateChange != nil {
		f.StateChange(driveType, state)
	}
}
