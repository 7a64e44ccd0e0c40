package arm

import (
	"fmt"

	"github.com/teslashibe/go-doly/pkg/command"
	"github.com/teslashibe/go-doly/pkg/driver"
)

// ErrorType classifies a failed arm command.
type ErrorType uint8

const (
	ErrorAbort ErrorType = iota
	ErrorMotor
)

func (t ErrorType) String() string {
	switch t {
	case ErrorAbort:
		return "abort"
	case ErrorMotor:
		return "motor"
	default:
		return fmt.Sprintf("error(%d)", uint8(t))
	}
}

// State is the lifecycle state reported by OnArmStateChange.
type State = command.State

const (
	StateRunning   = command.StateRunning
	StateCompleted = command.StateCompleted
	StateError     = command.StateError
)

// Listener receives arm events.
type Listener interface {
	OnArmComplete(id uint16, side driver.Side)
	OnArmError(id uint16, side driver.Side, errType ErrorType)
	OnArmStateChange(side driver.Side, state State)
	OnArmMovement(side driver.Side, degreeChange float64)
}

// NopListener implements Listener with no-ops. Embed it and override the
// callbacks you need.
type NopListener struct{}

func (NopListener) OnArmComplete(uint16, driver.Side) {}
func (NopListener) OnArmError(uint16, driver.Side, ErrorType) {}
func (NopListener) OnArmStateChange(driver.Side, State) {}
func (NopListener) OnArmMovement(driver.Side, float64) {}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
// Register it by pointer.
type ListenerFuncs struct {
	Complete    func(id uint16, side driver.Side)
	Error       func(id uint16, side driver.Side, errType ErrorType)
	StateChange func(side driver.Side, state State)
	Movement    func(side driver.Side, degreeChange float64)
}

func (f *ListenerFuncs) OnArmComplete(id uint16, side driver.Side) {
	if f.Complete != nil {
		f.Complete(id, side)
	}
}

func (f *ListenerFuncs) OnArmError(id uint16, side driver.Side, errType ErrorType) {
	if f.Error != nil {
		f.Error(id, side, errType)
	}
}

func (f *ListenerFuncs) OnArmStateChange(side driver.Side, state State) {
	if f.StateChange != nil {
		f.StateChange(side, state)
	}
}

func (f *ListenerFuncs) OnArmMovement(side driver.Side, degreeChange float64) {
	if f.Movement != nil {
		f.Movement(side, degreeChange)
	}
}
