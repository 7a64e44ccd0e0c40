package command

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrAborted is the terminal error of a command that was aborted.
	ErrAborted = errors.New("command: aborted")

	// ErrBusy is returned by Submit when the actuator is running a command
	// and the engine rejects concurrent commands.
	ErrBusy = errors.New("command: actuator busy")

	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("command: engine closed")

	// ErrSignalLost is the terminal error of a command whose progress channel
	// closed without a completion or fault.
	ErrSignalLost = errors.New("command: driver signal lost")

	// ErrQueueFull is returned by Submit when the command queue is full.
	ErrQueueFull = errors.New("command: queue full")
)

// BusyError reports which command kept the actuator busy.
type BusyError struct {
	Engine string
	Active Command
}

// Error implements the error interface.
func (e *BusyError) Error() string {
	return fmt.Sprintf("command [%s]: actuator busy with command %d (%s)", e.Engine, e.Active.ID, e.Active.Kind)
}

// Unwrap returns ErrBusy.
func (e *BusyError) Unwrap() error {
	return ErrBusy
}
