package led

import (
	"fmt"

	"github.com/teslashibe/go-doly/pkg/driver"
)

// ErrorType classifies a failed LED activity. The LEDs only fail by being
// aborted, so every failure reports ErrorAbort.
type ErrorType uint8

const (
	ErrorAbort ErrorType = iota
)

func (t ErrorType) String() string {
	if t == ErrorAbort {
		return "abort"
	}
	return fmt.Sprintf("error(%d)", uint8(t))
}

// Listener receives LED events.
type Listener interface {
	OnLedComplete(id uint16, side driver.Side)
	OnLedError(id uint16, side driver.Side, errType ErrorType)
}

// NopListener implements Listener with no-ops.
type NopListener struct{}

func (NopListener) OnLedComplete(uint16, driver.Side) {}
func (NopListener) OnLedError(uint16, driver.Side, ErrorType) {}

// ListenerFuncs adapts plain functions to Listener. Register it by pointer.
type ListenerFuncs struct {
	Complete func(id uint16, side driver.Side)
	Error    func(id uint16, side driver.Side, errType ErrorType)
}

func (f *ListenerFuncs) OnLedComplete(id uint16, side driver.Side) {
	if f.Complete != nil {
		f.Complete(id, side)
	}
}

func (f *ListenerFuncs) OnLedError(id uint16, side driver.Side, errType ErrorType) {
	if f.Error != nil {
		f.Error(id, side, errType)
	}
}
