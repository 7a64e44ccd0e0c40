// Package touch reads Doly's two capacitive touch zones and recognizes
// patting and disturbing.
package touch

import (
	"fmt"

	"github.com/teslashibe/go-doly/pkg/driver"
)

// Side is driver.Side: SideBoth when both zones changed together.
type Side = driver.Side

// State is the contact state of a zone.
type State uint8

const (
	StateUp State = iota
	StateDown
)

func (s State) String() string {
	switch s {
	case StateUp:
		return "UP"
	case StateDown:
		return "DOWN"
	default:
		return fmt.Sprintf("STATE(%d)", uint8(s))
	}
}

// Activity is a touch pattern.
type Activity uint8

const (
	ActivityPatting Activity = iota
	ActivityDisturb
)

func (a Activity) String() string {
	switch a {
	case ActivityPatting:
		return "PATTING"
	case ActivityDisturb:
		return "DISTURB"
	default:
		return fmt.Sprintf("ACTIVITY(%d)", uint8(a))
	}
}

// Listener receives touch events.
type Listener interface {
	OnTouchEvent(side Side, state State)
	OnTouchActivityEvent(side Side, activity Activity)
}

// NopListener implements Listener with no-ops.
type NopListener struct{}

func (NopListener) OnTouchEvent(Side, State) {}
func (NopListener) OnTouchActivityEvent(Side, Activity) {}

// ListenerFuncs adapts plain functions to Listener. Register it by pointer.
type ListenerFuncs struct {
	Touch    func(side Side, state State)
	Activity func(side Side, activity Activity)
}

func (f *ListenerFuncs) OnTouchEvent(side Side, state State) {
	if f.Touch != nil {
		f.Touch(side, state)
	}
}

func (f *ListenerFuncs) OnTouchActivityEvent(side Side, activity Activity) {
	if f.Activity != nil {
		f.Activity(side, activity)
	}
}
