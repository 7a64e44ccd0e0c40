// Package tof interprets Doly's two time-of-flight range sensors.
//
// Ranges are tracked per side for approach and retreat trends, and the
// near/far transitions of both sides are combined into swipe and scrub
// gestures. Sensor error codes are passed through unchanged.
package tof

import (
	"fmt"
	"time"
)

// Error is the sensor's ranging status code.
type Error uint8

const (
	NoError                  Error = 0
	VCSELContinuityTest      Error = 1
	VCSELWatchdogTest        Error = 2
	VCSELWatchdog            Error = 3
	PLL1Lock                 Error = 4
	PLL2Lock                 Error = 5
	EarlyConvergenceEstimate Error = 6
	MaxConvergence           Error = 7
	NoTargetIgnore           Error = 8
	MaxSignalToNoiseRatio    Error = 11
	RawRangingAlgoUnderflow  Error = 12
	RawRangingAlgoOverflow   Error = 13
	RangingAlgoUnderflow     Error = 14
	RangingAlgoOverflow      Error = 15
	FilteredByPostProcessing Error = 16
	DataNotReady             Error = 18
)

var errorNames = map[Error]string{
	NoError:                  "NO_ERROR",
	VCSELContinuityTest:      "VCSEL_CONTINUITY_TEST",
	VCSELWatchdogTest:        "VCSEL_WATCHDOG_TEST",
	VCSELWatchdog:            "VCSEL_WATCHDOG",
	PLL1Lock:                 "PLL1_LOCK",
	PLL2Lock:                 "PLL2_LOCK",
	EarlyConvergenceEstimate: "EARLY_CONVERGENCE_ESTIMATE",
	MaxConvergence:           "MAX_CONVERGENCE",
	NoTargetIgnore:           "NO_TARGET_IGNORE",
	MaxSignalToNoiseRatio:    "MAX_SIGNAL_TO_NOISE_RATIO",
	RawRangingAlgoUnderflow:  "RAW_RANGING_ALGO_UNDERFLOW",
	RawRangingAlgoOverflow:   "RAW_RANGING_ALGO_OVERFLOW",
	RangingAlgoUnderflow:     "RANGING_ALGO_UNDERFLOW",
	RangingAlgoOverflow:      "RANGING_ALGO_OVERFLOW",
	FilteredByPostProcessing: "FILTERED_BY_POST_PROCESSING",
	DataNotReady:             "DATA_NOT_READY",
}

func (e Error) String() string {
	if s, ok := errorNames[e]; ok {
		return s
	}
	return fmt.Sprintf("ERROR(%d)", uint8(e))
}

// Side is one of the two sensors.
type Side uint8

const (
	SideLeft Side = iota
	SideRight
)

func (s Side) String() string {
	if s == SideLeft {
		return "left"
	}
	return "right"
}

// GestureType is a proximity gesture.
type GestureType uint8

const (
	GestureUndefined GestureType = iota
	GestureObjectComing
	GestureObjectGoing
	GestureScrubbing
	GestureToLeft
	GestureToRight
)

var gestureNames = [...]string{
	GestureUndefined:    "UNDEFINED",
	GestureObjectComing: "OBJECT_COMING",
	GestureObjectGoing:  "OBJECT_GOING",
	GestureScrubbing:    "SCRUBING",
	GestureToLeft:       "TO_LEFT",
	GestureToRight:      "TO_RIGHT",
}

func (g GestureType) String() string {
	if int(g) < len(gestureNames) {
		return gestureNames[g]
	}
	return fmt.Sprintf("GESTURE(%d)", uint8(g))
}

// Gesture is the gesture seen by one side, with the range that concluded it.
type Gesture struct {
	Type    GestureType `json:"type"`
	RangeMM int         `json:"range_mm"`
}

// Data is one side's reading.
type Data struct {
	UpdatedAt time.Time `json:"updated_at"`
	RangeMM   int       `json:"range_mm"`
	Error     Error     `json:"error"`
	Side      Side      `json:"side"`
}

// Listener receives proximity events.
type Listener interface {
	OnProximityGesture(left, right Gesture)
	OnProximityThreshold(left, right Data)
	OnTofError(data Data)
}

// NopListener implements Listener with no-ops.
type NopListener struct{}

func (NopListener) OnProximityGesture(Gesture, Gesture) {}
func (NopListener) OnProximityThreshold(Data, Data) {}
func (NopListener) OnTofError(Data) {}

// ListenerFuncs adapts plain functions to Listener. Register it by pointer.
type ListenerFuncs struct {
	Gesture   func(left, right Gesture)
	Threshold func(left, right Data)
	Error     func(data Data)
}

func (f *ListenerFuncs) OnProximityGesture(left, right Gesture) {
	if f.Gesture != nil {
		f.Gesture(left, right)
	}
}

func (f *ListenerFuncs) OnProximityThreshold(left, right Data) {
	if f.Threshold != nil {
		f.Threshold(left, right)
	}
}

func (f *ListenerFuncs) OnTofError(data Data) {
	if f.Error != nil {
		f.Error(data)
	}
}
