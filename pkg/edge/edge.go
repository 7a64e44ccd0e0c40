// Package edge watches Doly's four downward IR sensors for cliffs and gaps.
package edge

import (
	"fmt"

	"github.com/teslashibe/go-doly/pkg/driver"
)

// SensorID names one IR sensor, in hardware order.
type SensorID uint8

const (
	BackLeft   SensorID = driver.EdgeBackLeft
	BackRight  SensorID = driver.EdgeBackRight
	FrontLeft  SensorID = driver.EdgeFrontLeft
	FrontRight SensorID = driver.EdgeFrontRight
)

var sensorNames = [...]string{
	BackLeft:   "BACK_LEFT",
	BackRight:  "BACK_RIGHT",
	FrontLeft:  "FRONT_LEFT",
	FrontRight: "FRONT_RIGHT",
}

func (id SensorID) String() string {
	if int(id) < len(sensorNames) {
		return sensorNames[id]
	}
	return fmt.Sprintf("SENSOR(%d)", uint8(id))
}

// State is what a sensor sees below it.
type State uint8

const (
	StateGround State = iota
	StateGap
)

func (s State) String() string {
	if s == StateGap {
		return "gap"
	}
	return "ground"
}

// Sensor is the state of one IR sensor.
type Sensor struct {
	ID    SensorID `json:"id"`
	State State    `json:"state"`
}

// GapDirection is where a gap was detected.
type GapDirection uint8

const (
	GapFront GapDirection = iota
	GapFrontLeft
	GapFrontRight
	GapBack
	GapBackLeft
	GapBackRight
	GapLeft
	GapRight
	GapCrossLeft
	GapCrossRight
	GapAll
)

var gapNames = [...]string{
	GapFront:      "FRONT",
	GapFrontLeft:  "FRONT_LEFT",
	GapFrontRight: "FRONT_RIGHT",
	GapBack:       "BACK",
	GapBackLeft:   "BACK_LEFT",
	GapBackRight:  "BACK_RIGHT",
	GapLeft:       "LEFT",
	GapRight:      "RIGHT",
	GapCrossLeft:  "CROSS_LEFT",
	GapCrossRight: "CROSS_RIGHT",
	GapAll:        "ALL",
}

func (g GapDirection) String() string {
	if int(g) < len(gapNames) {
		return gapNames[g]
	}
	return fmt.Sprintf("GAP(%d)", uint8(g))
}

type mask uint8

func bit(id SensorID) mask { return 1 << id }

const (
	maskBL  = mask(1 << BackLeft)
	maskBR  = mask(1 << BackRight)
	maskFL  = mask(1 << FrontLeft)
	maskFR  = mask(1 << FrontRight)
	maskAll = maskBL | maskBR | maskFL | maskFR
)

// directions covers every non-empty gap set. Three gaps report the corner
// opposite the one sensor still on the ground.
var directions = map[mask]GapDirection{
	maskFL:            GapFrontLeft,
	maskFR:            GapFrontRight,
	maskBL:            GapBackLeft,
	maskBR:            GapBackRight,
	maskFL | maskFR:   GapFront,
	maskBL | maskBR:   GapBack,
	maskFL | maskBL:   GapLeft,
	maskFR | maskBR:   GapRight,
	maskFL | maskBR:   GapCrossLeft,
	maskFR | maskBL:   GapCrossRight,
	maskAll &^ maskBL: GapFrontRight,
	maskAll &^ maskBR: GapFrontLeft,
	maskAll &^ maskFL: GapBackRight,
	maskAll &^ maskFR: GapBackLeft,
	maskAll:           GapAll,
}

// Direction returns the gap direction for a set of sensors reporting a gap.
// ok is false for an empty set.
func Direction(gaps ...SensorID) (GapDirection, bool) {
	var m mask
	for _, id := range gaps {
		m |= bit(id)
	}
	d, ok := directions[m&maskAll]
	return d, ok
}

// Listener receives edge events.
type Listener interface {
	OnEdgeChange(sensors []Sensor)
	OnGapDetect(direction GapDirection)
}

// NopListener implements Listener with no-ops.
type NopListener struct{}

func (NopListener) OnEdgeChange([]Sensor) {}
func (NopListener) OnGapDetect(GapDirection) {}

// ListenerFuncs adapts plain functions to Listener. Register it by pointer.
type ListenerFuncs struct {
	Change func(sensors []Sensor)
	Gap    func(direction GapDirection)
}

func (f *ListenerFuncs) OnEdgeChange(sensors []Sensor) {
	if f.Change != nil {
		f.Change(sensors)
	}
}

func (f *ListenerFuncs) OnGapDetect(direction GapDirection) {
	if f.Gap != nil {
		f.Gap(direction)
	}
}
