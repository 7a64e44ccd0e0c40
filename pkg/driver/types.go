package driver

import "fmt"

// Family identifies a class of actuator or sensor.
type Family string

// Actuator families.
const (
	FamilyArm   Family = "arm"
	FamilyDrive Family = "drive"
	FamilyLED   Family = "led"
	FamilyServo Family = "servo"
	FamilySound Family = "sound"
	FamilyFan   Family = "fan"
)

// Sensor families.
const (
	FamilyIMU   Family = "imu"
	FamilyTOF   Family = "tof"
	FamilyEdge  Family = "edge"
	FamilyTouch Family = "touch"
)

// Side selects one half of symmetric hardware.
type Side uint8

const (
	SideBoth Side = iota
	SideLeft
	SideRight
)

func (s Side) String() string {
	switch s {
	case SideBoth:
		return "both"
	case SideLeft:
		return "left"
	case SideRight:
		return "right"
	default:
		return fmt.Sprintf("side(%d)", uint8(s))
	}
}

// ParseSide parses "both", "left" or "right". An empty string is SideBoth.
func ParseSide(s string) (Side, error) {
	switch s {
	case "", "both":
		return SideBoth, nil
	case "left":
		return SideLeft, nil
	case "right":
		return SideRight, nil
	default:
		return 0, fmt.Errorf("driver: unknown side %q", s)
	}
}

// Target addresses one actuator instance. Channel selects the servo and is
// ignored by other families.
type Target struct {
	Family  Family
	Side    Side
	Channel uint8
}

func (t Target) String() string {
	switch {
	case t.Family == FamilyServo:
		return fmt.Sprintf("%s/%d", t.Family, t.Channel)
	case t.Side != SideBoth:
		return fmt.Sprintf("%s/%s", t.Family, t.Side)
	default:
		return string(t.Family)
	}
}

// Reading is a raw sensor reading. The concrete types below are the closed set.
type Reading interface {
	Family() Family
}

// IMUReading is one IMU sample: orientation in degrees, linear acceleration
// in g with gravity removed, and die temperature in Celsius.
type IMUReading struct {
	Yaw, Pitch, Roll       float64
	AccelX, AccelY, AccelZ float64
	Temperature            float64
}

func (IMUReading) Family() Family { return FamilyIMU }

// RangeSide is one time-of-flight channel. Status is the sensor's error code,
// zero when RangeMM is valid.
type RangeSide struct {
	RangeMM int
	Status  uint8
}

// RangeReading holds both time-of-flight sensors.
type RangeReading struct {
	Left, Right RangeSide
}

func (RangeReading) Family() Family { return FamilyTOF }

// Edge sensor positions, in the order the hardware reports them.
const (
	EdgeBackLeft = iota
	EdgeBackRight
	EdgeFrontLeft
	EdgeFrontRight
	EdgeSensorCount
)

// EdgeReading reports, per IR sensor, whether it sees a gap instead of ground.
type EdgeReading struct {
	Gap [EdgeSensorCount]bool
}

func (EdgeReading) Family() Family { return FamilyEdge }

// TouchReading reports contact on the two capacitive zones.
type TouchReading struct {
	Left, Right bool
}

func (TouchReading) Family() Family { return FamilyTouch }
