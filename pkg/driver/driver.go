// Package driver defines the narrow Peripheral Driver Interface the Doly core
// talks to. Bus protocols (I2C, SPI, UART, GPIO) live behind it.
//
// The interfaces are kept small so consumers depend only on what they use:
// command engines need an Actuator, sampling loops need a Sensor.
package driver

import "context"

// Actuator writes commands to an actuator and stops it.
type Actuator interface {
	// WriteCommand sends a command and waits for the driver to acknowledge it.
	// On acknowledgement it returns a channel of progress updates that ends with
	// a Progress carrying Done or Err. A non-nil error means the command was
	// never accepted.
	WriteCommand(ctx context.Context, target Target, kind string, params any) (<-chan Progress, error)

	// Stop halts the actuator. A nil return confirms the stop.
	Stop(ctx context.Context, target Target) error
}

// Sensor reads one raw sample from a sensor family.
type Sensor interface {
	ReadSample(ctx context.Context, family Family) (Reading, error)
}

// Driver is the full peripheral driver contract.
type Driver interface {
	Actuator
	Sensor
}

// Progress is an intermediate or final signal for a running command.
type Progress struct {
	// Delta is the movement since the previous update (degrees, millimeters
	// or family specific units). Zero for non-moving families.
	Delta float64

	// Done marks successful completion.
	Done bool

	// Err marks a fault. Done and Err are mutually exclusive.
	Err error
}

// Final reports whether p terminates the command.
func (p Progress) Final() bool {
	return p.Done || p.Err != nil
}
