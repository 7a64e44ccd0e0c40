// Package robot assembles the Doly HAL into one explicit context.
//
// This package follows the Interface Segregation Principle (ISP) by defining
// small, focused interfaces that can be composed as needed. Consumers should
// depend only on the interfaces they actually use.
package robot

import (
	"context"

	"github.com/teslashibe/go-doly/pkg/arm"
	"github.com/teslashibe/go-doly/pkg/command"
	"github.com/teslashibe/go-doly/pkg/diag"
	"github.com/teslashibe/go-doly/pkg/drive"
	"github.com/teslashibe/go-doly/pkg/driver"
	"github.com/teslashibe/go-doly/pkg/led"
	"github.com/teslashibe/go-doly/pkg/sound"
)

// ArmController moves the arms.
type ArmController interface {
	SetAngle(ctx context.Context, id uint16, side driver.Side, speed uint8, angle uint16, withBrake bool) ([]*command.Handle, error)
	Abort(side driver.Side)
}

// DriveController moves the wheels.
type DriveController interface {
	GoXY(ctx context.Context, id uint16, x, y int16, m drive.Motion) (*command.Handle, error)
	GoDistance(ctx context.Context, id uint16, mm uint16, m drive.Motion) (*command.Handle, error)
	GoRotate(ctx context.Context, id uint16, angle float64, fromCenter bool, m drive.Motion) (*command.Handle, error)
	Abort()
}

// LedController runs eye LED activities.
type LedController interface {
	ProcessActivity(ctx context.Context, id uint16, side driver.Side, a led.Activity) ([]*command.Handle, error)
	Abort(side driver.Side)
}

// SoundController plays sounds.
type SoundController interface {
	Play(ctx context.Context, file string, id uint16) (*command.Handle, error)
	SetVolume(volume uint8) error
	Abort()
}

// StatusReporter provides robot status queries.
type StatusReporter interface {
	Status() Status
	Diagnostics() diag.Snapshot
}

// Subscriber registers one value with every subsystem whose listener
// interface it implements.
type Subscriber interface {
	Subscribe(l any) int
	Unsubscribe(l any) int
}

// Controller is the composite interface for full robot control.
// Use this when you need complete robot control capabilities.
type Controller interface {
	StatusReporter
	Subscriber
	Arms() ArmController
	Wheels() DriveController
	Eyes() LedController
	Speaker() SoundController
	NextID() uint16
}

var (
	_ ArmController   = (*arm.Controller)(nil)
	_ DriveController = (*drive.Controller)(nil)
	_ LedController   = (*led.Controller)(nil)
	_ SoundController = (*sound.Controller)(nil)

	// Ensure Robot implements Controller
	_ Controller = (*Robot)(nil)
)
