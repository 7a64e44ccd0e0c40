// Package drive controls Doly's wheel motors.
//
// Both motors form one actuator. XY, distance and rotate commands run one at
// a time; a new one is rejected with command.ErrBusy while another runs.
// Free driving sets the speed of each wheel directly and keeps running until
// stopped.
package drive

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/teslashibe/go-doly/pkg/command"
	"github.com/teslashibe/go-doly/pkg/driver"
	"github.com/teslashibe/go-doly/pkg/event"
)

// Driver command kinds.
const (
	KindFree     = "free"
	KindXY       = "xy"
	KindDistance = "distance"
	KindRotate   = "rotate"
)

// Sentinel errors for rejected drive commands.
var (
	// ErrInvalidSpeed is returned for a speed outside 1..100, or above 100
	// for free driving.
	ErrInvalidSpeed = errors.New("drive: speed out of range")
)

// Motion holds the options shared by every drive command.
type Motion struct {
	Speed   uint8
	Forward bool
	Brake   bool

	// AccelerationInterval is the ramp step in milliseconds, 0 for none.
	AccelerationInterval uint8
	ControlSpeed         bool
	ControlForce         bool
}

// DefaultMotion returns the motion options Doly uses when none are given.
func DefaultMotion(speed uint8, forward bool) Motion {
	return Motion{Speed: speed, Forward: forward, ControlForce: true}
}

// XYParams are the driver parameters of GoXY.
type XYParams struct {
	X, Y int16
	Motion
}

// DistanceParams are the driver parameters of GoDistance.
type DistanceParams struct {
	MM uint16
	Motion
}

// RotateParams are the driver parameters of GoRotate.
type RotateParams struct {
	Angle      float64
	FromCenter bool
	Motion
}

// Wheel is the free-drive setting of one motor.
type Wheel struct {
	Speed   uint8
	Forward bool
}

// FreeParams are the driver parameters of a free-drive command.
type FreeParams struct {
	Left, Right Wheel
}

// Controller drives the wheels. It is safe for concurrent use.
type Controller struct {
	engine    *command.Engine
	listeners *event.Registry[Listener]

	freeMu sync.Mutex // serializes FreeDrive
	free   FreeParams

	mu         sync.Mutex
	state      State
	driveType  Type
	freeSeq    uint16
	superseded map[uint16]bool
}

// New creates a controller. cfg.Policy is ignored: drive commands are
// rejected while another one runs.
func New(drv driver.Actuator, cfg command.Config, opts ...event.Option) *Controller {
	cfg.Policy = command.PolicyReject
	c := &Controller{
		listeners:  event.NewRegistry[Listener]("drive", opts...),
		state:      StateCompleted,
		superseded: make(map[uint16]bool),
	}
	target := driver.Target{Family: driver.FamilyDrive}
	c.engine = command.New(cfg, drv, target, &observer{c: c})
	return c
}

// AddListener registers l.
func (c *Controller) AddListener(l Listener) bool {
	return c.listeners.Register(l)
}

// RemoveListener unregisters l.
func (c *Controller) RemoveListener(l Listener) bool {
	return c.listeners.Unregister(l)
}

// GoXY drives to the point (x, y) relative to the current position.
func (c *Controller) GoXY(ctx context.Context, id uint16, x, y int16, m Motion) (*command.Handle, error) {
	return c.submit(ctx, id, KindXY, m, XYParams{X: x, Y: y, Motion: m})
}

// GoDistance drives mm millimetres straight.
func (c *Controller) GoDistance(ctx context.Context, id uint16, mm uint16, m Motion) (*command.Handle, error) {
	return c.submit(ctx, id, KindDistance, m, DistanceParams{MM: mm, Motion: m})
}

// GoRotate turns by angle degrees, around the robot's center when
// fromCenter is set, otherwise around one wheel.
func (c *Controller) GoRotate(ctx context.Context, id uint16, angle float64, fromCenter bool, m Motion) (*command.Handle, error) {
	return c.submit(ctx, id, KindRotate, m, RotateParams{Angle: angle, FromCenter: fromCenter, Motion: m})
}

func (c *Controller) submit(ctx context.Context, id uint16, kind string, m Motion, params any) (*command.Handle, error) {
	if m.Speed < 1 || m.Speed > 100 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSpeed, m.Speed)
	}
	return c.engine.Submit(ctx, command.Command{ID: id, Kind: kind, Params: params})
}

// FreeDrive sets one wheel's speed, keeping the other wheel's setting. The
// wheels run until both speeds are zero or Abort is called. It fails with
// command.ErrBusy while an XY, distance or rotate command runs.
func (c *Controller) FreeDrive(ctx context.Context, speed uint8, isLeft, forward bool) error {
	if speed > 100 {
		return fmt.Errorf("%w: %d", ErrInvalidSpeed, speed)
	}

	c.freeMu.Lock()
	defer c.freeMu.Unlock()

	params := c.free
	if isLeft {
		params.Left = Wheel{Speed: speed, Forward: forward}
	} else {
		params.Right = Wheel{Speed: speed, Forward: forward}
	}

	if h := c.engine.Active(); h != nil {
		if h.Command().Kind != KindFree {
			return fmt.Errorf("drive: %w", command.ErrBusy)
		}
		c.supersede(h.Command().ID)
		h.Abort()
		select {
		case <-h.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.free = params
	if params.Left.Speed == 0 && params.Right.Speed == 0 {
		return nil
	}

	c.mu.Lock()
	c.freeSeq++
	id := c.freeSeq
	c.mu.Unlock()

	_, err := c.engine.Submit(ctx, command.Command{ID: id, Kind: KindFree, Params: params})
	return err
}

// Abort stops the wheels.
func (c *Controller) Abort() {
	c.engine.AbortActive()
	c.freeMu.Lock()
	c.free = FreeParams{}
	c.freeMu.Unlock()
}

// State returns the state of the most recent command.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Type returns the type of the most recent command.
func (c *Controller) Type() Type {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.driveType
}

// Idle reports whether the wheels are free.
func (c *Controller) Idle() bool {
	return c.engine.Idle()
}

// Close stops the wheels and releases listeners.
func (c *Controller) Close() {
	c.engine.Close()
	c.listeners.Close()
}

func (c *Controller) supersede(id uint16) {
	c.mu.Lock()
	c.superseded[id] = true
	c.mu.Unlock()
}

// replaced reports whether FreeDrive stopped cmd to start its successor.
// A replaced command ends as completed rather than aborted. Terminal
// notifications clear the mark.
func (c *Controller) replaced(cmd command.Command, terminal bool) bool {
	if cmd.Kind != KindFree {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.superseded[cmd.ID]
	if r && terminal {
		delete(c.superseded, cmd.ID)
	}
	return r
}

func typeOf(kind string) Type {
	switch kind {
	case KindXY:
		return TypeXY
	case KindDistance:
		return TypeDistance
	case KindRotate:
		return TypeRotate
	default:
		return TypeFreestyle
	}
}

// errorInfo maps a terminal command error to the faulting side and type.
func errorInfo(err error) (driver.Side, ErrorType) {
	if errors.Is(err, command.ErrAborted) {
		return driver.SideBoth, ErrorAbort
	}
	code, side, ok := driver.FaultCodeOf(err)
	if !ok {
		return driver.SideBoth, ErrorMotor
	}
	switch code {
	case driver.FaultForce:
		return side, ErrorForce
	case driver.FaultRotate:
		return side, ErrorRotate
	default:
		return side, ErrorMotor
	}
}

type observer struct {
	c *Controller
}

func (o *observer) OnStateChange(cmd command.Command, state command.State) {
	if state == command.StateError && o.c.replaced(cmd, false) {
		state = command.StateCompleted
	}
	t := typeOf(cmd.Kind)
	o.c.mu.Lock()
	o.c.state = state
	o.c.driveType = t
	o.c.mu.Unlock()
	o.c.listeners.Dispatch(func(l Listener) { l.OnDriveStateChange(t, state) })
}

func (o *observer) OnProgress(command.Command, float64) {}

func (o *observer) OnComplete(cmd command.Command) {
	o.c.replaced(cmd, true)
	o.c.listeners.Dispatch(func(l Listener) { l.OnDriveComplete(cmd.ID) })
}

func (o *observer) OnError(cmd command.Command, err error) {
	if o.c.replaced(cmd, true) {
		o.c.listeners.Dispatch(func(l Listener) { l.OnDriveComplete(cmd.ID) })
		return
	}
	side, t := errorInfo(err)
	o.c.listeners.Dispatch(func(l Listener) { l.OnDriveError(cmd.ID, side, t) })
}
