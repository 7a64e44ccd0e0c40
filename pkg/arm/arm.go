// Package arm controls Doly's two arms.
//
// Each arm is its own actuator with its own command engine. A command that
// arrives while that arm is moving is rejected with command.ErrBusy.
package arm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/teslashibe/go-doly/pkg/command"
	"github.com/teslashibe/go-doly/pkg/driver"
	"github.com/teslashibe/go-doly/pkg/event"
)

// MaxAngle is the largest arm angle in degrees.
const MaxAngle = 220

// KindSetAngle is the driver command kind for SetAngle.
const KindSetAngle = "set_angle"

// AngleParams are the driver parameters of a SetAngle command.
type AngleParams struct {
	Speed uint8
	Angle uint16
	Brake bool
}

// Setpoint returns the target angle.
func (p AngleParams) Setpoint() float64 {
	return float64(p.Angle)
}

// Data is the current angle of one arm.
type Data struct {
	Side  driver.Side
	Angle float64
}

// Controller drives both arms. It is safe for concurrent use.
type Controller struct {
	engines   [2]*command.Engine
	listeners *event.Registry[Listener]

	mu     sync.Mutex
	angles [2]float64
	states [2]State
}

// New creates a controller. cfg.Policy is ignored: arms always reject
// commands while moving.
func New(drv driver.Actuator, cfg command.Config, opts ...event.Option) *Controller {
	cfg.Policy = command.PolicyReject
	c := &Controller{
		listeners: event.NewRegistry[Listener]("arm", opts...),
		states:    [2]State{StateCompleted, StateCompleted},
	}
	for i, side := range []driver.Side{driver.SideLeft, driver.SideRight} {
		target := driver.Target{Family: driver.FamilyArm, Side: side}
		c.engines[i] = command.New(cfg, drv, target, &observer{c: c, side: side, index: i})
	}
	return c
}

// AddListener registers l. It returns false if l is already registered.
func (c *Controller) AddListener(l Listener) bool {
	return c.listeners.Register(l)
}

// RemoveListener unregisters l.
func (c *Controller) RemoveListener(l Listener) bool {
	return c.listeners.Unregister(l)
}

// MaxAngle returns the largest accepted angle.
func (c *Controller) MaxAngle() uint16 {
	return MaxAngle
}

// SetAngle moves one or both arms to angle degrees at speed percent. With
// SideBoth either both arms start or, if one is busy, neither does.
func (c *Controller) SetAngle(ctx context.Context, id uint16, side driver.Side, speed uint8, angle uint16, withBrake bool) ([]*command.Handle, error) {
	if speed < 1 || speed > 100 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSpeed, speed)
	}
	if angle > MaxAngle {
		return nil, fmt.Errorf("%w: %d > %d", ErrInvalidAngle, angle, MaxAngle)
	}
	engines, err := c.enginesFor(side)
	if err != nil {
		return nil, err
	}

	cmd := command.Command{
		ID:     id,
		Kind:   KindSetAngle,
		Params: AngleParams{Speed: speed, Angle: angle, Brake: withBrake},
	}
	cmds := make([]command.Command, len(engines))
	for i := range cmds {
		cmds[i] = cmd
	}
	return command.SubmitAll(ctx, engines, cmds)
}

// Abort stops the current motion of one or both arms.
func (c *Controller) Abort(side driver.Side) {
	engines, err := c.enginesFor(side)
	if err != nil {
		return
	}
	for _, e := range engines {
		e.AbortActive()
	}
}

// State returns the state of the most recent command on side, or
// StateCompleted if there was none. For SideBoth a running arm wins over a
// failed one, which wins over a completed one.
func (c *Controller) State(side driver.Side) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch side {
	case driver.SideLeft:
		return c.states[0]
	case driver.SideRight:
		return c.states[1]
	}
	l, r := c.states[0], c.states[1]
	switch {
	case l == StateRunning || r == StateRunning:
		return StateRunning
	case l == StateError || r == StateError:
		return StateError
	default:
		return StateCompleted
	}
}

// CurrentAngle returns the angle of side, or of both arms for SideBoth.
func (c *Controller) CurrentAngle(side driver.Side) []Data {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch side {
	case driver.SideLeft:
		return []Data{{Side: side, Angle: c.angles[0]}}
	case driver.SideRight:
		return []Data{{Side: side, Angle: c.angles[1]}}
	default:
		return []Data{
			{Side: driver.SideLeft, Angle: c.angles[0]},
			{Side: driver.SideRight, Angle: c.angles[1]},
		}
	}
}

// Idle reports whether neither arm is moving.
func (c *Controller) Idle() bool {
	return c.engines[0].Idle() && c.engines[1].Idle()
}

// Close aborts any motion and releases listeners.
func (c *Controller) Close() {
	for _, e := range c.engines {
		e.Close()
	}
	c.listeners.Close()
}

func (c *Controller) enginesFor(side driver.Side) ([]*command.Engine, error) {
	switch side {
	case driver.SideLeft:
		return c.engines[:1], nil
	case driver.SideRight:
		return c.engines[1:], nil
	case driver.SideBoth:
		return c.engines[:], nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidSide, side)
	}
}

// errorType maps a terminal command error to an arm ErrorType.
func errorType(err error) ErrorType {
	if errors.Is(err, command.ErrAborted) {
		return ErrorAbort
	}
	return ErrorMotor
}

// observer turns one arm engine's notifications into arm events.
type observer struct {
	c     *Controller
	side  driver.Side
	index int
}

func (o *observer) OnStateChange(_ command.Command, state command.State) {
	o.c.mu.Lock()
	o.c.states[o.index] = state
	o.c.mu.Unlock()
	o.c.listeners.Dispatch(func(l Listener) { l.OnArmStateChange(o.side, state) })
}

func (o *observer) OnProgress(_ command.Command, delta float64) {
	o.c.mu.Lock()
	o.c.angles[o.index] += delta
	o.c.mu.Unlock()
	o.c.listeners.Dispatch(func(l Listener) { l.OnArmMovement(o.side, delta) })
}

func (o *observer) OnComplete(cmd command.Command) {
	o.c.listeners.Dispatch(func(l Listener) { l.OnArmComplete(cmd.ID, o.side) })
}

func (o *observer) OnError(cmd command.Command, err error) {
	t := errorType(err)
	o.c.listeners.Dispatch(func(l Listener) { l.OnArmError(cmd.ID, o.side, t) })
}
