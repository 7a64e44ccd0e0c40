// Package servo controls the two auxiliary servo channels.
package servo

import (
	"context"
	"errors"
	"fmt"

	"github.com/teslashibe/go-doly/pkg/command"
	"github.com/teslashibe/go-doly/pkg/driver"
	"github.com/teslashibe/go-doly/pkg/event"
)

// Driver command kinds.
const (
	KindSet     = "set"
	KindRelease = "release"
)

// MaxAngle is the largest servo angle in degrees.
const MaxAngle = 180

// Sentinel errors for rejected servo commands.
var (
	ErrInvalidChannel = errors.New("servo: invalid channel")
	ErrInvalidAngle   = errors.New("servo: angle out of range")
	ErrInvalidSpeed   = errors.New("servo: speed out of range")
)

// ID selects a servo channel.
type ID uint8

const (
	Servo0 ID = iota
	Servo1
)

func (id ID) String() string {
	return fmt.Sprintf("servo%d", uint8(id))
}

// SetParams are the driver parameters of SetServo.
type SetParams struct {
	Angle  float64
	Speed  uint8
	Invert bool
}

// Setpoint returns the target angle.
func (p SetParams) Setpoint() float64 {
	return p.Angle
}

// Listener receives servo events.
type Listener interface {
	OnServoComplete(id uint16, ch ID)
	OnServoAbort(id uint16, ch ID)
	OnServoError(id uint16, ch ID)
}

// NopListener implements Listener with no-ops.
type NopListener struct{}

func (NopListener) OnServoComplete(uint16, ID) {}
func (NopListener) OnServoAbort(uint16, ID) {}
func (NopListener) OnServoError(uint16, ID) {}

// ListenerFuncs adapts plain functions to Listener. Register it by pointer.
type ListenerFuncs struct {
	Complete func(id uint16, ch ID)
	Abort    func(id uint16, ch ID)
	Error    func(id uint16, ch ID)
}

func (f *ListenerFuncs) OnServoComplete(id uint16, ch ID) {
	if f.Complete != nil {
		f.Complete(id, ch)
	}
}

func (f *ListenerFuncs) OnServoAbort(id uint16, ch ID) {
	if f.Abort != nil {
		f.Abort(id, ch)
	}
}

func (f *ListenerFuncs) OnServoError(id uint16, ch ID) {
	if f.Error != nil {
		f.Error(id, ch)
	}
}

// Controller drives both servo channels. It is safe for concurrent use.
type Controller struct {
	engines   [2]*command.Engine
	listeners *event.Registry[Listener]
}

// New creates a controller. cfg.Policy is ignored: a servo rejects commands
// while moving.
func New(drv driver.Actuator, cfg command.Config, opts ...event.Option) *Controller {
	cfg.Policy = command.PolicyReject
	c := &Controller{listeners: event.NewRegistry[Listener]("servo", opts...)}
	for _, ch := range []ID{Servo0, Servo1} {
		target := driver.Target{Family: driver.FamilyServo, Channel: uint8(ch)}
		c.engines[ch] = command.New(cfg, drv, target, &observer{c: c, ch: ch})
	}
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

// SetServo moves channel ch to angle degrees at speed percent. Invert
// mirrors the angle for servos mounted the other way round.
func (c *Controller) SetServo(ctx context.Context, id uint16, ch ID, angle float64, speed uint8, invert bool) (*command.Handle, error) {
	e, err := c.engine(ch)
	if err != nil {
		return nil, err
	}
	if angle < 0 || angle > MaxAngle {
		return nil, fmt.Errorf("%w: %g", ErrInvalidAngle, angle)
	}
	if speed < 1 || speed > 100 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSpeed, speed)
	}
	return e.Submit(ctx, command.Command{
		ID:     id,
		Kind:   KindSet,
		Params: SetParams{Angle: angle, Speed: speed, Invert: invert},
	})
}

// Abort stops the running move on ch.
func (c *Controller) Abort(ch ID) error {
	e, err := c.engine(ch)
	if err != nil {
		return err
	}
	e.AbortActive()
	return nil
}

// Release aborts any move on ch and removes holding torque. It waits for the
// driver and is not reported to listeners.
func (c *Controller) Release(ctx context.Context, ch ID) error {
	e, err := c.engine(ch)
	if err != nil {
		return err
	}
	if h := e.Active(); h != nil {
		h.Abort()
		select {
		case <-h.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	h, err := e.Submit(ctx, command.Command{Kind: KindRelease})
	if err != nil {
		return err
	}
	_, err = h.Wait(ctx)
	return err
}

// Idle reports whether ch is not moving.
func (c *Controller) Idle(ch ID) bool {
	e, err := c.engine(ch)
	return err == nil && e.Idle()
}

// Close aborts any motion and releases listeners.
func (c *Controller) Close() {
	for _, e := range c.engines {
		e.Close()
	}
	c.listeners.Close()
}

func (c *Controller) engine(ch ID) (*command.Engine, error) {
	if ch > Servo1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChannel, uint8(ch))
	}
	return c.engines[ch], nil
}

type observer struct {
	command.NopObserver
	c  *Controller
	ch ID
}

func (o *observer) OnComplete(cmd command.Command) {
	if cmd.Kind == KindRelease {
		return
	}
	o.c.listeners.Dispatch(func(l Listener) { l.OnServoComplete(cmd.ID, o.ch) })
}

func (o *observer) OnError(cmd command.Command, err error) {
	if cmd.Kind == KindRelease {
		return
	}
	if errors.Is(err, command.ErrAborted) {
		o.c.listeners.Dispatch(func(l Listener) { l.OnServoAbort(cmd.ID, o.ch) })
		return
	}
	o.c.listeners.Dispatch(func(l Listener) { l.OnServoError(cmd.ID, o.ch) })
}
