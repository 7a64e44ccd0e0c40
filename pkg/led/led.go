// Package led controls Doly's two RGB eye LEDs.
//
// A new activity on a side that is still running replaces it: the running
// activity ends with ErrorAbort before the new one starts.
package led

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/teslashibe/go-doly/pkg/command"
	"github.com/teslashibe/go-doly/pkg/driver"
	"github.com/teslashibe/go-doly/pkg/event"
)

// KindActivity is the driver command kind for ProcessActivity.
const KindActivity = "activity"

// ErrInvalidSide is returned for an unknown side.
var ErrInvalidSide = errors.New("led: invalid side")

// ActivityState is the state of a side's latest activity.
type ActivityState uint8

const (
	ActivityFree ActivityState = iota
	ActivityRunning
	ActivityCompleted
)

func (s ActivityState) String() string {
	switch s {
	case ActivityFree:
		return "free"
	case ActivityRunning:
		return "running"
	case ActivityCompleted:
		return "completed"
	default:
		return fmt.Sprintf("activity(%d)", uint8(s))
	}
}

// Activity shows Main and, if FadeTime is set, fades to Fade over FadeTime
// milliseconds.
type Activity struct {
	Main     Color
	Fade     Color
	FadeTime uint16
}

// Controller drives both LEDs. It is safe for concurrent use.
type Controller struct {
	engines   [2]*command.Engine
	listeners *event.Registry[Listener]

	mu     sync.Mutex
	states [2]ActivityState
}

// New creates a controller. cfg.Policy is ignored: a new activity always
// preempts the running one.
func New(drv driver.Actuator, cfg command.Config, opts ...event.Option) *Controller {
	cfg.Policy = command.PolicyPreempt
	c := &Controller{listeners: event.NewRegistry[Listener]("led", opts...)}
	for i, side := range []driver.Side{driver.SideLeft, driver.SideRight} {
		target := driver.Target{Family: driver.FamilyLED, Side: side}
		c.engines[i] = command.New(cfg, drv, target, &observer{c: c, side: side, index: i})
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

// ProcessActivity starts a on one or both LEDs. For SideBoth it is all or
// nothing: if the right LED refuses the activity the left one is aborted.
func (c *Controller) ProcessActivity(ctx context.Context, id uint16, side driver.Side, a Activity) ([]*command.Handle, error) {
	engines, err := c.enginesFor(side)
	if err != nil {
		return nil, err
	}
	cmd := command.Command{ID: id, Kind: KindActivity, Params: a}

	handles := make([]*command.Handle, 0, len(engines))
	for _, e := range engines {
		h, err := e.Submit(ctx, cmd)
		if err != nil {
			for _, started := range handles {
				started.Abort()
			}
			return nil, err
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// Abort stops the running activity on one or both LEDs.
func (c *Controller) Abort(side driver.Side) {
	engines, err := c.enginesFor(side)
	if err != nil {
		return
	}
	for _, e := range engines {
		e.AbortActive()
	}
}

// State returns the activity state of one LED. SideBoth reports the left LED.
func (c *Controller) State(side driver.Side) ActivityState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if side == driver.SideRight {
		return c.states[1]
	}
	return c.states[0]
}

// Close aborts running activities and releases listeners.
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

func (c *Controller) setState(index int, s ActivityState) {
	c.mu.Lock()
	c.states[index] = s
	c.mu.Unlock()
}

type observer struct {
	c     *Controller
	side  driver.Side
	index int
}

func (o *observer) OnStateChange(_ command.Command, state command.State) {
	switch state {
	case command.StateRunning:
		o.c.setState(o.index, ActivityRunning)
	case command.StateCompleted:
		o.c.setState(o.index, ActivityCompleted)
	default:
		o.c.setState(o.index, ActivityFree)
	}
}

func (o *observer) OnProgress(command.Command, float64) {}

func (o *observer) OnComplete(cmd command.Command) {
	o.c.listeners.Dispatch(func(l Listener) { l.OnLedComplete(cmd.ID, o.side) })
}

func (o *observer) OnError(cmd command.Command, _ error) {
	o.c.listeners.Dispatch(func(l Listener) { l.OnLedError(cmd.ID, o.side, ErrorAbort) })
}
