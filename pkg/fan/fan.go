// Package fan controls Doly's cooling fan.
//
// SetSpeed writes a speed directly and waits for the driver. Auto derives
// the speed from a temperature curve.
package fan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/teslashibe/go-doly/pkg/command"
	"github.com/teslashibe/go-doly/pkg/driver"
)

// KindSpeed is the driver command kind for SetSpeed.
const KindSpeed = "speed"

// ErrInvalidSpeed is returned for a speed above 100 percent.
var ErrInvalidSpeed = errors.New("fan: speed out of range")

// SpeedParams are the driver parameters of SetSpeed.
type SpeedParams struct {
	Percent uint8
}

// Controller drives the fan. It is safe for concurrent use.
type Controller struct {
	engine *command.Engine

	mu    sync.Mutex
	speed uint8
}

// New creates a controller. A new speed always replaces a pending one.
func New(drv driver.Actuator, cfg command.Config) *Controller {
	cfg.Policy = command.PolicyPreempt
	return &Controller{
		engine: command.New(cfg, drv, driver.Target{Family: driver.FamilyFan}, nil),
	}
}

// SetSpeed sets the fan to percent, 0..100, and waits for the driver.
func (c *Controller) SetSpeed(ctx context.Context, percent uint8) error {
	if percent > 100 {
		return fmt.Errorf("%w: %d", ErrInvalidSpeed, percent)
	}
	h, err := c.engine.Submit(ctx, command.Command{Kind: KindSpeed, Params: SpeedParams{Percent: percent}})
	if err != nil {
		return err
	}
	if _, err := h.Wait(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	c.speed = percent
	c.mu.Unlock()
	return nil
}

// Speed returns the last speed the driver accepted.
func (c *Controller) Speed() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speed
}

// Close aborts a pending write.
func (c *Controller) Close() {
	c.engine.Close()
}

// Step is one point of a fan curve: at or above MinTemp the fan runs at
// Percent.
type Step struct {
	MinTemp float64 `mapstructure:"min_temp" yaml:"min_temp"`
	Percent uint8   `mapstructure:"percent" yaml:"percent"`
}

// DefaultCurve returns the curve used when none is configured.
func DefaultCurve() []Step {
	return []Step{
		{MinTemp: 45, Percent: 40},
		{MinTemp: 55, Percent: 70},
		{MinTemp: 65, Percent: 100},
	}
}

// DefaultHysteresis is how far, in Celsius, the temperature must fall below
// a step before the fan slows down.
const DefaultHysteresis = 2.0

// Auto sets the fan speed from temperature readings.
type Auto struct {
	fan        *Controller
	curve      []Step
	hysteresis float64
	logger     *slog.Logger

	mu    sync.Mutex
	level int // index into curve, -1 below the first step
}

// NewAuto creates an automatic controller for fan. An empty curve uses
// DefaultCurve.
func NewAuto(fan *Controller, curve []Step, hysteresis float64, logger *slog.Logger) *Auto {
	if len(curve) == 0 {
		curve = DefaultCurve()
	}
	sorted := make([]Step, len(curve))
	copy(sorted, curve)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MinTemp < sorted[j].MinTemp })
	if logger == nil {
		logger = slog.Default()
	}
	return &Auto{
		fan:        fan,
		curve:      sorted,
		hysteresis: hysteresis,
		logger:     logger.With("component", "fan"),
		level:      -1,
	}
}

// step returns the curve index for temp given the current index. Rising
// temperatures switch up at MinTemp; falling ones leave a step only once
// they are more than the hysteresis below it.
func (a *Auto) step(temp float64, current int) int {
	next := -1
	for i, s := range a.curve {
		if temp >= s.MinTemp {
			next = i
		}
	}
	if next >= current {
		return next
	}
	for current > next && temp < a.curve[current].MinTemp-a.hysteresis {
		current--
	}
	return current
}

// Update feeds one temperature reading. It changes the fan speed when the
// curve selects a new step and reports whether it did.
func (a *Auto) Update(ctx context.Context, temp float64) (bool, error) {
	a.mu.Lock()
	next := a.step(temp, a.level)
	if next == a.level {
		a.mu.Unlock()
		return false, nil
	}
	a.level = next
	a.mu.Unlock()

	percent := a.percent(next)
	a.logger.Debug("fan step changed", "temperature", temp, "percent", percent)
	if err := a.fan.SetSpeed(ctx, percent); err != nil {
		return true, err
	}
	return true, nil
}

func (a *Auto) percent(level int) uint8 {
	if level < 0 {
		return 0
	}
	return a.curve[level].Percent
}
