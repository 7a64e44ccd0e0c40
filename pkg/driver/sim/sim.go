// Package sim provides an in-memory Doly peripheral driver.
//
// In manual mode every accepted command stays pending until the caller
// drives it with Exec.Move, Exec.Complete or Exec.Fail, which makes command
// lifecycles fully scriptable in tests. In auto mode commands complete on
// their own after a fixed latency, which is what the daemon uses when no
// hardware is attached.
package sim

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-doly/pkg/driver"
)

// Setpoint is implemented by command parameters that move an actuator to an
// absolute position. Auto mode uses it to size the progress deltas.
type Setpoint interface {
	Setpoint() float64
}

// Write records one accepted WriteCommand call.
type Write struct {
	Target driver.Target
	Kind   string
	Params any
}

// Option configures a Driver.
type Option func(*Driver)

// WithAuto makes commands complete by themselves after latency, reporting
// progress in the given number of steps.
func WithAuto(latency time.Duration, steps int) Option {
	return func(d *Driver) {
		d.auto = true
		d.latency = latency
		if steps > 0 {
			d.steps = steps
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) {
		d.logger = logger
	}
}

// Driver is a simulated driver.Driver. It is safe for concurrent use.
type Driver struct {
	logger  *slog.Logger
	auto    bool
	latency time.Duration
	steps   int

	mu        sync.Mutex
	execs     map[driver.Target]*Exec
	changed   chan struct{}
	writes    []Write
	stops     []driver.Target
	writeErr  map[driver.Family]error
	stopErr   error
	positions map[driver.Target]float64

	readings map[driver.Family]driver.Reading
	scripts  map[driver.Family]*script
	readErr  map[driver.Family]error
	reads    map[driver.Family]int
}

var _ driver.Driver = (*Driver)(nil)

// New creates a simulated driver in manual mode unless WithAuto is given.
func New(opts ...Option) *Driver {
	d := &Driver{
		logger:    slog.Default(),
		steps:     5,
		execs:     make(map[driver.Target]*Exec),
		changed:   make(chan struct{}),
		writeErr:  make(map[driver.Family]error),
		positions: make(map[driver.Target]float64),
		readings:  make(map[driver.Family]driver.Reading),
		scripts:   make(map[driver.Family]*script),
		readErr:   make(map[driver.Family]error),
		reads:     make(map[driver.Family]int),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// WriteCommand implements driver.Actuator.
func (d *Driver) WriteCommand(ctx context.Context, target driver.Target, kind string, params any) (<-chan driver.Progress, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	if err := d.writeErr[target.Family]; err != nil {
		d.mu.Unlock()
		return nil, err
	}

	e := &Exec{
		Target: target,
		Kind:   kind,
		Params: params,
		ch:     make(chan driver.Progress, 64),
		stop:   make(chan struct{}),
		d:      d,
	}
	prev := d.execs[target]
	d.execs[target] = e
	d.writes = append(d.writes, Write{Target: target, Kind: kind, Params: params})
	d.notifyLocked()

	d.mu.Unlock()

	if prev != nil {
		prev.finish()
	}
	d.logger.Debug("sim command accepted", "target", target.String(), "kind", kind)

	if d.auto {
		go d.animate(e)
	}
	return e.ch, nil
}

// Stop implements driver.Actuator. It confirms the stop unless SetStopError
// configured a failure.
func (d *Driver) Stop(ctx context.Context, target driver.Target) error {
	d.mu.Lock()
	d.stops = append(d.stops, target)
	e := d.execs[target]
	delete(d.execs, target)
	err := d.stopErr
	d.notifyLocked()
	d.mu.Unlock()

	if e != nil {
		e.finish()
	}
	return err
}

// animate drives an exec to completion in auto mode.
func (d *Driver) animate(e *Exec) {
	total := 0.0
	if sp, ok := e.Params.(Setpoint); ok {
		d.mu.Lock()
		total = sp.Setpoint() - d.positions[e.Target]
		d.mu.Unlock()
	}

	interval := d.latency / time.Duration(d.steps)
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for i := 0; i < d.steps; i++ {
		select {
		case <-e.stop:
			return
		case <-timer.C:
		}
		if total != 0 {
			if !e.Move(total / float64(d.steps)) {
				return
			}
		}
		timer.Reset(interval)
	}
	e.Complete()
}

// SetWriteError makes WriteCommand fail for a family. A nil err clears it.
func (d *Driver) SetWriteError(family driver.Family, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.writeErr, family)
		return
	}
	d.writeErr[family] = err
}

// SetStopError makes Stop report a failure. A nil err restores confirmation.
func (d *Driver) SetStopError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopErr = err
}

// Exec returns the pending execution for target, if any.
func (d *Driver) Exec(target driver.Target) (*Exec, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.execs[target]
	return e, ok
}

// WaitExec blocks until a command is pending for target or ctx ends.
func (d *Driver) WaitExec(ctx context.Context, target driver.Target) (*Exec, error) {
	for {
		d.mu.Lock()
		e, ok := d.execs[target]
		changed := d.changed
		d.mu.Unlock()
		if ok {
			return e, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-changed:
		}
	}
}

// Writes returns every accepted command in order.
func (d *Driver) Writes() []Write {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Write, len(d.writes))
	copy(out, d.writes)
	return out
}

// Stops returns every Stop target in order.
func (d *Driver) Stops() []driver.Target {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]driver.Target, len(d.stops))
	copy(out, d.stops)
	return out
}

// Position returns the simulated position of an actuator moved in auto mode
// or through Exec.Move.
func (d *Driver) Position(target driver.Target) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.positions[target]
}

func (d *Driver) notifyLocked() {
	close(d.changed)
	d.changed = make(chan struct{})
}

func (d *Driver) release(e *Exec) {
	d.mu.Lock()
	if d.execs[e.Target] == e {
		delete(d.execs, e.Target)
		d.notifyLocked()
	}
	d.mu.Unlock()
}

func (d *Driver) move(target driver.Target, delta float64) {
	d.mu.Lock()
	d.positions[target] += delta
	d.mu.Unlock()
}

// Exec is one pending command on the simulated hardware.
type Exec struct {
	Target driver.Target
	Kind   string
	Params any

	mu       sync.Mutex
	finished bool
	ch       chan driver.Progress
	stop     chan struct{}
	d        *Driver
}

// Move reports intermediate progress. It returns false once the command has
// finished or been stopped.
func (e *Exec) Move(delta float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finished {
		return false
	}
	e.d.move(e.Target, delta)
	// Keep one slot free for the final signal.
	if len(e.ch) < cap(e.ch)-1 {
		e.ch <- driver.Progress{Delta: delta}
	}
	return true
}

// Complete finishes the command successfully.
func (e *Exec) Complete() bool {
	return e.final(driver.Progress{Done: true})
}

// Fail finishes the command with a fault.
func (e *Exec) Fail(err error) bool {
	return e.final(driver.Progress{Err: err})
}

// Lose closes the progress channel without a final signal, as a driver that
// crashed mid-command would.
func (e *Exec) Lose() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finished {
		return false
	}
	e.finished = true
	close(e.stop)
	close(e.ch)
	e.d.release(e)
	return true
}

// Stopped reports whether the command finished, failed or was stopped.
func (e *Exec) Stopped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.finished
}

func (e *Exec) final(p driver.Progress) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finished {
		return false
	}
	e.finished = true
	close(e.stop)
	e.ch <- p
	close(e.ch)
	e.d.release(e)
	return true
}

// finish marks the exec stopped without sending a final signal.
func (e *Exec) finish() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finished {
		return
	}
	e.finished = true
	close(e.stop)
	close(e.ch)
}
