package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/teslashibe/go-doly/pkg/driver"
)

// Engine runs the commands of one actuator instance, at most one at a time.
// It is safe for concurrent use.
//
// Notifications for a command are made in order from the goroutine that
// drives it. The Observer is called without engine locks held, so it may
// submit further commands.
type Engine struct {
	cfg    Config
	drv    driver.Actuator
	target driver.Target
	obs    Observer
	logger *slog.Logger

	mu     sync.Mutex
	active *Handle
	queue  []*Handle
	closed bool

	wg sync.WaitGroup
}

// New creates an engine for target. A nil obs discards notifications. Zero
// durations and a nil logger or tracer in cfg take their defaults.
func New(cfg Config, drv driver.Actuator, target driver.Target, obs Observer) *Engine {
	cfg = cfg.withDefaults()
	if obs == nil {
		obs = NopObserver{}
	}
	return &Engine{
		cfg:    cfg,
		drv:    drv,
		target: target,
		obs:    obs,
		logger: cfg.Logger.With("component", "command", "target", target.String()),
	}
}

// Name identifies the actuator, e.g. "arm/left".
func (e *Engine) Name() string {
	return e.target.String()
}

// Target returns the actuator this engine drives.
func (e *Engine) Target() driver.Target {
	return e.target
}

// Policy returns the concurrency policy.
func (e *Engine) Policy() Policy {
	return e.cfg.Policy
}

// Submit accepts cmd. On acceptance the command is Running and the observer
// has been told so before Submit returns, unless it was queued behind
// another command. What happens while a command is running depends on the
// engine's Policy.
func (e *Engine) Submit(ctx context.Context, cmd Command) (*Handle, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		e.mu.Lock()
		if e.closed {
			e.mu.Unlock()
			return nil, fmt.Errorf("command [%s]: %w", e.Name(), ErrClosed)
		}
		if e.active == nil && len(e.queue) == 0 {
			h := e.acceptLocked(cmd)
			e.mu.Unlock()
			e.begin(h)
			return h, nil
		}

		switch e.cfg.Policy {
		case PolicyQueue:
			if len(e.queue) >= e.cfg.QueueSize {
				e.mu.Unlock()
				return nil, fmt.Errorf("command [%s]: %w", e.Name(), ErrQueueFull)
			}
			h := newHandle(e, cmd)
			h.queued = true
			e.startSpan(h)
			e.queue = append(e.queue, h)
			pending := len(e.queue)
			e.mu.Unlock()
			e.logger.Debug("command queued", "id", cmd.ID, "kind", cmd.Kind, "pending", pending)
			return h, nil

		case PolicyPreempt:
			prev := e.active
			e.mu.Unlock()
			e.logger.Debug("preempting command", "id", prev.cmd.ID, "by", cmd.ID)
			prev.Abort()
			select {
			case <-prev.done:
			case <-ctx.Done():
				return nil, ctx.Err()
			}

		default:
			busy := &BusyError{Engine: e.Name(), Active: e.active.cmd}
			e.mu.Unlock()
			return nil, busy
		}
	}
}

// SubmitAll starts one command on each engine, or none of them if any
// engine is busy or closed. Engines are locked in slice order, so callers
// must always pass them in the same order.
func SubmitAll(ctx context.Context, engines []*Engine, cmds []Command) ([]*Handle, error) {
	if len(engines) != len(cmds) {
		return nil, fmt.Errorf("command: %d engines for %d commands", len(engines), len(cmds))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, e := range engines {
		e.mu.Lock()
	}
	unlock := func() {
		for i := len(engines) - 1; i >= 0; i-- {
			engines[i].mu.Unlock()
		}
	}

	for _, e := range engines {
		if e.closed {
			unlock()
			return nil, fmt.Errorf("command [%s]: %w", e.Name(), ErrClosed)
		}
		if e.active != nil {
			busy := &BusyError{Engine: e.Name(), Active: e.active.cmd}
			unlock()
			return nil, busy
		}
		if len(e.queue) > 0 {
			busy := &BusyError{Engine: e.Name(), Active: e.queue[0].cmd}
			unlock()
			return nil, busy
		}
	}

	handles := make([]*Handle, len(engines))
	for i, e := range engines {
		handles[i] = e.acceptLocked(cmds[i])
	}
	unlock()

	for i, e := range engines {
		e.begin(handles[i])
	}
	return handles, nil
}

// Active returns the running command, or nil.
func (e *Engine) Active() *Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Idle reports whether nothing is running or queued.
func (e *Engine) Idle() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active == nil && len(e.queue) == 0
}

// Pending returns the number of queued commands.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// AbortActive aborts the running command. It returns false when idle.
func (e *Engine) AbortActive() bool {
	h := e.Active()
	if h == nil {
		return false
	}
	h.Abort()
	return true
}

// Close aborts the running command and every queued one, then waits for the
// engine's goroutines to exit. It must not be called from an Observer.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		e.wg.Wait()
		return
	}
	e.closed = true
	queued := e.queue
	e.queue = nil
	active := e.active
	e.mu.Unlock()

	for _, h := range queued {
		e.finish(h, StateError, ErrAborted)
	}
	if active != nil {
		active.requestAbort()
	}
	e.wg.Wait()
}

func (e *Engine) acceptLocked(cmd Command) *Handle {
	h := newHandle(e, cmd)
	e.startSpan(h)
	e.active = h
	e.wg.Add(1)
	return h
}

func (e *Engine) begin(h *Handle) {
	e.logger.Debug("command accepted", "id", h.cmd.ID, "kind", h.cmd.Kind, "token", h.Token)
	e.obs.OnStateChange(h.cmd, StateRunning)
	go e.run(h)
}

func (e *Engine) run(h *Handle) {
	defer e.wg.Done()

	if h.aborting() {
		e.finish(h, StateError, ErrAborted)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.AckTimeout)
	progress, err := e.drv.WriteCommand(ctx, e.target, h.cmd.Kind, h.cmd.Params)
	cancel()
	if err != nil {
		if h.aborting() {
			e.finish(h, StateError, ErrAborted)
			return
		}
		e.finish(h, StateError, fmt.Errorf("command [%s]: write %s: %w", e.Name(), h.cmd.Kind, err))
		return
	}

	for {
		select {
		case <-h.abort:
			e.stop(h)
			return
		case p, ok := <-progress:
			// An abort request always wins over whatever the driver reports.
			if h.aborting() {
				e.stop(h)
				return
			}
			switch {
			case !ok:
				e.finish(h, StateError, fmt.Errorf("command [%s]: %w", e.Name(), ErrSignalLost))
				return
			case p.Err != nil:
				e.finish(h, StateError, p.Err)
				return
			case p.Done:
				e.finish(h, StateCompleted, nil)
				return
			default:
				e.obs.OnProgress(h.cmd, p.Delta)
			}
		}
	}
}

// stop halts the actuator and finishes h as aborted.
func (e *Engine) stop(h *Handle) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.StopTimeout)
	defer cancel()

	err := ErrAborted
	if serr := e.drv.Stop(ctx, e.target); serr != nil && !errors.Is(serr, driver.ErrNotRunning) {
		e.logger.Warn("actuator stop failed", "id", h.cmd.ID, "error", serr)
		err = errors.Join(ErrAborted, serr)
	}
	e.finish(h, StateError, err)
}

// finish makes h terminal and notifies the observer, once.
func (e *Engine) finish(h *Handle, state State, err error) {
	if !h.settle(state, err) {
		return
	}

	e.endSpan(h, state, err)
	switch {
	case err == nil:
		e.logger.Debug("command completed", "id", h.cmd.ID, "kind", h.cmd.Kind)
	case errors.Is(err, ErrAborted):
		e.logger.Debug("command aborted", "id", h.cmd.ID, "kind", h.cmd.Kind)
	default:
		e.logger.Warn("command failed", "id", h.cmd.ID, "kind", h.cmd.Kind, "error", err)
	}

	e.obs.OnStateChange(h.cmd, state)
	if state == StateCompleted {
		e.obs.OnComplete(h.cmd)
	} else {
		e.obs.OnError(h.cmd, err)
	}

	// The actuator stays claimed until the terminal notifications are out,
	// so a successor's RUNNING always follows them.
	e.mu.Lock()
	if e.active == h {
		e.active = nil
	}
	e.mu.Unlock()
	close(h.done)

	e.promote()
}

// promote starts the next queued command when the actuator is free.
func (e *Engine) promote() {
	e.mu.Lock()
	if e.closed || e.active != nil || len(e.queue) == 0 {
		e.mu.Unlock()
		return
	}
	next := e.queue[0]
	e.queue[0] = nil
	e.queue = e.queue[1:]
	next.setQueued(false)
	e.active = next
	e.wg.Add(1)
	e.mu.Unlock()

	e.begin(next)
}

func (e *Engine) abort(h *Handle) {
	e.mu.Lock()
	for i, q := range e.queue {
		if q != h {
			continue
		}
		e.queue = append(e.queue[:i:i], e.queue[i+1:]...)
		e.mu.Unlock()
		e.finish(h, StateError, ErrAborted)
		return
	}
	e.mu.Unlock()
	h.requestAbort()
}

func (e *Engine) startSpan(h *Handle) {
	_, h.span = e.cfg.Tracer.Start(context.Background(),
		fmt.Sprintf("command.%s.%s", e.target.Family, h.cmd.Kind),
		trace.WithAttributes(
			attribute.String("doly.family", string(e.target.Family)),
			attribute.String("doly.target", e.Name()),
			attribute.String("doly.kind", h.cmd.Kind),
			attribute.Int("doly.command_id", int(h.cmd.ID)),
		),
	)
}

func (e *Engine) endSpan(h *Handle, state State, err error) {
	outcome := state.String()
	if errors.Is(err, ErrAborted) {
		outcome = "aborted"
	}
	h.span.SetAttributes(attribute.String("doly.outcome", outcome))
	if err != nil {
		h.span.RecordError(err)
		h.span.SetStatus(codes.Error, err.Error())
	}
	h.span.End()
}
