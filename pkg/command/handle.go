package command

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// Handle tracks one submitted command.
type Handle struct {
	// Token uniquely identifies this submission. Command IDs are chosen by
	// the caller and may repeat; tokens never do.
	Token uuid.UUID

	cmd  Command
	eng  *Engine
	span trace.Span

	mu       sync.Mutex
	state    State
	err      error
	queued   bool
	terminal bool

	abortOnce sync.Once
	abort     chan struct{}
	done      chan struct{}
}

func newHandle(eng *Engine, cmd Command) *Handle {
	return &Handle{
		Token: uuid.New(),
		cmd:   cmd,
		eng:   eng,
		state: StateRunning,
		abort: make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Command returns the submitted command.
func (h *Handle) Command() Command {
	return h.cmd
}

// State returns the current state. A queued command reports StateRunning;
// use Queued to tell whether it has started.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Err returns the terminal error, nil while running or after completion.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Queued reports whether the command is waiting for the actuator.
func (h *Handle) Queued() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.queued
}

// Done is closed once the terminal notification has been delivered.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the command is terminal or ctx ends.
func (h *Handle) Wait(ctx context.Context) (State, error) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.state, h.err
	case <-ctx.Done():
		return h.State(), ctx.Err()
	}
}

// Abort requests cancellation. It returns immediately; the outcome arrives
// through the observer as an ErrAborted error. Abort on a terminal command
// does nothing.
func (h *Handle) Abort() {
	h.eng.abort(h)
}

func (h *Handle) requestAbort() {
	h.abortOnce.Do(func() {
		close(h.abort)
	})
}

func (h *Handle) aborting() bool {
	select {
	case <-h.abort:
		return true
	default:
		return false
	}
}

func (h *Handle) setQueued(q bool) {
	h.mu.Lock()
	h.queued = q
	h.mu.Unlock()
}

// settle records the terminal state. It returns false if the handle was
// already terminal.
func (h *Handle) settle(state State, err error) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.terminal {
		return false
	}
	h.terminal = true
	h.queued = false
	h.state = state
	h.err = err
	return true
}
