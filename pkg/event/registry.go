// Package event provides the listener registry and dispatcher shared by every
// Doly subsystem.
//
// A Registry holds an ordered set of listeners of one interface type. Dispatch
// delivers an event to each of them in registration order. A listener that
// panics, or takes longer than the delivery timeout, is reported to the
// FaultSink and never stalls the producer past that timeout.
package event

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultTimeout bounds how long Dispatch waits for one listener.
	DefaultTimeout = 250 * time.Millisecond

	// DefaultBacklog is how many undelivered events a listener may have queued.
	DefaultBacklog = 64
)

type options struct {
	timeout time.Duration
	backlog int
	sink    FaultSink
	logger  *slog.Logger
}

// Option configures a Registry.
type Option func(*options)

// WithTimeout sets the per-listener delivery timeout. A value <= 0 makes
// Dispatch call listeners inline on the producer goroutine and wait for them.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithBacklog sets how many events may queue for a listener that is still
// running a previous callback.
func WithBacklog(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.backlog = n
		}
	}
}

// WithFaultSink sets where delivery faults are reported.
func WithFaultSink(s FaultSink) Option {
	return func(o *options) {
		o.sink = s
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Registry is an ordered set of listeners of type L with synchronous,
// fault-isolated delivery. All methods are safe for concurrent use.
//
// Listener identity is Go equality on L, so listeners should be pointers.
type Registry[L comparable] struct {
	name string
	opts options

	mu      sync.Mutex // serializes Register, Unregister and Close
	entries atomic.Pointer[[]*entry[L]]
	closed  atomic.Bool
}

// NewRegistry creates an empty registry. name identifies the subsystem in
// fault reports.
func NewRegistry[L comparable](name string, opts ...Option) *Registry[L] {
	o := options{
		timeout: DefaultTimeout,
		backlog: DefaultBacklog,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	r := &Registry[L]{name: name, opts: o}
	empty := make([]*entry[L], 0)
	r.entries.Store(&empty)
	return r
}

// Name returns the subsystem name.
func (r *Registry[L]) Name() string {
	return r.name
}

// Register appends l to the listener set. It returns false when l is already
// registered or the registry is closed.
func (r *Registry[L]) Register(l L) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed.Load() {
		return false
	}
	cur := *r.entries.Load()
	for _, e := range cur {
		if e.listener == l {
			return false
		}
	}

	next := make([]*entry[L], len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, &entry[L]{listener: l, reg: r})
	r.entries.Store(&next)
	return true
}

// Unregister removes l. Events already queued for l are still delivered.
// It returns false when l was not registered.
func (r *Registry[L]) Unregister(l L) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := *r.entries.Load()
	for i, e := range cur {
		if e.listener != l {
			continue
		}
		next := make([]*entry[L], 0, len(cur)-1)
		next = append(next, cur[:i]...)
		next = append(next, cur[i+1:]...)
		r.entries.Store(&next)
		return true
	}
	return false
}

// Len returns the number of registered listeners.
func (r *Registry[L]) Len() int {
	return len(*r.entries.Load())
}

// Listeners returns the registered listeners in registration order.
func (r *Registry[L]) Listeners() []L {
	cur := *r.entries.Load()
	out := make([]L, len(cur))
	for i, e := range cur {
		out[i] = e.listener
	}
	return out
}

// Dispatch delivers one event, expressed as fn applied to each listener, to
// every listener registered when Dispatch starts, in registration order.
//
// The event is first queued for every listener, then delivered listener by
// listener. Dispatch waits for each delivery it starts up to the timeout. A
// listener still busy with an earlier event, including one that dispatched
// re-entrantly from its own callback, handles this event after that one
// finishes, so every listener sees events in production order.
func (r *Registry[L]) Dispatch(fn func(L)) {
	if r.closed.Load() {
		return
	}
	entries := *r.entries.Load()
	owned := make([]*job[L], len(entries))
	for i, e := range entries {
		owned[i] = e.enqueue(i, fn)
	}
	for i, e := range entries {
		if owned[i] != nil {
			e.deliver(i, owned[i])
		}
	}
}

// Close unregisters every listener. Later calls to Register and Dispatch are
// no-ops.
func (r *Registry[L]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed.Store(true)
	empty := make([]*entry[L], 0)
	r.entries.Store(&empty)
}

func (r *Registry[L]) report(f Fault) {
	f.Registry = r.name
	if r.opts.sink != nil {
		r.opts.sink.ReportFault(f)
		return
	}
	r.opts.logger.Warn("listener delivery fault",
		"registry", f.Registry,
		"listener", f.Listener,
		"kind", f.Kind.String(),
		"error", f.Err,
	)
}

type job[L comparable] struct {
	fn   func(L)
	done chan struct{}
}

// entry is one registered listener. At most one goroutine runs its callbacks
// at a time; events arriving meanwhile wait in queue.
type entry[L comparable] struct {
	listener L
	reg      *Registry[L]

	mu    sync.Mutex
	busy  bool
	queue []*job[L]
}

// enqueue appends fn to the queue. It returns the job when the entry was idle
// and the caller must start delivery, nil otherwise.
func (e *entry[L]) enqueue(index int, fn func(L)) *job[L] {
	e.mu.Lock()
	if len(e.queue) >= e.reg.opts.backlog {
		e.mu.Unlock()
		e.reg.report(newFault(FaultDropped, index, e.listener, errBacklogFull))
		return nil
	}
	j := &job[L]{fn: fn}
	e.queue = append(e.queue, j)
	if e.busy {
		e.mu.Unlock()
		return nil
	}
	e.busy = true
	j.done = make(chan struct{})
	e.mu.Unlock()
	return j
}

func (e *entry[L]) deliver(index int, j *job[L]) {
	timeout := e.reg.opts.timeout
	if timeout <= 0 {
		e.run(index)
		return
	}

	go e.run(index)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-j.done:
	case <-timer.C:
		e.reg.report(newFault(FaultTimeout, index, e.listener, errTimeout))
	}
}

// run drains the queue in order. The entry goes idle before the last job is
// signalled done.
func (e *entry[L]) run(index int) {
	for {
		e.mu.Lock()
		j := e.queue[0]
		e.queue[0] = nil
		e.queue = e.queue[1:]
		e.mu.Unlock()

		e.call(index, j.fn)

		e.mu.Lock()
		idle := len(e.queue) == 0
		if idle {
			e.busy = false
		}
		e.mu.Unlock()

		if j.done != nil {
			close(j.done)
		}
		if idle {
			return
		}
	}
}

func (e *entry[L]) call(index int, fn func(L)) {
	defer func() {
		if v := recover(); v != nil {
			e.reg.report(newFault(FaultPanic, index, e.listener, panicError{v}))
		}
	}()
	fn(e.listener)
}
