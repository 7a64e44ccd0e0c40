package event

import (
	"errors"
	"fmt"
)

var (
	errTimeout     = errors.New("event: delivery timed out")
	errBacklogFull = errors.New("event: listener backlog full")
)

// FaultKind classifies a delivery fault.
type FaultKind uint8

const (
	// FaultPanic means the listener panicked while handling an event.
	FaultPanic FaultKind = iota
	// FaultTimeout means the listener exceeded the delivery timeout.
	FaultTimeout
	// FaultDropped means the event was discarded because the listener's
	// backlog was full.
	FaultDropped
)

func (k FaultKind) String() string {
	switch k {
	case FaultPanic:
		return "panic"
	case FaultTimeout:
		return "timeout"
	case FaultDropped:
		return "dropped"
	default:
		return fmt.Sprintf("fault(%d)", uint8(k))
	}
}

// Fault describes one failed or degraded delivery.
type Fault struct {
	Registry string
	Kind     FaultKind

	// Index is the listener's position in the registry at dispatch time.
	Index int

	// Listener is the listener's dynamic type, e.g. "*main.logger".
	Listener string
	Err      error
}

// Error implements the error interface.
func (f Fault) Error() string {
	return fmt.Sprintf("event [%s]: listener %d (%s) %s: %v", f.Registry, f.Index, f.Listener, f.Kind, f.Err)
}

// Unwrap returns the underlying error.
func (f Fault) Unwrap() error {
	return f.Err
}

// FaultSink receives delivery faults. Implementations must not block.
type FaultSink interface {
	ReportFault(f Fault)
}

// FaultSinkFunc adapts a function to FaultSink.
type FaultSinkFunc func(f Fault)

// ReportFault calls fn(f).
func (fn FaultSinkFunc) ReportFault(f Fault) {
	fn(f)
}

func newFault(kind FaultKind, index int, listener any, err error) Fault {
	return Fault{
		Kind:     kind,
		Index:    index,
		Listener: fmt.Sprintf("%T", listener),
		Err:      err,
	}
}

type panicError struct {
	value any
}

func (p panicError) Error() string {
	return fmt.Sprintf("listener panic: %v", p.value)
}
