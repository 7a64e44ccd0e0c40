// Package command runs asynchronous actuator commands.
//
// An Engine owns one actuator instance. It accepts commands, writes them to
// the driver, follows their progress and reports exactly one terminal
// outcome per command to its Observer.
package command

import (
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Command is one request to an actuator. Params are family specific and
// passed to the driver untouched.
type Command struct {
	// ID is the caller's identifier, echoed in every notification.
	ID     uint16
	Kind   string
	Params any
}

// State is the lifecycle state of a command.
type State uint8

const (
	StateRunning State = iota
	StateCompleted
	StateError
)

// Terminal reports whether s is a final state.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateError
}

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Policy decides what Submit does while a command is running.
type Policy uint8

const (
	// PolicyReject fails Submit with ErrBusy.
	PolicyReject Policy = iota
	// PolicyPreempt aborts the running command and starts the new one once
	// the old one has finished.
	PolicyPreempt
	// PolicyQueue runs commands one after another in submission order.
	PolicyQueue
)

func (p Policy) String() string {
	switch p {
	case PolicyReject:
		return "reject"
	case PolicyPreempt:
		return "preempt"
	case PolicyQueue:
		return "queue"
	default:
		return fmt.Sprintf("policy(%d)", uint8(p))
	}
}

// Observer receives lifecycle notifications. OnStateChange reports every
// transition; after the terminal one, exactly one of OnComplete or OnError
// follows. Calls for one engine never overlap.
type Observer interface {
	OnStateChange(cmd Command, state State)
	OnProgress(cmd Command, delta float64)
	OnComplete(cmd Command)
	OnError(cmd Command, err error)
}

// NopObserver ignores every notification. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) OnStateChange(Command, State) {}
func (NopObserver) OnProgress(Command, float64) {}
func (NopObserver) OnComplete(Command) {}
func (NopObserver) OnError(Command, error) {}

// Config configures an Engine.
type Config struct {
	Policy Policy

	// AckTimeout bounds the driver's acknowledgement of a write.
	AckTimeout time.Duration

	// StopTimeout bounds the driver stop issued on abort.
	StopTimeout time.Duration

	// QueueSize bounds pending commands under PolicyQueue. Zero means 16.
	QueueSize int

	Logger *slog.Logger
	Tracer trace.Tracer
}

// DefaultConfig returns the configuration used by every Doly actuator.
func DefaultConfig() Config {
	return Config{
		Policy:      PolicyReject,
		AckTimeout:  500 * time.Millisecond,
		StopTimeout: time.Second,
		QueueSize:   16,
		Logger:      slog.Default(),
		Tracer:      noop.NewTracerProvider().Tracer("doly"),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Policy > PolicyQueue {
		return fmt.Errorf("command: unknown policy %d", c.Policy)
	}
	if c.AckTimeout <= 0 {
		return fmt.Errorf("command: ack timeout must be positive, got %s", c.AckTimeout)
	}
	if c.StopTimeout <= 0 {
		return fmt.Errorf("command: stop timeout must be positive, got %s", c.StopTimeout)
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("command: queue size must not be negative, got %d", c.QueueSize)
	}
	return nil
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.AckTimeout <= 0 {
		c.AckTimeout = def.AckTimeout
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = def.StopTimeout
	}
	if c.QueueSize == 0 {
		c.QueueSize = def.QueueSize
	}
	if c.Logger == nil {
		c.Logger = def.Logger
	}
	if c.Tracer == nil {
		c.Tracer = def.Tracer
	}
	return c
}
