package command

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"pgregory.net/rapid"

	"github.com/teslashibe/go-doly/pkg/driver"
	"github.com/teslashibe/go-doly/pkg/driver/sim"
)

var armLeft = driver.Target{Family: driver.FamilyArm, Side: driver.SideLeft}

// recordingObserver records notifications as compact strings.
type recordingObserver struct {
	mu     sync.Mutex
	events []string
	errs   map[uint16]error
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{errs: make(map[uint16]error)}
}

func (o *recordingObserver) add(s string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, s)
}

func (o *recordingObserver) OnStateChange(cmd Command, state State) {
	o.add(fmt.Sprintf("%d:%s", cmd.ID, state))
}

func (o *recordingObserver) OnProgress(cmd Command, delta float64) {
	o.add(fmt.Sprintf("%d:progress:%g", cmd.ID, delta))
}

func (o *recordingObserver) OnComplete(cmd Command) {
	o.add(fmt.Sprintf("%d:complete", cmd.ID))
}

func (o *recordingObserver) OnError(cmd Command, err error) {
	o.mu.Lock()
	o.errs[cmd.ID] = err
	o.mu.Unlock()
	o.add(fmt.Sprintf("%d:fail", cmd.ID))
}

func (o *recordingObserver) snapshot() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.events))
	copy(out, o.events)
	return out
}

func (o *recordingObserver) terminals(id uint16) int {
	n := 0
	for _, ev := range o.snapshot() {
		if ev == fmt.Sprintf("%d:complete", id) || ev == fmt.Sprintf("%d:fail", id) {
			n++
		}
	}
	return n
}

func (o *recordingObserver) err(id uint16) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.errs[id]
}

func setup(t *testing.T, policy Policy) (*Engine, *sim.Driver, *recordingObserver) {
	t.Helper()
	drv := sim.New()
	obs := newRecordingObserver()
	cfg := DefaultConfig()
	cfg.Policy = policy
	eng := New(cfg, drv, armLeft, obs)
	t.Cleanup(eng.Close)
	return eng, drv, obs
}

func waitExec(t *testing.T, drv *sim.Driver, target driver.Target) *sim.Exec {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ex, err := drv.WaitExec(ctx, target)
	require.NoError(t, err)
	return ex
}

func wait(t *testing.T, h *Handle) (State, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	state, err := h.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded)
	return state, err
}

func TestEngineCompletes(t *testing.T) {
	eng, drv, obs := setup(t, PolicyReject)

	h, err := eng.Submit(context.Background(), Command{ID: 1, Kind: "angle"})
	require.NoError(t, err)
	require.Equal(t, StateRunning, h.State())
	require.Equal(t, []string{"1:running"}, obs.snapshot())

	ex := waitExec(t, drv, armLeft)
	require.Equal(t, "angle", ex.Kind)
	require.True(t, ex.Move(5))
	require.True(t, ex.Complete())

	state, err := wait(t, h)
	require.Equal(t, StateCompleted, state)
	require.NoError(t, err)
	require.Equal(t, []string{"1:running", "1:progress:5", "1:completed", "1:complete"}, obs.snapshot())
	require.True(t, eng.Idle())
}

func TestEngineRejectsWhileBusy(t *testing.T) {
	eng, drv, obs := setup(t, PolicyReject)

	first, err := eng.Submit(context.Background(), Command{ID: 1, Kind: "angle"})
	require.NoError(t, err)

	_, err = eng.Submit(context.Background(), Command{ID: 2, Kind: "angle"})
	require.ErrorIs(t, err, ErrBusy)
	var busy *BusyError
	require.ErrorAs(t, err, &busy)
	require.Equal(t, uint16(1), busy.Active.ID)
	require.Equal(t, "arm/left", busy.Engine)

	waitExec(t, drv, armLeft).Complete()
	state, _ := wait(t, first)
	require.Equal(t, StateCompleted, state)
	require.NotContains(t, obs.snapshot(), "2:running")
}

func TestEngineAcceptsAfterTerminal(t *testing.T) {
	eng, drv, _ := setup(t, PolicyReject)

	h, err := eng.Submit(context.Background(), Command{ID: 1})
	require.NoError(t, err)
	waitExec(t, drv, armLeft).Complete()
	wait(t, h)

	_, err = eng.Submit(context.Background(), Command{ID: 2})
	require.NoError(t, err)
}

func TestEngineDriverFault(t *testing.T) {
	eng, drv, obs := setup(t, PolicyReject)

	h, err := eng.Submit(context.Background(), Command{ID: 3})
	require.NoError(t, err)
	waitExec(t, drv, armLeft).Fail(&driver.Fault{Target: armLeft, Code: driver.FaultMotor})

	state, err := wait(t, h)
	require.Equal(t, StateError, state)
	code, _, ok := driver.FaultCodeOf(err)
	require.True(t, ok)
	require.Equal(t, driver.FaultMotor, code)
	require.Equal(t, 1, obs.terminals(3))
	require.Empty(t, drv.Stops())
}

func TestEngineWriteError(t *testing.T) {
	eng, drv, obs := setup(t, PolicyReject)
	drv.SetWriteError(driver.FamilyArm, driver.ErrUnsupported)

	h, err := eng.Submit(context.Background(), Command{ID: 4, Kind: "spin"})
	require.NoError(t, err)

	state, err := wait(t, h)
	require.Equal(t, StateError, state)
	require.ErrorIs(t, err, driver.ErrUnsupported)
	require.Equal(t, []string{"4:running", "4:error", "4:fail"}, obs.snapshot())
}

func TestEngineAbort(t *testing.T) {
	eng, drv, obs := setup(t, PolicyReject)

	h, err := eng.Submit(context.Background(), Command{ID: 5})
	require.NoError(t, err)
	ex := waitExec(t, drv, armLeft)

	h.Abort()
	state, err := wait(t, h)
	require.Equal(t, StateError, state)
	require.ErrorIs(t, err, ErrAborted)
	require.True(t, ex.Stopped())
	require.Equal(t, []driver.Target{armLeft}, drv.Stops())

	// Idempotent on terminal.
	h.Abort()
	require.False(t, ex.Complete())
	require.Equal(t, 1, obs.terminals(5))
}

func TestEngineAbortWinsOverCompletion(t *testing.T) {
	for i := 0; i < 50; i++ {
		eng, drv, obs := setup(t, PolicyReject)

		h, err := eng.Submit(context.Background(), Command{ID: 6})
		require.NoError(t, err)
		ex := waitExec(t, drv, armLeft)

		// The driver reports completion right after the abort request, before
		// the engine has had a chance to stop it.
		h.Abort()
		ex.Complete()

		state, err := wait(t, h)
		require.Equal(t, StateError, state)
		require.ErrorIs(t, err, ErrAborted)
		require.NotContains(t, obs.snapshot(), "6:complete")
		require.Equal(t, 1, obs.terminals(6))
	}
}

func TestEngineAbortStopFailure(t *testing.T) {
	eng, drv, _ := setup(t, PolicyReject)
	stopErr := errors.New("brake stuck")
	drv.SetStopError(stopErr)

	h, err := eng.Submit(context.Background(), Command{ID: 7})
	require.NoError(t, err)
	waitExec(t, drv, armLeft)

	require.True(t, eng.AbortActive())
	_, err = wait(t, h)
	require.ErrorIs(t, err, ErrAborted)
	require.ErrorIs(t, err, stopErr)
}

func TestEngineSignalLost(t *testing.T) {
	eng, drv, _ := setup(t, PolicyReject)

	h, err := eng.Submit(context.Background(), Command{ID: 8})
	require.NoError(t, err)
	waitExec(t, drv, armLeft).Lose()

	state, err := wait(t, h)
	require.Equal(t, StateError, state)
	require.ErrorIs(t, err, ErrSignalLost)
}

func TestEngineQueue(t *testing.T) {
	eng, drv, obs := setup(t, PolicyQueue)

	h1, err := eng.Submit(context.Background(), Command{ID: 1, Kind: "play"})
	require.NoError(t, err)
	h2, err := eng.Submit(context.Background(), Command{ID: 2, Kind: "play"})
	require.NoError(t, err)

	require.False(t, h1.Queued())
	require.True(t, h2.Queued())
	require.Equal(t, 1, eng.Pending())
	require.Equal(t, []string{"1:running"}, obs.snapshot())

	waitExec(t, drv, armLeft).Complete()
	wait(t, h1)

	ex := waitExec(t, drv, armLeft)
	require.False(t, h2.Queued())
	ex.Complete()
	wait(t, h2)

	require.Equal(t, []string{
		"1:running", "1:completed", "1:complete",
		"2:running", "2:completed", "2:complete",
	}, obs.snapshot())
}

func TestEngineAbortQueued(t *testing.T) {
	eng, drv, obs := setup(t, PolicyQueue)

	h1, err := eng.Submit(context.Background(), Command{ID: 1})
	require.NoError(t, err)
	h2, err := eng.Submit(context.Background(), Command{ID: 2})
	require.NoError(t, err)

	h2.Abort()
	state, err := wait(t, h2)
	require.Equal(t, StateError, state)
	require.ErrorIs(t, err, ErrAborted)
	require.NotContains(t, obs.snapshot(), "2:running")
	require.Equal(t, 1, obs.terminals(2))
	require.Equal(t, 0, eng.Pending())

	waitExec(t, drv, armLeft).Complete()
	wait(t, h1)
	require.True(t, eng.Idle())
}

func TestEngineQueueFull(t *testing.T) {
	drv := sim.New()
	cfg := DefaultConfig()
	cfg.Policy = PolicyQueue
	cfg.QueueSize = 1
	eng := New(cfg, drv, armLeft, nil)
	t.Cleanup(eng.Close)

	_, err := eng.Submit(context.Background(), Command{ID: 1})
	require.NoError(t, err)
	_, err = eng.Submit(context.Background(), Command{ID: 2})
	require.NoError(t, err)
	_, err = eng.Submit(context.Background(), Command{ID: 3})
	require.ErrorIs(t, err, ErrQueueFull)
}

func TestEnginePreempt(t *testing.T) {
	eng, drv, obs := setup(t, PolicyPreempt)

	h1, err := eng.Submit(context.Background(), Command{ID: 1})
	require.NoError(t, err)
	waitExec(t, drv, armLeft)

	h2, err := eng.Submit(context.Background(), Command{ID: 2})
	require.NoError(t, err)

	select {
	case <-h1.Done():
	default:
		t.Fatal("preempted command should be terminal before Submit returns")
	}
	require.ErrorIs(t, h1.Err(), ErrAborted)
	require.Equal(t, h2, eng.Active())

	events := obs.snapshot()
	require.Equal(t, []string{"1:running", "1:error", "1:fail", "2:running"}, events)
}

func TestEngineClose(t *testing.T) {
	eng, drv, obs := setup(t, PolicyQueue)

	h1, err := eng.Submit(context.Background(), Command{ID: 1})
	require.NoError(t, err)
	h2, err := eng.Submit(context.Background(), Command{ID: 2})
	require.NoError(t, err)
	waitExec(t, drv, armLeft)

	eng.Close()

	require.ErrorIs(t, h1.Err(), ErrAborted)
	require.ErrorIs(t, h2.Err(), ErrAborted)
	require.Equal(t, 1, obs.terminals(1))
	require.Equal(t, 1, obs.terminals(2))

	_, err = eng.Submit(context.Background(), Command{ID: 3})
	require.ErrorIs(t, err, ErrClosed)
}

func TestSubmitAllIsAtomic(t *testing.T) {
	drv := sim.New()
	armRight := driver.Target{Family: driver.FamilyArm, Side: driver.SideRight}
	left := New(DefaultConfig(), drv, armLeft, nil)
	right := New(DefaultConfig(), drv, armRight, nil)
	t.Cleanup(left.Close)
	t.Cleanup(right.Close)

	_, err := right.Submit(context.Background(), Command{ID: 1})
	require.NoError(t, err)

	_, err = SubmitAll(context.Background(), []*Engine{left, right}, []Command{{ID: 2}, {ID: 2}})
	require.ErrorIs(t, err, ErrBusy)
	require.True(t, left.Idle())

	waitExec(t, drv, armRight).Complete()
	require.Eventually(t, right.Idle, time.Second, time.Millisecond)

	hs, err := SubmitAll(context.Background(), []*Engine{left, right}, []Command{{ID: 3}, {ID: 3}})
	require.NoError(t, err)
	require.Len(t, hs, 2)
	require.False(t, left.Idle())
	require.False(t, right.Idle())
}

func TestEngineSpan(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	drv := sim.New()
	cfg := DefaultConfig()
	cfg.Tracer = tp.Tracer("test")
	eng := New(cfg, drv, armLeft, nil)
	t.Cleanup(eng.Close)

	h, err := eng.Submit(context.Background(), Command{ID: 9, Kind: "angle"})
	require.NoError(t, err)
	h.Abort()
	wait(t, h)

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	require.Equal(t, "command.arm.angle", spans[0].Name)

	attrs := make(map[string]string)
	for _, kv := range spans[0].Attributes {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	require.Equal(t, "arm", attrs["doly.family"])
	require.Equal(t, "9", attrs["doly.command_id"])
	require.Equal(t, "aborted", attrs["doly.outcome"])
}

func TestEngineExactlyOneTerminal(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		drv := sim.New()
		obs := newRecordingObserver()
		eng := New(DefaultConfig(), drv, armLeft, obs)
		defer eng.Close()

		h, err := eng.Submit(context.Background(), Command{ID: 1})
		if err != nil {
			rt.Fatalf("submit: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		ex, err := drv.WaitExec(ctx, armLeft)
		if err != nil {
			rt.Fatalf("wait exec: %v", err)
		}

		actions := rapid.SliceOfN(rapid.IntRange(0, 4), 1, 8).Draw(rt, "actions")
		for _, a := range actions {
			switch a {
			case 0:
				ex.Move(1)
			case 1:
				ex.Complete()
			case 2:
				ex.Fail(&driver.Fault{Code: driver.FaultForce})
			case 3:
				h.Abort()
			case 4:
				ex.Lose()
			}
		}
		// Make sure the command ends even if no action finished it.
		h.Abort()

		if _, err := h.Wait(ctx); errors.Is(err, context.DeadlineExceeded) {
			rt.Fatalf("command never finished")
		}
		if n := obs.terminals(1); n != 1 {
			rt.Fatalf("got %d terminal notifications, want 1", n)
		}

		// Nothing after the terminal notification.
		events := obs.snapshot()
		last := events[len(events)-1]
		if last != "1:complete" && last != "1:fail" {
			rt.Fatalf("last event %q is not terminal", last)
		}
	})
}

// gatedObserver holds the OnComplete of one command until released.
type gatedObserver struct {
	*recordingObserver
	id      uint16
	entered chan struct{}
	release chan struct{}
}

func (o *gatedObserver) OnComplete(cmd Command) {
	if cmd.ID == o.id {
		close(o.entered)
		<-o.release
	}
	o.recordingObserver.OnComplete(cmd)
}

func TestEngineTerminalBeforeSuccessor(t *testing.T) {
	drv := sim.New()
	obs := &gatedObserver{
		recordingObserver: newRecordingObserver(),
		id:                1,
		entered:           make(chan struct{}),
		release:           make(chan struct{}),
	}
	eng := New(DefaultConfig(), drv, armLeft, obs)
	t.Cleanup(eng.Close)

	h1, err := eng.Submit(context.Background(), Command{ID: 1})
	require.NoError(t, err)
	waitExec(t, drv, armLeft).Complete()
	<-obs.entered

	// still claimed while the terminal notification is in flight
	_, err = eng.Submit(context.Background(), Command{ID: 2})
	require.ErrorIs(t, err, ErrBusy)
	require.False(t, eng.Idle())

	close(obs.release)
	wait(t, h1)
	require.True(t, eng.Idle())
	_, err = eng.Submit(context.Background(), Command{ID: 2})
	require.NoError(t, err)

	require.Equal(t, []string{"1:running", "1:completed", "1:complete", "2:running"}, obs.snapshot())
}
