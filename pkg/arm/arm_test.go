package arm

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-doly/pkg/command"
	"github.com/teslashibe/go-doly/pkg/driver"
	"github.com/teslashibe/go-doly/pkg/driver/sim"
)

var (
	left  = driver.Target{Family: driver.FamilyArm, Side: driver.SideLeft}
	right = driver.Target{Family: driver.FamilyArm, Side: driver.SideRight}
)

type recorder struct {
	NopListener

	mu     sync.Mutex
	events []string
}

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) OnArmComplete(id uint16, side driver.Side) {
	r.add("complete %d %s", id, side)
}

func (r *recorder) OnArmError(id uint16, side driver.Side, errType ErrorType) {
	r.add("error %d %s %s", id, side, errType)
}

func (r *recorder) OnArmMovement(side driver.Side, degreeChange float64) {
	r.add("move %s %g", side, degreeChange)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

func setup(t *testing.T) (*Controller, *sim.Driver, *recorder) {
	t.Helper()
	drv := sim.New()
	c := New(drv, command.DefaultConfig())
	rec := &recorder{}
	require.True(t, c.AddListener(rec))
	t.Cleanup(c.Close)
	return c, drv, rec
}

func waitExec(t *testing.T, drv *sim.Driver, target driver.Target) *sim.Exec {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ex, err := drv.WaitExec(ctx, target)
	require.NoError(t, err)
	return ex
}

func waitAll(t *testing.T, hs []*command.Handle) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, h := range hs {
		_, err := h.Wait(ctx)
		require.NotErrorIs(t, err, context.DeadlineExceeded)
	}
}

func TestSetAngleValidation(t *testing.T) {
	c, drv, _ := setup(t)
	ctx := context.Background()

	_, err := c.SetAngle(ctx, 1, driver.SideLeft, 0, 90, false)
	require.ErrorIs(t, err, ErrInvalidSpeed)
	_, err = c.SetAngle(ctx, 1, driver.SideLeft, 101, 90, false)
	require.ErrorIs(t, err, ErrInvalidSpeed)
	_, err = c.SetAngle(ctx, 1, driver.SideLeft, 50, MaxAngle+1, false)
	require.ErrorIs(t, err, ErrInvalidAngle)
	_, err = c.SetAngle(ctx, 1, driver.Side(9), 50, 90, false)
	require.ErrorIs(t, err, ErrInvalidSide)

	require.Empty(t, drv.Writes())
	require.Equal(t, uint16(220), c.MaxAngle())
}

func TestSetAngleCompletes(t *testing.T) {
	c, drv, rec := setup(t)

	hs, err := c.SetAngle(context.Background(), 7, driver.SideLeft, 60, 90, true)
	require.NoError(t, err)
	require.Len(t, hs, 1)
	require.Equal(t, StateRunning, c.State(driver.SideLeft))

	ex := waitExec(t, drv, left)
	require.Equal(t, AngleParams{Speed: 60, Angle: 90, Brake: true}, ex.Params)
	ex.Move(30)
	ex.Move(60)
	ex.Complete()
	waitAll(t, hs)

	require.Equal(t, []string{"move left 30", "move left 60", "complete 7 left"}, rec.snapshot())
	require.Equal(t, []Data{{Side: driver.SideLeft, Angle: 90}}, c.CurrentAngle(driver.SideLeft))
	require.Equal(t, StateCompleted, c.State(driver.SideLeft))
}

func TestSetAngleBoth(t *testing.T) {
	c, drv, rec := setup(t)

	hs, err := c.SetAngle(context.Background(), 3, driver.SideBoth, 100, 45, false)
	require.NoError(t, err)
	require.Len(t, hs, 2)

	waitExec(t, drv, left).Complete()
	waitExec(t, drv, right).Complete()
	waitAll(t, hs)

	require.ElementsMatch(t, []string{"complete 3 left", "complete 3 right"}, rec.snapshot())
	require.True(t, c.Idle())
}

func TestSetAngleBusy(t *testing.T) {
	c, drv, _ := setup(t)
	ctx := context.Background()

	hs, err := c.SetAngle(ctx, 1, driver.SideLeft, 50, 10, false)
	require.NoError(t, err)

	_, err = c.SetAngle(ctx, 2, driver.SideLeft, 50, 20, false)
	require.ErrorIs(t, err, command.ErrBusy)

	// Both sides is all or nothing.
	_, err = c.SetAngle(ctx, 3, driver.SideBoth, 50, 20, false)
	require.ErrorIs(t, err, command.ErrBusy)
	ex := waitExec(t, drv, left)
	_, ok := drv.Exec(right)
	require.False(t, ok)
	require.Len(t, drv.Writes(), 1)

	ex.Complete()
	waitAll(t, hs)
}

func TestAbortReportsAbortOnly(t *testing.T) {
	c, drv, rec := setup(t)

	hs, err := c.SetAngle(context.Background(), 4, driver.SideRight, 50, 200, false)
	require.NoError(t, err)
	ex := waitExec(t, drv, right)

	c.Abort(driver.SideBoth)
	ex.Complete()
	waitAll(t, hs)

	require.Equal(t, []string{"error 4 right abort"}, rec.snapshot())
	require.Equal(t, StateError, c.State(driver.SideRight))
	require.Equal(t, StateError, c.State(driver.SideBoth))
}

func TestFaultIsMotorError(t *testing.T) {
	c, drv, rec := setup(t)

	hs, err := c.SetAngle(context.Background(), 5, driver.SideLeft, 50, 100, false)
	require.NoError(t, err)
	waitExec(t, drv, left).Fail(&driver.Fault{Target: left, Code: driver.FaultMotor, Msg: "stall"})
	waitAll(t, hs)

	require.Equal(t, []string{"error 5 left motor"}, rec.snapshot())
}

func TestStateChangeListener(t *testing.T) {
	c, drv, _ := setup(t)

	var mu sync.Mutex
	var states []string
	fn := &ListenerFuncs{StateChange: func(side driver.Side, state State) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, side.String()+" "+state.String())
	}}
	require.True(t, c.AddListener(fn))
	require.False(t, c.AddListener(fn))

	hs, err := c.SetAngle(context.Background(), 1, driver.SideLeft, 50, 100, false)
	require.NoError(t, err)
	waitExec(t, drv, left).Complete()
	waitAll(t, hs)

	mu.Lock()
	require.Equal(t, []string{"left running", "left completed"}, states)
	mu.Unlock()

	require.True(t, c.RemoveListener(fn))
}
