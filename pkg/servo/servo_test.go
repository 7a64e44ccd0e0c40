package servo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-doly/pkg/command"
	"github.com/teslashibe/go-doly/pkg/driver"
	"github.com/teslashibe/go-doly/pkg/driver/sim"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, s)
}

func (r *recorder) OnServoComplete(id uint16, ch ID) { r.add(fmt.Sprintf("complete %d %s", id, ch)) }
func (r *recorder) OnServoAbort(id uint16, ch ID) { r.add(fmt.Sprintf("abort %d %s", id, ch)) }
func (r *recorder) OnServoError(id uint16, ch ID) { r.add(fmt.Sprintf("error %d %s", id, ch)) }

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func target(ch ID) driver.Target {
	return driver.Target{Family: driver.FamilyServo, Channel: uint8(ch)}
}

func setup(t *testing.T) (*Controller, *sim.Driver, *recorder) {
	t.Helper()
	drv := sim.New()
	c := New(drv, command.DefaultConfig())
	rec := &recorder{}
	c.AddListener(rec)
	t.Cleanup(c.Close)
	return c, drv, rec
}

func waitExec(t *testing.T, drv *sim.Driver, ch ID) *sim.Exec {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ex, err := drv.WaitExec(ctx, target(ch))
	require.NoError(t, err)
	return ex
}

func TestSetServoValidation(t *testing.T) {
	c, _, _ := setup(t)
	ctx := context.Background()

	_, err := c.SetServo(ctx, 1, Servo0, -1, 50, false)
	require.ErrorIs(t, err, ErrInvalidAngle)
	_, err = c.SetServo(ctx, 1, Servo0, 181, 50, false)
	require.ErrorIs(t, err, ErrInvalidAngle)
	_, err = c.SetServo(ctx, 1, Servo1, 90, 0, false)
	require.ErrorIs(t, err, ErrInvalidSpeed)
	_, err = c.SetServo(ctx, 1, ID(2), 90, 50, false)
	require.ErrorIs(t, err, ErrInvalidChannel)
}

func TestServoOutcomes(t *testing.T) {
	c, drv, rec := setup(t)
	ctx := context.Background()

	h, err := c.SetServo(ctx, 1, Servo0, 90, 50, false)
	require.NoError(t, err)
	_, err = c.SetServo(ctx, 2, Servo0, 45, 50, false)
	require.ErrorIs(t, err, command.ErrBusy)
	waitExec(t, drv, Servo0).Complete()
	<-h.Done()

	h, err = c.SetServo(ctx, 3, Servo1, 10, 100, true)
	require.NoError(t, err)
	waitExec(t, drv, Servo1)
	require.NoError(t, c.Abort(Servo1))
	<-h.Done()

	h, err = c.SetServo(ctx, 4, Servo1, 20, 100, false)
	require.NoError(t, err)
	waitExec(t, drv, Servo1).Fail(errors.New("overcurrent"))
	<-h.Done()

	require.Equal(t, []string{"complete 1 servo0", "abort 3 servo1", "error 4 servo1"}, rec.snapshot())
}

func TestServoRelease(t *testing.T) {
	c, drv, rec := setup(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := c.SetServo(ctx, 5, Servo0, 120, 30, false)
	require.NoError(t, err)
	waitExec(t, drv, Servo0)

	done := make(chan error, 1)
	go func() { done <- c.Release(ctx, Servo0) }()

	require.Eventually(t, func() bool {
		ex, ok := drv.Exec(target(Servo0))
		return ok && ex.Kind == KindRelease
	}, time.Second, time.Millisecond)
	ex, _ := drv.Exec(target(Servo0))
	ex.Complete()

	require.NoError(t, <-done)
	require.Equal(t, []string{"abort 5 servo0"}, rec.snapshot())
	require.True(t, c.Idle(Servo0))
}
