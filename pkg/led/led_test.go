package led

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-doly/pkg/command"
	"github.com/teslashibe/go-doly/pkg/driver"
	"github.com/teslashibe/go-doly/pkg/driver/sim"
)

var (
	leftLED  = driver.Target{Family: driver.FamilyLED, Side: driver.SideLeft}
	rightLED = driver.Target{Family: driver.FamilyLED, Side: driver.SideRight}
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) OnLedComplete(id uint16, side driver.Side) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf("complete %d %s", id, side))
}

func (r *recorder) OnLedError(id uint16, side driver.Side, errType ErrorType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf("error %d %s %s", id, side, errType))
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func waitExec(t *testing.T, drv *sim.Driver, target driver.Target) *sim.Exec {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ex, err := drv.WaitExec(ctx, target)
	require.NoError(t, err)
	return ex
}

func TestParseHex(t *testing.T) {
	tests := []struct {
		in   string
		want Color
		ok   bool
	}{
		{"#ff8000", RGB(255, 128, 0), true},
		{"00ff00", RGB(0, 255, 0), true},
		{"#0af", RGB(0, 170, 255), true},
		{" #FFFFFF ", RGB(255, 255, 255), true},
		{"#12345", Color{}, false},
		{"#zzzzzz", Color{}, false},
		{"", Color{}, false},
	}
	for _, tt := range tests {
		got, err := ParseHex(tt.in)
		if !tt.ok {
			assert.ErrorIs(t, err, ErrInvalidColor, tt.in)
			continue
		}
		assert.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestColorCodes(t *testing.T) {
	assert.Equal(t, "sky_blue", SkyBlue.String())
	assert.Equal(t, "brown", Brown.String())
	assert.Equal(t, "color(99)", ColorCode(99).String())
	assert.Equal(t, RGB(255, 0, 0), ColorFromCode(Red))
	assert.Equal(t, Color{}, ColorFromCode(ColorCode(99)))

	code, ok := ParseColorCode("Dark_Green")
	assert.True(t, ok)
	assert.Equal(t, DarkGreen, code)

	c, err := ParseColor("gold")
	require.NoError(t, err)
	assert.Equal(t, "#ffd700", c.Hex())
	assert.Equal(t, "r[255] g[215] b[0]", c.String())

	for i := ColorCode(0); i < colorCodeCount; i++ {
		back, ok := ParseColorCode(i.String())
		assert.True(t, ok)
		assert.Equal(t, i, back)
	}
}

func TestActivityPreemptsRunning(t *testing.T) {
	drv := sim.New()
	c := New(drv, command.DefaultConfig())
	t.Cleanup(c.Close)
	rec := &recorder{}
	c.AddListener(rec)
	ctx := context.Background()

	_, err := c.ProcessActivity(ctx, 1, driver.SideLeft, Activity{Main: ColorFromCode(Blue)})
	require.NoError(t, err)
	waitExec(t, drv, leftLED)
	require.Equal(t, ActivityRunning, c.State(driver.SideLeft))

	hs, err := c.ProcessActivity(ctx, 2, driver.SideLeft, Activity{Main: ColorFromCode(Red), Fade: ColorFromCode(Black), FadeTime: 500})
	require.NoError(t, err)
	require.Equal(t, []string{"error 1 left abort"}, rec.snapshot())

	ex := waitExec(t, drv, leftLED)
	require.Equal(t, uint16(500), ex.Params.(Activity).FadeTime)
	ex.Complete()
	<-hs[0].Done()

	require.Equal(t, []string{"error 1 left abort", "complete 2 left"}, rec.snapshot())
	require.Equal(t, ActivityCompleted, c.State(driver.SideLeft))
}

func TestActivityBothSides(t *testing.T) {
	drv := sim.New()
	c := New(drv, command.DefaultConfig())
	t.Cleanup(c.Close)
	rec := &recorder{}
	c.AddListener(rec)

	hs, err := c.ProcessActivity(context.Background(), 9, driver.SideBoth, Activity{Main: ColorFromCode(Green)})
	require.NoError(t, err)
	require.Len(t, hs, 2)

	waitExec(t, drv, leftLED).Complete()
	waitExec(t, drv, rightLED).Complete()
	for _, h := range hs {
		<-h.Done()
	}
	require.ElementsMatch(t, []string{"complete 9 left", "complete 9 right"}, rec.snapshot())

	_, err = c.ProcessActivity(context.Background(), 1, driver.Side(7), Activity{})
	require.ErrorIs(t, err, ErrInvalidSide)
}

func TestActivityBothSidesAllOrNothing(t *testing.T) {
	drv := sim.New()
	c := New(drv, command.DefaultConfig())
	t.Cleanup(c.Close)
	rec := &recorder{}
	c.AddListener(rec)
	c.engines[1].Close()

	hs, err := c.ProcessActivity(context.Background(), 3, driver.SideBoth, Activity{Main: ColorFromCode(Green)})
	require.ErrorIs(t, err, command.ErrClosed)
	require.Nil(t, hs)

	require.Eventually(t, c.engines[0].Idle, time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, []string{"error 3 left abort"}, rec.snapshot())
}
