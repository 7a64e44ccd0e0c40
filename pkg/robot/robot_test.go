package robot

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-doly/pkg/arm"
	"github.com/teslashibe/go-doly/pkg/command"
	"github.com/teslashibe/go-doly/pkg/driver"
	"github.com/teslashibe/go-doly/pkg/driver/sim"
	"github.com/teslashibe/go-doly/pkg/edge"
	"github.com/teslashibe/go-doly/pkg/event"
	"github.com/teslashibe/go-doly/pkg/imu"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Sampling.IMU = 5 * time.Millisecond
	cfg.Sampling.TOF = 5 * time.Millisecond
	cfg.Sampling.Edge = 5 * time.Millisecond
	cfg.Sampling.Touch = 5 * time.Millisecond
	cfg.Fan.Interval = 5 * time.Millisecond
	return cfg
}

func newRobot(t *testing.T, cfg Config) (*Robot, *sim.Driver) {
	t.Helper()
	drv := sim.New(sim.WithAuto(time.Millisecond, 2))
	r, err := New(cfg, drv)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r, drv
}

// listener implements arm and edge listeners.
type listener struct {
	mu       sync.Mutex
	complete []uint16
	gaps     []edge.GapDirection
}

func (l *listener) OnArmComplete(id uint16, _ driver.Side) {
	l.mu.Lock()
	l.complete = append(l.complete, id)
	l.mu.Unlock()
}

func (*listener) OnArmError(uint16, driver.Side, arm.ErrorType) {}
func (*listener) OnArmStateChange(driver.Side, arm.State) {}
func (*listener) OnArmMovement(driver.Side, float64) {}
func (*listener) OnEdgeChange([]edge.Sensor) {}

func (l *listener) OnGapDetect(d edge.GapDirection) {
	l.mu.Lock()
	l.gaps = append(l.gaps, d)
	l.mu.Unlock()
}

func (l *listener) snapshot() ([]uint16, []edge.GapDirection) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]uint16(nil), l.complete...), append([]edge.GapDirection(nil), l.gaps...)
}

func TestNewValidates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Command.AckTimeout = 0
	_, err := New(cfg, sim.New())
	require.Error(t, err)

	_, err = New(DefaultConfig(), nil)
	require.Error(t, err)
}

func TestSubscribeRegistersImplementedFamilies(t *testing.T) {
	r, _ := newRobot(t, testConfig())
	l := &listener{}

	assert.Equal(t, 2, r.Subscribe(l))
	assert.Equal(t, 0, r.Subscribe(l), "second subscribe is a no-op")
	assert.Equal(t, 0, r.Subscribe(struct{}{}))
	assert.Equal(t, 2, r.Unsubscribe(l))
}

func TestCommandsReachListeners(t *testing.T) {
	r, _ := newRobot(t, testConfig())
	l := &listener{}
	r.Subscribe(l)

	id := r.NextID()
	hs, err := r.Arms().SetAngle(context.Background(), id, driver.SideLeft, 50, 90, false)
	require.NoError(t, err)
	require.Len(t, hs, 1)
	state, err := hs[0].Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, command.StateCompleted, state)

	require.Eventually(t, func() bool {
		complete, _ := l.snapshot()
		return len(complete) == 1 && complete[0] == id
	}, time.Second, time.Millisecond)
}

func TestSensorPipelines(t *testing.T) {
	r, drv := newRobot(t, testConfig())
	l := &listener{}
	r.Subscribe(l)

	drv.SetReading(driver.EdgeReading{})
	drv.SetReading(driver.IMUReading{Yaw: 10, Temperature: 50})
	require.NoError(t, r.Start(context.Background()))
	assert.ErrorIs(t, r.Start(context.Background()), ErrAlreadyStarted)
	assert.True(t, r.Running())

	// Lift the front of the robot off the table.
	drv.SetReading(driver.EdgeReading{Gap: [driver.EdgeSensorCount]bool{driver.EdgeFrontLeft: true, driver.EdgeFrontRight: true}})
	require.Eventually(t, func() bool {
		_, gaps := l.snapshot()
		return len(gaps) == 1 && gaps[0] == edge.GapFront
	}, time.Second, time.Millisecond)

	// The fan follows the IMU temperature.
	require.Eventually(t, func() bool { return r.Fan().Speed() == 40 }, time.Second, time.Millisecond)

	// Nothing scripted for touch and TOF: every read is a tolerated fault.
	require.Eventually(t, func() bool {
		snap := r.Diagnostics()
		return snap.Sensor["touch"] > 0 && snap.Sensor["tof"] > 0
	}, time.Second, time.Millisecond)

	st := r.Status()
	assert.True(t, st.Running)
	require.NotNil(t, st.IMU)
	assert.Equal(t, imu.YawPitchRoll{Yaw: 10}, st.IMU.YPR)
	assert.Equal(t, "gap", st.Edges[edge.FrontLeft.String()])
	assert.Contains(t, st.Sampling, "imu")
	assert.NotContains(t, st.Sampling, "fan")

	_, err := json.Marshal(st)
	require.NoError(t, err)
}

func TestDisabledPipelines(t *testing.T) {
	cfg := testConfig()
	cfg.Sampling.TOF = 0
	cfg.Sampling.IMU = 0
	r, drv := newRobot(t, cfg)

	require.NoError(t, r.Start(context.Background()))
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, drv.Reads(driver.FamilyTOF))
	assert.Zero(t, drv.Reads(driver.FamilyIMU))
	assert.NotZero(t, drv.Reads(driver.FamilyEdge))
}

func TestDeliveryFaultsReachDiagnostics(t *testing.T) {
	cfg := testConfig()
	cfg.Dispatch.Timeout = 0
	r, _ := newRobot(t, cfg)
	r.Subscribe(&arm.ListenerFuncs{Complete: func(uint16, driver.Side) { panic("listener bug") }})

	hs, err := r.Arms().SetAngle(context.Background(), 1, driver.SideRight, 50, 10, false)
	require.NoError(t, err)
	_, err = hs[0].Wait(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return r.Diagnostics().Delivery["arm/"+event.FaultPanic.String()] == 1
	}, time.Second, time.Millisecond)
}

func TestCloseStopsEverything(t *testing.T) {
	r, drv := newRobot(t, testConfig())
	drv.SetReading(driver.EdgeReading{})
	require.NoError(t, r.Start(context.Background()))

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.False(t, r.Running())
	assert.ErrorIs(t, r.Start(context.Background()), ErrClosed)

	reads := drv.Reads(driver.FamilyEdge)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, reads, drv.Reads(driver.FamilyEdge))
}

func TestNextIDWraps(t *testing.T) {
	r, _ := newRobot(t, testConfig())
	r.ids.Store(65535)
	assert.Equal(t, uint16(0), r.NextID())
}
