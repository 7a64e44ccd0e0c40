package sampling

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-doly/pkg/driver"
	"github.com/teslashibe/go-doly/pkg/driver/sim"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(10 * time.Millisecond)
	return c.now
}

func counter() ReadFunc[int] {
	n := 0
	return func(context.Context) (int, error) {
		n++
		return n, nil
	}
}

func TestTickStampsSamples(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	l := NewLoop[int](driver.FamilyIMU, 10*time.Millisecond, 4, counter(), WithClock(clock.Now))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		l.Tick(ctx)
	}
	require.Equal(t, 3, l.Len())

	var prev time.Time
	for i := 1; i <= 3; i++ {
		s, ok := l.TryNext()
		require.True(t, ok)
		assert.Equal(t, uint64(i), s.Seq)
		assert.Equal(t, i, s.Reading)
		assert.True(t, s.At.After(prev))
		prev = s.At
	}
	_, ok := l.TryNext()
	require.False(t, ok)
}

func TestFullRingDropsOldest(t *testing.T) {
	l := NewLoop[int](driver.FamilyTOF, 10*time.Millisecond, 3, counter())
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		l.Tick(ctx)
	}

	require.Equal(t, uint64(2), l.Dropped())
	var got []int
	for {
		s, ok := l.TryNext()
		if !ok {
			break
		}
		got = append(got, s.Reading)
	}
	require.Equal(t, []int{3, 4, 5}, got)
	require.Equal(t, Stats{Produced: 5, Dropped: 2}, l.Stats())
}

func TestReadErrorBecomesSample(t *testing.T) {
	drv := sim.New()
	l := NewLoop(driver.FamilyTouch, 10*time.Millisecond, 4, Typed[driver.TouchReading](drv, driver.FamilyTouch))
	ctx := context.Background()

	s := l.Tick(ctx)
	require.ErrorIs(t, s.Err, driver.ErrDataNotReady)
	require.False(t, s.OK())

	drv.SetReading(driver.TouchReading{Left: true})
	s = l.Tick(ctx)
	require.NoError(t, s.Err)
	require.True(t, s.Reading.Left)

	require.Equal(t, uint64(1), l.Stats().Faults)
}

func TestTypedRejectsOtherReadings(t *testing.T) {
	drv := sim.New()
	drv.Script(driver.FamilyEdge, false, driver.TouchReading{})
	read := Typed[driver.EdgeReading](drv, driver.FamilyEdge)

	_, err := read(context.Background())
	require.ErrorIs(t, err, ErrUnexpectedReading)
}

func TestReadHasDeadline(t *testing.T) {
	read := func(ctx context.Context) (int, error) {
		_, ok := ctx.Deadline()
		if !ok {
			return 0, errors.New("no deadline")
		}
		<-ctx.Done()
		return 0, ctx.Err()
	}
	l := NewLoop[int](driver.FamilyIMU, 5*time.Millisecond, 1, read)

	s := l.Tick(context.Background())
	require.ErrorIs(t, s.Err, context.DeadlineExceeded)
}

func TestRunAndConsume(t *testing.T) {
	drv := sim.New()
	drv.SetReading(driver.IMUReading{Temperature: 41})
	l := NewLoop(driver.FamilyIMU, time.Millisecond, 8, Typed[driver.IMUReading](drv, driver.FamilyIMU))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Run(ctx) }()

	var (
		mu   sync.Mutex
		seqs []uint64
	)
	done := make(chan error, 1)
	go func() {
		done <- l.Consume(ctx, func(s Sample[driver.IMUReading]) {
			mu.Lock()
			seqs = append(seqs, s.Seq)
			mu.Unlock()
			assert.Equal(t, 41.0, s.Reading.Temperature)
		})
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seqs) >= 5
	}, 2*time.Second, time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(seqs); i++ {
		require.Greater(t, seqs[i], seqs[i-1])
	}
}

func TestRunRejectsZeroInterval(t *testing.T) {
	l := NewLoop[int](driver.FamilyIMU, 0, 1, counter())
	require.Error(t, l.Run(context.Background()))
}
