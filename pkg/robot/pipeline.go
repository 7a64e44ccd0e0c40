package robot

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-doly/pkg/driver"
	"github.com/teslashibe/go-doly/pkg/fan"
	"github.com/teslashibe/go-doly/pkg/sampling"
)

// runner is one background activity started with the robot.
type runner interface {
	name() string
	run(ctx context.Context, wg *sync.WaitGroup, logger *slog.Logger)
	stats() sampling.Stats
}

// pipeline pairs an acquisition loop with the monitor that consumes it:
// one goroutine samples, one goroutine runs the detector.
type pipeline[R any] struct {
	loop   *sampling.Loop[R]
	handle func(sampling.Sample[R])
}

func newPipeline[R driver.Reading](drv driver.Sensor, family driver.Family, interval time.Duration, queue int, handle func(sampling.Sample[R]), logger *slog.Logger) *pipeline[R] {
	return &pipeline[R]{
		loop:   sampling.NewLoop(family, interval, queue, sampling.Typed[R](drv, family), sampling.WithLogger(logger)),
		handle: handle,
	}
}

func (p *pipeline[R]) name() string {
	return string(p.loop.Family())
}

func (p *pipeline[R]) run(ctx context.Context, wg *sync.WaitGroup, logger *slog.Logger) {
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := p.loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("acquisition stopped", "family", p.name(), "error", err)
		}
	}()
	go func() {
		defer wg.Done()
		p.loop.Consume(ctx, p.handle)
	}()
}

func (p *pipeline[R]) stats() sampling.Stats {
	return p.loop.Stats()
}

// fanLoop feeds the IMU temperature to the fan curve at a fixed rate.
type fanLoop struct {
	auto     *fan.Auto
	interval time.Duration
	temp     func() (float64, bool)
}

func (f *fanLoop) name() string {
	return string(driver.FamilyFan)
}

func (f *fanLoop) run(ctx context.Context, wg *sync.WaitGroup, logger *slog.Logger) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				f.tick(ctx, logger)
			}
		}
	}()
}

// tick executes one control cycle.
func (f *fanLoop) tick(ctx context.Context, logger *slog.Logger) {
	temp, ok := f.temp()
	if !ok {
		return
	}
	if _, err := f.auto.Update(ctx, temp); err != nil && ctx.Err() == nil {
		logger.Warn("fan update failed", "temperature", temp, "error", err)
	}
}

func (f *fanLoop) stats() sampling.Stats {
	return sampling.Stats{}
}
