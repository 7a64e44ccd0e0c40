package robot

import (
	"errors"
	"fmt"
	"time"

	"github.com/teslashibe/go-doly/pkg/edge"
	"github.com/teslashibe/go-doly/pkg/event"
	"github.com/teslashibe/go-doly/pkg/fan"
	"github.com/teslashibe/go-doly/pkg/imu"
	"github.com/teslashibe/go-doly/pkg/sampling"
	"github.com/teslashibe/go-doly/pkg/tof"
	"github.com/teslashibe/go-doly/pkg/touch"
)

// DispatchConfig configures every listener registry.
type DispatchConfig struct {
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Backlog int           `mapstructure:"backlog" yaml:"backlog"`
}

// CommandConfig configures every command engine.
type CommandConfig struct {
	AckTimeout  time.Duration `mapstructure:"ack_timeout" yaml:"ack_timeout"`
	StopTimeout time.Duration `mapstructure:"stop_timeout" yaml:"stop_timeout"`
	QueueSize   int           `mapstructure:"queue_size" yaml:"queue_size"`
}

// SamplingConfig holds the acquisition interval per sensor family. A zero
// interval disables that family's pipeline.
type SamplingConfig struct {
	IMU       time.Duration `mapstructure:"imu" yaml:"imu"`
	TOF       time.Duration `mapstructure:"tof" yaml:"tof"`
	Edge      time.Duration `mapstructure:"edge" yaml:"edge"`
	Touch     time.Duration `mapstructure:"touch" yaml:"touch"`
	QueueSize int           `mapstructure:"queue_size" yaml:"queue_size"`
}

// FanConfig configures automatic fan control from the IMU temperature.
type FanConfig struct {
	Auto       bool          `mapstructure:"auto" yaml:"auto"`
	Interval   time.Duration `mapstructure:"interval" yaml:"interval"`
	Hysteresis float64       `mapstructure:"hysteresis" yaml:"hysteresis"`
	Curve      []fan.Step    `mapstructure:"curve" yaml:"curve"`
}

// Config holds everything a Robot needs.
type Config struct {
	Dispatch DispatchConfig `mapstructure:"dispatch" yaml:"dispatch"`
	Command  CommandConfig  `mapstructure:"command" yaml:"command"`
	Sampling SamplingConfig `mapstructure:"sampling" yaml:"sampling"`
	IMU      imu.Config     `mapstructure:"imu" yaml:"imu"`
	TOF      tof.Config     `mapstructure:"tof" yaml:"tof"`
	Edge     edge.Config    `mapstructure:"edge" yaml:"edge"`
	Touch    touch.Config   `mapstructure:"touch" yaml:"touch"`
	Fan      FanConfig      `mapstructure:"fan" yaml:"fan"`
}

// DefaultConfig returns the configuration dolyd runs with.
func DefaultConfig() Config {
	return Config{
		Dispatch: DispatchConfig{
			Timeout: event.DefaultTimeout,
			Backlog: event.DefaultBacklog,
		},
		Command: CommandConfig{
			AckTimeout:  500 * time.Millisecond,
			StopTimeout: time.Second,
			QueueSize:   16,
		},
		Sampling: SamplingConfig{
			IMU:       20 * time.Millisecond,
			TOF:       50 * time.Millisecond,
			Edge:      20 * time.Millisecond,
			Touch:     20 * time.Millisecond,
			QueueSize: sampling.DefaultQueueSize,
		},
		IMU:   imu.DefaultConfig(),
		TOF:   tof.DefaultConfig(),
		Edge:  edge.DefaultConfig(),
		Touch: touch.DefaultConfig(),
		Fan: FanConfig{
			Auto:       true,
			Interval:   time.Second,
			Hysteresis: fan.DefaultHysteresis,
			Curve:      fan.DefaultCurve(),
		},
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	var errs []error
	if c.Dispatch.Timeout < 0 {
		errs = append(errs, fmt.Errorf("dispatch timeout must not be negative, got %s", c.Dispatch.Timeout))
	}
	if c.Dispatch.Backlog < 0 {
		errs = append(errs, fmt.Errorf("dispatch backlog must not be negative, got %d", c.Dispatch.Backlog))
	}
	if c.Command.AckTimeout <= 0 || c.Command.StopTimeout <= 0 {
		errs = append(errs, errors.New("command timeouts must be positive"))
	}
	if c.Command.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("command queue size must not be negative, got %d", c.Command.QueueSize))
	}
	for _, iv := range []struct {
		name string
		d    time.Duration
	}{{"imu", c.Sampling.IMU}, {"tof", c.Sampling.TOF}, {"edge", c.Sampling.Edge}, {"touch", c.Sampling.Touch}} {
		if iv.d < 0 {
			errs = append(errs, fmt.Errorf("sampling interval %s must not be negative, got %s", iv.name, iv.d))
		}
	}
	if c.Sampling.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("sampling queue size must not be negative, got %d", c.Sampling.QueueSize))
	}
	if c.Fan.Auto && c.Fan.Interval <= 0 {
		errs = append(errs, fmt.Errorf("fan interval must be positive, got %s", c.Fan.Interval))
	}
	for _, s := range c.Fan.Curve {
		if s.Percent > 100 {
			errs = append(errs, fmt.Errorf("fan curve step at %g: %w", s.MinTemp, fan.ErrInvalidSpeed))
		}
	}
	for _, err := range []error{c.IMU.Validate(), c.TOF.Validate(), c.Edge.Validate(), c.Touch.Validate()} {
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("robot: invalid config: %w", errors.Join(errs...))
	}
	return nil
}
