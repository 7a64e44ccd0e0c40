package robot

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/teslashibe/go-doly/pkg/arm"
	"github.com/teslashibe/go-doly/pkg/command"
	"github.com/teslashibe/go-doly/pkg/diag"
	"github.com/teslashibe/go-doly/pkg/drive"
	"github.com/teslashibe/go-doly/pkg/driver"
	"github.com/teslashibe/go-doly/pkg/edge"
	"github.com/teslashibe/go-doly/pkg/event"
	"github.com/teslashibe/go-doly/pkg/fan"
	"github.com/teslashibe/go-doly/pkg/imu"
	"github.com/teslashibe/go-doly/pkg/led"
	"github.com/teslashibe/go-doly/pkg/servo"
	"github.com/teslashibe/go-doly/pkg/sound"
	"github.com/teslashibe/go-doly/pkg/tof"
	"github.com/teslashibe/go-doly/pkg/touch"
)

// Lifecycle errors.
var (
	ErrAlreadyStarted = errors.New("robot: already started")
	ErrClosed         = errors.New("robot: closed")
)

// Option configures a Robot.
type Option func(*options)

type options struct {
	logger *slog.Logger
	tracer trace.Tracer
	diag   []diag.Option
}

// WithLogger sets the structured logger shared by every subsystem.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTracer sets the tracer command spans are recorded with.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		o.tracer = tracer
	}
}

// WithDiagnostics passes options to the fault sink.
func WithDiagnostics(opts ...diag.Option) Option {
	return func(o *options) {
		o.diag = append(o.diag, opts...)
	}
}

// Robot owns every Doly subsystem: the actuator controllers, the sensor
// pipelines and the fault sink. Construct it with New, start the sensor
// pipelines with Start and release everything with Close.
type Robot struct {
	cfg    Config
	logger *slog.Logger
	faults *diag.Sink

	arm   *arm.Controller
	drive *drive.Controller
	led   *led.Controller
	servo *servo.Controller
	sound *sound.Controller
	fan   *fan.Controller

	imu   *imu.Monitor
	tof   *tof.Monitor
	edge  *edge.Monitor
	touch *touch.Monitor

	runners []runner
	ids     atomic.Uint32

	mu        sync.Mutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startedAt time.Time
	closed    bool
}

// New builds a robot on drv. Nothing runs until Start.
func New(cfg Config, drv driver.Driver, opts ...Option) (*Robot, error) {
	if drv == nil {
		return nil, errors.New("robot: nil driver")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.With("component", "robot")

	faults := diag.New(append([]diag.Option{diag.WithLogger(o.logger)}, o.diag...)...)
	dispatch := []event.Option{
		event.WithTimeout(cfg.Dispatch.Timeout),
		event.WithBacklog(cfg.Dispatch.Backlog),
		event.WithFaultSink(faults),
		event.WithLogger(o.logger),
	}
	cmd := command.Config{
		AckTimeout:  cfg.Command.AckTimeout,
		StopTimeout: cfg.Command.StopTimeout,
		QueueSize:   cfg.Command.QueueSize,
		Logger:      o.logger,
		Tracer:      o.tracer,
	}

	imuMon, err := imu.NewMonitor(cfg.IMU, faults, dispatch...)
	if err != nil {
		return nil, err
	}
	tofMon, err := tof.NewMonitor(cfg.TOF, faults, dispatch...)
	if err != nil {
		return nil, err
	}
	touchMon, err := touch.NewMonitor(cfg.Touch, faults, dispatch...)
	if err != nil {
		return nil, err
	}

	r := &Robot{
		cfg:    cfg,
		logger: logger,
		faults: faults,
		arm:    arm.New(drv, cmd, dispatch...),
		drive:  drive.New(drv, cmd, dispatch...),
		led:    led.New(drv, cmd, dispatch...),
		servo:  servo.New(drv, cmd, dispatch...),
		sound:  sound.New(drv, cmd, dispatch...),
		fan:    fan.New(drv, cmd),
		imu:    imuMon,
		tof:    tofMon,
		edge:   edge.NewMonitor(cfg.Edge, faults, dispatch...),
		touch:  touchMon,
	}

	s := cfg.Sampling
	if s.IMU > 0 {
		r.runners = append(r.runners, newPipeline(drv, driver.FamilyIMU, s.IMU, s.QueueSize, r.imu.Handle, o.logger))
	}
	if s.TOF > 0 {
		r.runners = append(r.runners, newPipeline(drv, driver.FamilyTOF, s.TOF, s.QueueSize, r.tof.Handle, o.logger))
	}
	if s.Edge > 0 {
		r.runners = append(r.runners, newPipeline(drv, driver.FamilyEdge, s.Edge, s.QueueSize, r.edge.Handle, o.logger))
	}
	if s.Touch > 0 {
		r.runners = append(r.runners, newPipeline(drv, driver.FamilyTouch, s.Touch, s.QueueSize, r.touch.Handle, o.logger))
	}
	if cfg.Fan.Auto && s.IMU > 0 {
		r.runners = append(r.runners, &fanLoop{
			auto:     fan.NewAuto(r.fan, cfg.Fan.Curve, cfg.Fan.Hysteresis, o.logger),
			interval: cfg.Fan.Interval,
			temp:     r.imu.Temperature,
		})
	}
	return r, nil
}

// Start launches the sensor pipelines. They run until ctx is done or Close
// is called.
func (r *Robot) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if r.cancel != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.startedAt = time.Now()
	names := make([]string, 0, len(r.runners))
	for _, run := range r.runners {
		run.run(ctx, &r.wg, r.logger)
		names = append(names, run.name())
	}
	r.logger.Info("robot started", "pipelines", names)
	return nil
}

// Close stops the pipelines, aborts every running command and releases all
// listeners. It is safe to call more than once.
func (r *Robot) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	cancel := r.cancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()

	r.arm.Close()
	r.drive.Close()
	r.led.Close()
	r.servo.Close()
	r.sound.Close()
	r.fan.Close()
	r.imu.Close()
	r.tof.Close()
	r.edge.Close()
	r.touch.Close()
	r.faults.Close()
	r.logger.Info("robot closed")
	return nil
}

// Running reports whether the pipelines are running.
func (r *Robot) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancel != nil && !r.closed
}

// NextID returns a fresh command id. Ids wrap at 65535.
func (r *Robot) NextID() uint16 {
	return uint16(r.ids.Add(1))
}

// Subscribe registers l with every subsystem whose listener interface it
// implements and returns how many accepted it.
func (r *Robot) Subscribe(l any) int {
	n := 0
	count := func(ok bool) {
		if ok {
			n++
		}
	}
	if x, ok := l.(arm.Listener); ok {
		count(r.arm.AddListener(x))
	}
	if x, ok := l.(drive.Listener); ok {
		count(r.drive.AddListener(x))
	}
	if x, ok := l.(led.Listener); ok {
		count(r.led.AddListener(x))
	}
	if x, ok := l.(servo.Listener); ok {
		count(r.servo.AddListener(x))
	}
	if x, ok := l.(sound.Listener); ok {
		count(r.sound.AddListener(x))
	}
	if x, ok := l.(imu.Listener); ok {
		count(r.imu.AddListener(x))
	}
	if x, ok := l.(tof.Listener); ok {
		count(r.tof.AddListener(x))
	}
	if x, ok := l.(edge.Listener); ok {
		count(r.edge.AddListener(x))
	}
	if x, ok := l.(touch.Listener); ok {
		count(r.touch.AddListener(x))
	}
	if x, ok := l.(diag.Listener); ok {
		count(r.faults.AddListener(x))
	}
	return n
}

// Unsubscribe reverses Subscribe and returns how many subsystems dropped l.
func (r *Robot) Unsubscribe(l any) int {
	n := 0
	count := func(ok bool) {
		if ok {
			n++
		}
	}
	if x, ok := l.(arm.Listener); ok {
		count(r.arm.RemoveListener(x))
	}
	if x, ok := l.(drive.Listener); ok {
		count(r.drive.RemoveListener(x))
	}
	if x, ok := l.(led.Listener); ok {
		count(r.led.RemoveListener(x))
	}
	if x, ok := l.(servo.Listener); ok {
		count(r.servo.RemoveListener(x))
	}
	if x, ok := l.(sound.Listener); ok {
		count(r.sound.RemoveListener(x))
	}
	if x, ok := l.(imu.Listener); ok {
		count(r.imu.RemoveListener(x))
	}
	if x, ok := l.(tof.Listener); ok {
		count(r.tof.RemoveListener(x))
	}
	if x, ok := l.(edge.Listener); ok {
		count(r.edge.RemoveListener(x))
	}
	if x, ok := l.(touch.Listener); ok {
		count(r.touch.RemoveListener(x))
	}
	if x, ok := l.(diag.Listener); ok {
		count(r.faults.RemoveListener(x))
	}
	return n
}

// Arms returns the arm controller.
func (r *Robot) Arms() ArmController { return r.arm }

// Wheels returns the drive controller.
func (r *Robot) Wheels() DriveController { return r.drive }

// Eyes returns the LED controller.
func (r *Robot) Eyes() LedController { return r.led }

// Speaker returns the sound controller.
func (r *Robot) Speaker() SoundController { return r.sound }

// Arm returns the concrete arm controller.
func (r *Robot) Arm() *arm.Controller { return r.arm }

// Drive returns the concrete drive controller.
func (r *Robot) Drive() *drive.Controller { return r.drive }

// LED returns the concrete LED controller.
func (r *Robot) LED() *led.Controller { return r.led }

// Servo returns the servo controller.
func (r *Robot) Servo() *servo.Controller { return r.servo }

// Sound returns the concrete sound controller.
func (r *Robot) Sound() *sound.Controller { return r.sound }

// Fan returns the fan controller.
func (r *Robot) Fan() *fan.Controller { return r.fan }

// IMU returns the IMU monitor.
func (r *Robot) IMU() *imu.Monitor { return r.imu }

// TOF returns the proximity monitor.
func (r *Robot) TOF() *tof.Monitor { return r.tof }

// Edge returns the edge monitor.
func (r *Robot) Edge() *edge.Monitor { return r.edge }

// Touch returns the touch monitor.
func (r *Robot) Touch() *touch.Monitor { return r.touch }

// Faults returns the diagnostics sink.
func (r *Robot) Faults() *diag.Sink { return r.faults }

// Diagnostics returns the fault counters.
func (r *Robot) Diagnostics() diag.Snapshot {
	return r.faults.Snapshot()
}
