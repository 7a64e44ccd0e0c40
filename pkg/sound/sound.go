// Package sound plays audio files on Doly's speaker.
//
// Sounds play one at a time in the order they were requested. Playback
// itself is done by the driver.
package sound

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/teslashibe/go-doly/pkg/command"
	"github.com/teslashibe/go-doly/pkg/driver"
	"github.com/teslashibe/go-doly/pkg/event"
)

// KindPlay is the driver command kind for Play.
const KindPlay = "play"

// Sentinel errors for rejected sound requests.
var (
	ErrNoFile        = errors.New("sound: file name required")
	ErrInvalidVolume = errors.New("sound: volume out of range")
)

// State is the player state.
type State uint8

const (
	// StateSet means the player is ready and has not played anything yet.
	StateSet State = iota
	StateStop
	StatePlay
)

func (s State) String() string {
	switch s {
	case StateSet:
		return "set"
	case StateStop:
		return "stop"
	case StatePlay:
		return "play"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// PlayParams are the driver parameters of Play.
type PlayParams struct {
	File   string
	Volume uint8
}

// Listener receives sound events.
type Listener interface {
	OnSoundBegin(id uint16, volume float64)
	OnSoundComplete(id uint16)
	OnSoundAbort(id uint16)
	OnSoundError(id uint16)
}

// NopListener implements Listener with no-ops.
type NopListener struct{}

func (NopListener) OnSoundBegin(uint16, float64) {}
func (NopListener) OnSoundComplete(uint16) {}
func (NopListener) OnSoundAbort(uint16) {}
func (NopListener) OnSoundError(uint16) {}

// ListenerFuncs adapts plain functions to Listener. Register it by pointer.
type ListenerFuncs struct {
	Begin    func(id uint16, volume float64)
	Complete func(id uint16)
	Abort    func(id uint16)
	Error    func(id uint16)
}

func (f *ListenerFuncs) OnSoundBegin(id uint16, volume float64) {
	if f.Begin != nil {
		f.Begin(id, volume)
	}
}

func (f *ListenerFuncs) OnSoundComplete(id uint16) {
	if f.Complete != nil {
		f.Complete(id)
	}
}

func (f *ListenerFuncs) OnSoundAbort(id uint16) {
	if f.Abort != nil {
		f.Abort(id)
	}
}

func (f *ListenerFuncs) OnSoundError(id uint16) {
	if f.Error != nil {
		f.Error(id)
	}
}

// Controller is the sound player. It is safe for concurrent use.
type Controller struct {
	engine    *command.Engine
	listeners *event.Registry[Listener]

	mu     sync.Mutex
	volume uint8
	state  State
}

// New creates a player at full volume. cfg.Policy is ignored: sounds are
// always queued.
func New(drv driver.Actuator, cfg command.Config, opts ...event.Option) *Controller {
	cfg.Policy = command.PolicyQueue
	c := &Controller{
		listeners: event.NewRegistry[Listener]("sound", opts...),
		volume:    100,
	}
	c.engine = command.New(cfg, drv, driver.Target{Family: driver.FamilySound}, &observer{c: c})
	return c
}

// AddListener registers l.
func (c *Controller) AddListener(l Listener) bool {
	return c.listeners.Register(l)
}

// RemoveListener unregisters l.
func (c *Controller) RemoveListener(l Listener) bool {
	return c.listeners.Unregister(l)
}

// Play queues file. It starts at the volume current when Play is called.
func (c *Controller) Play(ctx context.Context, file string, id uint16) (*command.Handle, error) {
	if strings.TrimSpace(file) == "" {
		return nil, ErrNoFile
	}
	c.mu.Lock()
	vol := c.volume
	c.mu.Unlock()
	return c.engine.Submit(ctx, command.Command{
		ID:     id,
		Kind:   KindPlay,
		Params: PlayParams{File: file, Volume: vol},
	})
}

// Abort stops the sound that is playing. Queued sounds still play.
func (c *Controller) Abort() {
	c.engine.AbortActive()
}

// SetVolume sets the volume, 0..100, for sounds played afterwards.
func (c *Controller) SetVolume(volume uint8) error {
	if volume > 100 {
		return fmt.Errorf("%w: %d", ErrInvalidVolume, volume)
	}
	c.mu.Lock()
	c.volume = volume
	c.mu.Unlock()
	return nil
}

// Volume returns the current volume.
func (c *Controller) Volume() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.volume
}

// State returns the player state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pending returns the number of queued sounds.
func (c *Controller) Pending() int {
	return c.engine.Pending()
}

// Close stops playback, drops queued sounds and releases listeners.
func (c *Controller) Close() {
	c.engine.Close()
	c.listeners.Close()
}

type observer struct {
	c *Controller
}

func (o *observer) OnStateChange(cmd command.Command, state command.State) {
	o.c.mu.Lock()
	switch {
	case state == command.StateRunning:
		o.c.state = StatePlay
	case o.c.engine.Active() == nil:
		// A queued sound that was dropped leaves the current one playing.
		o.c.state = StateStop
	}
	o.c.mu.Unlock()

	if state != command.StateRunning {
		return
	}
	p, _ := cmd.Params.(PlayParams)
	vol := float64(p.Volume)
	o.c.listeners.Dispatch(func(l Listener) { l.OnSoundBegin(cmd.ID, vol) })
}

func (o *observer) OnProgress(command.Command, float64) {}

func (o *observer) OnComplete(cmd command.Command) {
	o.c.listeners.Dispatch(func(l Listener) { l.OnSoundComplete(cmd.ID) })
}

func (o *observer) OnError(cmd command.Command, err error) {
	if errors.Is(err, command.ErrAborted) {
		o.c.listeners.Dispatch(func(l Listener) { l.OnSoundAbort(cmd.ID) })
		return
	}
	o.c.listeners.Dispatch(func(l Listener) { l.OnSoundError(cmd.ID) })
}
