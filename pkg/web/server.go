// Package web provides the Doly dashboard: a JSON API for status and
// commands, and a websocket stream of every subsystem event.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-doly/pkg/hub"
	"github.com/teslashibe/go-doly/pkg/protocol"
	"github.com/teslashibe/go-doly/pkg/robot"
)

// shutdownTimeout bounds graceful shutdown of open connections.
const shutdownTimeout = 5 * time.Second

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithUpdateInterval limits how often IMU updates reach clients.
func WithUpdateInterval(d time.Duration) Option {
	return func(s *Server) {
		s.interval = d
	}
}

// Server is the web dashboard server
type Server struct {
	app      *fiber.App
	addr     string
	robot    robot.Controller
	logger   *slog.Logger
	interval time.Duration

	// Hub for the websocket event stream (thread-safe!)
	events *hub.Hub
	bridge *Bridge
}

// NewServer creates a new dashboard server for r listening on addr.
func NewServer(addr string, r robot.Controller, opts ...Option) *Server {
	s := &Server{
		addr:     addr,
		robot:    r,
		logger:   slog.Default(),
		interval: DefaultUpdateInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "web")
	s.events = hub.New("events", hub.WithLogger(s.logger))
	s.bridge = NewBridge(s.events, s.interval, s.logger)

	app := fiber.New(fiber.Config{
		AppName:               "Doly Dashboard",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/diagnostics", s.handleDiagnostics)
	api.Post("/arm", s.handleArm)
	api.Post("/drive/xy", s.handleDriveXY)
	api.Post("/drive/distance", s.handleDriveDistance)
	api.Post("/drive/rotate", s.handleDriveRotate)
	api.Post("/led", s.handleLed)
	api.Post("/sound", s.handleSound)
	api.Post("/servo", s.handleServo)
	api.Post("/fan", s.handleFan)
	api.Post("/abort/:family", s.handleAbort)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket routes
	app.Get("/ws/events", websocket.New(s.handleEventsWS))

	s.app = app
	return s
}

// App returns the fiber app, e.g. for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// Events returns the event hub.
func (s *Server) Events() *hub.Hub {
	return s.events
}

// Run serves on the configured address until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done. The bridge is subscribed to the
// robot for as long as Serve runs.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.events.Run(ctx)
	n := s.robot.Subscribe(s.bridge)
	defer s.robot.Unsubscribe(s.bridge)
	s.logger.Info("web dashboard listening", "addr", ln.Addr().String(), "subsystems", n)

	errc := make(chan error, 1)
	go func() {
		errc <- s.app.Listener(ln)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	<-errc
	<-s.events.Done()
	s.logger.Info("web dashboard stopped")
	return nil
}

// handleEventsWS streams events to one client. The client first receives
// a status snapshot, and may send ping or status requests.
func (s *Server) handleEventsWS(c *websocket.Conn) {
	client, err := hub.NewClient(s.events, c, s.reply)
	if err != nil {
		return
	}
	if f, err := s.statusFrame(); err == nil {
		client.Send(f)
	}
	client.Run()
}

// reply answers client requests on the event stream.
func (s *Server) reply(data []byte) hub.Frame {
	req, err := protocol.ParseMessage(data)
	if err != nil {
		return nil
	}
	switch req.Type {
	case protocol.TypePing:
		ping, err := req.GetPingData()
		if err != nil {
			return nil
		}
		msg, err := protocol.NewPongMessage(*ping, time.Now())
		if err != nil {
			return nil
		}
		f, _ := hub.Encode(msg)
		return f
	case protocol.TypeStatus:
		f, _ := s.statusFrame()
		return f
	}
	return nil
}

func (s *Server) statusFrame() (hub.Frame, error) {
	msg, err := protocol.NewStatusMessage(s.robot.Status())
	if err != nil {
		return nil, err
	}
	return hub.Encode(msg)
}
