package hub

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

const (
	// broadcastBuffer is how many frames may wait for the run loop.
	broadcastBuffer = 256

	// clientBuffer is how many frames may wait for one client's writer.
	clientBuffer = 256
)

// Hub tracks connected clients and copies every broadcast to each.
type Hub struct {
	name   string
	logger *slog.Logger

	broadcast  chan Frame
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	// clients is written by Run only; mu lets ClientCount read it.
	mu      sync.RWMutex
	clients map[*Client]struct{}

	running atomic.Bool
	dropped atomic.Uint64
	evicted atomic.Uint64
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// New creates a hub. It does nothing until Run is called.
func New(name string, opts ...Option) *Hub {
	h := &Hub{
		name:       name,
		logger:     slog.Default(),
		broadcast:  make(chan Frame, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "hub", "hub", name)
	return h
}

// Run owns the client set until ctx is done, then disconnects every
// client. A hub runs once.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer h.stop()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client connected", "client", c.id, "clients", n)
		case c := <-h.unregister:
			h.mu.Lock()
			h.drop(c)
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", "client", c.id, "clients", n)
		case f := <-h.broadcast:
			h.fanOut(f)
		}
	}
}

func (h *Hub) fanOut(f Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- f:
		default:
			h.drop(c)
			h.evicted.Add(1)
			h.logger.Warn("evicted slow client", "client", c.id)
		}
	}
}

// drop forgets c and closes its queue, ending its writer. Callers hold mu.
func (h *Hub) drop(c *Client) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) stop() {
	h.running.Store(false)
	h.mu.Lock()
	for c := range h.clients {
		h.drop(c)
	}
	h.mu.Unlock()
	close(h.done)
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Broadcast queues f for every client. It never blocks; a full queue
// drops f.
func (h *Hub) Broadcast(f Frame) {
	select {
	case h.broadcast <- f:
	default:
		h.dropped.Add(1)
		h.logger.Warn("broadcast queue full, frame dropped")
	}
}

// BroadcastJSON encodes v and broadcasts it.
func (h *Hub) BroadcastJSON(v any) error {
	f, err := Encode(v)
	if err != nil {
		return err
	}
	h.Broadcast(f)
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped counts broadcasts lost to a full queue.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Evicted counts clients disconnected for falling behind.
func (h *Hub) Evicted() uint64 { return h.evicted.Load() }

// IsRunning reports whether Run is active.
func (h *Hub) IsRunning() bool { return h.running.Load() }

// join registers c, failing once the hub has stopped.
func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// leave unregisters c. A stopped hub has already released it.
func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
