package hub

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // must be less than pongWait
	maxMessageSize = 64 * 1024
)

// ErrHubStopped is returned when a client connects after the hub stopped.
var ErrHubStopped = errors.New("hub: stopped")

// Conn is the part of a websocket connection a client uses. Both the
// gofiber and the gorilla *websocket.Conn satisfy it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// ReplyFunc answers one JSON request from a client. A nil frame sends
// nothing.
type ReplyFunc func(request []byte) Frame

// Client is one websocket connection registered with a hub.
type Client struct {
	id    string
	hub   *Hub
	conn  Conn
	send  chan Frame
	stop  chan struct{}
	reply ReplyFunc
}

// NewClient registers conn with h. reply may be nil for a write-only
// stream.
func NewClient(h *Hub, conn Conn, reply ReplyFunc) (*Client, error) {
	c := &Client{
		id:    uuid.NewString(),
		hub:   h,
		conn:  conn,
		send:  make(chan Frame, clientBuffer),
		stop:  make(chan struct{}),
		reply: reply,
	}
	if !h.join(c) {
		return nil, ErrHubStopped
	}
	return c, nil
}

// ID returns the client's unique id.
func (c *Client) ID() string {
	return c.id
}

// Send queues f for this client only. It reports false when the queue is
// full or the client is gone.
func (c *Client) Send(f Frame) (ok bool) {
	defer func() {
		// the hub closed send
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case c.send <- f:
		return true
	default:
		return false
	}
}

// Run serves the connection until it closes. Call it from the websocket
// handler: Run returns only after both goroutines are done with conn, so the
// handler may release it.
func (c *Client) Run() {
	written := make(chan struct{})
	go func() {
		defer close(written)
		c.write()
	}()
	c.read()
	<-written
}

// read answers requests and keeps the read deadline alive on pongs.
func (c *Client) read() {
	defer func() {
		c.hub.leave(c)
		close(c.stop)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.TextMessage || c.reply == nil || !json.Valid(data) {
			continue
		}
		if f := c.reply(data); f != nil {
			c.Send(f)
		}
	}
}

// write is the only goroutine writing to conn.
func (c *Client) write() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.stop:
			return
		case f, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, f); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
