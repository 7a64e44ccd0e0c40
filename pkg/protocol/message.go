// Package protocol defines the frames of the Doly event stream. dolyd
// writes them and doly-monitor reads them.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Type names the payload carried by a Message.
type Type string

const (
	TypeEvent  Type = "event"  // listener callback, server to client
	TypeStatus Type = "status" // snapshot; a client may request one
	TypeFault  Type = "fault"  // delivery or sensor fault
	TypePing   Type = "ping"
	TypePong   Type = "pong"
)

// ErrNoType is returned by ParseMessage for frames without a type.
var ErrNoType = errors.New("protocol: message has no type")

// Message is one frame. Timestamp is Unix milliseconds.
type Message struct {
	Type      Type            `json:"type"`
	Timestamp int64           `json:"ts,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage stamps data with the current time.
func NewMessage(t Type, data any) (*Message, error) {
	msg := &Message{Type: t, Timestamp: time.Now().UnixMilli()}
	if data == nil {
		return msg, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", t, err)
	}
	msg.Data = raw
	return msg, nil
}

// ParseMessage decodes one frame.
func ParseMessage(data []byte) (*Message, error) {
	msg := new(Message)
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("protocol: decode frame: %w", err)
	}
	if msg.Type == "" {
		return nil, ErrNoType
	}
	return msg, nil
}

// Bytes encodes the frame. It lets a *Message be broadcast as is.
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// Time returns the frame timestamp.
func (m *Message) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// ParseData decodes the payload into v. A frame without payload leaves v
// untouched.
func (m *Message) ParseData(v any) error {
	if len(m.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("protocol: decode %s data: %w", m.Type, err)
	}
	return nil
}

// EventData is one listener callback. Name is the callback without its
// "On" prefix, e.g. "ArmComplete" or "GapDetect".
type EventData struct {
	Family string         `json:"family"`
	Name   string         `json:"name"`
	Side   string         `json:"side,omitempty"`
	ID     *uint16        `json:"id,omitempty"` // command events only
	Fields map[string]any `json:"fields,omitempty"`
}

// FaultData is a fault seen by the diagnostics sink.
type FaultData struct {
	Source   string `json:"source"` // "delivery" or "sensor"
	Family   string `json:"family"`
	Kind     string `json:"kind,omitempty"`
	Listener string `json:"listener,omitempty"`
	Error    string `json:"error"`
}

// PingData is sent by a client; the server echoes ID and Sent.
type PingData struct {
	ID   string `json:"id"`
	Sent int64  `json:"sent"`
}

// PongData answers a ping.
type PongData struct {
	ID       string `json:"id"`
	Sent     int64  `json:"sent"`
	Received int64  `json:"received"`
}

// Latency is the one-way delay from the client's clock to the server's.
func (p PongData) Latency() time.Duration {
	return time.Duration(p.Received-p.Sent) * time.Millisecond
}
