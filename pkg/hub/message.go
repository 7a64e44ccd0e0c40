// Package hub fans JSON frames out to websocket clients. One goroutine
// owns the client set; clients that fall behind are evicted.
package hub

import "encoding/json"

// Frame is one encoded text frame.
type Frame []byte

// Encoder is anything that renders itself as a frame, such as
// *protocol.Message.
type Encoder interface {
	Bytes() ([]byte, error)
}

// Encode renders v, preferring its own encoder over json.Marshal.
func Encode(v any) (Frame, error) {
	if e, ok := v.(Encoder); ok {
		return e.Bytes()
	}
	return json.Marshal(v)
}
