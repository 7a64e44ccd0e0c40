package protocol

import "time"

func NewEventMessage(data EventData) (*Message, error) {
	return NewMessage(TypeEvent, data)
}

// NewStatusMessage wraps any JSON-encodable snapshot.
func NewStatusMessage(status any) (*Message, error) {
	return NewMessage(TypeStatus, status)
}

func NewFaultMessage(data FaultData) (*Message, error) {
	return NewMessage(TypeFault, data)
}

func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{ID: id, Sent: time.Now().UnixMilli()})
}

// NewPongMessage answers ping, received at now.
func NewPongMessage(ping PingData, now time.Time) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:       ping.ID,
		Sent:     ping.Sent,
		Received: now.UnixMilli(),
	})
}

// CommandID returns a pointer for EventData.ID.
func CommandID(id uint16) *uint16 {
	return &id
}

func decode[T any](m *Message) (*T, error) {
	v := new(T)
	if err := m.ParseData(v); err != nil {
		return nil, err
	}
	return v, nil
}

func (m *Message) GetEventData() (*EventData, error) { return decode[EventData](m) }
func (m *Message) GetFaultData() (*FaultData, error) { return decode[FaultData](m) }
func (m *Message) GetPingData() (*PingData, error) { return decode[PingData](m) }
func (m *Message) GetPongData() (*PongData, error) { return decode[PongData](m) }
