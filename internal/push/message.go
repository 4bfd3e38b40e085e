package push

import (
	"encoding/json"
	"time"

	"workphone-gateway/internal/domain"
)

type MessageType string

const (
	TypeCallUpdate     MessageType = "call_update"
	TypeDevicePresence MessageType = "device_presence"
	TypePing           MessageType = "ping"
	TypePong           MessageType = "pong"
)

type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type CallUpdatePayload struct {
	Call *domain.Call `json:"call"`
}

type DevicePresencePayload struct {
	DeviceID string `json:"device_id"`
	Name     string `json:"name,omitempty"`
	Online   bool   `json:"online"`
}

func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	var payloadBytes json.RawMessage
	if payload != nil {
		bytes, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		payloadBytes = bytes
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Payload:   payloadBytes,
	}, nil
}

func (m *Message) UnmarshalPayload(v interface{}) error {
	if m.Payload == nil {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}
