package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"workphone-gateway/internal/domain"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type FrameType string

// Outbound frame types.
const (
	TypeConnected    FrameType = "connected"
	TypeHeartbeatAck FrameType = "heartbeat_ack"
	TypeDial         FrameType = "dial"
	TypeDialCancel   FrameType = "dial_cancel"
	TypeDeviceUnbind FrameType = "device_unbind"
)

// Inbound frame types.
const (
	TypeHeartbeat    FrameType = "heartbeat"
	TypePing         FrameType = "ping"
	TypeDeviceOnline FrameType = "device_online"
	TypeCallStatus   FrameType = "call_status"
	TypeCallEnded    FrameType = "call_ended"
	TypeDialRejected FrameType = "dial_rejected"
)

// Application close codes sent to work phones.
const (
	CloseMissingCredential = 4001
	CloseInvalidCredential = 4002
	CloseDeviceNotBound    = 4003
	CloseSuperseded        = 4004
	CloseHeartbeatTimeout  = 4005
	CloseUnbound           = 4006
	CloseServerShutdown    = websocket.CloseGoingAway
)

var ErrMalformedFrame = errors.New("malformed frame")

// Frame is one JSON message on the device channel.
type Frame struct {
	Type      FrameType       `json:"type"`
	MessageID string          `json:"messageId,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

func NewFrame(frameType FrameType, data interface{}) (*Frame, error) {
	f := &Frame{Type: frameType}
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s data: %w", frameType, err)
		}
		f.Data = b
	}
	return f, nil
}

// encode stamps the emission time and fills a message id when the caller
// left it empty. The caller's frame is not modified.
func (f *Frame) encode(now time.Time) ([]byte, error) {
	out := *f
	out.Timestamp = now.UnixMilli()
	if out.MessageID == "" {
		out.MessageID = uuid.NewString()
	}
	return json.Marshal(&out)
}

func (f *Frame) UnmarshalData(v interface{}) error {
	if len(f.Data) == 0 {
		return nil
	}
	return json.Unmarshal(f.Data, v)
}

type ConnectedData struct {
	DeviceID           string `json:"deviceId"`
	UserID             string `json:"userId"`
	HeartbeatTimeoutMs int64  `json:"heartbeatTimeoutMs"`
}

type HeartbeatAckData struct {
	MessageID string `json:"messageId,omitempty"`
}

type DialCancelData struct {
	CallID string `json:"callId"`
}

type DeviceUnbindData struct {
	DeviceID string `json:"deviceId"`
	Reason   string `json:"reason"`
}

// Inbound is the decoded form of a frame sent by a work phone. The concrete
// types below are the only implementations.
type Inbound interface {
	frameType() FrameType
}

type Heartbeat struct {
	MessageID string
}

type DeviceOnline struct {
	AppVersion string `json:"appVersion"`
	Battery    int    `json:"battery"`
}

type CallStatusReport struct {
	CallID string            `json:"callId"`
	Status domain.CallStatus `json:"status"`
}

type CallEnded struct {
	CallID   string            `json:"callId"`
	Duration int               `json:"duration"`
	Status   domain.CallStatus `json:"status"`
}

type DialRejected struct {
	CallID string `json:"callId"`
	Reason string `json:"reason"`
}

// Unrecognized carries a type this gateway does not know.
type Unrecognized struct {
	Type FrameType
}

func (Heartbeat) frameType() FrameType        { return TypeHeartbeat }
func (DeviceOnline) frameType() FrameType     { return TypeDeviceOnline }
func (CallStatusReport) frameType() FrameType { return TypeCallStatus }
func (CallEnded) frameType() FrameType        { return TypeCallEnded }
func (DialRejected) frameType() FrameType     { return TypeDialRejected }
func (u Unrecognized) frameType() FrameType   { return u.Type }

func decodeInbound(raw []byte) (Inbound, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if f.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}

	var (
		in  Inbound
		err error
	)
	switch f.Type {
	case TypeHeartbeat, TypePing:
		in = Heartbeat{MessageID: f.MessageID}
	case TypeDeviceOnline:
		var d DeviceOnline
		err = f.UnmarshalData(&d)
		in = d
	case TypeCallStatus:
		var d CallStatusReport
		err = f.UnmarshalData(&d)
		in = d
	case TypeCallEnded:
		var d CallEnded
		err = f.UnmarshalData(&d)
		in = d
	case TypeDialRejected:
		var d DialRejected
		err = f.UnmarshalData(&d)
		in = d
	default:
		in = Unrecognized{Type: f.Type}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s data: %v", ErrMalformedFrame, f.Type, err)
	}
	return in, nil
}
