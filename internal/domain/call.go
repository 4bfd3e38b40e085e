package domain

import "time"

type CallStatus string

const (
	CallStatusPending   CallStatus = "pending"
	CallStatusDialing   CallStatus = "dialing"
	CallStatusRinging   CallStatus = "ringing"
	CallStatusConnected CallStatus = "connected"
	CallStatusEnded     CallStatus = "ended"
	CallStatusRejected  CallStatus = "rejected"
	CallStatusCancelled CallStatus = "cancelled"
	CallStatusFailed    CallStatus = "failed"
)

func (s CallStatus) IsTerminal() bool {
	switch s {
	case CallStatusEnded, CallStatusRejected, CallStatusCancelled, CallStatusFailed:
		return true
	}
	return false
}

func (s CallStatus) Valid() bool {
	switch s {
	case CallStatusPending, CallStatusDialing, CallStatusRinging, CallStatusConnected,
		CallStatusEnded, CallStatusRejected, CallStatusCancelled, CallStatusFailed:
		return true
	}
	return false
}

type Call struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	DeviceID     string     `json:"device_id"`
	PhoneNumber  string     `json:"phone_number"`
	CustomerID   string     `json:"customer_id,omitempty"`
	CustomerName string     `json:"customer_name,omitempty"`
	Source       string     `json:"source"`
	Status       CallStatus `json:"status"`
	Duration     int        `json:"duration"`
	Reason       string     `json:"reason,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
}

type DialRequest struct {
	DeviceID     string `json:"device_id" validate:"omitempty,max=64"`
	PhoneNumber  string `json:"phone_number" validate:"required,e164"`
	CustomerID   string `json:"customer_id" validate:"max=64"`
	CustomerName string `json:"customer_name" validate:"max=100"`
	Source       string `json:"source" validate:"omitempty,oneof=manual customer order campaign"`
}

// DialCommand is the payload of a dial frame pushed to a work phone.
type DialCommand struct {
	CallID       string `json:"callId"`
	PhoneNumber  string `json:"phoneNumber"`
	CustomerName string `json:"customerName,omitempty"`
	CustomerID   string `json:"customerId,omitempty"`
	Source       string `json:"source,omitempty"`
}

// CallUpdate is a status change reported by a work phone.
type CallUpdate struct {
	Status   CallStatus
	Duration int
	EndedAt  *time.Time
	Reason   string
}
