package domain

import "time"

// Device is the persisted binding between a work phone and the user it acts
// for. Only an active binding admits the phone into the gateway.
type Device struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Name       string     `json:"name"`
	Model      string     `json:"model"`
	OS         string     `json:"os"`
	AppVersion string     `json:"app_version"`
	IsActive   bool       `json:"is_active"`
	BoundAt    time.Time  `json:"bound_at"`
	UnboundAt  *time.Time `json:"unbound_at,omitempty"`
	LastActive time.Time  `json:"last_active"`
	CreatedAt  time.Time  `json:"created_at"`
}

type BindDeviceRequest struct {
	DeviceID   string `json:"device_id" validate:"required,min=4,max=64"`
	Name       string `json:"name" validate:"required,max=100"`
	Model      string `json:"model" validate:"max=100"`
	OS         string `json:"os" validate:"required"`
	AppVersion string `json:"app_version" validate:"required"`
}

type BindDeviceResponse struct {
	Device      *DeviceResponse `json:"device"`
	DeviceToken string          `json:"device_token"`
	ExpiresIn   int64           `json:"expires_in"`
}

type DeviceResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Model      string    `json:"model"`
	OS         string    `json:"os"`
	LastActive time.Time `json:"last_active"`
	IsActive   bool      `json:"is_active"`
	Online     bool      `json:"online"`
}

// DeviceBinding is what the gateway needs to admit a session.
type DeviceBinding struct {
	Active      bool
	DisplayName string
}
