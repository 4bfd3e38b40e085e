package service

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrDeviceOffline      = errors.New("no online device for this call")
	ErrDeviceInactive     = errors.New("device is not bound")
	ErrCallFinished       = errors.New("call already finished")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrAlreadyExists      = errors.New("already exists")
)
