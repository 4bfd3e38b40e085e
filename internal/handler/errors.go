package handler

import (
	"errors"
	"net/http"

	"workphone-gateway/internal/service"
	"workphone-gateway/pkg/response"
)

func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		response.NotFound(w, err.Error())
	case errors.Is(err, service.ErrForbidden):
		response.Forbidden(w, err.Error())
	case errors.Is(err, service.ErrDeviceOffline):
		response.Conflict(w, "device_offline", err.Error())
	case errors.Is(err, service.ErrDeviceInactive):
		response.Conflict(w, "device_inactive", err.Error())
	case errors.Is(err, service.ErrCallFinished):
		response.Conflict(w, "call_finished", err.Error())
	case errors.Is(err, service.ErrAlreadyExists):
		response.Conflict(w, "already_exists", err.Error())
	default:
		response.InternalError(w, fallback)
	}
}
