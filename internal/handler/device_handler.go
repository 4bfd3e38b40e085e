package handler

import (
	"errors"
	"net/http"

	"workphone-gateway/internal/domain"
	"workphone-gateway/internal/middleware"
	"workphone-gateway/internal/service"
	"workphone-gateway/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

type DeviceHandler struct {
	service  *service.DeviceService
	validate *validator.Validate
}

func NewDeviceHandler(service *service.DeviceService) *DeviceHandler {
	return &DeviceHandler{
		service:  service,
		validate: validator.New(),
	}
}

func (h *DeviceHandler) Bind(w http.ResponseWriter, r *http.Request) {
	var req domain.BindDeviceRequest
	if !decodeRequest(w, r, h.validate, &req) {
		return
	}

	userID := middleware.GetUserID(r)

	resp, err := h.service.Bind(r.Context(), userID, &req)
	if err != nil {
		if errors.Is(err, service.ErrAlreadyExists) {
			response.Conflict(w, "already_exists", "Device is bound to another user")
			return
		}
		response.InternalError(w, "Failed to bind device")
		return
	}

	response.Created(w, resp)
}

func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)

	devices, err := h.service.List(r.Context(), userID)
	if err != nil {
		response.InternalError(w, "Failed to list devices")
		return
	}

	response.Success(w, devices)
}

func (h *DeviceHandler) Unbind(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["id"]
	if deviceID == "" {
		response.BadRequest(w, "Device ID is required")
		return
	}

	userID := middleware.GetUserID(r)

	if err := h.service.Unbind(r.Context(), userID, deviceID); err != nil {
		writeServiceError(w, err, "Failed to unbind device")
		return
	}

	response.Success(w, map[string]string{"message": "Device unbound successfully"})
}
