package handler

import (
	"net/http"

	"workphone-gateway/internal/middleware"
	"workphone-gateway/pkg/response"
)

// GatewayStatus is the read side of the device gateway.
type GatewayStatus interface {
	OnlineDevicesForUser(userID string) []string
	OnlineDeviceCount() int
}

type GatewayHandler struct {
	status GatewayStatus
}

func NewGatewayHandler(status GatewayStatus) *GatewayHandler {
	return &GatewayHandler{status: status}
}

type onlineDevicesResponse struct {
	Devices []string `json:"devices"`
	Total   int      `json:"total"`
}

func (h *GatewayHandler) OnlineDevices(w http.ResponseWriter, r *http.Request) {
	response.Success(w, onlineDevicesResponse{
		Devices: h.status.OnlineDevicesForUser(middleware.GetUserID(r)),
		Total:   h.status.OnlineDeviceCount(),
	})
}
