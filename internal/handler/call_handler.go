package handler

import (
	"net/http"

	"workphone-gateway/internal/domain"
	"workphone-gateway/internal/middleware"
	"workphone-gateway/internal/service"
	"workphone-gateway/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

type CallHandler struct {
	service  *service.CallService
	validate *validator.Validate
}

func NewCallHandler(service *service.CallService) *CallHandler {
	return &CallHandler{
		service:  service,
		validate: validator.New(),
	}
}

func (h *CallHandler) Dial(w http.ResponseWriter, r *http.Request) {
	var req domain.DialRequest
	if !decodeRequest(w, r, h.validate, &req) {
		return
	}

	call, err := h.service.Dial(r.Context(), middleware.GetUserID(r), &req)
	if err != nil {
		writeServiceError(w, err, "Failed to dispatch call")
		return
	}

	response.Created(w, call)
}

func (h *CallHandler) Get(w http.ResponseWriter, r *http.Request) {
	call, err := h.service.Get(r.Context(), middleware.GetUserID(r), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err, "Failed to load call")
		return
	}

	response.Success(w, call)
}

func (h *CallHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	call, err := h.service.Cancel(r.Context(), middleware.GetUserID(r), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err, "Failed to cancel call")
		return
	}

	response.Success(w, call)
}
