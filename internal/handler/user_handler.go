package handler

import (
	"net/http"

	"workphone-gateway/internal/middleware"
	"workphone-gateway/internal/service"
	"workphone-gateway/pkg/response"

	"github.com/go-playground/validator/v10"
)

type UserHandler struct {
	userService *service.UserService
	validate    *validator.Validate
}

func NewUserHandler(userService *service.UserService) *UserHandler {
	return &UserHandler{
		userService: userService,
		validate:    validator.New(),
	}
}

func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	if userID == "" {
		response.Unauthorized(w, "Unauthorized")
		return
	}

	user, err := h.userService.GetByID(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err, "Failed to load user")
		return
	}

	response.Success(w, user)
}

type updateMeRequest struct {
	DisplayName string `json:"display_name" validate:"required,max=100"`
}

func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	if userID == "" {
		response.Unauthorized(w, "Unauthorized")
		return
	}

	var req updateMeRequest
	if !decodeRequest(w, r, h.validate, &req) {
		return
	}

	user, err := h.userService.UpdateDisplayName(r.Context(), userID, req.DisplayName)
	if err != nil {
		writeServiceError(w, err, "Failed to update user")
		return
	}

	response.Success(w, user)
}
