package handler

import (
	"context"
	"errors"
	"net/http"

	"workphone-gateway/internal/domain"
	"workphone-gateway/internal/service"
	"workphone-gateway/pkg/response"

	"github.com/go-playground/validator/v10"
)

// Authenticator is the operator sign-in surface of the CRM. Work phones do
// not log in here; they get device tokens when an operator binds them.
type Authenticator interface {
	Register(ctx context.Context, req *domain.RegisterRequest) error
	Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error)
	RefreshToken(req *domain.RefreshTokenRequest) (*domain.TokenResponse, error)
}

type AuthHandler struct {
	auth     Authenticator
	validate *validator.Validate
}

func NewAuthHandler(auth Authenticator) *AuthHandler {
	return &AuthHandler{
		auth:     auth,
		validate: validator.New(),
	}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if !decodeRequest(w, r, h.validate, &req) {
		return
	}

	if err := h.auth.Register(r.Context(), &req); err != nil {
		writeServiceError(w, err, "Failed to register operator")
		return
	}

	response.Created(w, map[string]string{
		"message": "Operator registered. Log in to bind a work phone.",
	})
}

// Login returns the operator's tokens and the work phones bound to them with
// their online state.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if !decodeRequest(w, r, h.validate, &req) {
		return
	}

	resp, err := h.auth.Login(r.Context(), &req)
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		response.ErrorCode(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password")
	case err != nil:
		response.InternalError(w, "Failed to log in")
	default:
		response.Success(w, resp)
	}
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req domain.RefreshTokenRequest
	if !decodeRequest(w, r, h.validate, &req) {
		return
	}

	resp, err := h.auth.RefreshToken(&req)
	switch {
	case errors.Is(err, service.ErrInvalidToken):
		response.ErrorCode(w, http.StatusUnauthorized, "invalid_refresh_token", "Invalid or expired refresh token")
	case err != nil:
		response.InternalError(w, "Failed to refresh token")
	default:
		response.Success(w, resp)
	}
}
