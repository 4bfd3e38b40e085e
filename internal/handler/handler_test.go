package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"workphone-gateway/internal/domain"
	"workphone-gateway/internal/middleware"
	"workphone-gateway/internal/service"
	"workphone-gateway/pkg/response"
)

type fakeStatus struct {
	devices map[string][]string
	total   int
}

func (f fakeStatus) OnlineDevicesForUser(userID string) []string { return f.devices[userID] }
func (f fakeStatus) OnlineDeviceCount() int                      { return f.total }

func withUser(r *http.Request, userID string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), middleware.UserIDKey, userID))
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var body response.Response
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	return body
}

func TestGatewayHandler_OnlineDevices(t *testing.T) {
	h := NewGatewayHandler(fakeStatus{
		devices: map[string][]string{"u1": {"d1", "d2"}},
		total:   5,
	})

	rec := httptest.NewRecorder()
	h.OnlineDevices(rec, withUser(httptest.NewRequest(http.MethodGet, "/api/v1/gateway/devices", nil), "u1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	body := decode(t, rec)
	data, _ := json.Marshal(body.Data)
	var got onlineDevicesResponse
	json.Unmarshal(data, &got)
	if len(got.Devices) != 2 || got.Total != 5 {
		t.Errorf("unexpected payload %+v", got)
	}
}

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{service.ErrNotFound, http.StatusNotFound, ""},
		{service.ErrForbidden, http.StatusForbidden, ""},
		{service.ErrDeviceOffline, http.StatusConflict, "device_offline"},
		{fmt.Errorf("wrapped: %w", service.ErrDeviceInactive), http.StatusConflict, "device_inactive"},
		{service.ErrCallFinished, http.StatusConflict, "call_finished"},
		{errors.New("couch down"), http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, tt.err, "fallback")

			if rec.Code != tt.status {
				t.Errorf("expected %d, got %d", tt.status, rec.Code)
			}
			body := decode(t, rec)
			if body.Success {
				t.Error("error responses must not report success")
			}
			if body.Code != tt.code {
				t.Errorf("expected code %q, got %q", tt.code, body.Code)
			}
		})
	}
}

func TestCallHandler_DialValidation(t *testing.T) {
	h := NewCallHandler(nil)

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"missing number", `{"customer_name":"Bruno"}`},
		{"number not e164", `{"phone_number":"11 98888-7777"}`},
		{"unknown source", `{"phone_number":"+5511988887777","source":"fax"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/calls", strings.NewReader(tt.body)), "u1")
			rec := httptest.NewRecorder()
			h.Dial(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestDeviceHandler_BindValidation(t *testing.T) {
	h := NewDeviceHandler(nil)

	req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/devices/bind", strings.NewReader(`{"device_id":"ab"}`)), "u1")
	rec := httptest.NewRecorder()
	h.Bind(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

type fakeAuth struct {
	login      *domain.LoginResponse
	err        error
	refreshErr error
}

func (f fakeAuth) Register(context.Context, *domain.RegisterRequest) error { return f.err }

func (f fakeAuth) Login(context.Context, *domain.LoginRequest) (*domain.LoginResponse, error) {
	return f.login, f.err
}

func (f fakeAuth) RefreshToken(*domain.RefreshTokenRequest) (*domain.TokenResponse, error) {
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return &domain.TokenResponse{AccessToken: "new-access"}, nil
}

func TestAuthHandler_Login(t *testing.T) {
	login := &domain.LoginResponse{
		AccessToken:   "access",
		Devices:       []*domain.DeviceResponse{{ID: "phone-1", Online: true}},
		OnlineDevices: 1,
	}

	tests := []struct {
		name   string
		body   string
		auth   fakeAuth
		status int
		code   string
	}{
		{"success", `{"email":"ana@example.com","password":"secret-pass"}`, fakeAuth{login: login}, http.StatusOK, ""},
		{"bad credentials", `{"email":"ana@example.com","password":"nope"}`, fakeAuth{err: service.ErrInvalidCredentials}, http.StatusUnauthorized, "invalid_credentials"},
		{"store failure", `{"email":"ana@example.com","password":"secret-pass"}`, fakeAuth{err: errors.New("couch down")}, http.StatusInternalServerError, ""},
		{"not json", `{`, fakeAuth{}, http.StatusBadRequest, "invalid_body"},
		{"missing email", `{"password":"secret-pass"}`, fakeAuth{}, http.StatusBadRequest, "validation_failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewAuthHandler(tt.auth).Login(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(tt.body)))

			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rec.Code)
			}
			body := decode(t, rec)
			if body.Code != tt.code {
				t.Errorf("expected code %q, got %q", tt.code, body.Code)
			}
			if tt.status != http.StatusOK {
				return
			}

			data, _ := json.Marshal(body.Data)
			var got domain.LoginResponse
			json.Unmarshal(data, &got)
			if len(got.Devices) != 1 || got.Devices[0].ID != "phone-1" || got.OnlineDevices != 1 {
				t.Errorf("expected bound devices in login response, got %+v", got)
			}
		})
	}
}

func TestAuthHandler_RegisterConflictAndRefresh(t *testing.T) {
	rec := httptest.NewRecorder()
	NewAuthHandler(fakeAuth{err: fmt.Errorf("email: %w", service.ErrAlreadyExists)}).Register(rec,
		httptest.NewRequest(http.MethodPost, "/api/v1/auth/register",
			strings.NewReader(`{"username":"ana","email":"ana@example.com","password":"secret-pass"}`)))
	if rec.Code != http.StatusConflict || decode(t, rec).Code != "already_exists" {
		t.Errorf("expected 409 already_exists, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	NewAuthHandler(fakeAuth{refreshErr: fmt.Errorf("refresh: %w", service.ErrInvalidToken)}).Refresh(rec,
		httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", strings.NewReader(`{"refresh_token":"stale"}`)))
	if rec.Code != http.StatusUnauthorized || decode(t, rec).Code != "invalid_refresh_token" {
		t.Errorf("expected 401 invalid_refresh_token, got %d", rec.Code)
	}
}
