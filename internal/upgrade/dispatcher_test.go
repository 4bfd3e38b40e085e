package upgrade

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func named(name string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Handled-By", name)
	})
}

func upgradeRequest(path string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, path, nil)
	r.Header.Set("Connection", "Upgrade")
	r.Header.Set("Upgrade", "websocket")
	return r
}

func TestDispatcher_ServeHTTP(t *testing.T) {
	d := NewDispatcher(named("fallback"), zap.NewNop(),
		Route{Name: "device-gateway", Path: "/ws/device", Handler: named("gateway")},
		Route{Name: "shadow", Path: "/ws/device", Handler: named("shadow")},
	)

	tests := []struct {
		name string
		req  *http.Request
		want string
	}{
		{"reserved path upgrade", upgradeRequest("/ws/device"), "gateway"},
		{"reserved path with query", upgradeRequest("/ws/device?token=abc"), "gateway"},
		{"push path upgrade", upgradeRequest("/ws"), "fallback"},
		{"prefix is not a match", upgradeRequest("/ws/device/extra"), "fallback"},
		{"plain GET on reserved path", httptest.NewRequest(http.MethodGet, "/ws/device", nil), "fallback"},
		{"rest call", httptest.NewRequest(http.MethodPost, "/api/v1/calls", nil), "fallback"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			d.ServeHTTP(rec, tt.req)
			if got := rec.Header().Get("X-Handled-By"); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestDispatcher_Match(t *testing.T) {
	d := NewDispatcher(named("fallback"), zap.NewNop(),
		Route{Name: "device-gateway", Path: "/ws/device", Handler: named("gateway")},
	)

	rt, ok := d.Match(upgradeRequest("/ws/device"))
	if !ok || rt.Name != "device-gateway" {
		t.Errorf("expected device-gateway match, got %+v %v", rt, ok)
	}

	if _, ok := d.Match(upgradeRequest("/ws")); ok {
		t.Error("expected no match for push path")
	}
}
