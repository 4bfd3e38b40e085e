package gateway

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handler upgrades work-phone connections, authenticates them and hands
// them to the hub.
type Handler struct {
	hub         *Hub
	auth        *Authenticator
	authTimeout time.Duration
	upgrader    websocket.Upgrader
}

func NewHandler(hub *Hub, auth *Authenticator, authTimeout time.Duration) *Handler {
	if authTimeout <= 0 {
		authTimeout = 10 * time.Second
	}
	return &Handler{
		hub:         hub,
		auth:        auth,
		authTimeout: authTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Work phones are native clients and send no Origin header.
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func tokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := h.hub.log
	token := tokenFromRequest(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("device upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.authTimeout)
	identity, err := h.auth.Authenticate(ctx, token)
	cancel()
	if err != nil {
		code := CloseCodeFor(err)
		reason := authFailureReason(err)
		h.hub.metrics.AuthFailures.WithLabelValues(reason).Inc()
		log.Info("device authentication rejected",
			zap.String("remote_addr", r.RemoteAddr),
			zap.String("reason", reason),
			zap.Int("close_code", code),
			zap.Error(err))
		reject(conn, code, reason, h.hub.opts.WriteWait)
		return
	}

	s := newSession(conn, h.hub, identity, h.hub.now())
	ack, _ := NewFrame(TypeConnected, &ConnectedData{
		DeviceID:           s.DeviceID,
		UserID:             s.UserID,
		HeartbeatTimeoutMs: h.hub.opts.HeartbeatTimeout.Milliseconds(),
	})
	if s.greeting, err = ack.encode(h.hub.now()); err != nil {
		log.Error("failed to encode connected frame", zap.Error(err))
		reject(conn, websocket.CloseInternalServerErr, "internal error", h.hub.opts.WriteWait)
		return
	}

	if !h.hub.Register(s) {
		s.Close(CloseServerShutdown, "server shutting down")
		return
	}

	go s.writePump()
	go s.readPump()
}

func reject(conn *websocket.Conn, code int, reason string, writeWait time.Duration) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = conn.Close()
}
