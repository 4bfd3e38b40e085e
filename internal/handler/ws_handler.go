package handler

import (
	"net/http"
	"time"

	"workphone-gateway/internal/middleware"
	"workphone-gateway/internal/push"
	"workphone-gateway/internal/service"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocketHandler accepts CRM browser connections for call and presence
// updates. Device connections never reach it; they are dispatched to the
// gateway before the router.
type WebSocketHandler struct {
	manager     *push.Manager
	authService *service.AuthService
	upgrader    ws.Upgrader
	log         *zap.Logger
}

func NewWebSocketHandler(manager *push.Manager, authService *service.AuthService, log *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		manager:     manager,
		authService: authService,
		log:         log,
		upgrader: ws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = middleware.BearerToken(r)
	}

	if token == "" {
		http.Error(w, "missing authorization token", http.StatusUnauthorized)
		return
	}

	claims, err := h.authService.ValidateToken(token)
	if err != nil {
		h.log.Debug("push token rejected", zap.Error(err))
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("push upgrade failed", zap.Error(err))
		return
	}

	client := push.NewClient(uuid.New().String(), claims.UserID, conn, h.manager)
	if !h.manager.Register(client) {
		conn.WriteControl(ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
