package push

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"workphone-gateway/internal/domain"
	"workphone-gateway/internal/gateway"

	"go.uber.org/zap"
)

type ClientMessage struct {
	Client  *Client
	Message []byte
}

// Manager keeps the browser connections of CRM users and pushes call and
// device presence updates to them.
type Manager struct {
	clients        map[string]*Client
	userIndex      map[string]map[string]bool
	clientsMutex   sync.RWMutex
	register       chan *Client
	unregister     chan *Client
	incoming       chan *ClientMessage
	stopped        chan struct{}
	maxConnPerUser int
	maxMessageSize int64
	writeWait      time.Duration
	pongWait       time.Duration
	pingPeriod     time.Duration
	log            *zap.Logger
}

type Options struct {
	MaxConnPerUser int
	MaxMessageSize int64
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
}

func NewManager(opts Options, log *zap.Logger) *Manager {
	return &Manager{
		clients:        make(map[string]*Client),
		userIndex:      make(map[string]map[string]bool),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		incoming:       make(chan *ClientMessage),
		stopped:        make(chan struct{}),
		maxConnPerUser: opts.MaxConnPerUser,
		maxMessageSize: opts.MaxMessageSize,
		writeWait:      opts.WriteWait,
		pongWait:       opts.PongWait,
		pingPeriod:     opts.PingPeriod,
		log:            log,
	}
}

func (m *Manager) Run(ctx context.Context) {
	defer func() {
		close(m.stopped)
		m.closeAll()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-m.register:
			m.addClient(client)

		case client := <-m.unregister:
			m.removeClient(client)

		case clientMsg := <-m.incoming:
			m.processMessage(clientMsg)
		}
	}
}

// Register hands a new connection to the Run loop. It reports false when
// the manager has stopped.
func (m *Manager) Register(client *Client) bool {
	select {
	case m.register <- client:
		return true
	case <-m.stopped:
		return false
	}
}

func (m *Manager) unregisterClient(client *Client) {
	select {
	case m.unregister <- client:
	case <-m.stopped:
	}
}

func (m *Manager) handleMessage(msg *ClientMessage) {
	select {
	case m.incoming <- msg:
	case <-m.stopped:
	}
}

func (m *Manager) addClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if m.userIndex[client.UserID] == nil {
		m.userIndex[client.UserID] = make(map[string]bool)
	}

	if m.maxConnPerUser > 0 && len(m.userIndex[client.UserID]) >= m.maxConnPerUser {
		m.log.Warn("max push connections reached", zap.String("user_id", client.UserID))
		if len(m.userIndex[client.UserID]) == 0 {
			delete(m.userIndex, client.UserID)
		}
		close(client.Send)
		return
	}

	m.clients[client.ID] = client
	m.userIndex[client.UserID][client.ID] = true

	m.log.Debug("push client registered",
		zap.String("client_id", client.ID),
		zap.String("user_id", client.UserID))
}

func (m *Manager) removeClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if _, ok := m.clients[client.ID]; ok {
		delete(m.clients, client.ID)
		delete(m.userIndex[client.UserID], client.ID)

		if len(m.userIndex[client.UserID]) == 0 {
			delete(m.userIndex, client.UserID)
		}

		close(client.Send)
		m.log.Debug("push client unregistered", zap.String("client_id", client.ID))
	}
}

func (m *Manager) closeAll() {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	for id, client := range m.clients {
		close(client.Send)
		delete(m.clients, id)
	}
	m.userIndex = make(map[string]map[string]bool)
}

func (m *Manager) processMessage(clientMsg *ClientMessage) {
	var msg Message
	if err := json.Unmarshal(clientMsg.Message, &msg); err != nil {
		m.log.Debug("dropping malformed push message",
			zap.String("client_id", clientMsg.Client.ID),
			zap.Error(err))
		return
	}

	switch msg.Type {
	case TypePing:
		pong, _ := NewMessage(TypePong, nil)
		m.SendToClient(clientMsg.Client.ID, pong)
	default:
		m.log.Debug("unknown push message type", zap.String("type", string(msg.Type)))
	}
}

// BroadcastToUser queues message on every connection of userID and returns
// the number of connections that accepted it.
func (m *Manager) BroadcastToUser(userID string, message *Message) (int, error) {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return 0, err
	}

	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	sent := 0
	for clientID := range m.userIndex[userID] {
		client := m.clients[clientID]
		select {
		case client.Send <- messageBytes:
			sent++
		default:
			m.log.Warn("push send buffer full, closing connection", zap.String("client_id", clientID))
			go m.unregisterClient(client)
		}
	}

	return sent, nil
}

func (m *Manager) SendToClient(clientID string, message *Message) error {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	client, exists := m.clients[clientID]
	if !exists {
		return nil
	}

	select {
	case client.Send <- messageBytes:
	default:
		m.log.Warn("push send buffer full", zap.String("client_id", clientID))
	}

	return nil
}

func (m *Manager) GetUserConnections(userID string) int {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	return len(m.userIndex[userID])
}

// NotifyCallUpdate pushes the current state of call to its owner.
func (m *Manager) NotifyCallUpdate(call *domain.Call) {
	msg, err := NewMessage(TypeCallUpdate, &CallUpdatePayload{Call: call})
	if err != nil {
		m.log.Error("failed to build call update", zap.Error(err))
		return
	}
	if _, err := m.BroadcastToUser(call.UserID, msg); err != nil {
		m.log.Error("failed to push call update", zap.String("call_id", call.ID), zap.Error(err))
	}
}

func (m *Manager) DeviceOnline(_ context.Context, info gateway.SessionInfo) {
	m.notifyPresence(info, true)
}

func (m *Manager) DeviceOffline(_ context.Context, info gateway.SessionInfo) {
	m.notifyPresence(info, false)
}

func (m *Manager) notifyPresence(info gateway.SessionInfo, online bool) {
	msg, err := NewMessage(TypeDevicePresence, &DevicePresencePayload{
		DeviceID: info.DeviceID,
		Name:     info.DisplayName,
		Online:   online,
	})
	if err != nil {
		return
	}
	m.BroadcastToUser(info.UserID, msg)
}
