package gateway

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type SessionState int32

const closeWait = time.Second

const (
	StateConnecting SessionState = iota
	StateAuthenticated
	StateActive
	StateClosing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Identity is the resolved owner of a device connection.
type Identity struct {
	DeviceID    string
	UserID      string
	DisplayName string
}

// SessionInfo is a read-only view of a session handed to presence listeners.
type SessionInfo struct {
	DeviceID    string
	UserID      string
	DisplayName string
	ConnectedAt time.Time
}

// Session is one live work-phone connection. The send queue drained by
// writePump is the only path that writes data frames to the connection.
type Session struct {
	DeviceID    string
	UserID      string
	DisplayName string
	ConnectedAt time.Time

	conn *websocket.Conn
	hub  *Hub
	send   chan []byte
	done   chan struct{}
	closed chan struct{}

	// greeting is queued ahead of any other frame when the session is
	// installed.
	greeting []byte

	lastHeartbeat atomic.Int64
	state         atomic.Int32
	closeCode     atomic.Int32

	closingOnce sync.Once
	closeOnce   sync.Once
}

func newSession(conn *websocket.Conn, hub *Hub, id *Identity, now time.Time) *Session {
	s := &Session{
		DeviceID:    id.DeviceID,
		UserID:      id.UserID,
		DisplayName: id.DisplayName,
		ConnectedAt: now,
		conn:        conn,
		hub:         hub,
		send:        make(chan []byte, hub.opts.SendBufferSize),
		done:        make(chan struct{}),
		closed:      make(chan struct{}),
	}
	s.lastHeartbeat.Store(now.UnixNano())
	s.state.Store(int32(StateAuthenticated))
	return s
}

func (s *Session) Info() SessionInfo {
	return SessionInfo{
		DeviceID:    s.DeviceID,
		UserID:      s.UserID,
		DisplayName: s.DisplayName,
		ConnectedAt: s.ConnectedAt,
	}
}

func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *Session) IsOpen() bool {
	return s.State() == StateActive
}

// CloseCode is the code the session was closed with, zero while open.
func (s *Session) CloseCode() int {
	return int(s.closeCode.Load())
}

func (s *Session) LastHeartbeat() time.Time {
	return time.Unix(0, s.lastHeartbeat.Load())
}

// touch never moves lastHeartbeat backwards.
func (s *Session) touch(now time.Time) {
	n := now.UnixNano()
	for {
		cur := s.lastHeartbeat.Load()
		if n <= cur || s.lastHeartbeat.CompareAndSwap(cur, n) {
			return
		}
	}
}

func (s *Session) activate() {
	if s.greeting != nil {
		s.send <- s.greeting
		s.greeting = nil
	}
	s.state.CompareAndSwap(int32(StateAuthenticated), int32(StateActive))
}

func (s *Session) enqueue(msg []byte) bool {
	if !s.IsOpen() {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- msg:
		return true
	case <-s.done:
		return false
	default:
		s.hub.log.Warn("device send buffer full, dropping frame",
			zap.String("device_id", s.DeviceID))
		return false
	}
}

// markClosing stops the session from accepting frames. The first caller's
// code wins.
func (s *Session) markClosing(code int) {
	s.closingOnce.Do(func() {
		s.closeCode.Store(int32(code))
		s.state.Store(int32(StateClosing))
		close(s.done)
	})
}

// Close stops the session and drops its transport. Only the state change
// happens on the caller's goroutine: the close frame and conn.Close run in
// teardown, so a peer that stopped reading never blocks the caller. Safe to
// call from any goroutine and more than once.
func (s *Session) Close(code int, reason string) {
	s.markClosing(code)
	s.closeOnce.Do(func() {
		if s.conn == nil {
			s.state.Store(int32(StateClosed))
			close(s.closed)
			return
		}
		go s.teardown(reason)
	})
}

// teardown gives the close frame at most closeWait to get past a writer
// stuck on a slow peer, then closes the connection, which also unblocks
// that writer.
func (s *Session) teardown(reason string) {
	defer close(s.closed)

	wait := s.hub.opts.WriteWait
	if wait > closeWait {
		wait = closeWait
	}
	msg := websocket.FormatCloseMessage(s.CloseCode(), reason)
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wait))
	_ = s.conn.Close()
	s.state.Store(int32(StateClosed))
}

// Closed is closed once the transport has been torn down.
func (s *Session) Closed() <-chan struct{} {
	return s.closed
}

func (s *Session) readPump() {
	defer func() {
		s.Close(websocket.CloseNormalClosure, "")
		s.hub.Unregister(s)
	}()

	s.conn.SetReadLimit(s.hub.opts.MaxMessageSize)

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && s.IsOpen() {
				s.hub.log.Info("device connection lost",
					zap.String("device_id", s.DeviceID),
					zap.Error(err))
			}
			return
		}
		if !s.IsOpen() {
			return
		}
		s.hub.route(s, message)
	}
}

func (s *Session) writePump() {
	for {
		select {
		case <-s.done:
			return
		case message := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(s.hub.opts.WriteWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.hub.log.Debug("device write failed",
					zap.String("device_id", s.DeviceID),
					zap.Error(err))
				s.hub.Evict(s, websocket.CloseInternalServerErr, "write failed")
				return
			}
		}
	}
}
