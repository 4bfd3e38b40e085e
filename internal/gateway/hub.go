package gateway

import (
	"context"
	"time"

	"workphone-gateway/internal/domain"

	"go.uber.org/zap"
)

// CallRecorder applies status reported by deviceID to the call record.
type CallRecorder interface {
	RecordCallUpdate(ctx context.Context, deviceID, callID string, update domain.CallUpdate) error
}

// PresenceListener is told when a device joins or leaves the registry. A
// supersede does not produce an offline event since the device stays online.
type PresenceListener interface {
	DeviceOnline(ctx context.Context, info SessionInfo)
	DeviceOffline(ctx context.Context, info SessionInfo)
}

type Options struct {
	HeartbeatTimeout time.Duration
	SweepInterval    time.Duration
	UnbindGrace      time.Duration
	WriteWait        time.Duration
	RecordTimeout    time.Duration
	MaxMessageSize   int64
	SendBufferSize   int
	Clock            func() time.Time
}

func (o *Options) norm() {
	if o.HeartbeatTimeout <= 0 {
		o.HeartbeatTimeout = 90 * time.Second
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = 30 * time.Second
	}
	if o.UnbindGrace <= 0 {
		o.UnbindGrace = 2 * time.Second
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.RecordTimeout <= 0 {
		o.RecordTimeout = 10 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 65536
	}
	if o.SendBufferSize <= 0 {
		o.SendBufferSize = 64
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
}

type registration struct {
	session *Session
	done    chan struct{}
}

type eviction struct {
	session *Session
	code    int
	reason  string
}

type presenceEvent struct {
	online bool
	info   SessionInfo
}

// Hub owns the device registry. Register, unregister, eviction and the
// liveness sweep all run on the Run goroutine; push API callers only read.
type Hub struct {
	registry  *Registry
	opts      Options
	log       *zap.Logger
	metrics   *Metrics
	calls     CallRecorder
	listeners []PresenceListener

	register   chan *registration
	unregister chan *Session
	evict      chan eviction
	presence   chan presenceEvent
	stopped    chan struct{}
}

func NewHub(opts Options, metrics *Metrics, log *zap.Logger) *Hub {
	opts.norm()
	return &Hub{
		registry:   NewRegistry(),
		opts:       opts,
		log:        log,
		metrics:    metrics,
		register:   make(chan *registration),
		unregister: make(chan *Session),
		evict:      make(chan eviction),
		presence:   make(chan presenceEvent, 256),
		stopped:    make(chan struct{}),
	}
}

// SetCallRecorder must be called before Run.
func (h *Hub) SetCallRecorder(r CallRecorder) {
	h.calls = r
}

// AddListener must be called before Run.
func (h *Hub) AddListener(l PresenceListener) {
	h.listeners = append(h.listeners, l)
}

func (h *Hub) now() time.Time {
	return h.opts.Clock()
}

// Run processes registry events until ctx is cancelled, then closes every
// session with CloseServerShutdown.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.opts.SweepInterval)
	defer ticker.Stop()

	notifyDone := make(chan struct{})
	go h.notifyLoop(notifyDone)

	defer func() {
		h.shutdown()
		close(h.stopped)
		<-notifyDone
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case reg := <-h.register:
			h.install(reg.session)
			close(reg.done)

		case s := <-h.unregister:
			h.remove(s, "closed")

		case e := <-h.evict:
			h.evictSession(e)

		case <-ticker.C:
			h.sweep(h.now())
		}
	}
}

// Register installs s and returns once the session is usable. It reports
// false when the hub has stopped.
func (h *Hub) Register(s *Session) bool {
	reg := &registration{session: s, done: make(chan struct{})}
	select {
	case h.register <- reg:
	case <-h.stopped:
		return false
	}
	<-reg.done
	return s.IsOpen()
}

func (h *Hub) Unregister(s *Session) {
	select {
	case h.unregister <- s:
	case <-h.stopped:
	}
}

// Evict closes s with code if it is still the registered session for its
// device.
func (h *Hub) Evict(s *Session, code int, reason string) {
	select {
	case h.evict <- eviction{session: s, code: code, reason: reason}:
	case <-h.stopped:
	}
}

func (h *Hub) install(s *Session) {
	greeted := s.greeting != nil
	old := h.registry.Register(s)
	if greeted {
		h.metrics.FramesOut.WithLabelValues(string(TypeConnected)).Inc()
	}
	if old != nil {
		old.Close(CloseSuperseded, "superseded by a newer session")
		h.metrics.SessionEvents.WithLabelValues("superseded").Inc()
		h.log.Info("device session superseded",
			zap.String("device_id", old.DeviceID),
			zap.String("user_id", old.UserID),
			zap.Time("previous_connected_at", old.ConnectedAt))
	}

	h.metrics.SessionEvents.WithLabelValues("registered").Inc()
	h.metrics.OnlineDevices.Set(float64(h.registry.CountOpen()))
	h.log.Info("device session registered",
		zap.String("device_id", s.DeviceID),
		zap.String("user_id", s.UserID),
		zap.String("name", s.DisplayName))

	h.publish(presenceEvent{online: true, info: s.Info()})
}

func (h *Hub) remove(s *Session, event string) {
	if !h.registry.Unregister(s) {
		return
	}

	h.metrics.SessionEvents.WithLabelValues(event).Inc()
	h.metrics.OnlineDevices.Set(float64(h.registry.CountOpen()))
	h.log.Info("device session removed",
		zap.String("device_id", s.DeviceID),
		zap.String("user_id", s.UserID),
		zap.String("name", s.DisplayName),
		zap.String("event", event),
		zap.Int("close_code", s.CloseCode()),
		zap.Duration("connected_for", h.now().Sub(s.ConnectedAt)))

	h.publish(presenceEvent{online: false, info: s.Info()})
}

func (h *Hub) evictSession(e eviction) {
	if cur, ok := h.registry.Get(e.session.DeviceID); !ok || cur != e.session {
		e.session.Close(e.code, e.reason)
		return
	}
	e.session.Close(e.code, e.reason)

	event := "evicted"
	if e.code == CloseUnbound {
		event = "unbound"
	}
	h.remove(e.session, event)
}

// sweep evicts every session whose last heartbeat is older than the
// heartbeat timeout.
func (h *Hub) sweep(now time.Time) int {
	evicted := 0
	for _, s := range h.registry.Sessions() {
		idle := now.Sub(s.LastHeartbeat())
		if idle <= h.opts.HeartbeatTimeout {
			continue
		}
		h.log.Info("device heartbeat timeout",
			zap.String("device_id", s.DeviceID),
			zap.Duration("idle", idle))
		s.Close(CloseHeartbeatTimeout, "heartbeat timeout")
		h.remove(s, "heartbeat_timeout")
		evicted++
	}
	return evicted
}

func (h *Hub) shutdown() {
	sessions := h.registry.Sessions()
	for _, s := range sessions {
		s.Close(CloseServerShutdown, "server shutting down")
		h.remove(s, "shutdown")
	}
	if len(sessions) == 0 {
		return
	}

	// teardowns run in parallel; give them one close window in total.
	timeout := time.NewTimer(closeWait + h.opts.WriteWait)
	defer timeout.Stop()
	for _, s := range sessions {
		select {
		case <-s.Closed():
		case <-timeout.C:
			h.log.Warn("device sessions still closing at shutdown")
			return
		}
	}
	h.log.Info("device sessions closed for shutdown", zap.Int("count", len(sessions)))
}

func (h *Hub) publish(ev presenceEvent) {
	if len(h.listeners) == 0 {
		return
	}
	select {
	case h.presence <- ev:
	default:
		h.log.Warn("presence queue full, dropping event",
			zap.String("device_id", ev.info.DeviceID),
			zap.Bool("online", ev.online))
	}
}

// notifyLoop delivers presence events to listeners in registry order.
func (h *Hub) notifyLoop(done chan struct{}) {
	defer close(done)
	deliver := func(ev presenceEvent) {
		lctx, cancel := context.WithTimeout(context.Background(), h.opts.RecordTimeout)
		defer cancel()
		for _, l := range h.listeners {
			if ev.online {
				l.DeviceOnline(lctx, ev.info)
			} else {
				l.DeviceOffline(lctx, ev.info)
			}
		}
	}
	for {
		select {
		case ev := <-h.presence:
			deliver(ev)
		case <-h.stopped:
			for {
				select {
				case ev := <-h.presence:
					deliver(ev)
				default:
					return
				}
			}
		}
	}
}
