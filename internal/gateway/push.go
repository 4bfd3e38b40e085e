package gateway

import (
	"time"

	"workphone-gateway/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// send encodes f and queues it on s. It reports false when s is not open
// or its queue is full.
func (h *Hub) send(s *Session, f *Frame) bool {
	msg, err := f.encode(h.now())
	if err != nil {
		h.log.Error("failed to encode frame",
			zap.String("device_id", s.DeviceID),
			zap.String("type", string(f.Type)),
			zap.Error(err))
		return false
	}
	if !s.enqueue(msg) {
		return false
	}
	h.metrics.FramesOut.WithLabelValues(string(f.Type)).Inc()
	return true
}

// SendToDevice delivers f if deviceID has an open session at call time.
func (h *Hub) SendToDevice(deviceID string, f *Frame) bool {
	s, ok := h.registry.Get(deviceID)
	if !ok || !s.IsOpen() {
		return false
	}
	return h.send(s, f)
}

// SendToUser delivers f to every open device of userID and returns how many
// accepted it. All copies share one message id.
func (h *Hub) SendToUser(userID string, f *Frame) int {
	out := *f
	if out.MessageID == "" {
		out.MessageID = uuid.NewString()
	}

	n := 0
	for _, deviceID := range h.registry.OnlineDevicesForUser(userID) {
		if h.SendToDevice(deviceID, &out) {
			n++
		}
	}
	return n
}

func (h *Hub) SendDialCommand(deviceID string, cmd domain.DialCommand) bool {
	f, err := NewFrame(TypeDial, &cmd)
	if err != nil {
		h.log.Error("failed to build dial frame", zap.Error(err))
		return false
	}
	return h.SendToDevice(deviceID, f)
}

func (h *Hub) SendDialCancel(deviceID, callID string) bool {
	f, _ := NewFrame(TypeDialCancel, &DialCancelData{CallID: callID})
	return h.SendToDevice(deviceID, f)
}

// SendDeviceUnbind notifies the device that its binding is gone and closes
// the session with CloseUnbound after the unbind grace period.
func (h *Hub) SendDeviceUnbind(deviceID string) {
	s, ok := h.registry.Get(deviceID)
	if !ok {
		return
	}

	f, _ := NewFrame(TypeDeviceUnbind, &DeviceUnbindData{DeviceID: deviceID, Reason: "unbound"})
	h.send(s, f)

	h.log.Info("device unbind sent",
		zap.String("device_id", deviceID),
		zap.Duration("grace", h.opts.UnbindGrace))

	go func() {
		timer := time.NewTimer(h.opts.UnbindGrace)
		defer timer.Stop()
		select {
		case <-timer.C:
			h.Evict(s, CloseUnbound, "device unbound")
		case <-h.stopped:
		}
	}()
}

func (h *Hub) IsDeviceOnline(deviceID string) bool {
	return h.registry.IsOnline(deviceID)
}

func (h *Hub) OnlineDevicesForUser(userID string) []string {
	return h.registry.OnlineDevicesForUser(userID)
}

func (h *Hub) OnlineDeviceCount() int {
	return h.registry.CountOpen()
}

// Sessions returns presence info for every registered device.
func (h *Hub) Sessions() []SessionInfo {
	sessions := h.registry.Sessions()
	out := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Info())
	}
	return out
}
