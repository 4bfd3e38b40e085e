package gateway

import (
	"context"
	"errors"

	"workphone-gateway/internal/domain"

	"go.uber.org/zap"
)

// route handles one inbound frame from s. It runs on the session's read
// goroutine, so frames from one device are handled in arrival order.
func (h *Hub) route(s *Session, raw []byte) {
	in, err := decodeInbound(raw)
	if err != nil {
		h.metrics.FramesIn.WithLabelValues("malformed").Inc()
		h.log.Warn("dropping malformed frame",
			zap.String("device_id", s.DeviceID),
			zap.Error(err))
		return
	}

	if u, ok := in.(Unrecognized); ok {
		h.metrics.FramesIn.WithLabelValues("unrecognized").Inc()
		h.log.Debug("dropping unrecognized frame",
			zap.String("device_id", s.DeviceID),
			zap.String("type", string(u.Type)))
		return
	}

	now := h.now()
	s.touch(now)
	h.metrics.FramesIn.WithLabelValues(string(in.frameType())).Inc()

	switch f := in.(type) {
	case Heartbeat:
		ack, _ := NewFrame(TypeHeartbeatAck, &HeartbeatAckData{MessageID: f.MessageID})
		h.send(s, ack)

	case DeviceOnline:
		h.log.Info("device reported online",
			zap.String("device_id", s.DeviceID),
			zap.String("name", s.DisplayName),
			zap.String("app_version", f.AppVersion),
			zap.Int("battery", f.Battery))

	case CallStatusReport:
		if f.CallID == "" {
			return
		}
		if !f.Status.Valid() {
			h.log.Warn("dropping call status with unknown status",
				zap.String("device_id", s.DeviceID),
				zap.String("call_id", f.CallID),
				zap.String("status", string(f.Status)))
			return
		}
		h.recordCall(s, f.CallID, domain.CallUpdate{Status: f.Status})

	case CallEnded:
		if f.CallID == "" {
			return
		}
		status := domain.CallStatusEnded
		if f.Status.IsTerminal() {
			status = f.Status
		}
		endedAt := now
		h.recordCall(s, f.CallID, domain.CallUpdate{
			Status:   status,
			Duration: f.Duration,
			EndedAt:  &endedAt,
		})

	case DialRejected:
		h.log.Info("device rejected dial",
			zap.String("device_id", s.DeviceID),
			zap.String("call_id", f.CallID),
			zap.String("reason", f.Reason))
	}
}

// recordCall waits for the call record write. A failed write is logged and
// the session stays open; the frame is not retried.
func (h *Hub) recordCall(s *Session, callID string, update domain.CallUpdate) {
	if h.calls == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.opts.RecordTimeout)
	defer cancel()

	if err := h.calls.RecordCallUpdate(ctx, s.DeviceID, callID, update); err != nil {
		level := zap.ErrorLevel
		if errors.Is(err, context.DeadlineExceeded) {
			level = zap.WarnLevel
		}
		h.log.Check(level, "failed to record call update").Write(
			zap.String("device_id", s.DeviceID),
			zap.String("call_id", callID),
			zap.String("status", string(update.Status)),
			zap.Error(err))
	}
}
