// Package events publishes call lifecycle events for the rest of the CRM.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"workphone-gateway/internal/domain"

	"github.com/nats-io/nats.go"
)

type CallEvent struct {
	CallID    string            `json:"call_id"`
	UserID    string            `json:"user_id"`
	DeviceID  string            `json:"device_id"`
	Status    domain.CallStatus `json:"status"`
	Duration  int               `json:"duration"`
	EndedAt   *time.Time        `json:"ended_at,omitempty"`
	EmittedAt time.Time         `json:"emitted_at"`
}

func NewCallEvent(call *domain.Call) *CallEvent {
	return &CallEvent{
		CallID:    call.ID,
		UserID:    call.UserID,
		DeviceID:  call.DeviceID,
		Status:    call.Status,
		Duration:  call.Duration,
		EndedAt:   call.EndedAt,
		EmittedAt: time.Now(),
	}
}

type Publisher interface {
	PublishCallEvent(ctx context.Context, ev *CallEvent) error
}

type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
}

func NewNATSPublisher(url, prefix, name string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500*time.Millisecond),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(3*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSPublisher{nc: nc, prefix: prefix}, nil
}

// Subject is <prefix>.<status>, e.g. crm.calls.ended.
func (p *NATSPublisher) Subject(status domain.CallStatus) string {
	return Subject(p.prefix, status)
}

func Subject(prefix string, status domain.CallStatus) string {
	return prefix + "." + string(status)
}

func (p *NATSPublisher) PublishCallEvent(ctx context.Context, ev *CallEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode call event: %w", err)
	}
	if err := p.nc.Publish(p.Subject(ev.Status), data); err != nil {
		return fmt.Errorf("publish call event: %w", err)
	}
	return nil
}

func (p *NATSPublisher) Close() {
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
	}
}

type NopPublisher struct{}

func (NopPublisher) PublishCallEvent(context.Context, *CallEvent) error { return nil }
