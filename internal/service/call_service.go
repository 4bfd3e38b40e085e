package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"workphone-gateway/internal/domain"
	"workphone-gateway/internal/events"
	"workphone-gateway/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CallNotifier pushes call changes to the owner's browser sessions.
type CallNotifier interface {
	NotifyCallUpdate(call *domain.Call)
}

type CallService struct {
	calls     repository.CallRepository
	devices   repository.DeviceRepository
	gateway   DeviceGateway
	notifier  CallNotifier
	publisher events.Publisher
	log       *zap.Logger
}

func NewCallService(calls repository.CallRepository, devices repository.DeviceRepository, gateway DeviceGateway, notifier CallNotifier, publisher events.Publisher, log *zap.Logger) *CallService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &CallService{
		calls:     calls,
		devices:   devices,
		gateway:   gateway,
		notifier:  notifier,
		publisher: publisher,
		log:       log,
	}
}

// Dial creates a call record and sends the dial command to the requested
// device, or to the caller's first online device when none is named.
func (s *CallService) Dial(ctx context.Context, userID string, req *domain.DialRequest) (*domain.Call, error) {
	deviceID, err := s.pickDevice(ctx, userID, req.DeviceID)
	if err != nil {
		return nil, err
	}

	source := req.Source
	if source == "" {
		source = "manual"
	}

	now := time.Now()
	call := &domain.Call{
		ID:           uuid.New().String(),
		UserID:       userID,
		DeviceID:     deviceID,
		PhoneNumber:  req.PhoneNumber,
		CustomerID:   req.CustomerID,
		CustomerName: req.CustomerName,
		Source:       source,
		Status:       domain.CallStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.calls.Create(ctx, call); err != nil {
		return nil, err
	}

	// Mark dialing before the phone can see the command.
	dialing, err := s.calls.ApplyUpdate(ctx, call.ID, domain.CallUpdate{Status: domain.CallStatusDialing})
	if err != nil {
		return nil, err
	}

	delivered := s.gateway.SendDialCommand(deviceID, domain.DialCommand{
		CallID:       call.ID,
		PhoneNumber:  call.PhoneNumber,
		CustomerName: call.CustomerName,
		CustomerID:   call.CustomerID,
		Source:       call.Source,
	})
	if !delivered {
		endedAt := time.Now()
		failed, err := s.calls.ApplyUpdate(ctx, call.ID, domain.CallUpdate{
			Status:  domain.CallStatusFailed,
			EndedAt: &endedAt,
			Reason:  "device offline",
		})
		if err != nil {
			s.log.Error("failed to mark undelivered call", zap.String("call_id", call.ID), zap.Error(err))
		} else {
			s.afterUpdate(ctx, failed)
		}
		return nil, ErrDeviceOffline
	}

	s.log.Info("dial dispatched",
		zap.String("call_id", call.ID),
		zap.String("device_id", deviceID),
		zap.String("user_id", userID))

	s.afterUpdate(ctx, dialing)
	return dialing, nil
}

func (s *CallService) pickDevice(ctx context.Context, userID, deviceID string) (string, error) {
	if deviceID == "" {
		online := s.gateway.OnlineDevicesForUser(userID)
		if len(online) == 0 {
			return "", ErrDeviceOffline
		}
		return online[0], nil
	}

	device, err := s.devices.FindByID(ctx, deviceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	if device.UserID != userID {
		return "", ErrForbidden
	}
	if !device.IsActive {
		return "", ErrDeviceInactive
	}
	if !s.gateway.IsDeviceOnline(deviceID) {
		return "", ErrDeviceOffline
	}
	return deviceID, nil
}

func (s *CallService) Get(ctx context.Context, userID, callID string) (*domain.Call, error) {
	call, err := s.calls.FindByID(ctx, callID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if call.UserID != userID {
		return nil, ErrForbidden
	}
	return call, nil
}

// Cancel withdraws a call that has not finished. The cancel frame is best
// effort; the record is cancelled either way.
func (s *CallService) Cancel(ctx context.Context, userID, callID string) (*domain.Call, error) {
	call, err := s.Get(ctx, userID, callID)
	if err != nil {
		return nil, err
	}
	if call.Status.IsTerminal() {
		return nil, ErrCallFinished
	}

	if !s.gateway.SendDialCancel(call.DeviceID, call.ID) {
		s.log.Info("dial cancel not delivered, device offline",
			zap.String("call_id", call.ID),
			zap.String("device_id", call.DeviceID))
	}

	endedAt := time.Now()
	updated, err := s.calls.ApplyUpdate(ctx, call.ID, domain.CallUpdate{
		Status:  domain.CallStatusCancelled,
		EndedAt: &endedAt,
	})
	if err != nil {
		return nil, err
	}
	s.afterUpdate(ctx, updated)
	return updated, nil
}

// RecordCallUpdate applies a status reported by a work phone. Reports from a
// device other than the one the call was dispatched to are ignored.
func (s *CallService) RecordCallUpdate(ctx context.Context, deviceID, callID string, update domain.CallUpdate) error {
	current, err := s.calls.FindByID(ctx, callID)
	if err != nil {
		return fmt.Errorf("call %s: %w", callID, err)
	}
	if current.DeviceID != deviceID {
		s.log.Warn("ignoring status from a device that does not own the call",
			zap.String("call_id", callID),
			zap.String("device_id", deviceID),
			zap.String("owner_device_id", current.DeviceID))
		return nil
	}
	if current.Status.IsTerminal() && !update.Status.IsTerminal() {
		s.log.Debug("ignoring late status for finished call",
			zap.String("call_id", callID),
			zap.String("status", string(update.Status)))
		return nil
	}

	updated, err := s.calls.ApplyUpdate(ctx, callID, update)
	if err != nil {
		return fmt.Errorf("call %s: %w", callID, err)
	}
	s.afterUpdate(ctx, updated)
	return nil
}

func (s *CallService) afterUpdate(ctx context.Context, call *domain.Call) {
	if s.notifier != nil {
		s.notifier.NotifyCallUpdate(call)
	}
	if err := s.publisher.PublishCallEvent(ctx, events.NewCallEvent(call)); err != nil {
		s.log.Warn("failed to publish call event", zap.String("call_id", call.ID), zap.Error(err))
	}
}
