package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"workphone-gateway/internal/domain"
	"workphone-gateway/internal/gateway"
	"workphone-gateway/internal/repository"
	"workphone-gateway/pkg/jwt"

	"go.uber.org/zap"
)

// DeviceGateway is the part of the device gateway the services push
// commands through.
type DeviceGateway interface {
	SendDialCommand(deviceID string, cmd domain.DialCommand) bool
	SendDialCancel(deviceID, callID string) bool
	SendDeviceUnbind(deviceID string)
	IsDeviceOnline(deviceID string) bool
	OnlineDevicesForUser(userID string) []string
}

type DeviceService struct {
	repo        repository.DeviceRepository
	userRepo    repository.UserRepository
	gateway     DeviceGateway
	jwtSecret   string
	tokenExpiry time.Duration
	log         *zap.Logger
}

func NewDeviceService(repo repository.DeviceRepository, userRepo repository.UserRepository, gw DeviceGateway, jwtSecret string, tokenExpiry time.Duration, log *zap.Logger) *DeviceService {
	return &DeviceService{
		repo:        repo,
		userRepo:    userRepo,
		gateway:     gw,
		jwtSecret:   jwtSecret,
		tokenExpiry: tokenExpiry,
		log:         log,
	}
}

// Bind records deviceID as the work phone of userID and returns the token
// the phone uses to open the gateway channel. A device bound to another
// user must be unbound first.
func (s *DeviceService) Bind(ctx context.Context, userID string, req *domain.BindDeviceRequest) (*domain.BindDeviceResponse, error) {
	existing, err := s.repo.FindByID(ctx, req.DeviceID)
	switch {
	case err == nil:
		if existing.IsActive && existing.UserID != userID {
			return nil, fmt.Errorf("device %s: %w", req.DeviceID, ErrAlreadyExists)
		}
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}

	now := time.Now()
	device := &domain.Device{
		ID:         req.DeviceID,
		UserID:     userID,
		Name:       req.Name,
		Model:      req.Model,
		OS:         req.OS,
		AppVersion: req.AppVersion,
		IsActive:   true,
		BoundAt:    now,
		LastActive: now,
		CreatedAt:  now,
	}
	if existing != nil {
		device.CreatedAt = existing.CreatedAt
	}

	if err := s.repo.Save(ctx, device); err != nil {
		return nil, err
	}

	token, err := jwt.GenerateDeviceToken(device.ID, userID, s.tokenExpiry, s.jwtSecret)
	if err != nil {
		return nil, err
	}

	s.log.Info("device bound", zap.String("device_id", device.ID), zap.String("user_id", userID))

	return &domain.BindDeviceResponse{
		Device:      s.toResponse(device),
		DeviceToken: token,
		ExpiresIn:   int64(s.tokenExpiry.Seconds()),
	}, nil
}

func (s *DeviceService) List(ctx context.Context, userID string) ([]*domain.DeviceResponse, error) {
	devices, err := s.repo.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	responses := make([]*domain.DeviceResponse, 0, len(devices))
	for _, d := range devices {
		responses = append(responses, s.toResponse(d))
	}

	return responses, nil
}

// Unbind deactivates the binding and tells a connected phone to disconnect.
func (s *DeviceService) Unbind(ctx context.Context, userID, deviceID string) error {
	device, err := s.repo.FindByID(ctx, deviceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	if device.UserID != userID {
		return ErrForbidden
	}

	if err := s.repo.Deactivate(ctx, deviceID); err != nil {
		return err
	}

	s.gateway.SendDeviceUnbind(deviceID)

	s.log.Info("device unbound", zap.String("device_id", deviceID), zap.String("user_id", userID))
	return nil
}

// LookupBinding reports whether deviceID is actively bound to exactly
// userID. Lookup errors are returned so the gateway fails closed.
func (s *DeviceService) LookupBinding(ctx context.Context, deviceID, userID string) (*domain.DeviceBinding, error) {
	device, err := s.repo.FindByID(ctx, deviceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &domain.DeviceBinding{Active: false}, nil
		}
		return nil, err
	}

	if !device.IsActive || device.UserID != userID {
		return &domain.DeviceBinding{Active: false}, nil
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &domain.DeviceBinding{Active: false}, nil
		}
		return nil, err
	}

	return &domain.DeviceBinding{
		Active:      true,
		DisplayName: user.Name(),
	}, nil
}

func (s *DeviceService) DeviceOnline(ctx context.Context, info gateway.SessionInfo) {
	s.touch(ctx, info.DeviceID)
}

func (s *DeviceService) DeviceOffline(ctx context.Context, info gateway.SessionInfo) {
	s.touch(ctx, info.DeviceID)
}

func (s *DeviceService) touch(ctx context.Context, deviceID string) {
	if err := s.repo.UpdateLastActive(ctx, deviceID); err != nil {
		s.log.Warn("failed to update device last active",
			zap.String("device_id", deviceID),
			zap.Error(err))
	}
}

func (s *DeviceService) toResponse(d *domain.Device) *domain.DeviceResponse {
	return &domain.DeviceResponse{
		ID:         d.ID,
		Name:       d.Name,
		Model:      d.Model,
		OS:         d.OS,
		LastActive: d.LastActive,
		IsActive:   d.IsActive,
		Online:     d.IsActive && s.gateway.IsDeviceOnline(d.ID),
	}
}
