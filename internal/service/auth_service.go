package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"workphone-gateway/internal/domain"
	"workphone-gateway/internal/repository"
	"workphone-gateway/pkg/hash"
	"workphone-gateway/pkg/jwt"

	"github.com/google/uuid"
)

// DeviceDirectory lists the work phones bound to an operator.
type DeviceDirectory interface {
	List(ctx context.Context, userID string) ([]*domain.DeviceResponse, error)
}

type AuthService struct {
	userRepo          repository.UserRepository
	devices           DeviceDirectory
	jwtSecret         string
	jwtExpiration     time.Duration
	refreshExpiration time.Duration
}

func NewAuthService(userRepo repository.UserRepository, devices DeviceDirectory, jwtSecret string, jwtExp, refreshExp time.Duration) *AuthService {
	return &AuthService{
		userRepo:          userRepo,
		devices:           devices,
		jwtSecret:         jwtSecret,
		jwtExpiration:     jwtExp,
		refreshExpiration: refreshExp,
	}
}

func (s *AuthService) Register(ctx context.Context, req *domain.RegisterRequest) error {
	if err := s.ensureAbsent(s.userRepo.FindByEmail(ctx, req.Email)); err != nil {
		return fmt.Errorf("email: %w", err)
	}
	if err := s.ensureAbsent(s.userRepo.FindByUsername(ctx, req.Username)); err != nil {
		return fmt.Errorf("username: %w", err)
	}

	hashedPassword, err := hash.Hash(req.Password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &domain.User{
		ID:          uuid.New().String(),
		Username:    req.Username,
		DisplayName: req.DisplayName,
		Email:       req.Email,
		Password:    hashedPassword,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

func (s *AuthService) ensureAbsent(_ *domain.User, err error) error {
	switch {
	case err == nil:
		return ErrAlreadyExists
	case errors.Is(err, repository.ErrNotFound):
		return nil
	default:
		return err
	}
}

func (s *AuthService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	user, err := s.userRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := hash.Compare(user.Password, req.Password); err != nil {
		return nil, ErrInvalidCredentials
	}

	accessToken, err := jwt.GenerateToken(user.ID, s.jwtExpiration, s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := jwt.GenerateRefreshToken(user.ID, s.refreshExpiration, s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	user.Password = ""

	resp := &domain.LoginResponse{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.jwtExpiration.Seconds()),
		Devices:      []*domain.DeviceResponse{},
	}

	if s.devices != nil {
		devices, err := s.devices.List(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list devices: %w", err)
		}
		resp.Devices = devices
		for _, d := range devices {
			if d.Online {
				resp.OnlineDevices++
			}
		}
	}

	return resp, nil
}

func (s *AuthService) RefreshToken(req *domain.RefreshTokenRequest) (*domain.TokenResponse, error) {
	claims, err := jwt.ValidateToken(req.RefreshToken, s.jwtSecret)
	if err != nil || !claims.IsRefresh() {
		return nil, fmt.Errorf("refresh: %w", ErrInvalidToken)
	}

	accessToken, err := jwt.GenerateToken(claims.UserID, s.jwtExpiration, s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	return &domain.TokenResponse{
		AccessToken: accessToken,
		ExpiresIn:   int64(s.jwtExpiration.Seconds()),
	}, nil
}

func (s *AuthService) ValidateToken(token string) (*jwt.Claims, error) {
	claims, err := jwt.ValidateToken(token, s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !claims.IsAccess() {
		return nil, fmt.Errorf("%w: not an access token", ErrInvalidToken)
	}
	return claims, nil
}
