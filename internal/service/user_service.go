package service

import (
	"context"
	"errors"
	"fmt"

	"workphone-gateway/internal/domain"
	"workphone-gateway/internal/repository"
)

type UserService struct {
	userRepo repository.UserRepository
}

func NewUserService(userRepo repository.UserRepository) *UserService {
	return &UserService{
		userRepo: userRepo,
	}
}

func (s *UserService) GetByID(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	user.Password = ""
	return user, nil
}

// UpdateDisplayName changes the name shown on bound phones. Sessions that
// are already connected keep the old name until they reconnect.
func (s *UserService) UpdateDisplayName(ctx context.Context, userID, displayName string) (*domain.User, error) {
	if err := s.userRepo.UpdateDisplayName(ctx, userID, displayName); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	return s.GetByID(ctx, userID)
}
