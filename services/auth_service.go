package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Dosada05/bracket-picks/models"
	"github.com/Dosada05/bracket-picks/repositories"
	"github.com/Dosada05/bracket-picks/utils"
)

type AuthService interface {
	Login(ctx context.Context, input LoginInput) (*models.User, error)
}

type LoginInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authService struct {
	userRepo repositories.UserRepository
}

func NewAuthService(userRepo repositories.UserRepository) AuthService {
	return &authService{
		userRepo: userRepo,
	}
}

func (s *authService) Login(ctx context.Context, input LoginInput) (*models.User, error) {
	username := strings.TrimSpace(input.Username)
	if username == "" || input.Password == "" {
		return nil, ErrAuthInvalidCredentials
	}

	user, err := s.userRepo.GetByUsername(ctx, nil, username)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrAuthInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load user '%s': %w", username, err)
	}

	if !utils.CheckPasswordHash(input.Password, user.PasswordHash) {
		return nil, ErrAuthInvalidCredentials
	}
	return user, nil
}
