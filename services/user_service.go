package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Dosada05/bracket-picks/models"
	"github.com/Dosada05/bracket-picks/repositories"
	"github.com/Dosada05/bracket-picks/storage"
)

const (
	MaxFunNameLength = 100
	MaxBioLength     = 500
	avatarKeyPrefix  = "avatars"
)

type UserService interface {
	GetUser(ctx context.Context, username string) (*models.User, error)
	UpdateProfile(ctx context.Context, actorID int, username string, input UpdateProfileInput) (*models.User, error)
	UploadAvatar(ctx context.Context, actorID int, username string, contentType string, file io.Reader) (*models.User, error)
}

// UpdateProfileInput: nil fields are left unchanged.
type UpdateProfileInput struct {
	FunName *string `json:"fun_name"`
	Bio     *string `json:"bio"`
}

type userService struct {
	userRepo repositories.UserRepository
	uploader storage.FileUploader
	logger   *slog.Logger
}

func NewUserService(userRepo repositories.UserRepository, uploader storage.FileUploader, logger *slog.Logger) UserService {
	return &userService{
		userRepo: userRepo,
		uploader: uploader,
		logger:   logger,
	}
}

func (s *userService) GetUser(ctx context.Context, username string) (*models.User, error) {
	user, err := s.userRepo.GetByUsername(ctx, nil, username)
	if err != nil {
		return nil, handleRepositoryError(err)
	}
	populateUserPictureURL(user, s.uploader)
	return user, nil
}

// ownProfile loads the profile and checks that the actor is its owner.
func (s *userService) ownProfile(ctx context.Context, actorID int, username string) (*models.User, error) {
	user, err := s.userRepo.GetByUsername(ctx, nil, username)
	if err != nil {
		return nil, handleRepositoryError(err)
	}
	if user.ID != actorID {
		return nil, ErrForbiddenOperation
	}
	return user, nil
}

func (s *userService) UpdateProfile(ctx context.Context, actorID int, username string, input UpdateProfileInput) (*models.User, error) {
	user, err := s.ownProfile(ctx, actorID, username)
	if err != nil {
		return nil, err
	}

	if input.FunName != nil {
		funName := strings.TrimSpace(*input.FunName)
		if utf8.RuneCountInString(funName) > MaxFunNameLength {
			return nil, fmt.Errorf("%w: fun_name must be at most %d characters", ErrValidationFailed, MaxFunNameLength)
		}
		user.FunName = funName
	}
	if input.Bio != nil {
		bio := strings.TrimSpace(*input.Bio)
		if utf8.RuneCountInString(bio) > MaxBioLength {
			return nil, fmt.Errorf("%w: bio must be at most %d characters", ErrValidationFailed, MaxBioLength)
		}
		user.Bio = bio
	}

	if err := s.userRepo.UpdateProfile(ctx, nil, user); err != nil {
		return nil, fmt.Errorf("failed to update profile of user %d: %w", user.ID, handleRepositoryError(err))
	}
	populateUserPictureURL(user, s.uploader)
	return user, nil
}

func (s *userService) UploadAvatar(ctx context.Context, actorID int, username string, contentType string, file io.Reader) (*models.User, error) {
	if s.uploader == nil {
		return nil, ErrUploadsDisabled
	}
	user, err := s.ownProfile(ctx, actorID, username)
	if err != nil {
		return nil, err
	}

	ext, err := GetExtensionFromContentType(contentType)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s/user_%d_%d%s", avatarKeyPrefix, user.ID, time.Now().UnixNano(), ext)
	if _, err := s.uploader.Upload(ctx, key, contentType, file); err != nil {
		return nil, fmt.Errorf("failed to upload avatar for user %d: %w", user.ID, err)
	}

	oldKey := derefString(user.PictureKey)
	user.PictureKey = &key
	if err := s.userRepo.UpdateProfile(ctx, nil, user); err != nil {
		if delErr := s.uploader.Delete(ctx, key); delErr != nil {
			s.logger.WarnContext(ctx, "failed to remove orphaned avatar", slog.String("key", key), slog.Any("error", delErr))
		}
		return nil, fmt.Errorf("failed to store avatar of user %d: %w", user.ID, handleRepositoryError(err))
	}

	if oldKey != "" && oldKey != key {
		if err := s.uploader.Delete(ctx, oldKey); err != nil {
			s.logger.WarnContext(ctx, "failed to delete previous avatar", slog.String("key", oldKey), slog.Any("error", err))
		}
	}

	populateUserPictureURL(user, s.uploader)
	s.logger.InfoContext(ctx, "avatar updated", slog.Int("user_id", user.ID), slog.String("key", key))
	return user, nil
}
