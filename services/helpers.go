package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/Dosada05/bracket-picks/models"
	"github.com/Dosada05/bracket-picks/repositories"
	"github.com/Dosada05/bracket-picks/storage"
)

// Transactor runs fn inside one database transaction. db.TxManager implements it.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(exec repositories.SQLExecutor) error) error
}

// Broadcaster pushes change notifications to connected clients. brackets.Hub implements it.
type Broadcaster interface {
	Publish(eventType string, payload interface{})
}

type noopBroadcaster struct{}

func (noopBroadcaster) Publish(string, interface{}) {}

// handleRepositoryError переводит ошибки репозиториев в ошибки сервисов.
func handleRepositoryError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repositories.ErrUserNotFound):
		return ErrUserNotFound
	case errors.Is(err, repositories.ErrRoundNotFound):
		return ErrRoundNotFound
	case errors.Is(err, repositories.ErrGameNotFound):
		return ErrGameNotFound
	case errors.Is(err, repositories.ErrGameWinnerCheck):
		return ErrInvalidWinner
	case errors.Is(err, repositories.ErrPickNegativeWager):
		return fmt.Errorf("%w: wager must not be negative", ErrValidationFailed)
	case errors.Is(err, repositories.ErrUserUsernameConflict):
		return fmt.Errorf("%w: username is already taken", ErrValidationFailed)
	}
	return err
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func populateUserPictureURL(user *models.User, uploader storage.FileUploader) {
	if user == nil {
		return
	}
	user.PictureURL = nil
	if uploader == nil || user.PictureKey == nil || *user.PictureKey == "" {
		return
	}
	if url := uploader.GetPublicURL(*user.PictureKey); url != "" {
		user.PictureURL = &url
	}
}

// isValidRoundStateTransition: закрытый раунд можно только заблокировать обратно (для исправлений).
func isValidRoundStateTransition(current, next models.RoundState) bool {
	if current == next {
		return true
	}
	allowedTransitions := map[models.RoundState][]models.RoundState{
		models.RoundOpen:   {models.RoundLocked, models.RoundClosed},
		models.RoundLocked: {models.RoundOpen, models.RoundClosed},
		models.RoundClosed: {models.RoundLocked},
	}
	for _, allowedNext := range allowedTransitions[current] {
		if next == allowedNext {
			return true
		}
	}
	return false
}

func GetExtensionFromContentType(contentType string) (string, error) {
	switch contentType {
	case "image/jpeg", "image/jpg":
		return ".jpg", nil
	case "image/png":
		return ".png", nil
	case "image/gif":
		return ".gif", nil
	case "image/webp":
		return ".webp", nil
	default:
		parts := strings.Split(contentType, "/")
		if len(parts) == 2 && parts[0] == "image" && parts[1] != "" {
			return "." + strings.Split(parts[1], "+")[0], nil
		}
		return "", fmt.Errorf("%w: unsupported content type '%s'", ErrValidationFailed, contentType)
	}
}

func gameIDs(games []*models.Game) []int {
	ids := make([]int, len(games))
	for i, g := range games {
		ids[i] = g.ID
	}
	return ids
}

func roundPercent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return roundTo1(float64(part) / float64(whole) * 100)
}

func roundTo1(v float64) float64 {
	return math.Round(v*10) / 10
}
