package services

import (
	"errors"
	"fmt"
)

// Общие ошибки, используемые в разных сервисах и маппинге HTTP.
var (
	// Ресурс не найден
	ErrUserNotFound  = errors.New("user not found")
	ErrRoundNotFound = errors.New("round not found")
	ErrGameNotFound  = errors.New("game not found")
	ErrNoOpenRound   = errors.New("no round is currently open for picks")

	// Ошибки валидации и бизнес-правил
	ErrValidationFailed            = errors.New("validation failed")
	ErrInvalidSelection            = errors.New("invalid selection")
	ErrRoundClosedForSelection     = errors.New("round is closed for selection")
	ErrRoundIncomplete             = errors.New("round has games without a winner")
	ErrNoSuccessorRound            = errors.New("championship round has no successor")
	ErrInvalidWinner               = errors.New("winner must be one of the game's teams")
	ErrInvalidTeams                = errors.New("teams must be distinct winners of the previous round")
	ErrInvalidPointValue           = errors.New("point value must be positive")
	ErrInvalidRoundStateTransition = errors.New("invalid round state transition")

	// Successor round already existed. Logged only, never returned to callers.
	ErrDuplicateRound = errors.New("successor round already exists")

	// Ошибки аутентификации и авторизации
	ErrAuthInvalidCredentials = errors.New("invalid username or password")
	ErrForbiddenOperation     = errors.New("operation not allowed for the current user")

	ErrUploadsDisabled = errors.New("file uploads are not configured")
)

// InvalidSelectionError names the game whose selection was rejected.
type InvalidSelectionError struct {
	GameID int
	Reason string
}

func (e *InvalidSelectionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid selection for game %d", e.GameID)
	}
	return fmt.Sprintf("invalid selection for game %d: %s", e.GameID, e.Reason)
}

func (e *InvalidSelectionError) Unwrap() error { return ErrInvalidSelection }
