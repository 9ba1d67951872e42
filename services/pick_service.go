package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/Dosada05/bracket-picks/brackets"
	"github.com/Dosada05/bracket-picks/metrics"
	"github.com/Dosada05/bracket-picks/models"
	"github.com/Dosada05/bracket-picks/repositories"
)

type PickService interface {
	SubmitPicks(ctx context.Context, input SubmitPicksInput) ([]*models.Pick, error)
	UserRoundPicks(ctx context.Context, userID, roundID int) ([]*models.Pick, error)
	PickStatus(ctx context.Context, roundID int) (*RoundPickStatus, error)
}

// SubmitPicksInput: Selections maps game ID to the picked team. Wager only matters for the Championship.
type SubmitPicksInput struct {
	UserID     int            `json:"user_id"`
	RoundID    int            `json:"-"`
	Selections map[int]string `json:"selections"`
	Wager      int            `json:"wager"`
}

type pickService struct {
	tx          Transactor
	userRepo    repositories.UserRepository
	roundRepo   repositories.RoundRepository
	gameRepo    repositories.GameRepository
	pickRepo    repositories.PickRepository
	broadcaster Broadcaster
	metrics     metrics.Recorder
	logger      *slog.Logger
}

func NewPickService(
	tx Transactor,
	userRepo repositories.UserRepository,
	roundRepo repositories.RoundRepository,
	gameRepo repositories.GameRepository,
	pickRepo repositories.PickRepository,
	broadcaster Broadcaster,
	recorder metrics.Recorder,
	logger *slog.Logger,
) PickService {
	if broadcaster == nil {
		broadcaster = noopBroadcaster{}
	}
	if recorder == nil {
		recorder = metrics.NoOp{}
	}
	return &pickService{
		tx:          tx,
		userRepo:    userRepo,
		roundRepo:   roundRepo,
		gameRepo:    gameRepo,
		pickRepo:    pickRepo,
		broadcaster: broadcaster,
		metrics:     recorder,
		logger:      logger,
	}
}

// SubmitPicks replaces the user's picks for every game of an open round. Either all selections are
// valid and written, or nothing is.
func (s *pickService) SubmitPicks(ctx context.Context, input SubmitPicksInput) ([]*models.Pick, error) {
	var (
		round *models.Round
		saved []*models.Pick
	)

	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		if _, err := s.userRepo.GetByID(ctx, exec, input.UserID); err != nil {
			return handleRepositoryError(err)
		}

		var err error
		round, err = s.roundRepo.GetByID(ctx, exec, input.RoundID)
		if err != nil {
			return handleRepositoryError(err)
		}
		if !round.State.AcceptsPicks() {
			return fmt.Errorf("%w: %s", ErrRoundClosedForSelection, round.Name())
		}

		games, err := s.gameRepo.ListByRound(ctx, exec, round.ID)
		if err != nil {
			return fmt.Errorf("failed to list games for round %d: %w", round.ID, err)
		}
		if len(games) == 0 {
			return fmt.Errorf("%w: round %d has no games", ErrValidationFailed, round.ID)
		}

		teams, err := validateSelections(games, input.Selections)
		if err != nil {
			return err
		}

		wager := 0
		if round.Stage.IsChampionship() {
			banked, err := s.pickRepo.TotalPointsForUser(ctx, exec, input.UserID)
			if err != nil {
				return fmt.Errorf("failed to load banked points for user %d: %w", input.UserID, err)
			}
			wager = brackets.ClampWager(input.Wager, banked)
		}

		saved = make([]*models.Pick, 0, len(games))
		for _, g := range games {
			pick := &models.Pick{
				UserID:     input.UserID,
				GameID:     g.ID,
				PickedTeam: teams[g.ID],
				Wager:      wager,
			}
			if err := s.pickRepo.Upsert(ctx, exec, pick); err != nil {
				return fmt.Errorf("failed to save pick for game %d: %w", g.ID, handleRepositoryError(err))
			}
			saved = append(saved, pick)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.PicksSubmitted(round.Stage, len(saved))
	s.logger.InfoContext(ctx, "picks submitted",
		slog.Int("user_id", input.UserID),
		slog.Int("round_id", round.ID),
		slog.Int("picks", len(saved)))
	s.broadcaster.Publish(brackets.EventPickSubmitted, PicksEventPayload{
		RoundID: round.ID,
		UserID:  input.UserID,
		Count:   len(saved),
	})
	return saved, nil
}

// validateSelections requires exactly one team of each game, and nothing else.
func validateSelections(games []*models.Game, selections map[int]string) (map[int]string, error) {
	teams := make(map[int]string, len(games))
	known := make(map[int]bool, len(games))
	for _, g := range games {
		known[g.ID] = true
		team, ok := selections[g.ID]
		team = strings.TrimSpace(team)
		if !ok || team == "" {
			return nil, &InvalidSelectionError{GameID: g.ID, Reason: "no team selected"}
		}
		if !g.HasTeam(team) {
			return nil, &InvalidSelectionError{GameID: g.ID, Reason: fmt.Sprintf("%q does not play in this game", team)}
		}
		teams[g.ID] = team
	}

	extra := make([]int, 0)
	for gameID := range selections {
		if !known[gameID] {
			extra = append(extra, gameID)
		}
	}
	if len(extra) > 0 {
		sort.Ints(extra)
		return nil, &InvalidSelectionError{GameID: extra[0], Reason: "game is not part of this round"}
	}
	return teams, nil
}

func (s *pickService) UserRoundPicks(ctx context.Context, userID, roundID int) ([]*models.Pick, error) {
	if _, err := s.roundRepo.GetByID(ctx, nil, roundID); err != nil {
		return nil, handleRepositoryError(err)
	}
	picks, err := s.pickRepo.ListByUserAndRound(ctx, nil, userID, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to list picks of user %d for round %d: %w", userID, roundID, err)
	}
	if picks == nil {
		return []*models.Pick{}, nil
	}
	return picks, nil
}

// PickStatus reports, per user, how many games of the round they have picked.
func (s *pickService) PickStatus(ctx context.Context, roundID int) (*RoundPickStatus, error) {
	round, err := s.roundRepo.GetByID(ctx, nil, roundID)
	if err != nil {
		return nil, handleRepositoryError(err)
	}
	games, err := s.gameRepo.ListByRound(ctx, nil, round.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list games for round %d: %w", round.ID, err)
	}
	users, err := s.userRepo.List(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	counts, err := s.pickRepo.CountByUserForRound(ctx, nil, round.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count picks for round %d: %w", round.ID, err)
	}

	status := &RoundPickStatus{Round: round, Entries: make([]PickStatusEntry, 0, len(users))}
	for _, u := range users {
		made := counts[u.ID]
		status.Entries = append(status.Entries, PickStatusEntry{
			UserID:   u.ID,
			Username: u.Username,
			Picks:    made,
			Games:    len(games),
			Complete: len(games) > 0 && made >= len(games),
		})
	}
	return status, nil
}
