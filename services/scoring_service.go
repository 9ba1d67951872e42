package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Dosada05/bracket-picks/brackets"
	"github.com/Dosada05/bracket-picks/models"
	"github.com/Dosada05/bracket-picks/repositories"
)

type ScoringService interface {
	// ScoreRound overwrites Points of every pick in the round and returns how many picks sit on
	// decided games. Picks on undecided games are reset to 0. Runs on exec so callers can include
	// it in their transaction; callers record metrics after commit.
	ScoreRound(ctx context.Context, exec repositories.SQLExecutor, round *models.Round) (int, error)
}

type scoringService struct {
	gameRepo repositories.GameRepository
	pickRepo repositories.PickRepository
	logger   *slog.Logger
}

func NewScoringService(
	gameRepo repositories.GameRepository,
	pickRepo repositories.PickRepository,
	logger *slog.Logger,
) ScoringService {
	return &scoringService{
		gameRepo: gameRepo,
		pickRepo: pickRepo,
		logger:   logger,
	}
}

func (s *scoringService) ScoreRound(ctx context.Context, exec repositories.SQLExecutor, round *models.Round) (int, error) {
	if round == nil {
		return 0, fmt.Errorf("%w: round is required", ErrValidationFailed)
	}

	games, err := s.gameRepo.ListByRound(ctx, exec, round.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to list games for round %d: %w", round.ID, err)
	}

	if len(games) == 0 {
		return 0, nil
	}
	decided := make(map[int]*models.Game, len(games))
	for _, g := range games {
		if g.Decided() {
			decided[g.ID] = g
		}
	}

	picks, err := s.pickRepo.ListByGames(ctx, exec, gameIDs(games))
	if err != nil {
		return 0, fmt.Errorf("failed to list picks for round %d: %w", round.ID, err)
	}

	scored := 0
	for _, pick := range picks {
		// Снятый результат обнуляет очки: неоценённый пик не должен попадать в сумму.
		points := 0
		game, ok := decided[pick.GameID]
		if ok {
			if game.HasTeam(pick.PickedTeam) {
				points = brackets.PickPoints(round.Stage, round.PointValue, pick.PickedTeam, *game.Winner, pick.Wager)
			} else {
				s.logger.WarnContext(ctx, "pick names a team not playing in its game",
					slog.Int("pick_id", pick.ID),
					slog.Int("game_id", game.ID),
					slog.String("picked_team", pick.PickedTeam))
			}
		}

		if pick.Points != points {
			if err := s.pickRepo.UpdatePoints(ctx, exec, pick.ID, points); err != nil {
				return scored, fmt.Errorf("failed to store points for pick %d: %w", pick.ID, err)
			}
			pick.Points = points
		}
		if ok {
			scored++
		}
	}

	s.logger.InfoContext(ctx, "round scored",
		slog.Int("round_id", round.ID),
		slog.String("stage", round.Stage.ShortName()),
		slog.Int("decided_games", len(decided)),
		slog.Int("picks_scored", scored))
	return scored, nil
}
