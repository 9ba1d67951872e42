package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Dosada05/bracket-picks/brackets"
	"github.com/Dosada05/bracket-picks/metrics"
	"github.com/Dosada05/bracket-picks/models"
	"github.com/Dosada05/bracket-picks/repositories"
)

type RoundService interface {
	AdvanceRound(ctx context.Context, roundID int) (*AdvanceResult, error)
	RecordWinner(ctx context.Context, gameID int, winner string) (*models.Game, error)
	RecordWinners(ctx context.Context, roundID int, winners map[int]string) ([]*models.Game, error)
	SetGameTeams(ctx context.Context, gameID int, team1, team2 string) (*models.Game, error)
	UpdateRound(ctx context.Context, roundID int, update RoundUpdate) (*models.Round, error)
	GetRound(ctx context.Context, roundID int) (*models.Round, error)
	ListRounds(ctx context.Context) ([]*models.Round, error)
	CurrentRound(ctx context.Context) (*models.Round, error)
}

// AdvanceResult is the successor round. Created is false when it already existed.
type AdvanceResult struct {
	Round   *models.Round  `json:"round"`
	Games   []*models.Game `json:"-"`
	Created bool           `json:"created"`
}

// RoundUpdate: nil fields are left unchanged.
type RoundUpdate struct {
	State      *models.RoundState `json:"state"`
	PointValue *int               `json:"point_value"`
}

type roundService struct {
	tx          Transactor
	roundRepo   repositories.RoundRepository
	gameRepo    repositories.GameRepository
	scoring     ScoringService
	generator   brackets.BracketGenerator
	broadcaster Broadcaster
	metrics     metrics.Recorder
	logger      *slog.Logger
}

func NewRoundService(
	tx Transactor,
	roundRepo repositories.RoundRepository,
	gameRepo repositories.GameRepository,
	scoring ScoringService,
	broadcaster Broadcaster,
	recorder metrics.Recorder,
	logger *slog.Logger,
) RoundService {
	if broadcaster == nil {
		broadcaster = noopBroadcaster{}
	}
	if recorder == nil {
		recorder = metrics.NoOp{}
	}
	return &roundService{
		tx:          tx,
		roundRepo:   roundRepo,
		gameRepo:    gameRepo,
		scoring:     scoring,
		generator:   brackets.NewSingleEliminationGenerator(),
		broadcaster: broadcaster,
		metrics:     recorder,
		logger:      logger,
	}
}

func (s *roundService) AdvanceRound(ctx context.Context, roundID int) (*AdvanceResult, error) {
	var (
		result *AdvanceResult
		source *models.Round
		scored int
	)

	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		round, err := s.roundRepo.GetByIDForUpdate(ctx, exec, roundID)
		if err != nil {
			return handleRepositoryError(err)
		}
		source = round

		games, err := s.gameRepo.ListByRound(ctx, exec, round.ID)
		if err != nil {
			return fmt.Errorf("failed to list games for round %d: %w", round.ID, err)
		}
		if len(games) == 0 {
			return fmt.Errorf("%w: round %d has no games", ErrRoundIncomplete, round.ID)
		}
		for _, g := range games {
			if !g.Decided() {
				return fmt.Errorf("%w: game %d (%s)", ErrRoundIncomplete, g.ID, g.DisplayName())
			}
		}

		next, err := s.generator.GenerateNextRound(ctx, brackets.GenerateNextRoundParams{Current: round, Games: games})
		if err != nil {
			if errors.Is(err, brackets.ErrNoSuccessorStage) {
				return ErrNoSuccessorRound
			}
			return fmt.Errorf("failed to generate successor of round %d: %w", round.ID, err)
		}

		if !round.State.IsClosed() {
			round.State = models.RoundClosed
			if err := s.roundRepo.Update(ctx, exec, round); err != nil {
				return fmt.Errorf("failed to close round %d: %w", round.ID, handleRepositoryError(err))
			}
		}

		if scored, err = s.scoring.ScoreRound(ctx, exec, round); err != nil {
			return err
		}

		existing, err := s.roundRepo.GetByStage(ctx, exec, next.Stage)
		switch {
		case err == nil:
			result, err = s.existingSuccessor(ctx, exec, existing)
			return err
		case !errors.Is(err, repositories.ErrRoundNotFound):
			return fmt.Errorf("failed to look up %s round: %w", next.Stage, err)
		}

		successor := &models.Round{
			Stage:      next.Stage,
			PointValue: next.PointValue,
			State:      models.RoundOpen,
		}
		created, err := s.roundRepo.CreateIfAbsent(ctx, exec, successor)
		if err != nil {
			return fmt.Errorf("failed to create %s round: %w", next.Stage, err)
		}
		if !created {
			// Параллельный запрос успел создать раунд раньше.
			existing, err := s.roundRepo.GetByStage(ctx, exec, next.Stage)
			if err != nil {
				return fmt.Errorf("failed to re-read %s round: %w", next.Stage, handleRepositoryError(err))
			}
			result, err = s.existingSuccessor(ctx, exec, existing)
			return err
		}

		sources := make(map[int]*models.Game, len(games))
		for _, g := range games {
			sources[g.ID] = g
		}

		newGames := make([]*models.Game, 0, len(next.Matchups))
		for _, m := range next.Matchups {
			g1, g2 := sources[m.SourceGame1ID], sources[m.SourceGame2ID]
			game := &models.Game{
				RoundID:   successor.ID,
				Team1:     m.Team1,
				Team2:     m.Team2,
				Team1Seed: winnerSeed(g1),
				Team2Seed: winnerSeed(g2),
			}
			if g1.Region != nil && g2.Region != nil && *g1.Region == *g2.Region {
				region := *g1.Region
				game.Region = &region
			}
			if err := s.gameRepo.Create(ctx, exec, game); err != nil {
				return fmt.Errorf("failed to create game %d of %s round: %w", m.Slot, next.Stage, err)
			}
			newGames = append(newGames, game)
		}

		successor.Games = newGames
		result = &AdvanceResult{Round: successor, Games: newGames, Created: true}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RoundScored(source.Stage, scored)
	s.metrics.RoundAdvanced(source.Stage, result.Created)
	s.logger.InfoContext(ctx, "round advanced",
		slog.Int("round_id", source.ID),
		slog.String("stage", source.Stage.ShortName()),
		slog.Int("successor_id", result.Round.ID),
		slog.Bool("created", result.Created),
		slog.Int("games", len(result.Games)))

	s.broadcaster.Publish(brackets.EventRoundAdvanced, RoundEventPayload{
		RoundID:     source.ID,
		Stage:       source.Stage,
		State:       source.State,
		SuccessorID: result.Round.ID,
	})
	s.broadcaster.Publish(brackets.EventLeaderboardChanged, nil)
	return result, nil
}

func (s *roundService) existingSuccessor(ctx context.Context, exec repositories.SQLExecutor, round *models.Round) (*AdvanceResult, error) {
	s.logger.InfoContext(ctx, "successor round already exists",
		slog.Int("round_id", round.ID),
		slog.String("stage", round.Stage.ShortName()),
		slog.Any("notice", ErrDuplicateRound))

	games, err := s.gameRepo.ListByRound(ctx, exec, round.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list games for round %d: %w", round.ID, err)
	}
	round.Games = games
	return &AdvanceResult{Round: round, Games: games, Created: false}, nil
}

func winnerSeed(g *models.Game) *int {
	if g == nil || !g.Decided() {
		return nil
	}
	var seed *int
	if *g.Winner == g.Team1 {
		seed = g.Team1Seed
	} else {
		seed = g.Team2Seed
	}
	if seed == nil {
		return nil
	}
	v := *seed
	return &v
}

// notScored marks that no scoring pass ran in the transaction.
const notScored = -1

// recordScored is called after commit so a rolled back pass is never counted.
func (s *roundService) recordScored(stage models.Stage, picks int) {
	if picks == notScored {
		return
	}
	s.metrics.RoundScored(stage, picks)
}

func (s *roundService) RecordWinner(ctx context.Context, gameID int, winner string) (*models.Game, error) {
	var (
		game   *models.Game
		round  *models.Round
		scored = notScored
	)
	winner = strings.TrimSpace(winner)

	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		var err error
		game, err = s.gameRepo.GetByID(ctx, exec, gameID)
		if err != nil {
			return handleRepositoryError(err)
		}
		round, err = s.roundRepo.GetByIDForUpdate(ctx, exec, game.RoundID)
		if err != nil {
			return handleRepositoryError(err)
		}

		if err := s.applyWinner(ctx, exec, game, winner); err != nil {
			return err
		}

		if round.State.IsClosed() {
			if scored, err = s.scoring.ScoreRound(ctx, exec, round); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.WinnerRecorded(round.Stage)
	s.recordScored(round.Stage, scored)
	s.logger.InfoContext(ctx, "winner recorded",
		slog.Int("game_id", game.ID),
		slog.Int("round_id", round.ID),
		slog.String("winner", derefString(game.Winner)))
	s.publishWinners(round, []*models.Game{game})
	return game, nil
}

func (s *roundService) RecordWinners(ctx context.Context, roundID int, winners map[int]string) ([]*models.Game, error) {
	if len(winners) == 0 {
		return nil, fmt.Errorf("%w: no winners given", ErrValidationFailed)
	}

	var (
		round   *models.Round
		games   []*models.Game
		changed []*models.Game
		scored  = notScored
	)
	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		var err error
		round, err = s.roundRepo.GetByIDForUpdate(ctx, exec, roundID)
		if err != nil {
			return handleRepositoryError(err)
		}
		games, err = s.gameRepo.ListByRound(ctx, exec, round.ID)
		if err != nil {
			return fmt.Errorf("failed to list games for round %d: %w", round.ID, err)
		}

		byID := make(map[int]*models.Game, len(games))
		for _, g := range games {
			byID[g.ID] = g
		}

		// Сначала проверяем все, затем пишем.
		for gameID, winner := range winners {
			game, ok := byID[gameID]
			if !ok {
				return fmt.Errorf("%w: game %d is not part of round %d", ErrGameNotFound, gameID, round.ID)
			}
			if w := strings.TrimSpace(winner); w != "" && !game.HasTeam(w) {
				return fmt.Errorf("%w: %q does not play in game %d", ErrInvalidWinner, w, gameID)
			}
		}

		for _, game := range games {
			winner, ok := winners[game.ID]
			if !ok {
				continue
			}
			if err := s.applyWinner(ctx, exec, game, strings.TrimSpace(winner)); err != nil {
				return err
			}
			changed = append(changed, game)
		}

		if round.State.IsClosed() {
			if scored, err = s.scoring.ScoreRound(ctx, exec, round); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for range changed {
		s.metrics.WinnerRecorded(round.Stage)
	}
	s.recordScored(round.Stage, scored)
	s.logger.InfoContext(ctx, "winners recorded", slog.Int("round_id", round.ID), slog.Int("games", len(changed)))
	s.publishWinners(round, changed)
	return games, nil
}

// applyWinner sets or, for an empty winner, clears the game result.
func (s *roundService) applyWinner(ctx context.Context, exec repositories.SQLExecutor, game *models.Game, winner string) error {
	var value *string
	if winner != "" {
		if !game.HasTeam(winner) {
			return fmt.Errorf("%w: %q does not play in game %d", ErrInvalidWinner, winner, game.ID)
		}
		value = &winner
	}
	if err := s.gameRepo.UpdateWinner(ctx, exec, game.ID, value); err != nil {
		return fmt.Errorf("failed to store winner of game %d: %w", game.ID, handleRepositoryError(err))
	}
	game.Winner = value
	return nil
}

func (s *roundService) publishWinners(round *models.Round, games []*models.Game) {
	for _, g := range games {
		s.broadcaster.Publish(brackets.EventWinnerRecorded, WinnerEventPayload{
			RoundID: round.ID,
			GameID:  g.ID,
			Winner:  g.Winner,
		})
	}
	if round.State.IsClosed() {
		s.broadcaster.Publish(brackets.EventLeaderboardChanged, nil)
	}
}

func (s *roundService) SetGameTeams(ctx context.Context, gameID int, team1, team2 string) (*models.Game, error) {
	team1, team2 = strings.TrimSpace(team1), strings.TrimSpace(team2)
	if team1 == "" || team2 == "" {
		return nil, fmt.Errorf("%w: both teams are required", ErrInvalidTeams)
	}
	if team1 == team2 {
		return nil, fmt.Errorf("%w: a team cannot play itself", ErrInvalidTeams)
	}

	var (
		game   *models.Game
		round  *models.Round
		scored = notScored
	)
	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		var err error
		game, err = s.gameRepo.GetByID(ctx, exec, gameID)
		if err != nil {
			return handleRepositoryError(err)
		}
		round, err = s.roundRepo.GetByIDForUpdate(ctx, exec, game.RoundID)
		if err != nil {
			return handleRepositoryError(err)
		}

		prevStage, ok := round.Stage.Previous()
		if !ok {
			return fmt.Errorf("%w: first round teams cannot be overridden", ErrInvalidTeams)
		}
		prev, err := s.roundRepo.GetByStage(ctx, exec, prevStage)
		if err != nil {
			if errors.Is(err, repositories.ErrRoundNotFound) {
				return fmt.Errorf("%w: %s round does not exist", ErrInvalidTeams, prevStage)
			}
			return fmt.Errorf("failed to load %s round: %w", prevStage, err)
		}
		prevGames, err := s.gameRepo.ListByRound(ctx, exec, prev.ID)
		if err != nil {
			return fmt.Errorf("failed to list games for round %d: %w", prev.ID, err)
		}

		advanced := make(map[string]bool, len(prevGames))
		for _, g := range prevGames {
			if g.Decided() {
				advanced[*g.Winner] = true
			}
		}
		for _, team := range []string{team1, team2} {
			if !advanced[team] {
				return fmt.Errorf("%w: %q did not win a %s game", ErrInvalidTeams, team, prevStage)
			}
		}

		game.Team1, game.Team2 = team1, team2
		game.Team1Seed, game.Team2Seed = nil, nil
		for _, g := range prevGames {
			if g.Decided() && *g.Winner == team1 {
				game.Team1Seed = winnerSeed(g)
			}
			if g.Decided() && *g.Winner == team2 {
				game.Team2Seed = winnerSeed(g)
			}
		}
		if game.Decided() && !game.HasTeam(*game.Winner) {
			game.Winner = nil
		}

		if err := s.gameRepo.UpdateTeams(ctx, exec, game); err != nil {
			return fmt.Errorf("failed to update teams of game %d: %w", game.ID, handleRepositoryError(err))
		}

		if round.State.IsClosed() {
			if scored, err = s.scoring.ScoreRound(ctx, exec, round); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordScored(round.Stage, scored)
	s.logger.InfoContext(ctx, "game teams overridden",
		slog.Int("game_id", game.ID),
		slog.String("team1", game.Team1),
		slog.String("team2", game.Team2))
	s.broadcaster.Publish(brackets.EventRoundUpdated, RoundEventPayload{RoundID: game.RoundID})
	return game, nil
}

func (s *roundService) UpdateRound(ctx context.Context, roundID int, update RoundUpdate) (*models.Round, error) {
	if update.PointValue != nil && *update.PointValue <= 0 {
		return nil, ErrInvalidPointValue
	}
	if update.State != nil && !update.State.Valid() {
		return nil, fmt.Errorf("%w: unknown round state '%s'", ErrValidationFailed, *update.State)
	}

	var (
		round  *models.Round
		scored = notScored
	)
	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		var err error
		round, err = s.roundRepo.GetByIDForUpdate(ctx, exec, roundID)
		if err != nil {
			return handleRepositoryError(err)
		}

		if update.State != nil {
			if !isValidRoundStateTransition(round.State, *update.State) {
				return fmt.Errorf("%w: from '%s' to '%s'", ErrInvalidRoundStateTransition, round.State, *update.State)
			}
			round.State = *update.State
		}
		if update.PointValue != nil {
			round.PointValue = *update.PointValue
		}

		if err := s.roundRepo.Update(ctx, exec, round); err != nil {
			return fmt.Errorf("failed to update round %d: %w", round.ID, handleRepositoryError(err))
		}

		if round.State.IsClosed() {
			if scored, err = s.scoring.ScoreRound(ctx, exec, round); err != nil {
				return err
			}
		}

		round.Games, err = s.gameRepo.ListByRound(ctx, exec, round.ID)
		if err != nil {
			return fmt.Errorf("failed to list games for round %d: %w", round.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordScored(round.Stage, scored)
	s.logger.InfoContext(ctx, "round updated",
		slog.Int("round_id", round.ID),
		slog.String("state", string(round.State)),
		slog.Int("point_value", round.PointValue))
	s.broadcaster.Publish(brackets.EventRoundUpdated, RoundEventPayload{
		RoundID: round.ID,
		Stage:   round.Stage,
		State:   round.State,
	})
	s.broadcaster.Publish(brackets.EventLeaderboardChanged, nil)
	return round, nil
}

func (s *roundService) GetRound(ctx context.Context, roundID int) (*models.Round, error) {
	round, err := s.roundRepo.GetByID(ctx, nil, roundID)
	if err != nil {
		return nil, handleRepositoryError(err)
	}
	round.Games, err = s.gameRepo.ListByRound(ctx, nil, round.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list games for round %d: %w", round.ID, err)
	}
	return round, nil
}

func (s *roundService) ListRounds(ctx context.Context) ([]*models.Round, error) {
	rounds, err := s.roundRepo.List(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list rounds: %w", err)
	}
	for _, r := range rounds {
		r.Games, err = s.gameRepo.ListByRound(ctx, nil, r.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list games for round %d: %w", r.ID, err)
		}
	}
	if rounds == nil {
		return []*models.Round{}, nil
	}
	return rounds, nil
}

// CurrentRound is the earliest round still accepting picks.
func (s *roundService) CurrentRound(ctx context.Context) (*models.Round, error) {
	rounds, err := s.roundRepo.List(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list rounds: %w", err)
	}
	for _, r := range rounds {
		if r.State.AcceptsPicks() {
			r.Games, err = s.gameRepo.ListByRound(ctx, nil, r.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to list games for round %d: %w", r.ID, err)
			}
			return r, nil
		}
	}
	return nil, ErrNoOpenRound
}
