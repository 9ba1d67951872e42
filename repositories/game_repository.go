package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/bracket-picks/models"
)

var (
	ErrGameNotFound     = errors.New("game not found")
	ErrGameRoundInvalid = errors.New("game round conflict or invalid")
	ErrGameWinnerCheck  = errors.New("game winner must match one of its teams")
)

type GameRepository interface {
	Create(ctx context.Context, exec SQLExecutor, game *models.Game) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Game, error)
	// ListByRound returns games in creation order, which is also bracket order.
	ListByRound(ctx context.Context, exec SQLExecutor, roundID int) ([]*models.Game, error)
	UpdateWinner(ctx context.Context, exec SQLExecutor, id int, winner *string) error
	UpdateTeams(ctx context.Context, exec SQLExecutor, game *models.Game) error
}

type postgresGameRepository struct {
	db *sql.DB
}

func NewPostgresGameRepository(db *sql.DB) GameRepository {
	return &postgresGameRepository{db: db}
}

const gameColumns = `id, round_id, team1, team2, team1_seed, team2_seed, region, winner, created_at`

func (r *postgresGameRepository) Create(ctx context.Context, exec SQLExecutor, game *models.Game) error {
	query := `
		INSERT INTO games (round_id, team1, team2, team1_seed, team2_seed, region, winner)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	err := executor(r.db, exec).QueryRowContext(ctx, query,
		game.RoundID,
		game.Team1,
		game.Team2,
		game.Team1Seed,
		game.Team2Seed,
		game.Region,
		game.Winner,
	).Scan(&game.ID, &game.CreatedAt)
	return r.handleGameError(err)
}

func (r *postgresGameRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Game, error) {
	query := `SELECT ` + gameColumns + ` FROM games WHERE id = $1`
	return r.scanGame(executor(r.db, exec).QueryRowContext(ctx, query, id))
}

func (r *postgresGameRepository) ListByRound(ctx context.Context, exec SQLExecutor, roundID int) ([]*models.Game, error) {
	query := `SELECT ` + gameColumns + ` FROM games WHERE round_id = $1 ORDER BY id ASC`
	rows, err := executor(r.db, exec).QueryContext(ctx, query, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to query games for round %d: %w", roundID, err)
	}
	defer rows.Close()

	games := make([]*models.Game, 0)
	for rows.Next() {
		game, scanErr := r.scanGame(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		games = append(games, game)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during game rows iteration: %w", err)
	}
	return games, nil
}

func (r *postgresGameRepository) UpdateWinner(ctx context.Context, exec SQLExecutor, id int, winner *string) error {
	result, err := executor(r.db, exec).ExecContext(ctx, `UPDATE games SET winner = $1 WHERE id = $2`, winner, id)
	if err != nil {
		return r.handleGameError(err)
	}
	return checkAffectedRows(result, ErrGameNotFound)
}

func (r *postgresGameRepository) UpdateTeams(ctx context.Context, exec SQLExecutor, game *models.Game) error {
	query := `UPDATE games SET team1 = $1, team2 = $2, winner = $3 WHERE id = $4`
	result, err := executor(r.db, exec).ExecContext(ctx, query, game.Team1, game.Team2, game.Winner, game.ID)
	if err != nil {
		return r.handleGameError(err)
	}
	return checkAffectedRows(result, ErrGameNotFound)
}

func (r *postgresGameRepository) handleGameError(err error) error {
	if err == nil {
		return nil
	}
	if _, constraint, ok := constraintViolation(err); ok {
		switch constraint {
		case "games_round_id_fkey":
			return ErrGameRoundInvalid
		case "games_winner_check":
			return ErrGameWinnerCheck
		}
	}
	return fmt.Errorf("game query failed: %w", err)
}

func (r *postgresGameRepository) scanGame(row rowScanner) (*models.Game, error) {
	var game models.Game
	err := row.Scan(
		&game.ID,
		&game.RoundID,
		&game.Team1,
		&game.Team2,
		&game.Team1Seed,
		&game.Team2Seed,
		&game.Region,
		&game.Winner,
		&game.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGameNotFound
		}
		return nil, fmt.Errorf("failed to scan game: %w", err)
	}
	return &game, nil
}
