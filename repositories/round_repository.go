package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/bracket-picks/models"
)

var ErrRoundNotFound = errors.New("round not found")

type RoundRepository interface {
	// CreateIfAbsent inserts the round unless one with the same stage exists.
	// created is false when the stage was already taken; round is left untouched then.
	CreateIfAbsent(ctx context.Context, exec SQLExecutor, round *models.Round) (created bool, err error)
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Round, error)
	GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Round, error)
	GetByStage(ctx context.Context, exec SQLExecutor, stage models.Stage) (*models.Round, error)
	List(ctx context.Context, exec SQLExecutor) ([]*models.Round, error)
	Update(ctx context.Context, exec SQLExecutor, round *models.Round) error
}

type postgresRoundRepository struct {
	db *sql.DB
}

func NewPostgresRoundRepository(db *sql.DB) RoundRepository {
	return &postgresRoundRepository{db: db}
}

const roundColumns = `id, stage, point_value, state, created_at`

func (r *postgresRoundRepository) CreateIfAbsent(ctx context.Context, exec SQLExecutor, round *models.Round) (bool, error) {
	query := `
		INSERT INTO rounds (stage, point_value, state)
		VALUES ($1, $2, $3)
		ON CONFLICT (stage) DO NOTHING
		RETURNING id, created_at`

	err := executor(r.db, exec).QueryRowContext(ctx, query, round.Stage, round.PointValue, round.State).
		Scan(&round.ID, &round.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert round %s: %w", round.Stage, err)
	}
	return true, nil
}

func (r *postgresRoundRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Round, error) {
	query := `SELECT ` + roundColumns + ` FROM rounds WHERE id = $1`
	return r.scanRound(executor(r.db, exec).QueryRowContext(ctx, query, id))
}

func (r *postgresRoundRepository) GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Round, error) {
	query := `SELECT ` + roundColumns + ` FROM rounds WHERE id = $1 FOR UPDATE`
	return r.scanRound(executor(r.db, exec).QueryRowContext(ctx, query, id))
}

func (r *postgresRoundRepository) GetByStage(ctx context.Context, exec SQLExecutor, stage models.Stage) (*models.Round, error) {
	query := `SELECT ` + roundColumns + ` FROM rounds WHERE stage = $1`
	return r.scanRound(executor(r.db, exec).QueryRowContext(ctx, query, stage))
}

func (r *postgresRoundRepository) List(ctx context.Context, exec SQLExecutor) ([]*models.Round, error) {
	query := `SELECT ` + roundColumns + ` FROM rounds ORDER BY stage ASC`
	rows, err := executor(r.db, exec).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query rounds: %w", err)
	}
	defer rows.Close()

	rounds := make([]*models.Round, 0, len(models.Stages()))
	for rows.Next() {
		round, scanErr := r.scanRound(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		rounds = append(rounds, round)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during round rows iteration: %w", err)
	}
	return rounds, nil
}

func (r *postgresRoundRepository) Update(ctx context.Context, exec SQLExecutor, round *models.Round) error {
	query := `UPDATE rounds SET point_value = $1, state = $2 WHERE id = $3`
	result, err := executor(r.db, exec).ExecContext(ctx, query, round.PointValue, round.State, round.ID)
	if err != nil {
		return fmt.Errorf("failed to update round %d: %w", round.ID, err)
	}
	return checkAffectedRows(result, ErrRoundNotFound)
}

func (r *postgresRoundRepository) scanRound(row rowScanner) (*models.Round, error) {
	var round models.Round
	err := row.Scan(&round.ID, &round.Stage, &round.PointValue, &round.State, &round.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoundNotFound
		}
		return nil, fmt.Errorf("failed to scan round: %w", err)
	}
	return &round, nil
}
