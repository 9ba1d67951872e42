package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/bracket-picks/models"
	"github.com/lib/pq"
)

var (
	ErrPickNotFound      = errors.New("pick not found")
	ErrPickUserInvalid   = errors.New("pick user conflict or invalid")
	ErrPickGameInvalid   = errors.New("pick game conflict or invalid")
	ErrPickNegativeWager = errors.New("pick wager must not be negative")
)

type PickRepository interface {
	// Upsert creates the (user, game) pick or overwrites its team and wager. Points are never touched here.
	Upsert(ctx context.Context, exec SQLExecutor, pick *models.Pick) error
	ListByGames(ctx context.Context, exec SQLExecutor, gameIDs []int) ([]*models.Pick, error)
	ListByUser(ctx context.Context, exec SQLExecutor, userID int) ([]*models.Pick, error)
	ListByUserAndRound(ctx context.Context, exec SQLExecutor, userID, roundID int) ([]*models.Pick, error)
	UpdatePoints(ctx context.Context, exec SQLExecutor, id int, points int) error

	// Aggregates. Point sums cover picks in closed rounds only, outcomes cover games with a winner.
	TotalPointsByUser(ctx context.Context, exec SQLExecutor) (map[int]int, error)
	TotalPointsForUser(ctx context.Context, exec SQLExecutor, userID int) (int, error)
	PointsByRoundForUser(ctx context.Context, exec SQLExecutor, userID int) (map[int]int, error)
	OutcomesByUser(ctx context.Context, exec SQLExecutor) (map[int]models.PickOutcome, error)
	OutcomeForUser(ctx context.Context, exec SQLExecutor, userID int) (models.PickOutcome, error)
	CountByUserForRound(ctx context.Context, exec SQLExecutor, roundID int) (map[int]int, error)
	Count(ctx context.Context, exec SQLExecutor) (int, error)
}

type postgresPickRepository struct {
	db *sql.DB
}

func NewPostgresPickRepository(db *sql.DB) PickRepository {
	return &postgresPickRepository{db: db}
}

const pickColumns = `p.id, p.user_id, p.game_id, p.picked_team, p.wager, p.points, p.updated_at`

// Очки считаются только по закрытым раундам; точность только по играм с результатом.
const (
	closedPicksScope = `
		FROM picks p
		JOIN games g ON g.id = p.game_id
		JOIN rounds r ON r.id = g.round_id
		WHERE r.state = 'closed'`
	gradedPicksScope = `
		FROM picks p
		JOIN games g ON g.id = p.game_id
		WHERE g.winner IS NOT NULL`
	outcomeColumns = `COUNT(*) FILTER (WHERE p.picked_team = g.winner), COUNT(*)`

	totalPointsByUserQuery    = `SELECT p.user_id, COALESCE(SUM(p.points), 0)` + closedPicksScope + ` GROUP BY p.user_id`
	totalPointsForUserQuery   = `SELECT COALESCE(SUM(p.points), 0)` + closedPicksScope + ` AND p.user_id = $1`
	pointsByRoundForUserQuery = `SELECT g.round_id, COALESCE(SUM(p.points), 0)` + closedPicksScope + ` AND p.user_id = $1 GROUP BY g.round_id`
	outcomesByUserQuery       = `SELECT p.user_id, ` + outcomeColumns + gradedPicksScope + ` GROUP BY p.user_id`
	outcomeForUserQuery       = `SELECT ` + outcomeColumns + gradedPicksScope + ` AND p.user_id = $1`
)

func (r *postgresPickRepository) Upsert(ctx context.Context, exec SQLExecutor, pick *models.Pick) error {
	query := `
		INSERT INTO picks (user_id, game_id, picked_team, wager)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT ON CONSTRAINT unique_user_game_pick
		DO UPDATE SET picked_team = EXCLUDED.picked_team, wager = EXCLUDED.wager, updated_at = NOW()
		RETURNING id, points, updated_at`

	err := executor(r.db, exec).QueryRowContext(ctx, query, pick.UserID, pick.GameID, pick.PickedTeam, pick.Wager).
		Scan(&pick.ID, &pick.Points, &pick.UpdatedAt)
	if err != nil {
		if _, constraint, ok := constraintViolation(err); ok {
			switch constraint {
			case "picks_user_id_fkey":
				return ErrPickUserInvalid
			case "picks_game_id_fkey":
				return ErrPickGameInvalid
			case "picks_wager_check":
				return ErrPickNegativeWager
			}
		}
		return fmt.Errorf("failed to upsert pick for user %d game %d: %w", pick.UserID, pick.GameID, err)
	}
	return nil
}

func (r *postgresPickRepository) ListByGames(ctx context.Context, exec SQLExecutor, gameIDs []int) ([]*models.Pick, error) {
	if len(gameIDs) == 0 {
		return []*models.Pick{}, nil
	}
	ids := make([]int64, len(gameIDs))
	for i, id := range gameIDs {
		ids[i] = int64(id)
	}
	query := `SELECT ` + pickColumns + ` FROM picks p WHERE p.game_id = ANY($1) ORDER BY p.game_id ASC, p.user_id ASC`
	return r.queryPicks(ctx, exec, query, pq.Int64Array(ids))
}

func (r *postgresPickRepository) ListByUser(ctx context.Context, exec SQLExecutor, userID int) ([]*models.Pick, error) {
	query := `SELECT ` + pickColumns + ` FROM picks p WHERE p.user_id = $1 ORDER BY p.game_id ASC`
	return r.queryPicks(ctx, exec, query, userID)
}

func (r *postgresPickRepository) ListByUserAndRound(ctx context.Context, exec SQLExecutor, userID, roundID int) ([]*models.Pick, error) {
	query := `
		SELECT ` + pickColumns + `
		FROM picks p
		JOIN games g ON g.id = p.game_id
		WHERE p.user_id = $1 AND g.round_id = $2
		ORDER BY p.game_id ASC`
	return r.queryPicks(ctx, exec, query, userID, roundID)
}

func (r *postgresPickRepository) UpdatePoints(ctx context.Context, exec SQLExecutor, id int, points int) error {
	result, err := executor(r.db, exec).ExecContext(ctx, `UPDATE picks SET points = $1 WHERE id = $2`, points, id)
	if err != nil {
		return fmt.Errorf("failed to update points for pick %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrPickNotFound)
}

func (r *postgresPickRepository) TotalPointsByUser(ctx context.Context, exec SQLExecutor) (map[int]int, error) {
	return r.queryIntMap(ctx, exec, totalPointsByUserQuery)
}

func (r *postgresPickRepository) TotalPointsForUser(ctx context.Context, exec SQLExecutor, userID int) (int, error) {
	var total int
	if err := executor(r.db, exec).QueryRowContext(ctx, totalPointsForUserQuery, userID).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum points for user %d: %w", userID, err)
	}
	return total, nil
}

func (r *postgresPickRepository) PointsByRoundForUser(ctx context.Context, exec SQLExecutor, userID int) (map[int]int, error) {
	return r.queryIntMap(ctx, exec, pointsByRoundForUserQuery, userID)
}

func (r *postgresPickRepository) OutcomesByUser(ctx context.Context, exec SQLExecutor) (map[int]models.PickOutcome, error) {
	rows, err := executor(r.db, exec).QueryContext(ctx, outcomesByUserQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query pick outcomes: %w", err)
	}
	defer rows.Close()

	outcomes := make(map[int]models.PickOutcome)
	for rows.Next() {
		var userID int
		var outcome models.PickOutcome
		if err := rows.Scan(&userID, &outcome.Correct, &outcome.Graded); err != nil {
			return nil, fmt.Errorf("failed to scan pick outcome: %w", err)
		}
		outcomes[userID] = outcome
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during pick outcome rows iteration: %w", err)
	}
	return outcomes, nil
}

func (r *postgresPickRepository) OutcomeForUser(ctx context.Context, exec SQLExecutor, userID int) (models.PickOutcome, error) {
	var outcome models.PickOutcome
	if err := executor(r.db, exec).QueryRowContext(ctx, outcomeForUserQuery, userID).Scan(&outcome.Correct, &outcome.Graded); err != nil {
		return models.PickOutcome{}, fmt.Errorf("failed to count outcomes for user %d: %w", userID, err)
	}
	return outcome, nil
}

func (r *postgresPickRepository) CountByUserForRound(ctx context.Context, exec SQLExecutor, roundID int) (map[int]int, error) {
	query := `
		SELECT p.user_id, COUNT(*)
		FROM picks p
		JOIN games g ON g.id = p.game_id
		WHERE g.round_id = $1
		GROUP BY p.user_id`
	return r.queryIntMap(ctx, exec, query, roundID)
}

func (r *postgresPickRepository) Count(ctx context.Context, exec SQLExecutor) (int, error) {
	var count int
	if err := executor(r.db, exec).QueryRowContext(ctx, `SELECT COUNT(*) FROM picks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count picks: %w", err)
	}
	return count, nil
}

func (r *postgresPickRepository) queryPicks(ctx context.Context, exec SQLExecutor, query string, args ...interface{}) ([]*models.Pick, error) {
	rows, err := executor(r.db, exec).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query picks: %w", err)
	}
	defer rows.Close()

	picks := make([]*models.Pick, 0)
	for rows.Next() {
		var p models.Pick
		if err := rows.Scan(&p.ID, &p.UserID, &p.GameID, &p.PickedTeam, &p.Wager, &p.Points, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pick row: %w", err)
		}
		picks = append(picks, &p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during pick rows iteration: %w", err)
	}
	return picks, nil
}

func (r *postgresPickRepository) queryIntMap(ctx context.Context, exec SQLExecutor, query string, args ...interface{}) (map[int]int, error) {
	rows, err := executor(r.db, exec).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run aggregate query: %w", err)
	}
	defer rows.Close()

	result := make(map[int]int)
	for rows.Next() {
		var key, value int
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan aggregate row: %w", err)
		}
		result[key] = value
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during aggregate rows iteration: %w", err)
	}
	return result, nil
}
