package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/bracket-picks/models"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrUserUsernameConflict = errors.New("username conflict")
)

type UserRepository interface {
	Create(ctx context.Context, exec SQLExecutor, user *models.User) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.User, error)
	GetByUsername(ctx context.Context, exec SQLExecutor, username string) (*models.User, error)
	List(ctx context.Context, exec SQLExecutor) ([]*models.User, error)
	UpdateProfile(ctx context.Context, exec SQLExecutor, user *models.User) error
	Count(ctx context.Context, exec SQLExecutor) (int, error)
}

type postgresUserRepository struct {
	db *sql.DB
}

func NewPostgresUserRepository(db *sql.DB) UserRepository {
	return &postgresUserRepository{db: db}
}

const userColumns = `id, username, password_hash, is_admin, fun_name, bio, picture_key, created_at`

func (r *postgresUserRepository) Create(ctx context.Context, exec SQLExecutor, user *models.User) error {
	query := `
		INSERT INTO users (username, password_hash, is_admin, fun_name, bio, picture_key)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	err := executor(r.db, exec).QueryRowContext(ctx, query,
		user.Username,
		user.PasswordHash,
		user.IsAdmin,
		user.FunName,
		user.Bio,
		user.PictureKey,
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		if _, constraint, ok := constraintViolation(err); ok && constraint == "users_username_key" {
			return ErrUserUsernameConflict
		}
		return fmt.Errorf("failed to insert user %q: %w", user.Username, err)
	}
	return nil
}

func (r *postgresUserRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(executor(r.db, exec).QueryRowContext(ctx, query, id))
}

func (r *postgresUserRepository) GetByUsername(ctx context.Context, exec SQLExecutor, username string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return r.scanUser(executor(r.db, exec).QueryRowContext(ctx, query, username))
}

func (r *postgresUserRepository) List(ctx context.Context, exec SQLExecutor) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY username ASC`
	rows, err := executor(r.db, exec).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	users := make([]*models.User, 0)
	for rows.Next() {
		user, scanErr := r.scanUser(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		users = append(users, user)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during user rows iteration: %w", err)
	}
	return users, nil
}

func (r *postgresUserRepository) UpdateProfile(ctx context.Context, exec SQLExecutor, user *models.User) error {
	query := `UPDATE users SET fun_name = $1, bio = $2, picture_key = $3 WHERE id = $4`
	result, err := executor(r.db, exec).ExecContext(ctx, query, user.FunName, user.Bio, user.PictureKey, user.ID)
	if err != nil {
		return fmt.Errorf("failed to update user %d: %w", user.ID, err)
	}
	return checkAffectedRows(result, ErrUserNotFound)
}

func (r *postgresUserRepository) Count(ctx context.Context, exec SQLExecutor) (int, error) {
	var count int
	if err := executor(r.db, exec).QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

func (r *postgresUserRepository) scanUser(row rowScanner) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.IsAdmin,
		&user.FunName,
		&user.Bio,
		&user.PictureKey,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &user, nil
}
