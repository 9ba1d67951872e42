package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/Dosada05/bracket-picks/repositories"
)

// TxManager runs a unit of work inside one database transaction.
type TxManager struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewTxManager(db *sql.DB, logger *slog.Logger) *TxManager {
	return &TxManager{db: db, logger: logger}
}

// WithinTx commits when fn returns nil and rolls back on error or panic.
func (m *TxManager) WithinTx(ctx context.Context, fn func(exec repositories.SQLExecutor) error) (txErr error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if txErr != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				m.logger.ErrorContext(ctx, "rollback failed", slog.Any("error", rbErr), slog.Any("cause", txErr))
				txErr = fmt.Errorf("transaction processing error: %w (rollback also failed: %v)", txErr, rbErr)
			}
		} else if cErr := tx.Commit(); cErr != nil {
			txErr = fmt.Errorf("failed to commit transaction: %w", cErr)
		}
	}()

	txErr = fn(tx)
	return txErr
}
