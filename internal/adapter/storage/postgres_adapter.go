package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rl1809/card-shop/internal/core/domain"
)

// SQLSTATE codes.
const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

// NewPostgresAdapter expects db opened with the pgx stdlib driver.
func NewPostgresAdapter(db *sql.DB) *SQLAdapter {
	return &SQLAdapter{
		db: db,
		dialect: dialect{
			name:      "postgres",
			numbered:  true,
			returning: true,
			classify:  classifyPostgres,
		},
	}
}

func classifyPostgres(err error) error {
	var pe *pgconn.PgError
	if !errors.As(err, &pe) {
		return err
	}
	switch pe.Code {
	case pgUniqueViolation, pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
		return fmt.Errorf("%w: %v", domain.ErrConflict, err)
	case pgForeignKeyViolation:
		return fmt.Errorf("%w: %v", domain.ErrNotFound, err)
	}
	return err
}
