package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/card-shop/internal/core/domain"
)

// MySQL server error numbers.
const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
	mysqlErrNoReferencedRow = 1452
)

func NewMySQLAdapter(db *sql.DB) *SQLAdapter {
	return &SQLAdapter{
		db: db,
		dialect: dialect{
			name:     "mysql",
			classify: classifyMySQL,
		},
	}
}

func classifyMySQL(err error) error {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return err
	}
	switch me.Number {
	case mysqlErrDuplicateEntry, mysqlErrLockWaitTimeout, mysqlErrDeadlock:
		return fmt.Errorf("%w: %v", domain.ErrConflict, err)
	case mysqlErrNoReferencedRow:
		return fmt.Errorf("%w: %v", domain.ErrNotFound, err)
	}
	return err
}
