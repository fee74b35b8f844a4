// Package sqlstore persists moment summaries in SQLite or PostgreSQL via sqlx.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gospatial/internal"
	apperrors "gospatial/internal/errors"
	"gospatial/internal/migration"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Driver names registered with database/sql
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// DriverFor picks the driver from a DSN: postgres:// and postgresql:// URLs use
// lib/pq, anything else is a SQLite path or file: URI.
func DriverFor(dsn string) string {
	lower := strings.ToLower(dsn)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return DriverPostgres
	}
	return DriverSQLite
}

// Open connects to dsn and verifies the connection
func Open(ctx context.Context, dsn string, logger *internal.Logger) (*sqlx.DB, error) {
	driver := DriverFor(dsn)
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, apperrors.DatabaseError(fmt.Sprintf("failed to connect to %s database", driver), err)
	}
	if driver == DriverSQLite {
		// a single connection serialises writers on the database file
		db.SetMaxOpenConns(1)
	}
	internal.OrDefault(logger).With("sqlstore").Info("connected to %s database", driver)
	return db, nil
}

// OpenAndMigrate opens dsn and brings the schema up to date
func OpenAndMigrate(ctx context.Context, dsn string, logger *internal.Logger) (*sqlx.DB, error) {
	db, err := Open(ctx, dsn, logger)
	if err != nil {
		return nil, err
	}
	if err := migration.NewRunner().Run(ctx, db); err != nil {
		db.Close()
		return nil, apperrors.DatabaseError("failed to run migrations", err)
	}
	return db, nil
}

// isUniqueViolation recognises primary-key and unique-index conflicts of both drivers
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}
