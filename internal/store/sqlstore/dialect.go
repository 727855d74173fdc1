package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/ruralpay/ledger/internal/models"
)

// Dialect captures the differences between the supported engines.
// Queries are written with postgres-style $N placeholders.
type Dialect struct {
	Name string

	// LockSuffix is appended to the account row select inside a unit.
	LockSuffix string

	// LockTimeout returns a statement bounding row-lock waits for the current
	// transaction, or "" when the engine has no such setting.
	LockTimeout func(d time.Duration) string

	// Rebind rewrites placeholders for the engine.
	Rebind func(query string) string

	Schema []string
}

var Postgres = Dialect{
	Name:       "postgres",
	LockSuffix: " FOR UPDATE",
	LockTimeout: func(d time.Duration) string {
		if d <= 0 {
			return ""
		}
		return fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", d.Milliseconds())
	},
	Rebind: func(q string) string { return q },
	Schema: postgresSchema,
}

var placeholder = regexp.MustCompile(`\$(\d+)`)

// SQLite runs on a single connection (see database.InitSQLite), so a unit of
// work holds the whole database and units on different accounts serialize.
// With no lock timeout statement, the store bounds the connection wait instead.
var SQLite = Dialect{
	Name:        "sqlite",
	LockSuffix:  "",
	LockTimeout: func(time.Duration) string { return "" },
	Rebind:      func(q string) string { return placeholder.ReplaceAllString(q, "?$1") },
	Schema:      sqliteSchema,
}

// translate maps driver errors onto the ledger error taxonomy.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}

	var ledgerErr *models.LedgerError
	if errors.As(err, &ledgerErr) {
		return err
	}

	if errors.Is(err, sql.ErrNoRows) {
		return models.Wrap(models.ErrNotFound, op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return models.Wrap(models.ErrUnavailable, op, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			return models.Wrap(models.ErrConflict, op, err)
		case "23503": // foreign_key_violation
			return models.Wrap(models.ErrInvalidState, op, err)
		case "55P03", "57014", "40001", "40P01": // lock_not_available, query_canceled, serialization_failure, deadlock_detected
			return models.Wrap(models.ErrUnavailable, op, err)
		}
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch {
		case liteErr.ExtendedCode == sqlite3.ErrConstraintUnique,
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
			return models.Wrap(models.ErrConflict, op, err)
		case liteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey:
			return models.Wrap(models.ErrInvalidState, op, err)
		case liteErr.Code == sqlite3.ErrBusy, liteErr.Code == sqlite3.ErrLocked:
			return models.Wrap(models.ErrUnavailable, op, err)
		}
	}

	return fmt.Errorf("%s: %w", op, err)
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23503"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	return false
}
