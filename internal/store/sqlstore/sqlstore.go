// Package sqlstore implements store.Store on database/sql.
//
// Units of work map onto database transactions: WithinAccount begins a
// transaction, bounds lock waits, locks the account row and commits when the
// callback succeeds.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/store"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db          *sql.DB
	q           querier
	tx          *sql.Tx
	dialect     Dialect
	lockTimeout time.Duration
	locked      map[uuid.UUID]bool
}

type Option func(*Store)

// WithLockTimeout bounds how long a unit waits for an account row lock.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

func New(db *sql.DB, dialect Dialect, opts ...Option) *Store {
	s := &Store{
		db:          db,
		q:           db,
		dialect:     dialect,
		lockTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func NewPostgres(db *sql.DB, opts ...Option) *Store { return New(db, Postgres, opts...) }

func NewSQLite(db *sql.DB, opts ...Option) *Store { return New(db, SQLite, opts...) }

var _ store.Store = (*Store)(nil)

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.q.ExecContext(ctx, s.dialect.Rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.q.QueryContext(ctx, s.dialect.Rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.q.QueryRowContext(ctx, s.dialect.Rebind(query), args...)
}

func (s *Store) WithinAccount(ctx context.Context, accountID uuid.UUID, fn func(tx store.Store) error) error {
	if s.tx != nil {
		if err := s.lockAccount(ctx, accountID); err != nil {
			return err
		}
		return fn(s)
	}

	return s.inTx(ctx, func(scoped *Store) error {
		if err := scoped.lockAccount(ctx, accountID); err != nil {
			return err
		}
		return fn(scoped)
	})
}

// inTx runs fn in a database transaction. Scoped stores reuse the open one.
func (s *Store) inTx(ctx context.Context, fn func(scoped *Store) error) error {
	if s.tx != nil {
		return fn(s)
	}

	stmt := s.dialect.LockTimeout(s.lockTimeout)

	var (
		tx  *sql.Tx
		err error
	)
	if stmt == "" {
		// No server-side lock timeout: the wait is for a pooled connection,
		// so bound that instead.
		conn, err := s.acquireConn(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()
		tx, err = conn.BeginTx(ctx, nil)
		if err != nil {
			return translate("begin", err)
		}
	} else {
		tx, err = s.db.BeginTx(ctx, nil)
		if err != nil {
			return translate("begin", err)
		}
	}
	defer tx.Rollback()

	scoped := &Store{
		db:          s.db,
		q:           tx,
		tx:          tx,
		dialect:     s.dialect,
		lockTimeout: s.lockTimeout,
		locked:      make(map[uuid.UUID]bool),
	}

	if stmt != "" {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return translate("lock_timeout", err)
		}
	}

	if err := fn(scoped); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		log.Printf("[STORE] commit failed: %v", err)
		return translate("commit", err)
	}
	return nil
}

// acquireConn waits at most lockTimeout for a connection from the pool.
func (s *Store) acquireConn(ctx context.Context) (*sql.Conn, error) {
	waitCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	conn, err := s.db.Conn(waitCtx)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, models.Unavailable("lock", "no connection within %s", s.lockTimeout)
		}
		return nil, translate("lock", err)
	}
	return conn, nil
}

// lockAccount takes the account row lock once per unit.
func (s *Store) lockAccount(ctx context.Context, id uuid.UUID) error {
	if s.locked[id] {
		return nil
	}
	var got string
	err := s.queryRow(ctx, "SELECT id FROM accounts WHERE id = $1"+s.dialect.LockSuffix, id.String()).Scan(&got)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.NotFound("accounts.lock", "account %s not found", id)
		}
		return translate("accounts.lock", err)
	}
	s.locked[id] = true
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func rowsAffected(res sql.Result) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}

func utc(t time.Time) time.Time { return t.UTC() }

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
