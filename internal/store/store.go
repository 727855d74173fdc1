// Package store defines the persistence contracts for accounts and transactions.
//
// Implementations:
//   - store/memory:   in-process maps, per-account semaphores (tests, dev)
//   - store/sqlstore: database/sql over postgres (lib/pq) or sqlite (go-sqlite3)
//
// All errors returned wrap one of the models sentinels (ErrNotFound, ErrConflict,
// ErrInvalidState, ErrUnavailable).
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/shopspring/decimal"
)

// AccountStore owns account records.
type AccountStore interface {
	GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetAccountByNumber(ctx context.Context, number string) (*models.Account, error)
	ListAccountsByOwner(ctx context.Context, userID uuid.UUID) ([]*models.Account, error)
	AccountNumberExists(ctx context.Context, number string) (bool, error)

	// CreateAccount fails with ErrConflict if the account number is taken.
	CreateAccount(ctx context.Context, acct *models.Account) error

	// UpdateAccount writes the mutable profile fields (type, active flag,
	// description, last update stamp). It never writes the balance.
	UpdateAccount(ctx context.Context, acct *models.Account) error

	// DeleteAccount returns false if the account does not exist and
	// ErrInvalidState if its balance is non-zero or transactions reference it.
	DeleteAccount(ctx context.Context, id uuid.UUID) (bool, error)

	// ApplyBalanceDelta is the only operation that mutates a balance.
	// On a root store it runs in its own exclusive section; on a store handed
	// out by WithinAccount it joins that section.
	// Fails with ErrNotFound if the account is gone, ErrInvalidState if inactive.
	ApplyBalanceDelta(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal) (*models.Account, error)
}

// TransactionStore owns transaction records.
type TransactionStore interface {
	GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	GetTransactionByNumber(ctx context.Context, number string) (*models.Transaction, error)

	// TransactionNumberExists checks every number ever issued, including
	// numbers of transactions that were later deleted.
	TransactionNumberExists(ctx context.Context, number string) (bool, error)

	// CreateTransaction registers the number and inserts the record as one unit.
	// Fails with ErrConflict if the number was ever issued before.
	CreateTransaction(ctx context.Context, txn *models.Transaction) error

	// UpdateTransaction replaces the stored record.
	UpdateTransaction(ctx context.Context, txn *models.Transaction) error

	// DeleteTransaction removes the record; false if it did not exist.
	// The issued number stays registered.
	DeleteTransaction(ctx context.Context, id uuid.UUID) (bool, error)

	// Listings are ordered by TransactionDate, newest first.
	ListTransactionsByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.Transaction, error)
	ListTransactionsByUser(ctx context.Context, userID uuid.UUID) ([]*models.Transaction, error)
	ListTransactionsByDateRange(ctx context.Context, accountID uuid.UUID, from, to time.Time) ([]*models.Transaction, error)

	// SumCompleted is the signed total of every Completed transaction on the account.
	SumCompleted(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error)
}

// Store combines both record stores with the per-account unit of work.
type Store interface {
	AccountStore
	TransactionStore

	// WithinAccount runs fn with exclusive write access to accountID.
	// Writes made through the Store passed to fn commit together when fn
	// returns nil and are discarded otherwise. Waiting for the section is
	// bounded by ctx; a timeout surfaces as ErrUnavailable.
	// fn must use only the Store it is given.
	WithinAccount(ctx context.Context, accountID uuid.UUID, fn func(tx Store) error) error
}
