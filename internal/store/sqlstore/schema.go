package sqlstore

import (
	"context"
	"fmt"
	"log"
)

// transaction_numbers is the issued-number registry. Rows are never deleted,
// so a number stays taken after its transaction is purged.
var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id         UUID PRIMARY KEY,
		email      VARCHAR(100) NOT NULL UNIQUE,
		first_name VARCHAR(50) NOT NULL DEFAULT '',
		last_name  VARCHAR(50) NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS accounts (
		id              UUID PRIMARY KEY,
		account_number  VARCHAR(20) NOT NULL UNIQUE,
		account_type    VARCHAR(20) NOT NULL,
		balance         NUMERIC(20,2) NOT NULL DEFAULT 0,
		opening_balance NUMERIC(20,2) NOT NULL DEFAULT 0,
		currency        CHAR(3) NOT NULL,
		is_active       BOOLEAN NOT NULL DEFAULT TRUE,
		description     VARCHAR(200),
		created_at      TIMESTAMPTZ NOT NULL,
		last_updated_at TIMESTAMPTZ,
		owner_user_id   UUID NOT NULL,
		version         BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_accounts_owner ON accounts (owner_user_id)`,
	`CREATE TABLE IF NOT EXISTS transaction_numbers (
		number    VARCHAR(12) PRIMARY KEY,
		issued_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id                 UUID PRIMARY KEY,
		transaction_number VARCHAR(12) NOT NULL UNIQUE REFERENCES transaction_numbers (number),
		amount             NUMERIC(20,2) NOT NULL CHECK (amount > 0),
		currency           CHAR(3) NOT NULL,
		transaction_type   VARCHAR(20) NOT NULL,
		description        VARCHAR(500),
		transaction_date   TIMESTAMPTZ NOT NULL,
		created_at         TIMESTAMPTZ NOT NULL,
		last_updated_at    TIMESTAMPTZ,
		status             VARCHAR(20) NOT NULL,
		account_id         UUID NOT NULL REFERENCES accounts (id),
		user_id            UUID NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_account_date ON transactions (account_id, transaction_date DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_user_date ON transactions (user_id, transaction_date DESC)`,
}

// Money columns are TEXT in sqlite: NUMERIC affinity would coerce them to REAL.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id         TEXT PRIMARY KEY,
		email      TEXT NOT NULL UNIQUE,
		first_name TEXT NOT NULL DEFAULT '',
		last_name  TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS accounts (
		id              TEXT PRIMARY KEY,
		account_number  TEXT NOT NULL UNIQUE,
		account_type    TEXT NOT NULL,
		balance         TEXT NOT NULL DEFAULT '0',
		opening_balance TEXT NOT NULL DEFAULT '0',
		currency        TEXT NOT NULL,
		is_active       BOOLEAN NOT NULL DEFAULT 1,
		description     TEXT,
		created_at      TIMESTAMP NOT NULL,
		last_updated_at TIMESTAMP,
		owner_user_id   TEXT NOT NULL,
		version         INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_accounts_owner ON accounts (owner_user_id)`,
	`CREATE TABLE IF NOT EXISTS transaction_numbers (
		number    TEXT PRIMARY KEY,
		issued_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id                 TEXT PRIMARY KEY,
		transaction_number TEXT NOT NULL UNIQUE REFERENCES transaction_numbers (number),
		amount             TEXT NOT NULL,
		currency           TEXT NOT NULL,
		transaction_type   TEXT NOT NULL,
		description        TEXT,
		transaction_date   TIMESTAMP NOT NULL,
		created_at         TIMESTAMP NOT NULL,
		last_updated_at    TIMESTAMP,
		status             TEXT NOT NULL,
		account_id         TEXT NOT NULL REFERENCES accounts (id),
		user_id            TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_account_date ON transactions (account_id, transaction_date DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_user_date ON transactions (user_id, transaction_date DESC)`,
}

// Migrate creates the ledger tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range s.dialect.Schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	log.Printf("[STORE] %s schema ready (%d statements)", s.dialect.Name, len(s.dialect.Schema))
	return nil
}
