package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/store"
	"github.com/shopspring/decimal"
)

const accountColumns = "id, account_number, account_type, balance, opening_balance, currency, is_active, description, created_at, last_updated_at, owner_user_id, version"

func scanAccount(row scanner) (*models.Account, error) {
	var a models.Account
	var accountType string
	err := row.Scan(
		&a.ID, &a.AccountNumber, &accountType, &a.Balance, &a.OpeningBalance, &a.Currency,
		&a.IsActive, &a.Description, &a.CreatedAt, &a.LastUpdatedAt, &a.OwnerUserID, &a.Version,
	)
	if err != nil {
		return nil, err
	}
	a.AccountType = models.AccountType(accountType)
	return &a, nil
}

func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	a, err := scanAccount(s.queryRow(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = $1", id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFound("accounts.get", "account %s not found", id)
	}
	if err != nil {
		return nil, translate("accounts.get", err)
	}
	return a, nil
}

func (s *Store) GetAccountByNumber(ctx context.Context, number string) (*models.Account, error) {
	a, err := scanAccount(s.queryRow(ctx, "SELECT "+accountColumns+" FROM accounts WHERE account_number = $1", number))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFound("accounts.get_by_number", "account %s not found", number)
	}
	if err != nil {
		return nil, translate("accounts.get_by_number", err)
	}
	return a, nil
}

func (s *Store) ListAccountsByOwner(ctx context.Context, userID uuid.UUID) ([]*models.Account, error) {
	rows, err := s.query(ctx, "SELECT "+accountColumns+" FROM accounts WHERE owner_user_id = $1 ORDER BY created_at", userID.String())
	if err != nil {
		return nil, translate("accounts.list", err)
	}
	defer rows.Close()

	out := []*models.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, translate("accounts.list", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, translate("accounts.list", err)
	}
	return out, nil
}

func (s *Store) AccountNumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := s.queryRow(ctx, "SELECT EXISTS(SELECT 1 FROM accounts WHERE account_number = $1)", number).Scan(&exists)
	if err != nil {
		return false, translate("accounts.number_exists", err)
	}
	return exists, nil
}

func (s *Store) CreateAccount(ctx context.Context, acct *models.Account) error {
	_, err := s.exec(ctx,
		`INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		acct.ID.String(), acct.AccountNumber, string(acct.AccountType), acct.Balance, acct.OpeningBalance,
		acct.Currency, acct.IsActive, acct.Description, utc(acct.CreatedAt), utcPtr(acct.LastUpdatedAt),
		acct.OwnerUserID.String(), acct.Version,
	)
	if err != nil {
		return translate("accounts.create", err)
	}
	return nil
}

func (s *Store) UpdateAccount(ctx context.Context, acct *models.Account) error {
	res, err := s.exec(ctx,
		`UPDATE accounts SET account_type = $1, is_active = $2, description = $3, last_updated_at = $4 WHERE id = $5`,
		string(acct.AccountType), acct.IsActive, acct.Description, utcPtr(acct.LastUpdatedAt), acct.ID.String(),
	)
	if err != nil {
		return translate("accounts.update", err)
	}
	if rowsAffected(res) == 0 {
		return models.NotFound("accounts.update", "account %s not found", acct.ID)
	}
	return nil
}

func (s *Store) DeleteAccount(ctx context.Context, id uuid.UUID) (bool, error) {
	if s.tx == nil {
		deleted := false
		err := s.WithinAccount(ctx, id, func(tx store.Store) error {
			var err error
			deleted, err = tx.DeleteAccount(ctx, id)
			return err
		})
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		return deleted, err
	}

	if err := s.lockAccount(ctx, id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	a, err := s.GetAccount(ctx, id)
	if err != nil {
		return false, err
	}
	if !a.Balance.IsZero() {
		return false, models.InvalidState("accounts.delete", "account %s has non-zero balance %s", id, a.Balance.StringFixed(models.MoneyScale))
	}

	var referenced bool
	err = s.queryRow(ctx, "SELECT EXISTS(SELECT 1 FROM transactions WHERE account_id = $1)", id.String()).Scan(&referenced)
	if err != nil {
		return false, translate("accounts.delete", err)
	}
	if referenced {
		return false, models.InvalidState("accounts.delete", "account %s still has transactions", id)
	}

	res, err := s.exec(ctx, "DELETE FROM accounts WHERE id = $1", id.String())
	if err != nil {
		return false, translate("accounts.delete", err)
	}
	return rowsAffected(res) > 0, nil
}

// ApplyBalanceDelta reads the locked row, computes the new balance in Go and
// writes it back guarded by the row version.
func (s *Store) ApplyBalanceDelta(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal) (*models.Account, error) {
	if s.tx == nil {
		var out *models.Account
		err := s.WithinAccount(ctx, accountID, func(tx store.Store) error {
			var err error
			out, err = tx.ApplyBalanceDelta(ctx, accountID, delta)
			return err
		})
		return out, err
	}

	a, err := scanAccount(s.queryRow(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE id = $1"+s.dialect.LockSuffix, accountID.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFound("accounts.apply_delta", "account %s not found", accountID)
	}
	if err != nil {
		return nil, translate("accounts.apply_delta", err)
	}
	s.locked[accountID] = true

	if !a.IsActive {
		return nil, models.InvalidState("accounts.apply_delta", "account %s is inactive", accountID)
	}

	now := time.Now().UTC()
	newBalance := a.Balance.Add(delta)
	res, err := s.exec(ctx,
		`UPDATE accounts SET balance = $1, version = version + 1, last_updated_at = $2 WHERE id = $3 AND version = $4`,
		newBalance, now, accountID.String(), a.Version,
	)
	if err != nil {
		return nil, translate("accounts.apply_delta", err)
	}
	if rowsAffected(res) == 0 {
		return nil, models.Unavailable("accounts.apply_delta", "account %s was modified concurrently", accountID)
	}

	a.Balance = newBalance
	a.Version++
	a.LastUpdatedAt = &now
	return a, nil
}
