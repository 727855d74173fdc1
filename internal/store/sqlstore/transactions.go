package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/shopspring/decimal"
)

const transactionColumns = "id, transaction_number, amount, currency, transaction_type, description, transaction_date, created_at, last_updated_at, status, account_id, user_id"

const transactionOrder = " ORDER BY transaction_date DESC, created_at DESC"

func scanTransaction(row scanner) (*models.Transaction, error) {
	var t models.Transaction
	var txType, status string
	err := row.Scan(
		&t.ID, &t.TransactionNumber, &t.Amount, &t.Currency, &txType, &t.Description,
		&t.TransactionDate, &t.CreatedAt, &t.LastUpdatedAt, &status, &t.AccountID, &t.UserID,
	)
	if err != nil {
		return nil, err
	}
	t.TransactionType = models.TransactionType(txType)
	t.Status = models.TransactionStatus(status)
	return &t, nil
}

func (s *Store) GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	t, err := scanTransaction(s.queryRow(ctx, "SELECT "+transactionColumns+" FROM transactions WHERE id = $1", id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFound("transactions.get", "transaction %s not found", id)
	}
	if err != nil {
		return nil, translate("transactions.get", err)
	}
	return t, nil
}

func (s *Store) GetTransactionByNumber(ctx context.Context, number string) (*models.Transaction, error) {
	t, err := scanTransaction(s.queryRow(ctx, "SELECT "+transactionColumns+" FROM transactions WHERE transaction_number = $1", number))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFound("transactions.get_by_number", "transaction %s not found", number)
	}
	if err != nil {
		return nil, translate("transactions.get_by_number", err)
	}
	return t, nil
}

func (s *Store) TransactionNumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := s.queryRow(ctx, "SELECT EXISTS(SELECT 1 FROM transaction_numbers WHERE number = $1)", number).Scan(&exists)
	if err != nil {
		return false, translate("transactions.number_exists", err)
	}
	return exists, nil
}

func (s *Store) CreateTransaction(ctx context.Context, txn *models.Transaction) error {
	return s.inTx(ctx, func(scoped *Store) error {
		_, err := scoped.exec(ctx,
			"INSERT INTO transaction_numbers (number, issued_at) VALUES ($1, $2)",
			txn.TransactionNumber, utc(txn.CreatedAt),
		)
		if err != nil {
			return translate("transactions.create", err)
		}

		_, err = scoped.exec(ctx,
			`INSERT INTO transactions (`+transactionColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			txn.ID.String(), txn.TransactionNumber, txn.Amount, txn.Currency, string(txn.TransactionType),
			txn.Description, utc(txn.TransactionDate), utc(txn.CreatedAt), utcPtr(txn.LastUpdatedAt),
			string(txn.Status), txn.AccountID.String(), txn.UserID.String(),
		)
		if isForeignKeyViolation(err) {
			return models.NotFound("transactions.create", "account %s not found", txn.AccountID)
		}
		if err != nil {
			return translate("transactions.create", err)
		}
		return nil
	})
}

func (s *Store) UpdateTransaction(ctx context.Context, txn *models.Transaction) error {
	res, err := s.exec(ctx,
		`UPDATE transactions SET amount = $1, currency = $2, transaction_type = $3, description = $4,
		transaction_date = $5, last_updated_at = $6, status = $7, account_id = $8, user_id = $9
		WHERE id = $10`,
		txn.Amount, txn.Currency, string(txn.TransactionType), txn.Description,
		utc(txn.TransactionDate), utcPtr(txn.LastUpdatedAt), string(txn.Status), txn.AccountID.String(), txn.UserID.String(),
		txn.ID.String(),
	)
	if err != nil {
		return translate("transactions.update", err)
	}
	if rowsAffected(res) == 0 {
		return models.NotFound("transactions.update", "transaction %s not found", txn.ID)
	}
	return nil
}

func (s *Store) DeleteTransaction(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := s.exec(ctx, "DELETE FROM transactions WHERE id = $1", id.String())
	if err != nil {
		return false, translate("transactions.delete", err)
	}
	return rowsAffected(res) > 0, nil
}

func (s *Store) ListTransactionsByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.Transaction, error) {
	return s.listTransactions(ctx, "transactions.list_by_account",
		"SELECT "+transactionColumns+" FROM transactions WHERE account_id = $1"+transactionOrder, accountID.String())
}

func (s *Store) ListTransactionsByUser(ctx context.Context, userID uuid.UUID) ([]*models.Transaction, error) {
	return s.listTransactions(ctx, "transactions.list_by_user",
		"SELECT "+transactionColumns+" FROM transactions WHERE user_id = $1"+transactionOrder, userID.String())
}

// ListTransactionsByDateRange is inclusive on both bounds.
func (s *Store) ListTransactionsByDateRange(ctx context.Context, accountID uuid.UUID, from, to time.Time) ([]*models.Transaction, error) {
	return s.listTransactions(ctx, "transactions.list_by_range",
		"SELECT "+transactionColumns+" FROM transactions WHERE account_id = $1 AND transaction_date >= $2 AND transaction_date <= $3"+transactionOrder,
		accountID.String(), utc(from), utc(to))
}

func (s *Store) listTransactions(ctx context.Context, op, query string, args ...any) ([]*models.Transaction, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, translate(op, err)
	}
	defer rows.Close()

	out := []*models.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, translate(op, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(op, err)
	}
	return out, nil
}

// SumCompleted adds up in Go so sqlite's TEXT amounts keep their precision.
func (s *Store) SumCompleted(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	rows, err := s.query(ctx,
		"SELECT amount, transaction_type FROM transactions WHERE account_id = $1 AND status = $2",
		accountID.String(), string(models.StatusCompleted))
	if err != nil {
		return decimal.Zero, translate("transactions.sum_completed", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var t models.Transaction
		var txType string
		if err := rows.Scan(&t.Amount, &txType); err != nil {
			return decimal.Zero, translate("transactions.sum_completed", err)
		}
		t.TransactionType = models.TransactionType(txType)
		total = total.Add(t.SignedAmount())
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, translate("transactions.sum_completed", err)
	}
	return total, nil
}
