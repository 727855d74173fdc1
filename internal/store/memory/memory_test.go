package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func newAccount(t *testing.T, s *Store, balance string) *models.Account {
	t.Helper()
	bal := decimal.RequireFromString(balance)
	acct := &models.Account{
		ID:             uuid.New(),
		AccountNumber:  uuid.NewString()[:12],
		AccountType:    models.AccountChecking,
		Balance:        bal,
		OpeningBalance: bal,
		Currency:       "USD",
		IsActive:       true,
		CreatedAt:      time.Now().UTC(),
		OwnerUserID:    uuid.New(),
	}
	require.NoError(t, s.CreateAccount(context.Background(), acct))
	return acct
}

func newTransaction(acct *models.Account, number string, typ models.TransactionType, amount string, date time.Time) *models.Transaction {
	return &models.Transaction{
		ID:                uuid.New(),
		TransactionNumber: number,
		Amount:            decimal.RequireFromString(amount),
		Currency:          acct.Currency,
		TransactionType:   typ,
		TransactionDate:   date,
		CreatedAt:         time.Now().UTC(),
		Status:            models.StatusPending,
		AccountID:         acct.ID,
		UserID:            acct.OwnerUserID,
	}
}

func TestStore_ApplyBalanceDelta(t *testing.T) {
	ctx := context.Background()
	s := New()

	t.Run("applies delta and bumps version", func(t *testing.T) {
		acct := newAccount(t, s, "1000.00")

		updated, err := s.ApplyBalanceDelta(ctx, acct.ID, decimal.RequireFromString("-250.50"))
		require.NoError(t, err)
		assert.Equal(t, "749.50", updated.Balance.StringFixed(2))
		assert.Equal(t, int64(1), updated.Version)
		assert.NotNil(t, updated.LastUpdatedAt)

		stored, err := s.GetAccount(ctx, acct.ID)
		require.NoError(t, err)
		assert.True(t, stored.Balance.Equal(updated.Balance))
	})

	t.Run("missing account", func(t *testing.T) {
		_, err := s.ApplyBalanceDelta(ctx, uuid.New(), decimal.NewFromInt(1))
		assert.True(t, errors.Is(err, models.ErrNotFound))
	})

	t.Run("inactive account", func(t *testing.T) {
		acct := newAccount(t, s, "10.00")
		acct.IsActive = false
		require.NoError(t, s.UpdateAccount(ctx, acct))

		_, err := s.ApplyBalanceDelta(ctx, acct.ID, decimal.NewFromInt(1))
		assert.True(t, errors.Is(err, models.ErrInvalidState))
	})

	t.Run("concurrent deltas on one account are all applied", func(t *testing.T) {
		acct := newAccount(t, s, "0.00")

		var g errgroup.Group
		for i := 0; i < 50; i++ {
			g.Go(func() error {
				_, err := s.ApplyBalanceDelta(ctx, acct.ID, decimal.RequireFromString("1.25"))
				return err
			})
		}
		require.NoError(t, g.Wait())

		stored, err := s.GetAccount(ctx, acct.ID)
		require.NoError(t, err)
		assert.Equal(t, "62.50", stored.Balance.StringFixed(2))
		assert.Equal(t, int64(50), stored.Version)
	})
}

func TestStore_WithinAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("failed unit leaves nothing behind", func(t *testing.T) {
		s := New()
		acct := newAccount(t, s, "100.00")
		txn := newTransaction(acct, "000000000001", models.TxTypeDeposit, "5.00", time.Now())
		require.NoError(t, s.CreateTransaction(ctx, txn))

		boom := errors.New("status write failed")
		err := s.WithinAccount(ctx, acct.ID, func(tx store.Store) error {
			if _, err := tx.ApplyBalanceDelta(ctx, acct.ID, txn.Amount); err != nil {
				return err
			}
			staged, err := tx.GetAccount(ctx, acct.ID)
			require.NoError(t, err)
			assert.Equal(t, "105.00", staged.Balance.StringFixed(2))
			return boom
		})
		assert.ErrorIs(t, err, boom)

		stored, err := s.GetAccount(ctx, acct.ID)
		require.NoError(t, err)
		assert.Equal(t, "100.00", stored.Balance.StringFixed(2))
		got, err := s.GetTransaction(ctx, txn.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, got.Status)
	})

	t.Run("balance and status commit together", func(t *testing.T) {
		s := New()
		acct := newAccount(t, s, "100.00")
		txn := newTransaction(acct, "000000000002", models.TxTypeWithdrawal, "40.00", time.Now())
		require.NoError(t, s.CreateTransaction(ctx, txn))

		err := s.WithinAccount(ctx, acct.ID, func(tx store.Store) error {
			if _, err := tx.ApplyBalanceDelta(ctx, acct.ID, txn.SignedAmount()); err != nil {
				return err
			}
			txn.Status = models.StatusCompleted
			return tx.UpdateTransaction(ctx, txn)
		})
		require.NoError(t, err)

		stored, _ := s.GetAccount(ctx, acct.ID)
		assert.Equal(t, "60.00", stored.Balance.StringFixed(2))
		got, _ := s.GetTransaction(ctx, txn.ID)
		assert.Equal(t, models.StatusCompleted, got.Status)
	})

	t.Run("lock wait is bounded", func(t *testing.T) {
		s := New(WithLockTimeout(50 * time.Millisecond))
		acct := newAccount(t, s, "1.00")

		held := make(chan struct{})
		release := make(chan struct{})
		go func() {
			_ = s.WithinAccount(ctx, acct.ID, func(tx store.Store) error {
				close(held)
				<-release
				return nil
			})
		}()
		<-held

		_, err := s.ApplyBalanceDelta(ctx, acct.ID, decimal.NewFromInt(1))
		close(release)
		assert.True(t, errors.Is(err, models.ErrUnavailable))
	})

	t.Run("different accounts do not block each other", func(t *testing.T) {
		s := New(WithLockTimeout(time.Second))
		a := newAccount(t, s, "1.00")
		b := newAccount(t, s, "1.00")

		held := make(chan struct{})
		release := make(chan struct{})
		done := make(chan error, 1)
		go func() {
			done <- s.WithinAccount(ctx, a.ID, func(tx store.Store) error {
				close(held)
				<-release
				return nil
			})
		}()
		<-held

		_, err := s.ApplyBalanceDelta(ctx, b.ID, decimal.NewFromInt(1))
		close(release)
		require.NoError(t, err)
		require.NoError(t, <-done)
	})

	t.Run("unknown account", func(t *testing.T) {
		s := New()
		err := s.WithinAccount(ctx, uuid.New(), func(tx store.Store) error { return nil })
		assert.True(t, errors.Is(err, models.ErrNotFound))
	})
}

func TestStore_Transactions(t *testing.T) {
	ctx := context.Background()
	s := New()
	acct := newAccount(t, s, "0.00")
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	older := newTransaction(acct, "100000000001", models.TxTypeDeposit, "10.00", day)
	newer := newTransaction(acct, "100000000002", models.TxTypeFee, "1.00", day.AddDate(0, 0, 5))
	require.NoError(t, s.CreateTransaction(ctx, older))
	require.NoError(t, s.CreateTransaction(ctx, newer))

	t.Run("duplicate number conflicts", func(t *testing.T) {
		dup := newTransaction(acct, older.TransactionNumber, models.TxTypeDeposit, "1.00", day)
		err := s.CreateTransaction(ctx, dup)
		assert.True(t, errors.Is(err, models.ErrConflict))
	})

	t.Run("lookup by number", func(t *testing.T) {
		got, err := s.GetTransactionByNumber(ctx, newer.TransactionNumber)
		require.NoError(t, err)
		assert.Equal(t, newer.ID, got.ID)

		_, err = s.GetTransactionByNumber(ctx, "999999999999")
		assert.True(t, errors.Is(err, models.ErrNotFound))
	})

	t.Run("listings are newest first", func(t *testing.T) {
		list, err := s.ListTransactionsByAccount(ctx, acct.ID)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, newer.ID, list[0].ID)
		assert.Equal(t, older.ID, list[1].ID)

		byUser, err := s.ListTransactionsByUser(ctx, acct.OwnerUserID)
		require.NoError(t, err)
		assert.Len(t, byUser, 2)

		ranged, err := s.ListTransactionsByDateRange(ctx, acct.ID, day, day.AddDate(0, 0, 1))
		require.NoError(t, err)
		require.Len(t, ranged, 1)
		assert.Equal(t, older.ID, ranged[0].ID)
	})

	t.Run("returned records do not alias storage", func(t *testing.T) {
		got, err := s.GetTransaction(ctx, older.ID)
		require.NoError(t, err)
		got.Status = models.StatusCompleted

		again, _ := s.GetTransaction(ctx, older.ID)
		assert.Equal(t, models.StatusPending, again.Status)
	})

	t.Run("sum of completed", func(t *testing.T) {
		done := newTransaction(acct, "100000000003", models.TxTypeWithdrawal, "2.50", day)
		done.Status = models.StatusCompleted
		require.NoError(t, s.CreateTransaction(ctx, done))

		sum, err := s.SumCompleted(ctx, acct.ID)
		require.NoError(t, err)
		assert.Equal(t, "-2.50", sum.StringFixed(2))
	})

	t.Run("deleted numbers stay issued", func(t *testing.T) {
		ok, err := s.DeleteTransaction(ctx, older.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.DeleteTransaction(ctx, older.ID)
		require.NoError(t, err)
		assert.False(t, ok)

		exists, err := s.TransactionNumberExists(ctx, older.TransactionNumber)
		require.NoError(t, err)
		assert.True(t, exists)

		reuse := newTransaction(acct, older.TransactionNumber, models.TxTypeDeposit, "1.00", day)
		assert.True(t, errors.Is(s.CreateTransaction(ctx, reuse), models.ErrConflict))
	})
}

func TestStore_Accounts(t *testing.T) {
	ctx := context.Background()
	s := New()

	t.Run("duplicate account number", func(t *testing.T) {
		acct := newAccount(t, s, "0.00")
		dup := acct.Clone()
		dup.ID = uuid.New()
		assert.True(t, errors.Is(s.CreateAccount(ctx, dup), models.ErrConflict))

		exists, err := s.AccountNumberExists(ctx, acct.AccountNumber)
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("update never touches balance", func(t *testing.T) {
		acct := newAccount(t, s, "5.00")
		acct.Balance = decimal.NewFromInt(999)
		acct.AccountType = models.AccountSavings
		require.NoError(t, s.UpdateAccount(ctx, acct))

		stored, _ := s.GetAccount(ctx, acct.ID)
		assert.Equal(t, models.AccountSavings, stored.AccountType)
		assert.Equal(t, "5.00", stored.Balance.StringFixed(2))
	})

	t.Run("delete requires zero balance", func(t *testing.T) {
		acct := newAccount(t, s, "5.00")
		_, err := s.DeleteAccount(ctx, acct.ID)
		assert.True(t, errors.Is(err, models.ErrInvalidState))

		_, err = s.ApplyBalanceDelta(ctx, acct.ID, decimal.NewFromInt(-5))
		require.NoError(t, err)
		ok, err := s.DeleteAccount(ctx, acct.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.DeleteAccount(ctx, acct.ID)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("delete refused while transactions reference the account", func(t *testing.T) {
		acct := newAccount(t, s, "0.00")
		require.NoError(t, s.CreateTransaction(ctx, newTransaction(acct, "200000000001", models.TxTypeDeposit, "1.00", time.Now())))

		_, err := s.DeleteAccount(ctx, acct.ID)
		assert.True(t, errors.Is(err, models.ErrInvalidState))
	})

	t.Run("list by owner", func(t *testing.T) {
		acct := newAccount(t, s, "0.00")
		list, err := s.ListAccountsByOwner(ctx, acct.OwnerUserID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, acct.ID, list[0].ID)
	})
}

func lockCount(s *Store) int {
	s.st.locksMu.Lock()
	defer s.st.locksMu.Unlock()
	return len(s.st.locks)
}

func TestStore_LocksAreReleasedForGoneAccounts(t *testing.T) {
	ctx := context.Background()
	s := New()

	acct := newAccount(t, s, "0.00")
	_, err := s.ApplyBalanceDelta(ctx, acct.ID, decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.Equal(t, 1, lockCount(s))

	_, err = s.ApplyBalanceDelta(ctx, acct.ID, decimal.NewFromInt(-1))
	require.NoError(t, err)
	ok, err := s.DeleteAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, lockCount(s))

	err = s.WithinAccount(ctx, uuid.New(), func(tx store.Store) error { return nil })
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Zero(t, lockCount(s))

	// a refused delete keeps the section for the live account
	kept := newAccount(t, s, "3.00")
	_, err = s.DeleteAccount(ctx, kept.ID)
	assert.ErrorIs(t, err, models.ErrInvalidState)
	assert.Equal(t, 1, lockCount(s))
}
