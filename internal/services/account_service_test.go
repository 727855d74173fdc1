package services

import (
	"bytes"
	"context"
	"log"
	"testing"

	"github.com/google/uuid"
	"github.com/ruralpay/ledger/internal/audit"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/store/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newAccountService(t *testing.T) (*AccountService, *MockIdentityChecker, *memory.Store) {
	t.Helper()
	st := memory.New()
	identity := new(MockIdentityChecker)
	svc := NewAccountService(st, identity, audit.NewAuditLoggerTo(log.New(&bytes.Buffer{}, "", 0)))
	return svc, identity, st
}

func openRequest(user uuid.UUID, number string) OpenAccountRequest {
	return OpenAccountRequest{
		UserID:         user,
		AccountNumber:  number,
		AccountType:    models.AccountSavings,
		OpeningBalance: decimal.RequireFromString("500.00"),
		Currency:       "NGN",
	}
}

func TestAccountService_Open(t *testing.T) {
	ctx := context.Background()
	svc, identity, _ := newAccountService(t)
	user := uuid.New()
	identity.On("UserExists", mock.Anything, user).Return(true, nil)
	identity.On("UserExists", mock.Anything, mock.Anything).Return(false, nil)

	t.Run("opens an active account", func(t *testing.T) {
		acct, err := svc.Open(ctx, openRequest(user, "0123456789"))
		require.NoError(t, err)
		assert.True(t, acct.IsActive)
		assert.Equal(t, "500.00", acct.Balance.StringFixed(2))
		assert.True(t, acct.OpeningBalance.Equal(acct.Balance))
		assert.Equal(t, int64(0), acct.Version)

		bal, err := svc.Balance(ctx, acct.ID)
		require.NoError(t, err)
		assert.Equal(t, "500.00", bal.StringFixed(2))
	})

	t.Run("duplicate number", func(t *testing.T) {
		_, err := svc.Open(ctx, openRequest(user, "0123456789"))
		assert.ErrorIs(t, err, models.ErrConflict)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := svc.Open(ctx, openRequest(uuid.New(), "0123456780"))
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("invalid request", func(t *testing.T) {
		req := openRequest(user, "012345678901234567890") // 21 chars
		req.AccountType = "Current"
		req.OpeningBalance = decimal.RequireFromString("1.001")
		_, err := svc.Open(ctx, req)
		assert.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("list by user", func(t *testing.T) {
		_, err := svc.Open(ctx, openRequest(user, "0123456788"))
		require.NoError(t, err)

		list, err := svc.ListByUser(ctx, user)
		require.NoError(t, err)
		assert.Len(t, list, 2)

		_, err = svc.ListByUser(ctx, uuid.New())
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestAccountService_UpdateAndClose(t *testing.T) {
	ctx := context.Background()
	svc, identity, st := newAccountService(t)
	user := uuid.New()
	identity.On("UserExists", mock.Anything, user).Return(true, nil)

	acct, err := svc.Open(ctx, openRequest(user, "1111111111"))
	require.NoError(t, err)

	t.Run("profile update", func(t *testing.T) {
		inactive := false
		checking := models.AccountChecking
		desc := "school fees"
		updated, err := svc.Update(ctx, acct.ID, UpdateAccountRequest{IsActive: &inactive, AccountType: &checking, Description: &desc})
		require.NoError(t, err)
		assert.False(t, updated.IsActive)
		assert.Equal(t, models.AccountChecking, updated.AccountType)
		assert.NotNil(t, updated.LastUpdatedAt)

		byNumber, err := svc.GetByNumber(ctx, "1111111111")
		require.NoError(t, err)
		assert.Equal(t, "school fees", *byNumber.Description)
		assert.Equal(t, "500.00", byNumber.Balance.StringFixed(2))
	})

	t.Run("unknown account", func(t *testing.T) {
		_, err := svc.Update(ctx, uuid.New(), UpdateAccountRequest{})
		assert.ErrorIs(t, err, models.ErrNotFound)

		closed, err := svc.Close(ctx, uuid.New())
		assert.NoError(t, err)
		assert.False(t, closed)
	})

	t.Run("close needs a zero balance", func(t *testing.T) {
		active := true
		_, err := svc.Update(ctx, acct.ID, UpdateAccountRequest{IsActive: &active})
		require.NoError(t, err)

		_, err = svc.Close(ctx, acct.ID)
		assert.ErrorIs(t, err, models.ErrInvalidState)

		_, err = st.ApplyBalanceDelta(ctx, acct.ID, decimal.RequireFromString("-500.00"))
		require.NoError(t, err)

		closed, err := svc.Close(ctx, acct.ID)
		require.NoError(t, err)
		assert.True(t, closed)

		_, err = svc.Get(ctx, acct.ID)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}
