package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/google/uuid"
	"github.com/ruralpay/ledger/internal/audit"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func settledPair() (*models.Transaction, *models.Account) {
	acct := &models.Account{
		ID:            uuid.New(),
		AccountNumber: "100000000001",
		Balance:       decimal.RequireFromString("1250.00"),
		Currency:      "USD",
	}
	txn := &models.Transaction{
		ID:                uuid.New(),
		TransactionNumber: "123456789012",
		Amount:            decimal.RequireFromString("250.00"),
		Currency:          "USD",
		TransactionType:   models.TxTypeDeposit,
		Status:            models.StatusCompleted,
		AccountID:         acct.ID,
		UserID:            uuid.New(),
	}
	return txn, acct
}

func TestRedisNotifier_Notify(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	txn, acct := settledPair()

	payload, err := json.Marshal(models.NewTransactionNotification(models.EventSettled, txn, acct, fixed))
	require.NoError(t, err)

	t.Run("pushes JSON onto the queue", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		notifier := NewRedisNotifier(client, "")
		notifier.now = func() time.Time { return fixed }

		mock.ExpectRPush(DefaultNotificationQueue, string(payload)).SetVal(1)

		assert.NoError(t, notifier.Notify(ctx, models.EventSettled, txn, acct))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("redis failure is unavailable", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		notifier := NewRedisNotifier(client, DefaultNotificationQueue)
		notifier.now = func() time.Time { return fixed }

		mock.ExpectRPush(DefaultNotificationQueue, string(payload)).SetErr(errors.New("connection refused"))

		err := notifier.Notify(ctx, models.EventSettled, txn, acct)
		assert.ErrorIs(t, err, models.ErrUnavailable)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAuditNotifier_Notify(t *testing.T) {
	var buf bytes.Buffer
	notifier := NewAuditNotifier(audit.NewAuditLoggerTo(log.New(&buf, "", 0)))
	txn, acct := settledPair()

	require.NoError(t, notifier.Notify(context.Background(), models.EventReversed, txn, acct))

	line := buf.String()
	assert.True(t, strings.HasPrefix(line, "AUDIT: "))
	assert.Contains(t, line, `"event_type":"NOTIFICATION"`)
	assert.Contains(t, line, "Transaction Reversed")
}

func TestMultiNotifier_Notify(t *testing.T) {
	ctx := context.Background()
	txn, acct := settledPair()

	ok := new(MockNotifier)
	ok.On("Notify", mock.Anything, models.EventSettled, txn, acct).Return(nil)
	failing := new(MockNotifier)
	failing.On("Notify", mock.Anything, models.EventSettled, txn, acct).Return(models.Unavailable("notify", "queue down"))
	last := new(MockNotifier)
	last.On("Notify", mock.Anything, models.EventSettled, txn, acct).Return(nil)

	err := MultiNotifier{ok, failing, last}.Notify(ctx, models.EventSettled, txn, acct)
	assert.ErrorIs(t, err, models.ErrUnavailable)

	ok.AssertExpectations(t)
	failing.AssertExpectations(t)
	last.AssertExpectations(t)

	assert.NoError(t, MultiNotifier{ok}.Notify(ctx, models.EventSettled, txn, acct))
}
