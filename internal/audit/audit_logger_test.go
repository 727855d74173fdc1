package audit

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captured(t *testing.T, buf *bytes.Buffer) AuditEvent {
	t.Helper()
	line := strings.TrimSpace(buf.String())
	require.True(t, strings.HasPrefix(line, "AUDIT: "), line)

	var event AuditEvent
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "AUDIT: ")), &event))
	buf.Reset()
	return event
}

func TestAuditLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewAuditLoggerTo(log.New(&buf, "", 0))

	txn := &models.Transaction{
		ID:        uuid.New(),
		AccountID: uuid.New(),
		Amount:    decimal.NewFromInt(250),
		Currency:  "USD",
		Status:    models.StatusCompleted,
	}

	t.Run("transaction", func(t *testing.T) {
		logger.LogTransaction("SETTLE", txn, map[string]string{"balance": "1250.00"})
		event := captured(t, &buf)
		assert.Equal(t, "SETTLE", event.EventType)
		assert.Equal(t, txn.ID.String(), event.TransactionID)
		assert.Equal(t, "250.00", event.Amount)
		assert.Equal(t, "Completed", event.Status)
		assert.Equal(t, map[string]any{"balance": "1250.00"}, event.Details)
	})

	t.Run("error", func(t *testing.T) {
		logger.LogError("process", txn.ID.String(), txn.AccountID.String(), errors.New("lock timeout"))
		event := captured(t, &buf)
		assert.Equal(t, "ERROR", event.EventType)
		assert.Equal(t, "FAILED", event.Status)
		assert.Equal(t, "lock timeout", event.Details.(map[string]any)["error"])
	})

	t.Run("notification", func(t *testing.T) {
		acct := &models.Account{ID: txn.AccountID, Balance: decimal.NewFromInt(1250)}
		n := models.NewTransactionNotification(models.EventSettled, txn, acct, time.Now())
		logger.LogNotification(&n)
		event := captured(t, &buf)
		assert.Equal(t, "NOTIFICATION", event.EventType)
		assert.Equal(t, "Settled", event.Status)
		assert.Contains(t, event.Details.(map[string]any)["message"], "250.00 USD")
	})
}
