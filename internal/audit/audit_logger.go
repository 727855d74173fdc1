// Package audit writes one JSON line per ledger event to the process log.
package audit

import (
	"encoding/json"
	"log"
	"time"

	"github.com/ruralpay/ledger/internal/models"
)

type AuditEvent struct {
	Timestamp     time.Time `json:"timestamp"`
	EventType     string    `json:"event_type"`
	TransactionID string    `json:"transaction_id,omitempty"`
	AccountID     string    `json:"account_id,omitempty"`
	Amount        string    `json:"amount,omitempty"`
	Currency      string    `json:"currency,omitempty"`
	Status        string    `json:"status"`
	Details       any       `json:"details,omitempty"`
}

type AuditLogger struct {
	out *log.Logger
}

// NewAuditLogger writes through the standard logger.
func NewAuditLogger() *AuditLogger {
	return &AuditLogger{out: log.Default()}
}

// NewAuditLoggerTo is used by tests to capture audit lines.
func NewAuditLoggerTo(out *log.Logger) *AuditLogger {
	return &AuditLogger{out: out}
}

// LogTransaction records a lifecycle step (CREATE, SETTLE, REVERSE, UPDATE, DELETE).
func (a *AuditLogger) LogTransaction(operation string, txn *models.Transaction, details map[string]string) {
	event := AuditEvent{
		Timestamp:     time.Now(),
		EventType:     operation,
		TransactionID: txn.ID.String(),
		AccountID:     txn.AccountID.String(),
		Amount:        txn.Amount.StringFixed(models.MoneyScale),
		Currency:      txn.Currency,
		Status:        string(txn.Status),
	}
	if len(details) > 0 {
		event.Details = details
	}
	a.log(event)
}

func (a *AuditLogger) LogAccount(operation string, acct *models.Account) {
	a.log(AuditEvent{
		Timestamp: time.Now(),
		EventType: operation,
		AccountID: acct.ID.String(),
		Amount:    acct.Balance.StringFixed(models.MoneyScale),
		Currency:  acct.Currency,
		Status:    "SUCCESS",
		Details:   map[string]string{"account_number": acct.AccountNumber},
	})
}

func (a *AuditLogger) LogNotification(n *models.Notification) {
	a.log(AuditEvent{
		Timestamp:     n.CreatedAt,
		EventType:     "NOTIFICATION",
		TransactionID: n.TransactionID.String(),
		AccountID:     n.AccountID.String(),
		Status:        string(n.Event),
		Details: map[string]string{
			"user_id": n.UserID.String(),
			"title":   n.Title,
			"message": n.Message,
		},
	})
}

func (a *AuditLogger) LogError(operation, transactionID, accountID string, err error) {
	a.log(AuditEvent{
		Timestamp:     time.Now(),
		EventType:     "ERROR",
		TransactionID: transactionID,
		AccountID:     accountID,
		Status:        "FAILED",
		Details:       map[string]string{"operation": operation, "error": err.Error()},
	})
}

func (a *AuditLogger) log(event AuditEvent) {
	data, _ := json.Marshal(event)
	a.out.Printf("AUDIT: %s", string(data))
}
