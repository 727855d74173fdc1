package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NotificationEvent names the ledger change a notification reports.
type NotificationEvent string

const (
	EventSettled  NotificationEvent = "Settled"
	EventReversed NotificationEvent = "Reversed"
)

// Notification is the message handed to the notification sink after commit.
type Notification struct {
	Title         string            `json:"title"`
	Message       string            `json:"message"`
	Type          string            `json:"type"`
	Event         NotificationEvent `json:"event"`
	UserID        uuid.UUID         `json:"userId"`
	TransactionID uuid.UUID         `json:"transactionId"`
	AccountID     uuid.UUID         `json:"accountId"`
	Balance       decimal.Decimal   `json:"balance"`
	CreatedAt     time.Time         `json:"createdAt"`
}

// NewTransactionNotification builds the user-facing notification for a settled or reversed transaction.
func NewTransactionNotification(event NotificationEvent, txn *Transaction, acct *Account, at time.Time) Notification {
	title := "Transaction Completed"
	verb := "has been completed"
	if event == EventReversed {
		title = "Transaction Reversed"
		verb = "has been reversed"
	}
	return Notification{
		Title: title,
		Message: fmt.Sprintf("A %s transaction of %s %s %s.",
			txn.TransactionType, txn.Amount.StringFixed(MoneyScale), txn.Currency, verb),
		Type:          "Transaction",
		Event:         event,
		UserID:        txn.UserID,
		TransactionID: txn.ID,
		AccountID:     txn.AccountID,
		Balance:       acct.Balance,
		CreatedAt:     at,
	}
}
