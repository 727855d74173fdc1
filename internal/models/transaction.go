package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType is the business category of a transaction.
type TransactionType string

const (
	TxTypeDeposit    TransactionType = "Deposit"
	TxTypeWithdrawal TransactionType = "Withdrawal"
	TxTypeTransfer   TransactionType = "Transfer"
	TxTypePayment    TransactionType = "Payment"
	TxTypeRefund     TransactionType = "Refund"
	TxTypeFee        TransactionType = "Fee"
	TxTypeInterest   TransactionType = "Interest"
)

// TransactionTypes lists every accepted type, in the order used by validation tags.
var TransactionTypes = []TransactionType{
	TxTypeDeposit, TxTypeWithdrawal, TxTypeTransfer, TxTypePayment,
	TxTypeRefund, TxTypeFee, TxTypeInterest,
}

func (t TransactionType) Valid() bool {
	for _, v := range TransactionTypes {
		if t == v {
			return true
		}
	}
	return false
}

// IsCredit reports whether the type increases the account balance.
// Deposits, refunds and interest credit; everything else debits.
func (t TransactionType) IsCredit() bool {
	switch t {
	case TxTypeDeposit, TxTypeRefund, TxTypeInterest:
		return true
	}
	return false
}

// TransactionStatus is a state in the settlement state machine.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "Pending"
	StatusCompleted TransactionStatus = "Completed"
	StatusFailed    TransactionStatus = "Failed"
	StatusCancelled TransactionStatus = "Cancelled"
	StatusReversed  TransactionStatus = "Reversed"
)

var transitions = map[TransactionStatus][]TransactionStatus{
	StatusPending:   {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted: {StatusReversed},
}

func (s TransactionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed, StatusCancelled, StatusReversed:
		return true
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s TransactionStatus) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// CanTransitionTo reports whether s -> next is an edge of the state machine.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	for _, v := range transitions[s] {
		if v == next {
			return true
		}
	}
	return false
}

// Transaction is a single-account debit or credit.
type Transaction struct {
	ID                uuid.UUID         `json:"id" db:"id"`
	TransactionNumber string            `json:"transactionNumber" db:"transaction_number"`
	Amount            decimal.Decimal   `json:"amount" db:"amount"`
	Currency          string            `json:"currency" db:"currency"`
	TransactionType   TransactionType   `json:"transactionType" db:"transaction_type"`
	Description       *string           `json:"description,omitempty" db:"description"`
	TransactionDate   time.Time         `json:"transactionDate" db:"transaction_date"`
	CreatedAt         time.Time         `json:"createdAt" db:"created_at"`
	LastUpdatedAt     *time.Time        `json:"lastUpdatedAt,omitempty" db:"last_updated_at"`
	Status            TransactionStatus `json:"status" db:"status"`
	AccountID         uuid.UUID         `json:"accountId" db:"account_id"`
	UserID            uuid.UUID         `json:"userId" db:"user_id"`
}

// SignedAmount is the balance effect of settling the transaction.
func (t *Transaction) SignedAmount() decimal.Decimal {
	if t.TransactionType.IsCredit() {
		return t.Amount
	}
	return t.Amount.Neg()
}

// Clone returns a deep copy; stores hand out clones so callers never alias stored state.
func (t *Transaction) Clone() *Transaction {
	c := *t
	if t.Description != nil {
		d := *t.Description
		c.Description = &d
	}
	if t.LastUpdatedAt != nil {
		u := *t.LastUpdatedAt
		c.LastUpdatedAt = &u
	}
	return &c
}
