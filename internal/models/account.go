package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AccountType string

const (
	AccountChecking   AccountType = "Checking"
	AccountSavings    AccountType = "Savings"
	AccountInvestment AccountType = "Investment"
	AccountCredit     AccountType = "Credit"
	AccountLoan       AccountType = "Loan"
	AccountMortgage   AccountType = "Mortgage"
)

func (t AccountType) Valid() bool {
	switch t {
	case AccountChecking, AccountSavings, AccountInvestment, AccountCredit, AccountLoan, AccountMortgage:
		return true
	}
	return false
}

// MoneyScale is the number of decimal places kept for balances and amounts.
const MoneyScale = 2

// Account holds a user's balance in a single currency.
// Balance is only ever written through AccountStore.ApplyBalanceDelta.
type Account struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	AccountNumber  string          `json:"accountNumber" db:"account_number"`
	AccountType    AccountType     `json:"accountType" db:"account_type"`
	Balance        decimal.Decimal `json:"balance" db:"balance"`
	OpeningBalance decimal.Decimal `json:"openingBalance" db:"opening_balance"`
	Currency       string          `json:"currency" db:"currency"`
	IsActive       bool            `json:"isActive" db:"is_active"`
	Description    *string         `json:"description,omitempty" db:"description"`
	CreatedAt      time.Time       `json:"createdAt" db:"created_at"`
	LastUpdatedAt  *time.Time      `json:"lastUpdatedAt,omitempty" db:"last_updated_at"`
	OwnerUserID    uuid.UUID       `json:"ownerUserId" db:"owner_user_id"`
	Version        int64           `json:"version" db:"version"` // for optimistic locking
}

func (a *Account) Clone() *Account {
	c := *a
	if a.Description != nil {
		d := *a.Description
		c.Description = &d
	}
	if a.LastUpdatedAt != nil {
		u := *a.LastUpdatedAt
		c.LastUpdatedAt = &u
	}
	return &c
}
