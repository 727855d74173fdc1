package services

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/ruralpay/ledger/internal/audit"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/store"
	"github.com/shopspring/decimal"
)

type OpenAccountRequest struct {
	UserID         uuid.UUID          `json:"userId" validate:"required"`
	AccountNumber  string             `json:"accountNumber" validate:"required,max=20"`
	AccountType    models.AccountType `json:"accountType" validate:"required,oneof=Checking Savings Investment Credit Loan Mortgage"`
	OpeningBalance decimal.Decimal    `json:"balance" validate:"cents"`
	Currency       string             `json:"currency" validate:"required,iso4217"`
	Description    *string            `json:"description,omitempty" validate:"omitempty,max=200"`
}

// UpdateAccountRequest carries profile changes. Balance and currency are not
// editable; balances move only through settled transactions.
type UpdateAccountRequest struct {
	AccountType *models.AccountType `json:"accountType,omitempty" validate:"omitempty,oneof=Checking Savings Investment Credit Loan Mortgage"`
	IsActive    *bool               `json:"isActive,omitempty"`
	Description *string             `json:"description,omitempty" validate:"omitempty,max=200"`
}

type AccountService struct {
	store     store.Store
	identity  IdentityChecker
	audit     *audit.AuditLogger
	validator *ValidationHelper
	now       func() time.Time
}

func NewAccountService(st store.Store, identity IdentityChecker, auditLogger *audit.AuditLogger) *AccountService {
	if auditLogger == nil {
		auditLogger = audit.NewAuditLogger()
	}
	return &AccountService{
		store:     st,
		identity:  identity,
		audit:     auditLogger,
		validator: NewValidationHelper(),
		now:       time.Now,
	}
}

func (s *AccountService) Open(ctx context.Context, req OpenAccountRequest) (*models.Account, error) {
	const op = "accounts.open"

	if err := s.validator.Validate(op, &req); err != nil {
		return nil, err
	}

	exists, err := s.identity.UserExists(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, models.NotFound(op, "user %s not found", req.UserID)
	}

	taken, err := s.store.AccountNumberExists(ctx, req.AccountNumber)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, models.Conflict(op, "account number %s already exists", req.AccountNumber)
	}

	acct := &models.Account{
		ID:             uuid.New(),
		AccountNumber:  req.AccountNumber,
		AccountType:    req.AccountType,
		Balance:        req.OpeningBalance,
		OpeningBalance: req.OpeningBalance,
		Currency:       req.Currency,
		IsActive:       true,
		Description:    req.Description,
		CreatedAt:      s.now().UTC(),
		OwnerUserID:    req.UserID,
	}
	if err := s.store.CreateAccount(ctx, acct); err != nil {
		log.Printf("[ACCOUNT] Open failed for %s: %v", req.AccountNumber, err)
		return nil, err
	}

	log.Printf("[ACCOUNT] Account %s opened for user %s", acct.AccountNumber, acct.OwnerUserID)
	s.audit.LogAccount("ACCOUNT_OPEN", acct)
	return acct, nil
}

func (s *AccountService) Get(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return s.store.GetAccount(ctx, id)
}

func (s *AccountService) GetByNumber(ctx context.Context, number string) (*models.Account, error) {
	return s.store.GetAccountByNumber(ctx, number)
}

func (s *AccountService) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Account, error) {
	exists, err := s.identity.UserExists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, models.NotFound("accounts.list", "user %s not found", userID)
	}
	return s.store.ListAccountsByOwner(ctx, userID)
}

func (s *AccountService) Update(ctx context.Context, id uuid.UUID, req UpdateAccountRequest) (*models.Account, error) {
	const op = "accounts.update"

	if err := s.validator.Validate(op, &req); err != nil {
		return nil, err
	}

	var out *models.Account
	err := s.store.WithinAccount(ctx, id, func(tx store.Store) error {
		acct, err := tx.GetAccount(ctx, id)
		if err != nil {
			return err
		}
		if req.AccountType != nil {
			acct.AccountType = *req.AccountType
		}
		if req.IsActive != nil {
			acct.IsActive = *req.IsActive
		}
		if req.Description != nil {
			d := *req.Description
			acct.Description = &d
		}
		now := s.now().UTC()
		acct.LastUpdatedAt = &now

		if err := tx.UpdateAccount(ctx, acct); err != nil {
			return err
		}
		out = acct
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.LogAccount("ACCOUNT_UPDATE", out)
	return out, nil
}

// Close deletes an account with a zero balance and no transactions.
// It returns false when the account does not exist.
func (s *AccountService) Close(ctx context.Context, id uuid.UUID) (bool, error) {
	deleted, err := s.store.DeleteAccount(ctx, id)
	if err != nil {
		log.Printf("[ACCOUNT] Close refused for %s: %v", id, err)
		return false, err
	}
	if deleted {
		log.Printf("[ACCOUNT] Account %s closed", id)
	}
	return deleted, nil
}

func (s *AccountService) Balance(ctx context.Context, id uuid.UUID) (decimal.Decimal, error) {
	acct, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return acct.Balance, nil
}
