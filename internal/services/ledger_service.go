package services

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ruralpay/ledger/internal/audit"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/store"
	"github.com/shopspring/decimal"
)

type CreateTransactionRequest struct {
	AccountID       uuid.UUID              `json:"accountId" validate:"required"`
	UserID          uuid.UUID              `json:"userId" validate:"required"`
	Amount          decimal.Decimal        `json:"amount" validate:"money"`
	Currency        string                 `json:"currency" validate:"required,iso4217"`
	TransactionType models.TransactionType `json:"transactionType" validate:"required,oneof=Deposit Withdrawal Transfer Payment Refund Fee Interest"`
	Description     *string                `json:"description,omitempty" validate:"omitempty,max=500"`
	TransactionDate time.Time              `json:"transactionDate"` // defaults to now
}

// UpdateTransactionRequest carries the mutable fields. Nil means unchanged.
type UpdateTransactionRequest struct {
	Description *string                   `json:"description,omitempty" validate:"omitempty,max=500"`
	Status      *models.TransactionStatus `json:"status,omitempty" validate:"omitempty,oneof=Pending Completed Failed Cancelled Reversed"`
}

// ReconcileReport compares the stored balance with the one implied by history.
type ReconcileReport struct {
	AccountID      uuid.UUID       `json:"accountId"`
	OpeningBalance decimal.Decimal `json:"openingBalance"`
	CompletedTotal decimal.Decimal `json:"completedTotal"`
	Expected       decimal.Decimal `json:"expected"`
	Actual         decimal.Decimal `json:"actual"`
	Difference     decimal.Decimal `json:"difference"`
	Balanced       bool            `json:"balanced"`
	CheckedAt      time.Time       `json:"checkedAt"`
}

// LedgerService owns the transaction lifecycle. Balance changes happen only in
// Process and Reverse, each inside the account's unit of work.
type LedgerService struct {
	store     store.Store
	identity  IdentityChecker
	notifier  Notifier
	numbers   *TransactionNumberGenerator
	audit     *audit.AuditLogger
	validator *ValidationHelper

	now           func() time.Time
	allowNegative bool
	notifyTimeout time.Duration

	inflight sync.WaitGroup
}

type LedgerOption func(*LedgerService)

// WithNegativeBalances sets whether Process/Reverse may leave a balance below zero.
func WithNegativeBalances(allowed bool) LedgerOption {
	return func(s *LedgerService) { s.allowNegative = allowed }
}

func WithNotifyTimeout(d time.Duration) LedgerOption {
	return func(s *LedgerService) { s.notifyTimeout = d }
}

func WithClock(now func() time.Time) LedgerOption {
	return func(s *LedgerService) { s.now = now }
}

func WithAuditLogger(a *audit.AuditLogger) LedgerOption {
	return func(s *LedgerService) { s.audit = a }
}

func NewLedgerService(st store.Store, identity IdentityChecker, notifier Notifier, numbers *TransactionNumberGenerator, opts ...LedgerOption) *LedgerService {
	s := &LedgerService{
		store:         st,
		identity:      identity,
		notifier:      notifier,
		numbers:       numbers,
		audit:         audit.NewAuditLogger(),
		validator:     NewValidationHelper(),
		now:           time.Now,
		allowNegative: true,
		notifyTimeout: 3 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.numbers == nil {
		s.numbers = NewTransactionNumberGenerator(st, nil, DefaultNumberAttempts)
	}
	return s
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Create records a Pending transaction. The balance is untouched until Process.
func (s *LedgerService) Create(ctx context.Context, req CreateTransactionRequest) (*models.Transaction, error) {
	const op = "create"

	if err := s.validator.Validate(op, &req); err != nil {
		log.Printf("[LEDGER] Create validation failed: %v", err)
		return nil, err
	}

	exists, err := s.identity.UserExists(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, models.NotFound(op, "user %s not found", req.UserID)
	}

	owns, err := s.identity.OwnsAccount(ctx, req.UserID, req.AccountID)
	if err != nil {
		return nil, err
	}
	if !owns {
		return nil, models.NotFound(op, "account %s not found for user %s", req.AccountID, req.UserID)
	}

	acct, err := s.store.GetAccount(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	if !acct.IsActive {
		return nil, models.InvalidState(op, "account %s is inactive", acct.ID)
	}
	if acct.Currency != req.Currency {
		return nil, models.Validation(op, "currency %s does not match account currency %s", req.Currency, acct.Currency)
	}

	now := s.now().UTC()
	txDate := req.TransactionDate
	if txDate.IsZero() {
		txDate = now
	}

	txn := &models.Transaction{
		ID:              uuid.New(),
		Amount:          req.Amount,
		Currency:        req.Currency,
		TransactionType: req.TransactionType,
		Description:     req.Description,
		TransactionDate: txDate,
		CreatedAt:       now,
		Status:          models.StatusPending,
		AccountID:       acct.ID,
		UserID:          req.UserID,
	}

	_, err = s.numbers.Allocate(ctx, func(number string) error {
		txn.TransactionNumber = number
		return s.store.CreateTransaction(ctx, txn)
	})
	if err != nil {
		log.Printf("[LEDGER] Create failed for account %s: %v", acct.ID, err)
		s.audit.LogError(op, txn.ID.String(), acct.ID.String(), err)
		return nil, err
	}

	log.Printf("[LEDGER] Transaction %s (%s) created: %s %s %s",
		txn.TransactionNumber, txn.ID, txn.TransactionType, txn.Amount.StringFixed(models.MoneyScale), txn.Currency)
	s.audit.LogTransaction("CREATE", txn, map[string]string{"transaction_number": txn.TransactionNumber})
	return txn.Clone(), nil
}

// Process settles a Pending transaction: the signed amount is applied to the
// account and the status becomes Completed in the same unit.
func (s *LedgerService) Process(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	return s.settle(ctx, "process", id, models.StatusCompleted, models.EventSettled)
}

// Reverse undoes a Completed transaction with the exact inverse delta. One-shot.
func (s *LedgerService) Reverse(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	return s.settle(ctx, "reverse", id, models.StatusReversed, models.EventReversed)
}

func (s *LedgerService) settle(ctx context.Context, op string, id uuid.UUID, target models.TransactionStatus, event models.NotificationEvent) (*models.Transaction, error) {
	current, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}

	var txn *models.Transaction
	var acct *models.Account
	err = s.store.WithinAccount(ctx, current.AccountID, func(tx store.Store) error {
		// re-read under the account section; a concurrent unit may have moved it
		t, err := tx.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if !t.Status.CanTransitionTo(target) {
			return models.InvalidState(op, "transaction %s is %s", t.TransactionNumber, t.Status)
		}

		delta := t.SignedAmount()
		if target == models.StatusReversed {
			delta = delta.Neg()
		}

		a, err := tx.ApplyBalanceDelta(ctx, t.AccountID, delta)
		if err != nil {
			return err
		}
		if !s.allowNegative && a.Balance.IsNegative() {
			return models.InvalidState(op, "insufficient funds on account %s: balance would be %s",
				a.AccountNumber, a.Balance.StringFixed(models.MoneyScale))
		}

		now := s.now().UTC()
		t.Status = target
		t.LastUpdatedAt = &now
		if err := tx.UpdateTransaction(ctx, t); err != nil {
			return err
		}

		txn, acct = t, a
		return nil
	})
	if err != nil {
		log.Printf("[LEDGER] %s failed for transaction %s: %v", op, id, err)
		s.audit.LogError(op, id.String(), current.AccountID.String(), err)
		return nil, err
	}

	log.Printf("[LEDGER] Transaction %s %s, account %s balance %s",
		txn.TransactionNumber, txn.Status, acct.AccountNumber, acct.Balance.StringFixed(models.MoneyScale))
	s.audit.LogTransaction(auditOperation(target), txn, map[string]string{
		"balance": acct.Balance.StringFixed(models.MoneyScale),
	})

	s.dispatch(event, txn.Clone(), acct.Clone())
	return txn, nil
}

func auditOperation(target models.TransactionStatus) string {
	if target == models.StatusReversed {
		return "REVERSE"
	}
	return "SETTLE"
}

// updatableStatuses are the transitions a caller may direct through Update.
// Completed and Reversed are reachable only through Process and Reverse.
var updatableStatuses = map[models.TransactionStatus]bool{
	models.StatusFailed:    true,
	models.StatusCancelled: true,
}

// Update changes the description and/or directs a Pending transaction to
// Failed or Cancelled. Completed transactions are immutable.
func (s *LedgerService) Update(ctx context.Context, id uuid.UUID, req UpdateTransactionRequest) (*models.Transaction, error) {
	const op = "update"

	if err := s.validator.Validate(op, &req); err != nil {
		return nil, err
	}

	current, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}

	var txn *models.Transaction
	err = s.store.WithinAccount(ctx, current.AccountID, func(tx store.Store) error {
		t, err := tx.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if t.Status == models.StatusCompleted {
			return models.InvalidState(op, "transaction %s is Completed and cannot be modified", t.TransactionNumber)
		}

		if req.Status != nil && t.Status.IsTerminal() {
			return models.InvalidState(op, "transaction %s is %s; its status cannot change", t.TransactionNumber, t.Status)
		}
		if req.Status != nil && *req.Status != t.Status {
			next := *req.Status
			if !updatableStatuses[next] || !t.Status.CanTransitionTo(next) {
				return models.InvalidState(op, "transaction %s cannot move from %s to %s", t.TransactionNumber, t.Status, next)
			}
			t.Status = next
		}
		if req.Description != nil {
			d := *req.Description
			t.Description = &d
		}

		now := s.now().UTC()
		t.LastUpdatedAt = &now
		if err := tx.UpdateTransaction(ctx, t); err != nil {
			return err
		}
		txn = t
		return nil
	})
	if err != nil {
		log.Printf("[LEDGER] Update failed for transaction %s: %v", id, err)
		return nil, err
	}

	s.audit.LogTransaction("UPDATE", txn, nil)
	return txn, nil
}

// Delete purges a transaction that never settled (or was reversed).
// It returns false when the transaction does not exist.
func (s *LedgerService) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	const op = "delete"

	current, err := s.store.GetTransaction(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	deleted := false
	err = s.store.WithinAccount(ctx, current.AccountID, func(tx store.Store) error {
		t, err := tx.GetTransaction(ctx, id)
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if t.Status == models.StatusCompleted {
			return models.InvalidState(op, "transaction %s is Completed and cannot be deleted", t.TransactionNumber)
		}
		deleted, err = tx.DeleteTransaction(ctx, id)
		return err
	})
	if err != nil {
		log.Printf("[LEDGER] Delete failed for transaction %s: %v", id, err)
		return false, err
	}

	if deleted {
		log.Printf("[LEDGER] Transaction %s deleted", current.TransactionNumber)
		s.audit.LogTransaction("DELETE", current, nil)
	}
	return deleted, nil
}

// =============================================================================
// QUERIES
// =============================================================================

func (s *LedgerService) Get(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	return s.store.GetTransaction(ctx, id)
}

func (s *LedgerService) GetByNumber(ctx context.Context, number string) (*models.Transaction, error) {
	return s.store.GetTransactionByNumber(ctx, number)
}

func (s *LedgerService) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.Transaction, error) {
	if _, err := s.store.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.store.ListTransactionsByAccount(ctx, accountID)
}

func (s *LedgerService) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Transaction, error) {
	exists, err := s.identity.UserExists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, models.NotFound("list_by_user", "user %s not found", userID)
	}
	return s.store.ListTransactionsByUser(ctx, userID)
}

// ListByDateRange is inclusive on both ends.
func (s *LedgerService) ListByDateRange(ctx context.Context, accountID uuid.UUID, from, to time.Time) ([]*models.Transaction, error) {
	if to.Before(from) {
		return nil, models.Validation("list_by_range", "range end %s is before start %s", to.Format(time.RFC3339), from.Format(time.RFC3339))
	}
	if _, err := s.store.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.store.ListTransactionsByDateRange(ctx, accountID, from, to)
}

// Reconcile checks balance == opening balance + signed total of Completed
// transactions, reading both under the account section.
func (s *LedgerService) Reconcile(ctx context.Context, accountID uuid.UUID) (*ReconcileReport, error) {
	var report *ReconcileReport
	err := s.store.WithinAccount(ctx, accountID, func(tx store.Store) error {
		acct, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		total, err := tx.SumCompleted(ctx, accountID)
		if err != nil {
			return err
		}

		expected := acct.OpeningBalance.Add(total)
		report = &ReconcileReport{
			AccountID:      accountID,
			OpeningBalance: acct.OpeningBalance,
			CompletedTotal: total,
			Expected:       expected,
			Actual:         acct.Balance,
			Difference:     acct.Balance.Sub(expected),
			Balanced:       acct.Balance.Equal(expected),
			CheckedAt:      s.now().UTC(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !report.Balanced {
		log.Printf("[LEDGER] Reconciliation mismatch on account %s: expected %s, actual %s",
			accountID, report.Expected.StringFixed(models.MoneyScale), report.Actual.StringFixed(models.MoneyScale))
	}
	return report, nil
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

// dispatch notifies in the background once the unit has committed.
// Failures are logged; the ledger state is already final.
func (s *LedgerService) dispatch(event models.NotificationEvent, txn *models.Transaction, acct *models.Account) {
	if s.notifier == nil {
		return
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
		defer cancel()

		if err := s.notifier.Notify(ctx, event, txn, acct); err != nil {
			log.Printf("[LEDGER] %s notification for transaction %s failed: %v", event, txn.TransactionNumber, err)
		}
	}()
}

// Wait blocks until every dispatched notification has finished.
func (s *LedgerService) Wait() {
	s.inflight.Wait()
}
