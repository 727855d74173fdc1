// Package memory provides an in-process store.Store for tests and local runs.
//
// Each account has its own weighted semaphore of size one; WithinAccount
// holds it for the duration of the unit so balance writes on the same account
// serialize while different accounts proceed in parallel. Writes made inside a
// unit are staged and applied under the data mutex only when the unit succeeds.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/store"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/semaphore"
)

// Store implements store.Store. The zero value is not usable; call New.
type Store struct {
	st  *state
	sec *section // non-nil inside WithinAccount
}

var _ store.Store = (*Store)(nil)

type state struct {
	mu           sync.RWMutex
	accounts     map[uuid.UUID]*models.Account
	transactions map[uuid.UUID]*models.Transaction
	byNumber     map[string]uuid.UUID // live transactions
	issued       map[string]struct{}  // every number ever issued

	locksMu     sync.Mutex
	locks       map[uuid.UUID]*semaphore.Weighted
	lockTimeout time.Duration
}

type Option func(*state)

// WithLockTimeout bounds the wait for an account section even when the
// caller's context has no deadline.
func WithLockTimeout(d time.Duration) Option {
	return func(s *state) { s.lockTimeout = d }
}

func New(opts ...Option) *Store {
	st := &state{
		accounts:     make(map[uuid.UUID]*models.Account),
		transactions: make(map[uuid.UUID]*models.Transaction),
		byNumber:     make(map[string]uuid.UUID),
		issued:       make(map[string]struct{}),
		locks:        make(map[uuid.UUID]*semaphore.Weighted),
	}
	for _, opt := range opts {
		opt(st)
	}
	return &Store{st: st}
}

// =============================================================================
// UNIT OF WORK
// =============================================================================

// op is a staged write. check runs for every op before any apply, all under
// the data write lock, so a unit either commits entirely or not at all.
type op struct {
	check func(st *state) error
	apply func(st *state)
}

type section struct {
	held     map[uuid.UUID]*semaphore.Weighted
	accounts map[uuid.UUID]*models.Account     // nil value = deleted
	txns     map[uuid.UUID]*models.Transaction // nil value = deleted
	issued   map[string]struct{}
	ops      []op
}

func (st *state) lockFor(id uuid.UUID) *semaphore.Weighted {
	st.locksMu.Lock()
	defer st.locksMu.Unlock()
	sem, ok := st.locks[id]
	if !ok {
		sem = semaphore.NewWeighted(1)
		st.locks[id] = sem
	}
	return sem
}

// dropLock forgets the semaphore of an account that no longer exists.
func (st *state) dropLock(id uuid.UUID, sem *semaphore.Weighted) {
	st.locksMu.Lock()
	defer st.locksMu.Unlock()
	if st.locks[id] == sem {
		delete(st.locks, id)
	}
}

func (s *Store) acquire(ctx context.Context, sec *section, id uuid.UUID) error {
	if _, ok := sec.held[id]; ok {
		return nil
	}
	if s.st.lockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.st.lockTimeout)
		defer cancel()
	}
	sem := s.st.lockFor(id)
	if err := sem.Acquire(ctx, 1); err != nil {
		return models.Wrap(models.ErrUnavailable, "memory.lock_account", err)
	}
	sec.held[id] = sem
	return nil
}

func (s *Store) WithinAccount(ctx context.Context, accountID uuid.UUID, fn func(tx store.Store) error) error {
	if s.sec != nil {
		// Nested unit: join the outer one.
		if err := s.acquire(ctx, s.sec, accountID); err != nil {
			return err
		}
		return fn(s)
	}

	sec := &section{
		held:     make(map[uuid.UUID]*semaphore.Weighted),
		accounts: make(map[uuid.UUID]*models.Account),
		txns:     make(map[uuid.UUID]*models.Transaction),
		issued:   make(map[string]struct{}),
	}
	defer func() {
		for id, sem := range sec.held {
			sem.Release(1)
			if _, ok := s.account(id); !ok {
				s.st.dropLock(id, sem)
			}
		}
	}()

	if err := s.acquire(ctx, sec, accountID); err != nil {
		return err
	}
	if _, ok := s.account(accountID); !ok {
		return models.NotFound("memory.within_account", "account %s not found", accountID)
	}

	if err := fn(&Store{st: s.st, sec: sec}); err != nil {
		return err
	}
	return s.commit(sec)
}

func (s *Store) commit(sec *section) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	for _, o := range sec.ops {
		if o.check == nil {
			continue
		}
		if err := o.check(s.st); err != nil {
			return err
		}
	}
	for _, o := range sec.ops {
		o.apply(s.st)
	}
	return nil
}

// write applies o immediately on a root store, or stages it inside a unit.
func (s *Store) write(o op) error {
	if s.sec != nil {
		s.sec.ops = append(s.sec.ops, o)
		return nil
	}
	return s.commit(&section{ops: []op{o}})
}

// =============================================================================
// READ HELPERS - overlay staged writes on shared state
// =============================================================================

func (s *Store) account(id uuid.UUID) (*models.Account, bool) {
	if s.sec != nil {
		if a, ok := s.sec.accounts[id]; ok {
			return a, a != nil
		}
	}
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	a, ok := s.st.accounts[id]
	if !ok {
		return nil, false
	}
	return a.Clone(), true
}

func (s *Store) transaction(id uuid.UUID) (*models.Transaction, bool) {
	if s.sec != nil {
		if t, ok := s.sec.txns[id]; ok {
			return t, t != nil
		}
	}
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	t, ok := s.st.transactions[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

func (s *Store) allAccounts() []*models.Account {
	s.st.mu.RLock()
	out := make(map[uuid.UUID]*models.Account, len(s.st.accounts))
	for id, a := range s.st.accounts {
		out[id] = a.Clone()
	}
	s.st.mu.RUnlock()
	if s.sec != nil {
		for id, a := range s.sec.accounts {
			out[id] = a
		}
	}
	list := make([]*models.Account, 0, len(out))
	for _, a := range out {
		if a != nil {
			list = append(list, a)
		}
	}
	return list
}

func (s *Store) allTransactions() []*models.Transaction {
	s.st.mu.RLock()
	out := make(map[uuid.UUID]*models.Transaction, len(s.st.transactions))
	for id, t := range s.st.transactions {
		out[id] = t.Clone()
	}
	s.st.mu.RUnlock()
	if s.sec != nil {
		for id, t := range s.sec.txns {
			out[id] = t
		}
	}
	list := make([]*models.Transaction, 0, len(out))
	for _, t := range out {
		if t != nil {
			list = append(list, t)
		}
	}
	return list
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (s *Store) GetAccount(_ context.Context, id uuid.UUID) (*models.Account, error) {
	a, ok := s.account(id)
	if !ok {
		return nil, models.NotFound("accounts.get", "account %s not found", id)
	}
	return a.Clone(), nil
}

func (s *Store) GetAccountByNumber(_ context.Context, number string) (*models.Account, error) {
	for _, a := range s.allAccounts() {
		if a.AccountNumber == number {
			return a.Clone(), nil
		}
	}
	return nil, models.NotFound("accounts.get_by_number", "account %s not found", number)
}

func (s *Store) ListAccountsByOwner(_ context.Context, userID uuid.UUID) ([]*models.Account, error) {
	out := []*models.Account{}
	for _, a := range s.allAccounts() {
		if a.OwnerUserID == userID {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) AccountNumberExists(ctx context.Context, number string) (bool, error) {
	_, err := s.GetAccountByNumber(ctx, number)
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (s *Store) CreateAccount(ctx context.Context, acct *models.Account) error {
	if exists, _ := s.AccountNumberExists(ctx, acct.AccountNumber); exists {
		return models.Conflict("accounts.create", "account number %s already exists", acct.AccountNumber)
	}
	stored := acct.Clone()
	if s.sec != nil {
		s.sec.accounts[acct.ID] = stored
	}
	return s.write(op{
		check: func(st *state) error {
			for _, a := range st.accounts {
				if a.AccountNumber == stored.AccountNumber {
					return models.Conflict("accounts.create", "account number %s already exists", stored.AccountNumber)
				}
			}
			return nil
		},
		apply: func(st *state) { st.accounts[stored.ID] = stored.Clone() },
	})
}

func (s *Store) UpdateAccount(_ context.Context, acct *models.Account) error {
	current, ok := s.account(acct.ID)
	if !ok {
		return models.NotFound("accounts.update", "account %s not found", acct.ID)
	}
	current.AccountType = acct.AccountType
	current.IsActive = acct.IsActive
	current.Description = acct.Description
	current.LastUpdatedAt = acct.LastUpdatedAt
	if s.sec != nil {
		s.sec.accounts[acct.ID] = current
	}
	profile := current.Clone()
	return s.write(op{
		check: accountExists("accounts.update", acct.ID),
		apply: func(st *state) {
			a := st.accounts[profile.ID]
			a.AccountType = profile.AccountType
			a.IsActive = profile.IsActive
			a.Description = profile.Description
			a.LastUpdatedAt = profile.LastUpdatedAt
		},
	})
}

func (s *Store) DeleteAccount(ctx context.Context, id uuid.UUID) (bool, error) {
	if s.sec == nil {
		deleted := false
		err := s.WithinAccount(ctx, id, func(tx store.Store) error {
			var err error
			deleted, err = tx.DeleteAccount(ctx, id)
			return err
		})
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		return deleted, err
	}

	a, ok := s.account(id)
	if !ok {
		return false, nil
	}
	if !a.Balance.IsZero() {
		return false, models.InvalidState("accounts.delete", "account %s has non-zero balance %s", id, a.Balance.StringFixed(models.MoneyScale))
	}
	for _, t := range s.allTransactions() {
		if t.AccountID == id {
			return false, models.InvalidState("accounts.delete", "account %s still has transactions", id)
		}
	}
	if s.sec != nil {
		s.sec.accounts[id] = nil
	}
	err := s.write(op{
		check: func(st *state) error {
			a, ok := st.accounts[id]
			if !ok {
				return models.NotFound("accounts.delete", "account %s not found", id)
			}
			if !a.Balance.IsZero() {
				return models.InvalidState("accounts.delete", "account %s has non-zero balance", id)
			}
			for _, t := range st.transactions {
				if t.AccountID == id {
					return models.InvalidState("accounts.delete", "account %s still has transactions", id)
				}
			}
			return nil
		},
		apply: func(st *state) { delete(st.accounts, id) },
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) ApplyBalanceDelta(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal) (*models.Account, error) {
	if s.sec == nil {
		var out *models.Account
		err := s.WithinAccount(ctx, accountID, func(tx store.Store) error {
			var err error
			out, err = tx.ApplyBalanceDelta(ctx, accountID, delta)
			return err
		})
		return out, err
	}

	if err := s.acquire(ctx, s.sec, accountID); err != nil {
		return nil, err
	}
	a, ok := s.account(accountID)
	if !ok {
		return nil, models.NotFound("accounts.apply_delta", "account %s not found", accountID)
	}
	if !a.IsActive {
		return nil, models.InvalidState("accounts.apply_delta", "account %s is inactive", accountID)
	}

	now := time.Now().UTC()
	a.Balance = a.Balance.Add(delta)
	a.Version++
	a.LastUpdatedAt = &now
	s.sec.accounts[accountID] = a

	balance, version := a.Balance, a.Version
	err := s.write(op{
		check: accountExists("accounts.apply_delta", accountID),
		apply: func(st *state) {
			stored := st.accounts[accountID]
			stored.Balance = balance
			stored.Version = version
			stored.LastUpdatedAt = &now
		},
	})
	if err != nil {
		return nil, err
	}
	return a.Clone(), nil
}

func accountExists(op string, id uuid.UUID) func(st *state) error {
	return func(st *state) error {
		if _, ok := st.accounts[id]; !ok {
			return models.NotFound(op, "account %s not found", id)
		}
		return nil
	}
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func (s *Store) GetTransaction(_ context.Context, id uuid.UUID) (*models.Transaction, error) {
	t, ok := s.transaction(id)
	if !ok {
		return nil, models.NotFound("transactions.get", "transaction %s not found", id)
	}
	return t.Clone(), nil
}

func (s *Store) GetTransactionByNumber(_ context.Context, number string) (*models.Transaction, error) {
	if s.sec != nil {
		for _, t := range s.sec.txns {
			if t != nil && t.TransactionNumber == number {
				return t.Clone(), nil
			}
		}
	}
	s.st.mu.RLock()
	id, ok := s.st.byNumber[number]
	s.st.mu.RUnlock()
	if ok {
		if t, ok := s.transaction(id); ok {
			return t.Clone(), nil
		}
	}
	return nil, models.NotFound("transactions.get_by_number", "transaction %s not found", number)
}

func (s *Store) TransactionNumberExists(_ context.Context, number string) (bool, error) {
	if s.sec != nil {
		if _, ok := s.sec.issued[number]; ok {
			return true, nil
		}
	}
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	_, ok := s.st.issued[number]
	return ok, nil
}

func (s *Store) CreateTransaction(ctx context.Context, txn *models.Transaction) error {
	if exists, _ := s.TransactionNumberExists(ctx, txn.TransactionNumber); exists {
		return models.Conflict("transactions.create", "transaction number %s already issued", txn.TransactionNumber)
	}
	if _, ok := s.account(txn.AccountID); !ok {
		return models.NotFound("transactions.create", "account %s not found", txn.AccountID)
	}
	stored := txn.Clone()
	if s.sec != nil {
		s.sec.txns[txn.ID] = stored
		s.sec.issued[txn.TransactionNumber] = struct{}{}
	}
	return s.write(op{
		check: func(st *state) error {
			if _, ok := st.issued[stored.TransactionNumber]; ok {
				return models.Conflict("transactions.create", "transaction number %s already issued", stored.TransactionNumber)
			}
			if _, ok := st.accounts[stored.AccountID]; !ok {
				return models.NotFound("transactions.create", "account %s not found", stored.AccountID)
			}
			return nil
		},
		apply: func(st *state) {
			st.transactions[stored.ID] = stored.Clone()
			st.byNumber[stored.TransactionNumber] = stored.ID
			st.issued[stored.TransactionNumber] = struct{}{}
		},
	})
}

func (s *Store) UpdateTransaction(_ context.Context, txn *models.Transaction) error {
	if _, ok := s.transaction(txn.ID); !ok {
		return models.NotFound("transactions.update", "transaction %s not found", txn.ID)
	}
	stored := txn.Clone()
	if s.sec != nil {
		s.sec.txns[txn.ID] = stored
	}
	return s.write(op{
		check: func(st *state) error {
			if _, ok := st.transactions[stored.ID]; !ok {
				return models.NotFound("transactions.update", "transaction %s not found", stored.ID)
			}
			return nil
		},
		apply: func(st *state) { st.transactions[stored.ID] = stored.Clone() },
	})
}

func (s *Store) DeleteTransaction(_ context.Context, id uuid.UUID) (bool, error) {
	t, ok := s.transaction(id)
	if !ok {
		return false, nil
	}
	if s.sec != nil {
		s.sec.txns[id] = nil
	}
	number := t.TransactionNumber
	err := s.write(op{
		apply: func(st *state) {
			delete(st.transactions, id)
			delete(st.byNumber, number)
		},
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) ListTransactionsByAccount(_ context.Context, accountID uuid.UUID) ([]*models.Transaction, error) {
	return s.filterTransactions(func(t *models.Transaction) bool { return t.AccountID == accountID }), nil
}

func (s *Store) ListTransactionsByUser(_ context.Context, userID uuid.UUID) ([]*models.Transaction, error) {
	return s.filterTransactions(func(t *models.Transaction) bool { return t.UserID == userID }), nil
}

func (s *Store) ListTransactionsByDateRange(_ context.Context, accountID uuid.UUID, from, to time.Time) ([]*models.Transaction, error) {
	return s.filterTransactions(func(t *models.Transaction) bool {
		return t.AccountID == accountID && !t.TransactionDate.Before(from) && !t.TransactionDate.After(to)
	}), nil
}

func (s *Store) SumCompleted(_ context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, t := range s.allTransactions() {
		if t.AccountID == accountID && t.Status == models.StatusCompleted {
			total = total.Add(t.SignedAmount())
		}
	}
	return total, nil
}

func (s *Store) filterTransactions(keep func(*models.Transaction) bool) []*models.Transaction {
	out := []*models.Transaction{}
	for _, t := range s.allTransactions() {
		if keep(t) {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].TransactionDate.Equal(out[j].TransactionDate) {
			return out[i].TransactionDate.After(out[j].TransactionDate)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
