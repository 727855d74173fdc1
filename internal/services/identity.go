package services

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/store"
)

// IdentityChecker answers the two questions the ledger asks about users.
// sqlstore.Store implements it over the users table.
type IdentityChecker interface {
	UserExists(ctx context.Context, userID uuid.UUID) (bool, error)
	OwnsAccount(ctx context.Context, userID, accountID uuid.UUID) (bool, error)
}

// StaticIdentityChecker keeps a fixed user set in memory and resolves
// ownership through the account store.
type StaticIdentityChecker struct {
	accounts store.AccountStore

	mu      sync.RWMutex
	users   map[uuid.UUID]bool
	anyUser bool
}

func NewStaticIdentityChecker(accounts store.AccountStore, users ...uuid.UUID) *StaticIdentityChecker {
	c := &StaticIdentityChecker{accounts: accounts, users: make(map[uuid.UUID]bool)}
	for _, id := range users {
		c.users[id] = true
	}
	return c
}

// NewOpenIdentityChecker treats every non-nil user id as known. Development only.
func NewOpenIdentityChecker(accounts store.AccountStore) *StaticIdentityChecker {
	c := NewStaticIdentityChecker(accounts)
	c.anyUser = true
	return c
}

func (c *StaticIdentityChecker) AddUser(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users[id] = true
}

func (c *StaticIdentityChecker) UserExists(_ context.Context, userID uuid.UUID) (bool, error) {
	if userID == uuid.Nil {
		return false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.anyUser || c.users[userID], nil
}

func (c *StaticIdentityChecker) OwnsAccount(ctx context.Context, userID, accountID uuid.UUID) (bool, error) {
	acct, err := c.accounts.GetAccount(ctx, accountID)
	if errors.Is(err, models.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return acct.OwnerUserID == userID, nil
}
