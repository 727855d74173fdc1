package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/stretchr/testify/mock"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, event models.NotificationEvent, txn *models.Transaction, acct *models.Account) error {
	args := m.Called(ctx, event, txn, acct)
	return args.Error(0)
}

type MockIdentityChecker struct {
	mock.Mock
}

func (m *MockIdentityChecker) UserExists(ctx context.Context, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdentityChecker) OwnsAccount(ctx context.Context, userID, accountID uuid.UUID) (bool, error) {
	args := m.Called(ctx, userID, accountID)
	return args.Bool(0), args.Error(1)
}

type MockNumberRegistry struct {
	mock.Mock
}

func (m *MockNumberRegistry) TransactionNumberExists(ctx context.Context, number string) (bool, error) {
	args := m.Called(ctx, number)
	return args.Bool(0), args.Error(1)
}
