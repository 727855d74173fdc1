package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/ruralpay/ledger/internal/models"
)

const (
	transactionNumberDigits = 12
	transactionNumberSpace  = int64(1_000_000_000_000)

	DefaultNumberAttempts = 10
)

// NumberRegistry reports whether a transaction number was ever issued.
type NumberRegistry interface {
	TransactionNumberExists(ctx context.Context, number string) (bool, error)
}

// TransactionNumberGenerator draws random 12-digit transaction numbers.
// Both Next and Allocate give up after maxAttempts draws.
type TransactionNumberGenerator struct {
	registry    NumberRegistry
	maxAttempts int

	mu  sync.Mutex
	rng *rand.Rand
}

// NewTransactionNumberGenerator uses rng when given, otherwise a time-seeded source.
func NewTransactionNumberGenerator(registry NumberRegistry, rng *rand.Rand, maxAttempts int) *TransactionNumberGenerator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultNumberAttempts
	}
	return &TransactionNumberGenerator{
		registry:    registry,
		maxAttempts: maxAttempts,
		rng:         rng,
	}
}

func (g *TransactionNumberGenerator) draw() string {
	g.mu.Lock()
	n := g.rng.Int63n(transactionNumberSpace)
	g.mu.Unlock()
	return fmt.Sprintf("%0*d", transactionNumberDigits, n)
}

// Next returns a number that was not issued at the time of the check.
func (g *TransactionNumberGenerator) Next(ctx context.Context) (string, error) {
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", models.Wrap(models.ErrUnavailable, "id_generator", err)
		}
		number := g.draw()
		exists, err := g.registry.TransactionNumberExists(ctx, number)
		if err != nil {
			return "", err
		}
		if !exists {
			return number, nil
		}
		log.Printf("[IDGEN] Collision on %s (attempt %d/%d)", number, attempt, g.maxAttempts)
	}
	return "", models.Unavailable("id_generator", "no free transaction number after %d attempts", g.maxAttempts)
}

// Allocate draws a number and hands it to insert, redrawing whenever insert
// reports a conflict. The check and the insert together form the unit; the
// check alone cannot see a concurrent Create that took the same number.
func (g *TransactionNumberGenerator) Allocate(ctx context.Context, insert func(number string) error) (string, error) {
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", models.Wrap(models.ErrUnavailable, "id_generator", err)
		}
		number := g.draw()
		exists, err := g.registry.TransactionNumberExists(ctx, number)
		if err != nil {
			return "", err
		}
		if exists {
			log.Printf("[IDGEN] Collision on %s (attempt %d/%d)", number, attempt, g.maxAttempts)
			continue
		}

		err = insert(number)
		if errors.Is(err, models.ErrConflict) {
			log.Printf("[IDGEN] Lost race for %s (attempt %d/%d)", number, attempt, g.maxAttempts)
			continue
		}
		if err != nil {
			return "", err
		}
		return number, nil
	}
	return "", models.Unavailable("id_generator", "no free transaction number after %d attempts", g.maxAttempts)
}
