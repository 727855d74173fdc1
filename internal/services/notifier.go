package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/ruralpay/ledger/internal/audit"
	"github.com/ruralpay/ledger/internal/models"
)

const DefaultNotificationQueue = "ledger:notifications"

// Notifier receives settlement and reversal events after the ledger unit commits.
type Notifier interface {
	Notify(ctx context.Context, event models.NotificationEvent, txn *models.Transaction, acct *models.Account) error
}

// RedisNotifier pushes JSON notifications onto a redis list for the
// notification worker to drain.
type RedisNotifier struct {
	client *redis.Client
	queue  string
	now    func() time.Time
}

func NewRedisNotifier(client *redis.Client, queue string) *RedisNotifier {
	if queue == "" {
		queue = DefaultNotificationQueue
	}
	return &RedisNotifier{client: client, queue: queue, now: time.Now}
}

func (n *RedisNotifier) Notify(ctx context.Context, event models.NotificationEvent, txn *models.Transaction, acct *models.Account) error {
	msg := models.NewTransactionNotification(event, txn, acct, n.now().UTC())
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	if err := n.client.RPush(ctx, n.queue, string(payload)).Err(); err != nil {
		return models.Wrap(models.ErrUnavailable, "notify", err)
	}
	log.Printf("[NOTIFY] %s queued for transaction %s on %s", event, txn.ID, n.queue)
	return nil
}

// AuditNotifier records notifications in the audit log. Used when redis is
// not reachable at startup.
type AuditNotifier struct {
	audit *audit.AuditLogger
	now   func() time.Time
}

func NewAuditNotifier(logger *audit.AuditLogger) *AuditNotifier {
	return &AuditNotifier{audit: logger, now: time.Now}
}

func (n *AuditNotifier) Notify(_ context.Context, event models.NotificationEvent, txn *models.Transaction, acct *models.Account) error {
	msg := models.NewTransactionNotification(event, txn, acct, n.now().UTC())
	n.audit.LogNotification(&msg)
	return nil
}

// MultiNotifier fans out to every notifier and joins their errors.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, event models.NotificationEvent, txn *models.Transaction, acct *models.Account) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, event, txn, acct); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
