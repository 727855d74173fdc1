package sqlstore

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ruralpay/ledger/internal/models"
)

// CreateUser provisions a user row. The ledger never edits users afterwards.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	_, err := s.exec(ctx,
		"INSERT INTO users (id, email, first_name, last_name, created_at) VALUES ($1, $2, $3, $4, $5)",
		u.ID.String(), u.Email, u.FirstName, u.LastName, utc(u.CreatedAt),
	)
	if err != nil {
		return translate("users.create", err)
	}
	return nil
}

func (s *Store) UserExists(ctx context.Context, userID uuid.UUID) (bool, error) {
	var exists bool
	err := s.queryRow(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)", userID.String()).Scan(&exists)
	if err != nil {
		return false, translate("users.exists", err)
	}
	return exists, nil
}

func (s *Store) OwnsAccount(ctx context.Context, userID, accountID uuid.UUID) (bool, error) {
	var owns bool
	err := s.queryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1 AND owner_user_id = $2)",
		accountID.String(), userID.String(),
	).Scan(&owns)
	if err != nil {
		return false, translate("users.owns_account", err)
	}
	return owns, nil
}

// SeedUsers provisions users listed as "id" or "id:email", skipping ids that
// already exist. It returns the number of rows created.
func (s *Store) SeedUsers(ctx context.Context, entries []string) (int, error) {
	created := 0
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		rawID, email, _ := strings.Cut(entry, ":")
		id, err := uuid.Parse(rawID)
		if err != nil {
			return created, models.Validation("users.seed", "invalid user id %q", rawID)
		}
		if email == "" {
			email = id.String() + "@ledger.local"
		}

		exists, err := s.UserExists(ctx, id)
		if err != nil {
			return created, err
		}
		if exists {
			continue
		}

		if err := s.CreateUser(ctx, &models.User{ID: id, Email: email, CreatedAt: time.Now()}); err != nil {
			return created, err
		}
		created++
	}
	if created > 0 {
		log.Printf("[STORE] Seeded %d user(s)", created)
	}
	return created, nil
}
