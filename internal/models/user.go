package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the account holder reference. Users are provisioned outside the
// ledger; the ledger only checks that they exist.
type User struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	FirstName string    `json:"firstName" db:"first_name"`
	LastName  string    `json:"lastName" db:"last_name"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
