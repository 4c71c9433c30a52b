package models

import (
	"time"

	"github.com/google/uuid"
)

// Organization is the tenant. Every price-book entity and every pricing job
// belongs to exactly one organization.
type Organization struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	Name      string    `db:"name"       json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
