package models

import (
	"time"

	"github.com/google/uuid"
)

// LineItem is one price-book entry. Price is the current effective price;
// AppliedModeID records which pricing mode last wrote it, or nil when the
// price is a manual override or the untouched base.
//
// Floor (red-line) and Ceiling (cap) bound what any mode may write. BasePrice
// is a pointer because imported items can arrive without a usable source
// price; applying a mode to such an item is a per-item failure, not a crash.
type LineItem struct {
	ID             uuid.UUID  `db:"id"              json:"id"`
	OrganizationID uuid.UUID  `db:"organization_id" json:"organization_id"`
	Name           string     `db:"name"            json:"name"`
	Category       string     `db:"category"        json:"category"`
	BasePrice      *float64   `db:"base_price"      json:"base_price,omitempty"`
	Floor          *float64   `db:"floor_price"     json:"floor_price,omitempty"`
	Ceiling        *float64   `db:"ceiling_price"   json:"ceiling_price,omitempty"`
	Price          float64    `db:"price"           json:"price"`
	AppliedModeID  *uuid.UUID `db:"applied_mode_id" json:"applied_mode_id,omitempty"`
	CreatedAt      time.Time  `db:"created_at"      json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"      json:"updated_at"`
}
