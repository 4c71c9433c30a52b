package models

import (
	"time"

	"github.com/google/uuid"
)

// Line-item category keys. A pricing mode maps these to multiplier factors;
// CategoryAll is the fallback when no category-specific factor is defined.
const (
	CategoryAll           = "all"
	CategoryLabor         = "labor"
	CategoryMaterials     = "materials"
	CategoryServices      = "services"
	CategoryInstallation  = "installation"
	CategoryEquipment     = "equipment"
	CategorySubcontractor = "subcontractor"
)

// ValidCategories lists every category key a line item or adjustment may use.
var ValidCategories = map[string]bool{
	CategoryAll:           true,
	CategoryLabor:         true,
	CategoryMaterials:     true,
	CategoryServices:      true,
	CategoryInstallation:  true,
	CategorySubcontractor: true,
	CategoryEquipment:     true,
}

// PricingMode is a named multiplier set applied in bulk to price-book items.
// Presets are system-seeded (OrganizationID is nil) and immutable; all other
// modes are authored by an organization. A running job never reads the mode
// again after creation, so edits do not affect in-flight work.
type PricingMode struct {
	ID             uuid.UUID          `db:"id"              json:"id"`
	OrganizationID *uuid.UUID         `db:"organization_id" json:"organization_id,omitempty"`
	Name           string             `db:"name"            json:"name"`
	Adjustments    map[string]float64 `db:"adjustments"     json:"adjustments"`
	IsPreset       bool               `db:"is_preset"       json:"is_preset"`
	UseCount       int                `db:"use_count"       json:"use_count"`
	SuccessCount   int                `db:"success_count"   json:"success_count"`
	CreatedAt      time.Time          `db:"created_at"      json:"created_at"`
	UpdatedAt      time.Time          `db:"updated_at"      json:"updated_at"`
}

// Multiplier resolves the factor for a category: exact match, then the "all"
// fallback, then identity.
func (m *PricingMode) Multiplier(category string) float64 {
	if f, ok := m.Adjustments[category]; ok {
		return f
	}
	if f, ok := m.Adjustments[CategoryAll]; ok {
		return f
	}
	return 1.0
}
