package entity

import (
	"time"
)

// BOMVersion is one named revision of a product's recipe.
type BOMVersion struct {
	ID              string     `json:"id" gorm:"primaryKey;size:36"`
	BranchID        string     `json:"branch_id" gorm:"size:36;not null;index;uniqueIndex:uq_parent_version,priority:1"`
	ParentProductID string     `json:"parent_product_id" gorm:"size:36;not null;index;uniqueIndex:uq_parent_version,priority:2"`
	VersionNumber   string     `json:"version_number" gorm:"size:32;not null;uniqueIndex:uq_parent_version,priority:3"`
	Status          string     `json:"status" gorm:"size:16;not null;default:draft"`
	Description     string     `json:"description,omitempty" gorm:"type:text"`
	EffectiveDate   *time.Time `json:"effective_date,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	// Relations
	ParentProduct *Product      `json:"parent_product,omitempty" gorm:"foreignKey:ParentProductID"`
	LineItems     []BOMLineItem `json:"line_items,omitempty" gorm:"foreignKey:BOMVersionID"`
}

func (BOMVersion) TableName() string {
	return "bom_versions"
}

// BOMLineItem is one row of a parent's recipe. A nil BOMVersionID marks a
// legacy, unversioned line kept readable for migration.
type BOMLineItem struct {
	ID                 string    `json:"id" gorm:"primaryKey;size:36"`
	BranchID           string    `json:"branch_id" gorm:"size:36;not null;index"`
	ParentProductID    string    `json:"parent_product_id" gorm:"size:36;not null;index"`
	ComponentProductID string    `json:"component_product_id" gorm:"size:36;not null;index"`
	BOMVersionID       *string   `json:"bom_version_id,omitempty" gorm:"size:36;index"`
	QuantityRequired   float64   `json:"quantity_required" gorm:"type:decimal(15,4);not null"`
	UnitOfMeasure      string    `json:"unit_of_measure" gorm:"size:16;not null;default:unit"`
	ComponentUOM       string    `json:"component_uom" gorm:"size:16"`
	ConversionFactor   float64   `json:"conversion_factor" gorm:"type:decimal(15,6);not null;default:1"`
	ScrapFactor        float64   `json:"scrap_factor" gorm:"type:decimal(8,6);not null;default:0"`
	SequenceNumber     int       `json:"sequence_number" gorm:"not null;default:0"`
	Notes              string    `json:"notes,omitempty" gorm:"type:text"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`

	// Relations
	Version   *BOMVersion `json:"version,omitempty" gorm:"foreignKey:BOMVersionID"`
	Component *Product    `json:"component,omitempty" gorm:"foreignKey:ComponentProductID"`
}

func (BOMLineItem) TableName() string {
	return "bom_line_items"
}

// EffectiveQuantity is the per-unit requirement in parent UOM: the conversion
// factor bridges component UOM to parent UOM and the scrap factor inflates the
// requirement for expected waste.
func (i BOMLineItem) EffectiveQuantity() float64 {
	return i.QuantityRequired * i.ConversionFactor * (1 + i.ScrapFactor)
}

// BOMVersion statuses
const (
	BOMStatusDraft    = "draft"
	BOMStatusActive   = "active"
	BOMStatusArchived = "archived"
)
