package entity

import (
	"time"
)

// Product is the inventory service's product row. The BOM core reads stock,
// prices and unit of measure from it and never writes it.
type Product struct {
	ID              string    `json:"id" gorm:"primaryKey;size:36"`
	BranchID        string    `json:"branch_id" gorm:"size:36;not null;index"`
	Name            string    `json:"name" gorm:"size:255;not null"`
	SKU             string    `json:"sku,omitempty" gorm:"size:64;index"`
	QuantityInStock float64   `json:"quantity_in_stock" gorm:"type:decimal(15,4);not null;default:0"`
	PurchasePrice   float64   `json:"purchase_price" gorm:"type:decimal(15,4);not null;default:0"`
	UnitPrice       float64   `json:"unit_price" gorm:"type:decimal(15,4);not null;default:0"`
	UnitOfMeasure   string    `json:"unit_of_measure" gorm:"size:16;not null;default:unit"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (Product) TableName() string {
	return "products"
}
