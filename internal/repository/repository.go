package repository

import (
	"errors"

	"gorm.io/gorm"
)

// Typed errors surfaced to the service layer. Transient database failures
// propagate unwrapped; callers decide whether to retry.
var (
	ErrNotFound         = errors.New("record not found")
	ErrDuplicateVersion = errors.New("version number already exists for this product")
	ErrVersionActive    = errors.New("version is active and cannot be deleted")
)

// Repositories is the repository collection handed to the service layer.
type Repositories struct {
	Product *ProductRepository
	BOM     *BOMRepository
}

// NewRepositories wires all repositories onto one gorm handle.
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Product: NewProductRepository(db),
		BOM:     NewBOMRepository(db),
	}
}
