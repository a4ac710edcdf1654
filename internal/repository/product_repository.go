package repository

import (
	"context"
	"errors"

	"github.com/stockflow/stockflow-bom/internal/model/entity"
	"gorm.io/gorm"
)

// ProductRepository reads product rows owned by the inventory service.
// The BOM core never mutates them.
type ProductRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// FindByID finds a product within a branch scope.
func (r *ProductRepository) FindByID(ctx context.Context, branchID, id string) (*entity.Product, error) {
	var product entity.Product
	err := r.db.WithContext(ctx).
		Where("id = ? AND branch_id = ?", id, branchID).
		First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

// ListByIDs loads a batch of products, skipping IDs that do not exist.
func (r *ProductRepository) ListByIDs(ctx context.Context, branchID string, ids []string) ([]entity.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var products []entity.Product
	err := r.db.WithContext(ctx).
		Where("branch_id = ? AND id IN ?", branchID, ids).
		Find(&products).Error
	return products, err
}

// GetStock returns the current on-hand quantity for a product.
func (r *ProductRepository) GetStock(ctx context.Context, branchID, id string) (float64, error) {
	product, err := r.FindByID(ctx, branchID, id)
	if err != nil {
		return 0, err
	}
	return product.QuantityInStock, nil
}
