package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stockflow/stockflow-bom/internal/model/entity"
	"gorm.io/gorm"
)

func generateID() string {
	return uuid.New().String()
}

// isUniqueViolation reports whether err is a postgres unique-index violation
// (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// BOMRepository persists BOM versions and line items. Every operation is
// scoped to the branch identifier supplied by the caller; the repository
// never infers scope.
type BOMRepository struct {
	db *gorm.DB
}

func NewBOMRepository(db *gorm.DB) *BOMRepository {
	return &BOMRepository{db: db}
}

// CreateVersion inserts a new version row. The caller decides the initial
// status; the repository only enforces version-number uniqueness per parent.
func (r *BOMRepository) CreateVersion(ctx context.Context, v *entity.BOMVersion) error {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&entity.BOMVersion{}).
		Where("branch_id = ? AND parent_product_id = ? AND version_number = ?",
			v.BranchID, v.ParentProductID, v.VersionNumber).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrDuplicateVersion
	}

	if v.ID == "" {
		v.ID = generateID()
	}
	now := time.Now()
	v.CreatedAt = now
	v.UpdatedAt = now
	if err := r.db.WithContext(ctx).Create(v).Error; err != nil {
		// A concurrent insert can slip past the count check; the unique
		// index uq_parent_version still rejects it.
		if isUniqueViolation(err) {
			return ErrDuplicateVersion
		}
		return err
	}
	return nil
}

// GetVersion loads a version by ID.
func (r *BOMRepository) GetVersion(ctx context.Context, branchID, id string) (*entity.BOMVersion, error) {
	var v entity.BOMVersion
	err := r.db.WithContext(ctx).
		Where("id = ? AND branch_id = ?", id, branchID).
		First(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

// ListVersions returns all versions of a parent product, newest first.
func (r *BOMRepository) ListVersions(ctx context.Context, branchID, parentProductID string) ([]entity.BOMVersion, error) {
	var versions []entity.BOMVersion
	err := r.db.WithContext(ctx).
		Where("branch_id = ? AND parent_product_id = ?", branchID, parentProductID).
		Order("created_at DESC").
		Find(&versions).Error
	return versions, err
}

// GetActiveVersion returns the parent's active version, or ErrNotFound when
// the parent has none.
func (r *BOMRepository) GetActiveVersion(ctx context.Context, branchID, parentProductID string) (*entity.BOMVersion, error) {
	var v entity.BOMVersion
	err := r.db.WithContext(ctx).
		Where("branch_id = ? AND parent_product_id = ? AND status = ?",
			branchID, parentProductID, entity.BOMStatusActive).
		First(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

// CopyVersion creates a new draft version and duplicates the source version's
// line items under it, all in one transaction. The new version survives even
// if the caller later abandons it; partial copies are rolled back.
func (r *BOMRepository) CopyVersion(ctx context.Context, branchID, sourceVersionID, newVersionNumber string) (*entity.BOMVersion, error) {
	var created *entity.BOMVersion
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var source entity.BOMVersion
		if err := tx.Where("id = ? AND branch_id = ?", sourceVersionID, branchID).
			First(&source).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		var count int64
		if err := tx.Model(&entity.BOMVersion{}).
			Where("branch_id = ? AND parent_product_id = ? AND version_number = ?",
				branchID, source.ParentProductID, newVersionNumber).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateVersion
		}

		now := time.Now()
		created = &entity.BOMVersion{
			ID:              generateID(),
			BranchID:        branchID,
			ParentProductID: source.ParentProductID,
			VersionNumber:   newVersionNumber,
			Status:          entity.BOMStatusDraft,
			Description:     source.Description,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.Create(created).Error; err != nil {
			return err
		}

		var items []entity.BOMLineItem
		if err := tx.Where("branch_id = ? AND bom_version_id = ?", branchID, sourceVersionID).
			Order("sequence_number ASC").
			Find(&items).Error; err != nil {
			return err
		}
		for i := range items {
			items[i].ID = generateID()
			items[i].BOMVersionID = &created.ID
			items[i].CreatedAt = now
			items[i].UpdatedAt = now
		}
		if len(items) > 0 {
			if err := tx.Create(&items).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ActivateVersion makes the target version active and archives any other
// active version of the same parent in the same transaction, so readers never
// observe zero or two active versions.
func (r *BOMRepository) ActivateVersion(ctx context.Context, branchID, versionID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var target entity.BOMVersion
		if err := tx.Where("id = ? AND branch_id = ?", versionID, branchID).
			First(&target).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		// No early return when the target is already active: siblings may
		// still hold active status and must be archived either way.
		now := time.Now()
		if err := tx.Model(&entity.BOMVersion{}).
			Where("branch_id = ? AND parent_product_id = ? AND status = ? AND id <> ?",
				branchID, target.ParentProductID, entity.BOMStatusActive, versionID).
			Updates(map[string]interface{}{
				"status":     entity.BOMStatusArchived,
				"updated_at": now,
			}).Error; err != nil {
			return err
		}

		return tx.Model(&entity.BOMVersion{}).
			Where("id = ?", versionID).
			Updates(map[string]interface{}{
				"status":     entity.BOMStatusActive,
				"updated_at": now,
			}).Error
	})
}

// DeleteVersion removes a version and cascades to its line items. An active
// version cannot be deleted; it must be replaced or archived first.
func (r *BOMRepository) DeleteVersion(ctx context.Context, branchID, versionID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var v entity.BOMVersion
		if err := tx.Where("id = ? AND branch_id = ?", versionID, branchID).
			First(&v).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if v.Status == entity.BOMStatusActive {
			return ErrVersionActive
		}

		if err := tx.Where("branch_id = ? AND bom_version_id = ?", branchID, versionID).
			Delete(&entity.BOMLineItem{}).Error; err != nil {
			return err
		}
		return tx.Delete(&v).Error
	})
}

// UpsertLineItem creates the line item when it has no ID yet, otherwise
// saves it in place.
func (r *BOMRepository) UpsertLineItem(ctx context.Context, item *entity.BOMLineItem) error {
	now := time.Now()
	item.UpdatedAt = now
	if item.ID == "" {
		item.ID = generateID()
		item.CreatedAt = now
		return r.db.WithContext(ctx).Create(item).Error
	}
	return r.db.WithContext(ctx).Save(item).Error
}

// GetLineItem loads one line item with its component product.
func (r *BOMRepository) GetLineItem(ctx context.Context, branchID, id string) (*entity.BOMLineItem, error) {
	var item entity.BOMLineItem
	err := r.db.WithContext(ctx).
		Preload("Component").
		Where("id = ? AND branch_id = ?", id, branchID).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

// DeleteLineItem removes a single line item.
func (r *BOMRepository) DeleteLineItem(ctx context.Context, branchID, id string) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND branch_id = ?", id, branchID).
		Delete(&entity.BOMLineItem{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListLineItems returns every line item of a parent product, versioned and
// legacy alike.
func (r *BOMRepository) ListLineItems(ctx context.Context, branchID, parentProductID string) ([]entity.BOMLineItem, error) {
	var items []entity.BOMLineItem
	err := r.db.WithContext(ctx).
		Preload("Component").
		Where("branch_id = ? AND parent_product_id = ?", branchID, parentProductID).
		Order("sequence_number ASC").
		Find(&items).Error
	return items, err
}

// ListLineItemsByVersion returns the line items stored under one version.
func (r *BOMRepository) ListLineItemsByVersion(ctx context.Context, branchID, versionID string) ([]entity.BOMLineItem, error) {
	var items []entity.BOMLineItem
	err := r.db.WithContext(ctx).
		Preload("Component").
		Where("branch_id = ? AND bom_version_id = ?", branchID, versionID).
		Order("sequence_number ASC").
		Find(&items).Error
	return items, err
}

// ListLegacyLineItems returns the unversioned lines of a parent product.
func (r *BOMRepository) ListLegacyLineItems(ctx context.Context, branchID, parentProductID string) ([]entity.BOMLineItem, error) {
	var items []entity.BOMLineItem
	err := r.db.WithContext(ctx).
		Preload("Component").
		Where("branch_id = ? AND parent_product_id = ? AND bom_version_id IS NULL",
			branchID, parentProductID).
		Order("sequence_number ASC").
		Find(&items).Error
	return items, err
}

// CanonicalLineItems returns the line set that defines a product's recipe:
// the active version's lines when an active version exists, otherwise the
// legacy unversioned lines.
func (r *BOMRepository) CanonicalLineItems(ctx context.Context, branchID, parentProductID string) ([]entity.BOMLineItem, error) {
	active, err := r.GetActiveVersion(ctx, branchID, parentProductID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return r.ListLegacyLineItems(ctx, branchID, parentProductID)
		}
		return nil, err
	}
	return r.ListLineItemsByVersion(ctx, branchID, active.ID)
}

// ListByComponent returns every line item that consumes the given component,
// across all parents and versions. The service filters to canonical sets.
func (r *BOMRepository) ListByComponent(ctx context.Context, branchID, componentProductID string) ([]entity.BOMLineItem, error) {
	var items []entity.BOMLineItem
	err := r.db.WithContext(ctx).
		Where("branch_id = ? AND component_product_id = ?", branchID, componentProductID).
		Find(&items).Error
	return items, err
}

// ReplaceLineItems swaps out every line item under a version for the given
// set, in one transaction. Item IDs are reassigned; sequence numbers fall
// back to insertion order when unset.
func (r *BOMRepository) ReplaceLineItems(ctx context.Context, branchID, versionID string, items []entity.BOMLineItem) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var v entity.BOMVersion
		if err := tx.Where("id = ? AND branch_id = ?", versionID, branchID).
			First(&v).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		if err := tx.Where("branch_id = ? AND bom_version_id = ?", branchID, versionID).
			Delete(&entity.BOMLineItem{}).Error; err != nil {
			return err
		}

		now := time.Now()
		for i := range items {
			items[i].ID = generateID()
			items[i].BranchID = branchID
			items[i].ParentProductID = v.ParentProductID
			items[i].BOMVersionID = &v.ID
			if items[i].SequenceNumber == 0 {
				items[i].SequenceNumber = i + 1
			}
			items[i].CreatedAt = now
			items[i].UpdatedAt = now
		}
		if len(items) > 0 {
			if err := tx.Create(&items).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// DistinctParents returns the IDs of every product that has a recipe defined,
// whether through versions or legacy unversioned lines.
func (r *BOMRepository) DistinctParents(ctx context.Context, branchID string) ([]string, error) {
	var fromVersions []string
	if err := r.db.WithContext(ctx).Model(&entity.BOMVersion{}).
		Where("branch_id = ?", branchID).
		Distinct().Pluck("parent_product_id", &fromVersions).Error; err != nil {
		return nil, err
	}
	var fromLines []string
	if err := r.db.WithContext(ctx).Model(&entity.BOMLineItem{}).
		Where("branch_id = ?", branchID).
		Distinct().Pluck("parent_product_id", &fromLines).Error; err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(fromVersions))
	ids := make([]string, 0, len(fromVersions))
	for _, id := range append(fromVersions, fromLines...) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}
