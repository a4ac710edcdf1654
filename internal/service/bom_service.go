package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stockflow/stockflow-bom/internal/model/entity"
	"github.com/stockflow/stockflow-bom/internal/repository"
)

// ErrSelfReference rejects a line whose component is the parent product.
var ErrSelfReference = errors.New("a product cannot be a component of itself")

// ValidationError carries the field that failed validation so handlers can
// report it back to the caller.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// CreateVersionRequest creates a new recipe version for a parent product.
type CreateVersionRequest struct {
	VersionNumber string     `json:"version_number" binding:"required"`
	Description   string     `json:"description"`
	Status        string     `json:"status"`
	EffectiveDate *time.Time `json:"effective_date"`
}

// CopyVersionRequest clones an existing version under a new number.
type CopyVersionRequest struct {
	SourceVersionID  string `json:"source_version_id" binding:"required"`
	NewVersionNumber string `json:"new_version_number" binding:"required"`
}

// LineItemRequest carries one component line of a recipe.
type LineItemRequest struct {
	ComponentProductID string  `json:"component_product_id" binding:"required"`
	QuantityRequired   float64 `json:"quantity_required"`
	UnitOfMeasure      string  `json:"unit_of_measure"`
	ComponentUOM       string  `json:"component_uom"`
	ConversionFactor   float64 `json:"conversion_factor"`
	ScrapFactor        float64 `json:"scrap_factor"`
	SequenceNumber     int     `json:"sequence_number"`
	Notes              string  `json:"notes"`
}

// SaveBOMRequest replaces the whole line set of a version in one call.
type SaveBOMRequest struct {
	LineItems []LineItemRequest `json:"line_items"`
}

// LineError reports why one line of a bulk save was rejected.
type LineError struct {
	Index              int    `json:"index"`
	ComponentProductID string `json:"component_product_id,omitempty"`
	Reason             string `json:"reason"`
}

// SaveBOMResult summarizes a bulk save. Valid lines are persisted even when
// some lines fail, so callers see partial success rather than all-or-nothing.
type SaveBOMResult struct {
	Version  *entity.BOMVersion `json:"version"`
	Inserted int                `json:"inserted"`
	Failed   int                `json:"failed"`
	Errors   []LineError        `json:"errors,omitempty"`
}

// BOMService owns recipe versions, their component lines and the buildable
// quantity computation.
type BOMService struct {
	bomRepo     *repository.BOMRepository
	productRepo *repository.ProductRepository
	cycle       *CycleChecker
	rdb         *redis.Client
	cacheTTL    time.Duration
}

func NewBOMService(repos *repository.Repositories, cycle *CycleChecker, rdb *redis.Client, cacheTTL time.Duration) *BOMService {
	return &BOMService{
		bomRepo:     repos.BOM,
		productRepo: repos.Product,
		cycle:       cycle,
		rdb:         rdb,
		cacheTTL:    cacheTTL,
	}
}

// CreateVersion creates a recipe version. The first version of a product
// defaults to active so a freshly defined recipe is immediately usable;
// later versions default to draft.
func (s *BOMService) CreateVersion(ctx context.Context, branchID, parentProductID string, req *CreateVersionRequest) (*entity.BOMVersion, error) {
	if _, err := s.productRepo.FindByID(ctx, branchID, parentProductID); err != nil {
		return nil, fmt.Errorf("load parent product: %w", err)
	}

	status := req.Status
	if status == "" {
		existing, err := s.bomRepo.ListVersions(ctx, branchID, parentProductID)
		if err != nil {
			return nil, err
		}
		if len(existing) == 0 {
			status = entity.BOMStatusActive
		} else {
			status = entity.BOMStatusDraft
		}
	}
	switch status {
	case entity.BOMStatusDraft, entity.BOMStatusActive, entity.BOMStatusArchived:
	default:
		return nil, &ValidationError{Field: "status", Reason: "must be draft, active or archived"}
	}

	// An active version is never inserted directly: the row goes in as a
	// draft and is promoted through the activate transaction, which archives
	// any active sibling. Inserting active would leave two active versions
	// side by side.
	initial := status
	if initial == entity.BOMStatusActive {
		initial = entity.BOMStatusDraft
	}
	version := &entity.BOMVersion{
		BranchID:        branchID,
		ParentProductID: parentProductID,
		VersionNumber:   req.VersionNumber,
		Status:          initial,
		Description:     req.Description,
		EffectiveDate:   req.EffectiveDate,
	}
	if err := s.bomRepo.CreateVersion(ctx, version); err != nil {
		return nil, err
	}
	if status == entity.BOMStatusActive {
		if err := s.bomRepo.ActivateVersion(ctx, branchID, version.ID); err != nil {
			return nil, err
		}
		s.invalidateBuildable(ctx, branchID, parentProductID)
		return s.bomRepo.GetVersion(ctx, branchID, version.ID)
	}
	return version, nil
}

func (s *BOMService) ListVersions(ctx context.Context, branchID, parentProductID string) ([]entity.BOMVersion, error) {
	return s.bomRepo.ListVersions(ctx, branchID, parentProductID)
}

func (s *BOMService) GetVersion(ctx context.Context, branchID, versionID string) (*entity.BOMVersion, error) {
	return s.bomRepo.GetVersion(ctx, branchID, versionID)
}

// CopyVersion clones a version and its lines as a new draft.
func (s *BOMService) CopyVersion(ctx context.Context, branchID string, req *CopyVersionRequest) (*entity.BOMVersion, error) {
	return s.bomRepo.CopyVersion(ctx, branchID, req.SourceVersionID, req.NewVersionNumber)
}

// ActivateVersion promotes a version to active and archives its siblings in
// the same transaction, so the product never has two active recipes.
func (s *BOMService) ActivateVersion(ctx context.Context, branchID, versionID string) (*entity.BOMVersion, error) {
	version, err := s.bomRepo.GetVersion(ctx, branchID, versionID)
	if err != nil {
		return nil, err
	}
	if err := s.bomRepo.ActivateVersion(ctx, branchID, versionID); err != nil {
		return nil, err
	}
	s.invalidateBuildable(ctx, branchID, version.ParentProductID)
	return s.bomRepo.GetVersion(ctx, branchID, versionID)
}

// DeleteVersion removes a non-active version and its lines. Active versions
// must be archived or superseded first.
func (s *BOMService) DeleteVersion(ctx context.Context, branchID, versionID string) error {
	version, err := s.bomRepo.GetVersion(ctx, branchID, versionID)
	if err != nil {
		return err
	}
	if err := s.bomRepo.DeleteVersion(ctx, branchID, versionID); err != nil {
		return err
	}
	s.invalidateBuildable(ctx, branchID, version.ParentProductID)
	return nil
}

// CanonicalLines returns the line set consumers build from: the active
// version's lines, or the legacy unversioned lines when no version is active.
func (s *BOMService) CanonicalLines(ctx context.Context, branchID, parentProductID string) ([]entity.BOMLineItem, error) {
	if _, err := s.productRepo.FindByID(ctx, branchID, parentProductID); err != nil {
		return nil, fmt.Errorf("load parent product: %w", err)
	}
	return s.bomRepo.CanonicalLineItems(ctx, branchID, parentProductID)
}

// Overview returns the canonical line set together with the buildable result
// computed from those same lines, so both views of the recipe agree.
func (s *BOMService) Overview(ctx context.Context, branchID, parentProductID string) ([]entity.BOMLineItem, *BuildableResult, error) {
	lines, err := s.CanonicalLines(ctx, branchID, parentProductID)
	if err != nil {
		return nil, nil, err
	}
	stock, err := s.stockFor(ctx, branchID, lines)
	if err != nil {
		return nil, nil, err
	}
	result := ComputeBuildable(lines, stock)
	return lines, &result, nil
}

func (s *BOMService) ListLineItems(ctx context.Context, branchID, versionID string) ([]entity.BOMLineItem, error) {
	if _, err := s.bomRepo.GetVersion(ctx, branchID, versionID); err != nil {
		return nil, err
	}
	return s.bomRepo.ListLineItemsByVersion(ctx, branchID, versionID)
}

// AddLineItem validates and persists one component line on a version. The
// cycle check runs before the write so a loop is never stored.
func (s *BOMService) AddLineItem(ctx context.Context, branchID, parentProductID, versionID string, req *LineItemRequest) (*entity.BOMLineItem, error) {
	version, err := s.bomRepo.GetVersion(ctx, branchID, versionID)
	if err != nil {
		return nil, err
	}
	if version.ParentProductID != parentProductID {
		return nil, repository.ErrNotFound
	}
	applyLineDefaults(req)
	if err := s.validateLine(ctx, branchID, version.ParentProductID, req); err != nil {
		return nil, err
	}

	item := &entity.BOMLineItem{
		BranchID:           branchID,
		ParentProductID:    version.ParentProductID,
		ComponentProductID: req.ComponentProductID,
		BOMVersionID:       &version.ID,
		QuantityRequired:   req.QuantityRequired,
		UnitOfMeasure:      req.UnitOfMeasure,
		ComponentUOM:       req.ComponentUOM,
		ConversionFactor:   req.ConversionFactor,
		ScrapFactor:        req.ScrapFactor,
		SequenceNumber:     req.SequenceNumber,
		Notes:              req.Notes,
	}
	if err := s.bomRepo.UpsertLineItem(ctx, item); err != nil {
		return nil, err
	}
	s.invalidateBuildable(ctx, branchID, version.ParentProductID)
	return item, nil
}

// UpdateLineItem replaces the editable fields of a line. Changing the
// component re-runs the cycle check.
func (s *BOMService) UpdateLineItem(ctx context.Context, branchID, parentProductID, itemID string, req *LineItemRequest) (*entity.BOMLineItem, error) {
	item, err := s.bomRepo.GetLineItem(ctx, branchID, itemID)
	if err != nil {
		return nil, err
	}
	if item.ParentProductID != parentProductID {
		return nil, repository.ErrNotFound
	}
	applyLineDefaults(req)
	if err := s.validateLine(ctx, branchID, item.ParentProductID, req); err != nil {
		return nil, err
	}

	item.ComponentProductID = req.ComponentProductID
	item.QuantityRequired = req.QuantityRequired
	item.UnitOfMeasure = req.UnitOfMeasure
	item.ComponentUOM = req.ComponentUOM
	item.ConversionFactor = req.ConversionFactor
	item.ScrapFactor = req.ScrapFactor
	item.SequenceNumber = req.SequenceNumber
	item.Notes = req.Notes
	item.Component = nil
	if err := s.bomRepo.UpsertLineItem(ctx, item); err != nil {
		return nil, err
	}
	s.invalidateBuildable(ctx, branchID, item.ParentProductID)
	return item, nil
}

func (s *BOMService) DeleteLineItem(ctx context.Context, branchID, parentProductID, itemID string) error {
	item, err := s.bomRepo.GetLineItem(ctx, branchID, itemID)
	if err != nil {
		return err
	}
	if item.ParentProductID != parentProductID {
		return repository.ErrNotFound
	}
	if err := s.bomRepo.DeleteLineItem(ctx, branchID, itemID); err != nil {
		return err
	}
	s.invalidateBuildable(ctx, branchID, item.ParentProductID)
	return nil
}

// SaveBOM replaces the full line set of a version in one call. Lines are
// validated individually; valid ones are written and invalid ones come back
// in the result instead of failing the whole save.
func (s *BOMService) SaveBOM(ctx context.Context, branchID, parentProductID, versionID string, req *SaveBOMRequest) (*SaveBOMResult, error) {
	version, err := s.bomRepo.GetVersion(ctx, branchID, versionID)
	if err != nil {
		return nil, err
	}
	if version.ParentProductID != parentProductID {
		return nil, repository.ErrNotFound
	}

	result := &SaveBOMResult{}
	valid := make([]entity.BOMLineItem, 0, len(req.LineItems))
	for i := range req.LineItems {
		line := req.LineItems[i]
		applyLineDefaults(&line)
		if err := s.validateLine(ctx, branchID, parentProductID, &line); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, LineError{
				Index:              i,
				ComponentProductID: line.ComponentProductID,
				Reason:             err.Error(),
			})
			continue
		}
		valid = append(valid, entity.BOMLineItem{
			BranchID:           branchID,
			ParentProductID:    parentProductID,
			ComponentProductID: line.ComponentProductID,
			QuantityRequired:   line.QuantityRequired,
			UnitOfMeasure:      line.UnitOfMeasure,
			ComponentUOM:       line.ComponentUOM,
			ConversionFactor:   line.ConversionFactor,
			ScrapFactor:        line.ScrapFactor,
			SequenceNumber:     line.SequenceNumber,
			Notes:              line.Notes,
		})
	}
	if err := s.bomRepo.ReplaceLineItems(ctx, branchID, version.ID, valid); err != nil {
		return nil, err
	}
	result.Inserted = len(valid)
	s.invalidateBuildable(ctx, branchID, parentProductID)

	version, err = s.bomRepo.GetVersion(ctx, branchID, version.ID)
	if err != nil {
		return nil, err
	}
	result.Version = version
	return result, nil
}

// Buildable computes how many units of the product can be assembled from
// stock. With no version ID it uses the canonical line set and serves a
// short-lived cached result; an explicit version bypasses the cache.
func (s *BOMService) Buildable(ctx context.Context, branchID, parentProductID string, versionID string) (*BuildableResult, error) {
	if _, err := s.productRepo.FindByID(ctx, branchID, parentProductID); err != nil {
		return nil, fmt.Errorf("load parent product: %w", err)
	}

	cacheKey := ""
	if versionID == "" && s.rdb != nil {
		cacheKey = buildableCacheKey(branchID, parentProductID)
		if raw, err := s.rdb.Get(ctx, cacheKey).Bytes(); err == nil {
			var cached BuildableResult
			if err := json.Unmarshal(raw, &cached); err == nil {
				return &cached, nil
			}
		}
	}

	var lines []entity.BOMLineItem
	var err error
	if versionID != "" {
		if _, err = s.bomRepo.GetVersion(ctx, branchID, versionID); err != nil {
			return nil, err
		}
		lines, err = s.bomRepo.ListLineItemsByVersion(ctx, branchID, versionID)
	} else {
		lines, err = s.bomRepo.CanonicalLineItems(ctx, branchID, parentProductID)
	}
	if err != nil {
		return nil, err
	}

	stock, err := s.stockFor(ctx, branchID, lines)
	if err != nil {
		return nil, err
	}
	result := ComputeBuildable(lines, stock)

	if cacheKey != "" {
		if raw, err := json.Marshal(result); err == nil {
			s.rdb.Set(ctx, cacheKey, raw, s.cacheTTL)
		}
	}
	return &result, nil
}

// stockFor batches the component stock lookups for one line set.
func (s *BOMService) stockFor(ctx context.Context, branchID string, lines []entity.BOMLineItem) (StockMap, error) {
	ids := make([]string, 0, len(lines))
	seen := map[string]bool{}
	for _, line := range lines {
		if !seen[line.ComponentProductID] {
			seen[line.ComponentProductID] = true
			ids = append(ids, line.ComponentProductID)
		}
	}
	products, err := s.productRepo.ListByIDs(ctx, branchID, ids)
	if err != nil {
		return nil, fmt.Errorf("load component stock: %w", err)
	}
	stock := make(StockMap, len(products))
	for _, p := range products {
		stock[p.ID] = p.QuantityInStock
	}
	return stock, nil
}

func (s *BOMService) validateLine(ctx context.Context, branchID, parentProductID string, req *LineItemRequest) error {
	if req.ComponentProductID == "" {
		return &ValidationError{Field: "component_product_id", Reason: "required"}
	}
	if req.ComponentProductID == parentProductID {
		return ErrSelfReference
	}
	if req.QuantityRequired <= 0 {
		return &ValidationError{Field: "quantity_required", Reason: "must be greater than zero"}
	}
	if req.ConversionFactor <= 0 {
		return &ValidationError{Field: "conversion_factor", Reason: "must be greater than zero"}
	}
	if req.ScrapFactor < 0 || req.ScrapFactor >= 1 {
		return &ValidationError{Field: "scrap_factor", Reason: "must be in [0, 1)"}
	}
	if _, err := s.productRepo.FindByID(ctx, branchID, req.ComponentProductID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &ValidationError{Field: "component_product_id", Reason: "product does not exist"}
		}
		return err
	}

	check, err := s.cycle.Check(ctx, branchID, parentProductID, req.ComponentProductID)
	if err != nil {
		return err
	}
	if check.HasCircularReference {
		return &CircularReferenceError{Path: check.Path}
	}
	return nil
}

// applyLineDefaults fills the optional factor fields the way the recipe
// editor does: missing conversion means same unit, missing scrap means none.
func applyLineDefaults(req *LineItemRequest) {
	if req.ConversionFactor == 0 {
		req.ConversionFactor = 1
	}
}

func buildableCacheKey(branchID, parentProductID string) string {
	return fmt.Sprintf("bom:buildable:%s:%s", branchID, parentProductID)
}

func (s *BOMService) invalidateBuildable(ctx context.Context, branchID, parentProductID string) {
	if s.rdb == nil {
		return
	}
	s.rdb.Del(ctx, buildableCacheKey(branchID, parentProductID))
}
