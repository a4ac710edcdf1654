package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/stockflow/stockflow-bom/internal/model/entity"
	"github.com/stockflow/stockflow-bom/internal/repository"
	"github.com/xuri/excelize/v2"
)

// WhereUsedEntry is one parent recipe that consumes a component.
type WhereUsedEntry struct {
	ParentProductID   string  `json:"parent_product_id"`
	ParentName        string  `json:"parent_name"`
	ParentSKU         string  `json:"parent_sku"`
	VersionID         string  `json:"version_id,omitempty"`
	VersionNumber     string  `json:"version_number,omitempty"`
	LineItemID        string  `json:"line_item_id"`
	QuantityRequired  float64 `json:"quantity_required"`
	EffectiveQuantity float64 `json:"effective_quantity"`
	ParentBuildable   int64   `json:"parent_buildable"`
}

// VersionCost is the cost rollup of one recipe version.
type VersionCost struct {
	VersionID       string          `json:"version_id"`
	VersionNumber   string          `json:"version_number"`
	ParentProductID string          `json:"parent_product_id"`
	LineCount       int             `json:"line_count"`
	TotalCost       decimal.Decimal `json:"total_cost"`
}

type productCosts map[string]entity.Product

func (m productCosts) GetUnitCost(productID string) (float64, float64) {
	p := m[productID]
	return p.PurchasePrice, p.UnitPrice
}

// ReportService answers the read-side questions over recipes: where a
// component is used, what a version costs, and the branch-wide summary
// export.
type ReportService struct {
	bomRepo     *repository.BOMRepository
	productRepo *repository.ProductRepository
}

func NewReportService(repos *repository.Repositories) *ReportService {
	return &ReportService{bomRepo: repos.BOM, productRepo: repos.Product}
}

// WhereUsed lists every parent whose canonical recipe consumes the component.
// Lines from archived or draft versions are ignored, matching what the
// buildable computation would actually consume.
func (s *ReportService) WhereUsed(ctx context.Context, branchID, componentProductID string) ([]WhereUsedEntry, error) {
	if _, err := s.productRepo.FindByID(ctx, branchID, componentProductID); err != nil {
		return nil, fmt.Errorf("load component: %w", err)
	}

	raw, err := s.bomRepo.ListByComponent(ctx, branchID, componentProductID)
	if err != nil {
		return nil, err
	}
	parents := make([]string, 0, len(raw))
	seen := map[string]bool{}
	for _, item := range raw {
		if !seen[item.ParentProductID] {
			seen[item.ParentProductID] = true
			parents = append(parents, item.ParentProductID)
		}
	}
	if len(parents) == 0 {
		return []WhereUsedEntry{}, nil
	}

	parentProducts, err := s.productRepo.ListByIDs(ctx, branchID, parents)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]entity.Product, len(parentProducts))
	for _, p := range parentProducts {
		byID[p.ID] = p
	}

	entries := []WhereUsedEntry{}
	for _, parentID := range parents {
		canonical, err := s.bomRepo.CanonicalLineItems(ctx, branchID, parentID)
		if err != nil {
			return nil, err
		}

		matched := false
		for _, line := range canonical {
			if line.ComponentProductID == componentProductID {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}

		stock, err := s.stockFor(ctx, branchID, canonical)
		if err != nil {
			return nil, err
		}
		buildable := ComputeBuildable(canonical, stock).BuildableQuantity

		parent := byID[parentID]
		for _, line := range canonical {
			if line.ComponentProductID != componentProductID {
				continue
			}
			entry := WhereUsedEntry{
				ParentProductID:   parentID,
				ParentName:        parent.Name,
				ParentSKU:         parent.SKU,
				LineItemID:        line.ID,
				QuantityRequired:  line.QuantityRequired,
				EffectiveQuantity: line.EffectiveQuantity(),
				ParentBuildable:   buildable,
			}
			if line.BOMVersionID != nil {
				entry.VersionID = *line.BOMVersionID
				if v, err := s.bomRepo.GetVersion(ctx, branchID, *line.BOMVersionID); err == nil {
					entry.VersionNumber = v.VersionNumber
				}
			}
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// Cost rolls up the component cost of one version's line set.
func (s *ReportService) Cost(ctx context.Context, branchID, versionID string) (*VersionCost, error) {
	version, err := s.bomRepo.GetVersion(ctx, branchID, versionID)
	if err != nil {
		return nil, err
	}
	lines, err := s.bomRepo.ListLineItemsByVersion(ctx, branchID, versionID)
	if err != nil {
		return nil, err
	}
	costs, err := s.costsFor(ctx, branchID, lines)
	if err != nil {
		return nil, err
	}
	return &VersionCost{
		VersionID:       version.ID,
		VersionNumber:   version.VersionNumber,
		ParentProductID: version.ParentProductID,
		LineCount:       len(lines),
		TotalCost:       ComputeCost(lines, costs),
	}, nil
}

// ExportSummary builds an XLSX workbook with one row per product that has a
// recipe: component count, buildable quantity and unit build cost.
func (s *ReportService) ExportSummary(ctx context.Context, branchID string) (*excelize.File, error) {
	parents, err := s.bomRepo.DistinctParents(ctx, branchID)
	if err != nil {
		return nil, err
	}
	parentProducts, err := s.productRepo.ListByIDs(ctx, branchID, parents)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]entity.Product, len(parentProducts))
	for _, p := range parentProducts {
		byID[p.ID] = p
	}

	f := excelize.NewFile()
	const sheet = "BOM Summary"
	f.SetSheetName("Sheet1", sheet)
	headers := []string{"Product", "SKU", "Components", "Buildable Qty", "Unit Build Cost"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, parentID := range parents {
		lines, err := s.bomRepo.CanonicalLineItems(ctx, branchID, parentID)
		if err != nil {
			return nil, err
		}
		stock, err := s.stockFor(ctx, branchID, lines)
		if err != nil {
			return nil, err
		}
		costs, err := s.costsFor(ctx, branchID, lines)
		if err != nil {
			return nil, err
		}
		buildable := ComputeBuildable(lines, stock).BuildableQuantity
		cost := ComputeCost(lines, costs)

		parent := byID[parentID]
		name := parent.Name
		if name == "" {
			name = parentID
		}
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), name)
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row), parent.SKU)
		f.SetCellValue(sheet, fmt.Sprintf("C%d", row), len(lines))
		f.SetCellValue(sheet, fmt.Sprintf("D%d", row), buildable)
		f.SetCellValue(sheet, fmt.Sprintf("E%d", row), cost.InexactFloat64())
		row++
	}
	return f, nil
}

func (s *ReportService) stockFor(ctx context.Context, branchID string, lines []entity.BOMLineItem) (StockMap, error) {
	products, err := s.componentProducts(ctx, branchID, lines)
	if err != nil {
		return nil, err
	}
	stock := make(StockMap, len(products))
	for _, p := range products {
		stock[p.ID] = p.QuantityInStock
	}
	return stock, nil
}

func (s *ReportService) costsFor(ctx context.Context, branchID string, lines []entity.BOMLineItem) (productCosts, error) {
	products, err := s.componentProducts(ctx, branchID, lines)
	if err != nil {
		return nil, err
	}
	costs := make(productCosts, len(products))
	for _, p := range products {
		costs[p.ID] = p
	}
	return costs, nil
}

func (s *ReportService) componentProducts(ctx context.Context, branchID string, lines []entity.BOMLineItem) ([]entity.Product, error) {
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
		return nil, fmt.Errorf("load components: %w", err)
	}
	return products, nil
}
