package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/stockflow/stockflow-bom/internal/model/entity"
)

// LineSource yields the canonical component lines of a product: the active
// version's lines when one exists, otherwise the unversioned legacy lines.
type LineSource interface {
	CanonicalLineItems(ctx context.Context, branchID, parentProductID string) ([]entity.BOMLineItem, error)
}

// NameSource resolves product IDs to display names for cycle paths.
type NameSource interface {
	ListByIDs(ctx context.Context, branchID string, ids []string) ([]entity.Product, error)
}

// CycleCheckResult reports whether adding a component edge would close a loop,
// and if so the loop rendered as a readable chain.
type CycleCheckResult struct {
	HasCircularReference bool   `json:"has_circular_reference"`
	Path                 string `json:"path,omitempty"`
}

// CircularReferenceError is returned when a line item mutation is rejected
// because it would make a product an ingredient of itself.
type CircularReferenceError struct {
	Path string
}

func (e *CircularReferenceError) Error() string {
	return fmt.Sprintf("circular reference detected: %s", e.Path)
}

// CycleChecker detects circular references in the component graph before a
// line item is persisted.
type CycleChecker struct {
	lines LineSource
	names NameSource
}

func NewCycleChecker(lines LineSource, names NameSource) *CycleChecker {
	return &CycleChecker{lines: lines, names: names}
}

// Check answers whether adding componentID as an ingredient of parentID would
// create a cycle. It walks breadth-first from the component through canonical
// line sets, looking for a route back to the parent. Each product is visited
// at most once, so the walk terminates even if the stored graph already
// contains a loop elsewhere.
func (c *CycleChecker) Check(ctx context.Context, branchID, parentID, componentID string) (CycleCheckResult, error) {
	if parentID == componentID {
		path, err := c.renderPath(ctx, branchID, []string{parentID, parentID})
		if err != nil {
			return CycleCheckResult{}, err
		}
		return CycleCheckResult{HasCircularReference: true, Path: path}, nil
	}

	visited := map[string]bool{componentID: true}
	pred := map[string]string{}
	queue := []string{componentID}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		items, err := c.lines.CanonicalLineItems(ctx, branchID, current)
		if err != nil {
			return CycleCheckResult{}, fmt.Errorf("walk component graph: %w", err)
		}
		for _, item := range items {
			child := item.ComponentProductID
			if child == parentID {
				ids := c.collectCycle(pred, componentID, current, parentID)
				path, err := c.renderPath(ctx, branchID, ids)
				if err != nil {
					return CycleCheckResult{}, err
				}
				return CycleCheckResult{HasCircularReference: true, Path: path}, nil
			}
			if !visited[child] {
				visited[child] = true
				pred[child] = current
				queue = append(queue, child)
			}
		}
	}
	return CycleCheckResult{}, nil
}

// collectCycle rebuilds the loop closed by the prospective parent->component
// edge: parent, component, the discovered chain down to last, then parent
// again.
func (c *CycleChecker) collectCycle(pred map[string]string, start, last, parent string) []string {
	chain := []string{last}
	for chain[len(chain)-1] != start {
		chain = append(chain, pred[chain[len(chain)-1]])
	}
	ids := []string{parent}
	for i := len(chain) - 1; i >= 0; i-- {
		ids = append(ids, chain[i])
	}
	return append(ids, parent)
}

func (c *CycleChecker) renderPath(ctx context.Context, branchID string, ids []string) (string, error) {
	labels := make(map[string]string, len(ids))
	for _, id := range ids {
		labels[id] = id
	}
	if c.names != nil {
		unique := make([]string, 0, len(labels))
		for id := range labels {
			unique = append(unique, id)
		}
		products, err := c.names.ListByIDs(ctx, branchID, unique)
		if err != nil {
			return "", fmt.Errorf("resolve product names: %w", err)
		}
		for _, p := range products {
			if p.Name != "" {
				labels[p.ID] = p.Name
			}
		}
	}

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, labels[id])
	}
	return strings.Join(parts, " → "), nil
}
