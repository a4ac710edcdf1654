package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stockflow/stockflow-bom/internal/model/entity"
)

// fakeLineSource serves canonical lines from an in-memory adjacency map.
type fakeLineSource map[string][]string

func (f fakeLineSource) CanonicalLineItems(_ context.Context, _, parentProductID string) ([]entity.BOMLineItem, error) {
	components := f[parentProductID]
	items := make([]entity.BOMLineItem, 0, len(components))
	for _, c := range components {
		items = append(items, entity.BOMLineItem{
			ParentProductID:    parentProductID,
			ComponentProductID: c,
			QuantityRequired:   1,
			ConversionFactor:   1,
		})
	}
	return items, nil
}

func TestCheckDetectsTransitiveCycle(t *testing.T) {
	// A consumes B, B consumes C. Making A a component of C closes the loop.
	graph := fakeLineSource{
		"A": {"B"},
		"B": {"C"},
	}
	checker := NewCycleChecker(graph, nil)

	result, err := checker.Check(context.Background(), "branch-1", "C", "A")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !result.HasCircularReference {
		t.Fatal("expected circular reference")
	}
	for _, id := range []string{"A", "B", "C"} {
		if !strings.Contains(result.Path, id) {
			t.Errorf("path %q missing %s", result.Path, id)
		}
	}
}

func TestCheckNoCycleForLeafComponent(t *testing.T) {
	graph := fakeLineSource{
		"A": {"B"},
	}
	checker := NewCycleChecker(graph, nil)

	result, err := checker.Check(context.Background(), "branch-1", "A", "D")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if result.HasCircularReference {
		t.Errorf("unexpected circular reference, path %q", result.Path)
	}
}

func TestCheckSelfReference(t *testing.T) {
	checker := NewCycleChecker(fakeLineSource{}, nil)

	result, err := checker.Check(context.Background(), "branch-1", "A", "A")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !result.HasCircularReference {
		t.Fatal("expected self-reference to be circular")
	}
	if result.Path != "A → A" {
		t.Errorf("path = %q, want %q", result.Path, "A → A")
	}
}

func TestCheckDiamondGraphIsNotACycle(t *testing.T) {
	// B and C both consume D. A consuming both B and C shares D without
	// looping.
	graph := fakeLineSource{
		"B": {"D"},
		"C": {"D"},
	}
	checker := NewCycleChecker(graph, nil)

	for _, component := range []string{"B", "C"} {
		result, err := checker.Check(context.Background(), "branch-1", "A", component)
		if err != nil {
			t.Fatalf("Check(%s): %v", component, err)
		}
		if result.HasCircularReference {
			t.Errorf("diamond flagged as cycle via %s, path %q", component, result.Path)
		}
	}
}

func TestCheckTerminatesOnPreexistingCycle(t *testing.T) {
	// X and Y already loop through each other. Probing an unrelated edge
	// must terminate and answer false.
	graph := fakeLineSource{
		"X": {"Y"},
		"Y": {"X"},
		"A": {"X"},
	}
	checker := NewCycleChecker(graph, nil)

	result, err := checker.Check(context.Background(), "branch-1", "B", "A")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if result.HasCircularReference {
		t.Errorf("unexpected cycle, path %q", result.Path)
	}
}

func TestCheckDirectCycle(t *testing.T) {
	// A already consumes B; making B consume A loops directly.
	graph := fakeLineSource{
		"A": {"B"},
	}
	checker := NewCycleChecker(graph, nil)

	result, err := checker.Check(context.Background(), "branch-1", "B", "A")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !result.HasCircularReference {
		t.Fatal("expected circular reference")
	}
	if result.Path != "B → A → B" {
		t.Errorf("path = %q, want %q", result.Path, "B → A → B")
	}
}
