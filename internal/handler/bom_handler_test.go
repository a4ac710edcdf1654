package handler

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stockflow/stockflow-bom/internal/model/entity"
	"github.com/stockflow/stockflow-bom/internal/repository"
	"github.com/stockflow/stockflow-bom/internal/service"
	"github.com/stockflow/stockflow-bom/internal/testutil"
	"gorm.io/gorm"
)

func setupEnv(t *testing.T) (*gorm.DB, *gin.Engine) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	services := service.NewServices(repos, nil, 30*time.Second)
	h := NewHandlers(services)

	r, v1 := testutil.SetupRouter()
	products := v1.Group("/products")
	products.GET("/:id/bom", h.BOM.Get)
	products.GET("/:id/bom/versions", h.BOM.ListVersions)
	products.POST("/:id/bom/versions", h.BOM.CreateVersion)
	products.POST("/:id/bom/versions/:versionId/copy", h.BOM.CopyVersion)
	products.POST("/:id/bom/versions/:versionId/activate", h.BOM.ActivateVersion)
	products.DELETE("/:id/bom/versions/:versionId", h.BOM.DeleteVersion)
	products.GET("/:id/bom/versions/:versionId/items", h.BOM.ListVersionItems)
	products.PUT("/:id/bom/versions/:versionId/items", h.BOM.SaveBOM)
	products.GET("/:id/bom/versions/:versionId/cost", h.Report.VersionCost)
	products.POST("/:id/bom/items", h.BOM.AddItem)
	products.PUT("/:id/bom/items/:itemId", h.BOM.UpdateItem)
	products.DELETE("/:id/bom/items/:itemId", h.BOM.DeleteItem)
	products.POST("/:id/bom/check-circular", h.BOM.CheckCircular)
	products.GET("/:id/bom/buildable", h.BOM.Buildable)
	v1.GET("/components/:id/where-used", h.Report.WhereUsed)
	return db, r
}

func TestCreateVersionFlow(t *testing.T) {
	db, r := setupEnv(t)
	testutil.SeedProduct(t, db, "p1", "Widget", 0, 0)

	w := testutil.DoRequest(r, "POST", "/api/v1/products/p1/bom/versions",
		map[string]string{"version_number": "1.0"}, testutil.TestBranch)
	if w.Code != 201 {
		t.Fatalf("create first version status = %d, body %s", w.Code, w.Body.String())
	}
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if data["status"] != entity.BOMStatusActive {
		t.Errorf("first version status = %v, want active", data["status"])
	}

	w = testutil.DoRequest(r, "POST", "/api/v1/products/p1/bom/versions",
		map[string]string{"version_number": "2.0"}, testutil.TestBranch)
	if w.Code != 201 {
		t.Fatalf("create second version status = %d", w.Code)
	}
	data = testutil.ParseResponse(w)["data"].(map[string]interface{})
	if data["status"] != entity.BOMStatusDraft {
		t.Errorf("second version status = %v, want draft", data["status"])
	}

	w = testutil.DoRequest(r, "POST", "/api/v1/products/p1/bom/versions",
		map[string]string{"version_number": "1.0"}, testutil.TestBranch)
	if w.Code != 409 {
		t.Errorf("duplicate version status = %d, want 409", w.Code)
	}
}

func TestCreateExplicitActiveArchivesSibling(t *testing.T) {
	db, r := setupEnv(t)
	testutil.SeedProduct(t, db, "p1", "Widget", 0, 0)
	testutil.SeedVersion(t, db, "v1", "p1", "1.0", entity.BOMStatusActive)

	w := testutil.DoRequest(r, "POST", "/api/v1/products/p1/bom/versions",
		map[string]string{"version_number": "2.0", "status": entity.BOMStatusActive},
		testutil.TestBranch)
	if w.Code != 201 {
		t.Fatalf("create active version status = %d, body %s", w.Code, w.Body.String())
	}
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if data["status"] != entity.BOMStatusActive {
		t.Errorf("created status = %v, want active", data["status"])
	}

	var versions []entity.BOMVersion
	if err := db.Where("parent_product_id = ?", "p1").Find(&versions).Error; err != nil {
		t.Fatalf("load versions: %v", err)
	}
	activeCount := 0
	for _, v := range versions {
		if v.Status == entity.BOMStatusActive {
			activeCount++
			if v.VersionNumber != "2.0" {
				t.Errorf("active version = %s, want 2.0", v.VersionNumber)
			}
		}
	}
	if activeCount != 1 {
		t.Errorf("active versions = %d, want exactly 1", activeCount)
	}
}

func TestBranchHeaderRequired(t *testing.T) {
	_, r := setupEnv(t)
	w := testutil.DoRequest(r, "GET", "/api/v1/products/p1/bom/versions", nil, "")
	if w.Code != 400 {
		t.Errorf("missing X-Branch-ID status = %d, want 400", w.Code)
	}
}

func TestAddItemSelfReferenceRejected(t *testing.T) {
	db, r := setupEnv(t)
	testutil.SeedProduct(t, db, "p1", "Widget", 0, 0)
	testutil.SeedVersion(t, db, "v1", "p1", "1.0", entity.BOMStatusActive)

	w := testutil.DoRequest(r, "POST", "/api/v1/products/p1/bom/items", map[string]interface{}{
		"bom_version_id":       "v1",
		"component_product_id": "p1",
		"quantity_required":    1,
	}, testutil.TestBranch)
	if w.Code != 409 {
		t.Fatalf("self-reference status = %d, want 409", w.Code)
	}

	var count int64
	db.Model(&entity.BOMLineItem{}).Where("parent_product_id = ?", "p1").Count(&count)
	if count != 0 {
		t.Errorf("self-referencing line was persisted")
	}
}

func TestAddItemCircularRejected(t *testing.T) {
	db, r := setupEnv(t)
	testutil.SeedProduct(t, db, "a", "Assembly A", 0, 0)
	testutil.SeedProduct(t, db, "b", "Part B", 0, 0)
	testutil.SeedVersion(t, db, "va", "a", "1.0", entity.BOMStatusActive)
	testutil.SeedVersion(t, db, "vb", "b", "1.0", entity.BOMStatusActive)
	testutil.SeedLineItem(t, db, "i1", "a", "b", "va", 1)

	// b consuming a would loop back through a's active recipe.
	w := testutil.DoRequest(r, "POST", "/api/v1/products/b/bom/items", map[string]interface{}{
		"bom_version_id":       "vb",
		"component_product_id": "a",
		"quantity_required":    2,
	}, testutil.TestBranch)
	if w.Code != 409 {
		t.Fatalf("circular insert status = %d, body %s", w.Code, w.Body.String())
	}
	message := testutil.ParseResponse(w)["message"].(string)
	if !strings.Contains(message, "Assembly A") || !strings.Contains(message, "Part B") {
		t.Errorf("message %q does not render the cycle path", message)
	}
}

func TestCheckCircularAdvisory(t *testing.T) {
	db, r := setupEnv(t)
	testutil.SeedProduct(t, db, "a", "Assembly A", 0, 0)
	testutil.SeedProduct(t, db, "d", "Part D", 0, 0)

	w := testutil.DoRequest(r, "POST", "/api/v1/products/a/bom/check-circular",
		map[string]string{"component_product_id": "d"}, testutil.TestBranch)
	if w.Code != 200 {
		t.Fatalf("check-circular status = %d", w.Code)
	}
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if data["has_circular_reference"] != false {
		t.Errorf("has_circular_reference = %v, want false", data["has_circular_reference"])
	}
}

func TestBuildableEndpoint(t *testing.T) {
	db, r := setupEnv(t)
	testutil.SeedProduct(t, db, "p1", "Widget", 0, 0)
	testutil.SeedProduct(t, db, "c1", "Bolt", 10, 0.5)
	testutil.SeedVersion(t, db, "v1", "p1", "1.0", entity.BOMStatusActive)
	testutil.SeedLineItem(t, db, "i1", "p1", "c1", "v1", 2)

	w := testutil.DoRequest(r, "GET", "/api/v1/products/p1/bom/buildable", nil, testutil.TestBranch)
	if w.Code != 200 {
		t.Fatalf("buildable status = %d, body %s", w.Code, w.Body.String())
	}
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if data["buildable_quantity"].(float64) != 5 {
		t.Errorf("buildable_quantity = %v, want 5", data["buildable_quantity"])
	}
}

func TestGetBOMOverview(t *testing.T) {
	db, r := setupEnv(t)
	testutil.SeedProduct(t, db, "p1", "Widget", 0, 0)
	testutil.SeedProduct(t, db, "c1", "Bolt", 10, 0.5)
	testutil.SeedVersion(t, db, "v1", "p1", "1.0", entity.BOMStatusActive)
	testutil.SeedLineItem(t, db, "i1", "p1", "c1", "v1", 2)

	w := testutil.DoRequest(r, "GET", "/api/v1/products/p1/bom", nil, testutil.TestBranch)
	if w.Code != 200 {
		t.Fatalf("bom overview status = %d, body %s", w.Code, w.Body.String())
	}
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	lines := data["line_items"].([]interface{})
	if len(lines) != 1 {
		t.Fatalf("line_items = %d, want 1", len(lines))
	}
	buildable := data["buildable"].(map[string]interface{})
	if buildable["buildable_quantity"].(float64) != 5 {
		t.Errorf("buildable_quantity = %v, want 5", buildable["buildable_quantity"])
	}
	perLine := buildable["per_line"].([]interface{})
	if len(perLine) != len(lines) {
		t.Errorf("per_line entries = %d, want %d", len(perLine), len(lines))
	}
}

func TestSaveBOMPartialFailure(t *testing.T) {
	db, r := setupEnv(t)
	testutil.SeedProduct(t, db, "p1", "Widget", 0, 0)
	testutil.SeedProduct(t, db, "c1", "Bolt", 0, 0)
	testutil.SeedProduct(t, db, "c2", "Panel", 0, 0)
	testutil.SeedVersion(t, db, "v1", "p1", "1.0", entity.BOMStatusActive)

	w := testutil.DoRequest(r, "PUT", "/api/v1/products/p1/bom/versions/v1/items", map[string]interface{}{
		"line_items": []map[string]interface{}{
			{"component_product_id": "c1", "quantity_required": 4},
			{"component_product_id": "c2", "quantity_required": 0},
		},
	}, testutil.TestBranch)
	if w.Code != 200 {
		t.Fatalf("save status = %d, body %s", w.Code, w.Body.String())
	}
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if data["inserted"].(float64) != 1 {
		t.Errorf("inserted = %v, want 1", data["inserted"])
	}
	if data["failed"].(float64) != 1 {
		t.Errorf("failed = %v, want 1", data["failed"])
	}
	errs := data["errors"].([]interface{})
	if len(errs) != 1 {
		t.Fatalf("errors length = %d, want 1", len(errs))
	}
	reason := errs[0].(map[string]interface{})["reason"].(string)
	if !strings.Contains(reason, "quantity_required") {
		t.Errorf("reason = %q, want mention of quantity_required", reason)
	}

	var count int64
	db.Model(&entity.BOMLineItem{}).Where("bom_version_id = ?", "v1").Count(&count)
	if count != 1 {
		t.Errorf("persisted lines = %d, want 1", count)
	}
}

func TestWhereUsedEndpoint(t *testing.T) {
	db, r := setupEnv(t)
	testutil.SeedProduct(t, db, "p1", "Widget", 0, 0)
	testutil.SeedProduct(t, db, "c1", "Bolt", 12, 0.5)
	testutil.SeedVersion(t, db, "v1", "p1", "1.0", entity.BOMStatusActive)
	testutil.SeedLineItem(t, db, "i1", "p1", "c1", "v1", 3)

	w := testutil.DoRequest(r, "GET", "/api/v1/components/c1/where-used", nil, testutil.TestBranch)
	if w.Code != 200 {
		t.Fatalf("where-used status = %d, body %s", w.Code, w.Body.String())
	}
	entries := testutil.ParseResponse(w)["data"].([]interface{})
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	entry := entries[0].(map[string]interface{})
	if entry["parent_product_id"] != "p1" {
		t.Errorf("parent_product_id = %v, want p1", entry["parent_product_id"])
	}
	if entry["parent_buildable"].(float64) != 4 {
		t.Errorf("parent_buildable = %v, want 4", entry["parent_buildable"])
	}
}

func TestVersionCostEndpoint(t *testing.T) {
	db, r := setupEnv(t)
	testutil.SeedProduct(t, db, "p1", "Widget", 0, 0)
	testutil.SeedProduct(t, db, "c1", "Bolt", 0, 0.5)
	testutil.SeedVersion(t, db, "v1", "p1", "1.0", entity.BOMStatusActive)
	testutil.SeedLineItem(t, db, "i1", "p1", "c1", "v1", 4)

	w := testutil.DoRequest(r, "GET", "/api/v1/products/p1/bom/versions/v1/cost", nil, testutil.TestBranch)
	if w.Code != 200 {
		t.Fatalf("cost status = %d, body %s", w.Code, w.Body.String())
	}
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if fmt.Sprintf("%v", data["total_cost"]) != "2" {
		t.Errorf("total_cost = %v, want 2", data["total_cost"])
	}
}

func TestDeleteActiveVersionRejected(t *testing.T) {
	db, r := setupEnv(t)
	testutil.SeedProduct(t, db, "p1", "Widget", 0, 0)
	testutil.SeedVersion(t, db, "v1", "p1", "1.0", entity.BOMStatusActive)

	w := testutil.DoRequest(r, "DELETE", "/api/v1/products/p1/bom/versions/v1", nil, testutil.TestBranch)
	if w.Code != 409 {
		t.Errorf("delete active version status = %d, want 409", w.Code)
	}
}
