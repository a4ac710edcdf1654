package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/stockflow/stockflow-bom/internal/middleware"
	"github.com/stockflow/stockflow-bom/internal/model/entity"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	TestSchema = "test_bom"
	// TestBranch is the default branch scope used by seed helpers and requests.
	TestBranch = "branch-test"
)

// projectRoot returns the project root directory by looking for go.mod
func projectRoot() string {
	_, filename, _, _ := runtime.Caller(0)
	dir := filepath.Dir(filename)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// loadEnv loads .env from the project root
func loadEnv() {
	root := projectRoot()
	if root != "" {
		godotenv.Load(filepath.Join(root, ".env"))
	}
}

// SetupTestDB creates a test database connection using a dedicated test schema.
// Each test gets an isolated schema that is cleaned up after the test.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	loadEnv()

	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "stockflow")
	password := getEnv("DB_PASSWORD", "stockflow123")
	dbname := getEnv("DB_NAME", "stockflow_bom")

	baseDSN := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	// Create a unique test schema for isolation
	schemaName := fmt.Sprintf("%s_%d", TestSchema, time.Now().UnixNano()%1000000)

	// First: create schema using a temporary connection
	setupDB, err := gorm.Open(postgres.Open(baseDSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to connect to database for schema setup: %v", err)
	}
	setupDB.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schemaName))
	sqlSetup, _ := setupDB.DB()
	sqlSetup.Close()

	// Second: open connection with search_path in DSN so ALL pooled connections use test schema
	testDSN := fmt.Sprintf("%s search_path=%s", baseDSN, schemaName)
	db, err := gorm.Open(postgres.Open(testDSN), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	// Migrate test tables
	err = db.AutoMigrate(
		&entity.Product{},
		&entity.BOMVersion{},
		&entity.BOMLineItem{},
	)
	if err != nil {
		t.Fatalf("Failed to migrate test tables: %v", err)
	}

	// Cleanup on test completion
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
		// Reconnect to drop the schema
		cleanDB, cleanErr := gorm.Open(postgres.Open(baseDSN), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if cleanErr == nil {
			cleanDB.Exec(fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schemaName))
			sqlClean, _ := cleanDB.DB()
			if sqlClean != nil {
				sqlClean.Close()
			}
		}
	})

	return db
}

// SetupRouter creates a gin test router with the branch scope middleware
// applied to an /api/v1 group, the way the server wires it.
func SetupRouter() (*gin.Engine, *gin.RouterGroup) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())
	v1 := r.Group("/api/v1", middleware.BranchScope())
	return r, v1
}

// DoRequest executes an HTTP request against the test router, scoped to the
// given branch.
func DoRequest(r *gin.Engine, method, path string, body interface{}, branchID string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if branchID != "" {
		req.Header.Set("X-Branch-ID", branchID)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ParseResponse parses the JSON response body into a handler.Response-like map
func ParseResponse(w *httptest.ResponseRecorder) map[string]interface{} {
	var result map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &result)
	return result
}

// SeedProduct creates a product row for tests.
func SeedProduct(t *testing.T, db *gorm.DB, id, name string, stock, purchasePrice float64) *entity.Product {
	t.Helper()
	product := &entity.Product{
		ID:              id,
		BranchID:        TestBranch,
		Name:            name,
		SKU:             "sku-" + id,
		QuantityInStock: stock,
		PurchasePrice:   purchasePrice,
		UnitOfMeasure:   "pcs",
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
	if err := db.Create(product).Error; err != nil {
		t.Fatalf("Failed to seed product: %v", err)
	}
	return product
}

// SeedVersion creates a BOM version row for tests.
func SeedVersion(t *testing.T, db *gorm.DB, id, parentProductID, number, status string) *entity.BOMVersion {
	t.Helper()
	version := &entity.BOMVersion{
		ID:              id,
		BranchID:        TestBranch,
		ParentProductID: parentProductID,
		VersionNumber:   number,
		Status:          status,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
	if err := db.Create(version).Error; err != nil {
		t.Fatalf("Failed to seed BOM version: %v", err)
	}
	return version
}

// SeedLineItem creates a line item row for tests. versionID may be empty to
// seed a legacy unversioned line.
func SeedLineItem(t *testing.T, db *gorm.DB, id, parentProductID, componentProductID, versionID string, qty float64) *entity.BOMLineItem {
	t.Helper()
	item := &entity.BOMLineItem{
		ID:                 id,
		BranchID:           TestBranch,
		ParentProductID:    parentProductID,
		ComponentProductID: componentProductID,
		QuantityRequired:   qty,
		UnitOfMeasure:      "pcs",
		ComponentUOM:       "pcs",
		ConversionFactor:   1,
		CreatedAt:          time.Now(),
		UpdatedAt:          time.Now(),
	}
	if versionID != "" {
		item.BOMVersionID = &versionID
	}
	if err := db.Create(item).Error; err != nil {
		t.Fatalf("Failed to seed line item: %v", err)
	}
	return item
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
