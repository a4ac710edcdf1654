package service

import (
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stockflow/stockflow-bom/internal/repository"
)

// Services bundles every service for injection into the handler layer.
type Services struct {
	BOM    *BOMService
	Report *ReportService
	Cycle  *CycleChecker
}

// NewServices wires the service layer. rdb may be nil, in which case the
// buildable cache is disabled.
func NewServices(repos *repository.Repositories, rdb *redis.Client, cacheTTL time.Duration) *Services {
	cycle := NewCycleChecker(repos.BOM, repos.Product)
	return &Services{
		BOM:    NewBOMService(repos, cycle, rdb, cacheTTL),
		Report: NewReportService(repos),
		Cycle:  cycle,
	}
}
