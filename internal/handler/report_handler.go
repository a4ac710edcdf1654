package handler

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stockflow/stockflow-bom/internal/service"
)

// ReportHandler exposes where-used, cost rollup and the summary export.
type ReportHandler struct {
	reportService *service.ReportService
}

func NewReportHandler(reportService *service.ReportService) *ReportHandler {
	return &ReportHandler{reportService: reportService}
}

func (h *ReportHandler) WhereUsed(c *gin.Context) {
	entries, err := h.reportService.WhereUsed(c.Request.Context(), GetBranchID(c), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, entries)
}

func (h *ReportHandler) VersionCost(c *gin.Context) {
	cost, err := h.reportService.Cost(c.Request.Context(), GetBranchID(c), c.Param("versionId"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, cost)
}

// Export streams the branch-wide BOM summary as an XLSX attachment.
func (h *ReportHandler) Export(c *gin.Context) {
	f, err := h.reportService.ExportSummary(c.Request.Context(), GetBranchID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	defer f.Close()

	filename := fmt.Sprintf("bom-summary-%s.xlsx", time.Now().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := f.Write(c.Writer); err != nil {
		InternalError(c, err.Error())
	}
}
