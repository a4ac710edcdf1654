package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/stockflow/stockflow-bom/internal/service"
)

// BOMHandler exposes recipe versions, line items and the buildable
// computation over HTTP.
type BOMHandler struct {
	bomService *service.BOMService
	cycle      *service.CycleChecker
}

func NewBOMHandler(bomService *service.BOMService, cycle *service.CycleChecker) *BOMHandler {
	return &BOMHandler{bomService: bomService, cycle: cycle}
}

// Get returns the canonical line set of a product together with its
// buildable breakdown.
func (h *BOMHandler) Get(c *gin.Context) {
	branchID := GetBranchID(c)
	parentID := c.Param("id")

	lines, buildable, err := h.bomService.Overview(c.Request.Context(), branchID, parentID)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, gin.H{
		"line_items": lines,
		"buildable":  buildable,
	})
}

func (h *BOMHandler) ListVersions(c *gin.Context) {
	versions, err := h.bomService.ListVersions(c.Request.Context(), GetBranchID(c), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, versions)
}

func (h *BOMHandler) CreateVersion(c *gin.Context) {
	var req service.CreateVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	version, err := h.bomService.CreateVersion(c.Request.Context(), GetBranchID(c), c.Param("id"), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, version)
}

func (h *BOMHandler) CopyVersion(c *gin.Context) {
	var req struct {
		NewVersionNumber string `json:"new_version_number" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	version, err := h.bomService.CopyVersion(c.Request.Context(), GetBranchID(c), &service.CopyVersionRequest{
		SourceVersionID:  c.Param("versionId"),
		NewVersionNumber: req.NewVersionNumber,
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, version)
}

func (h *BOMHandler) ActivateVersion(c *gin.Context) {
	version, err := h.bomService.ActivateVersion(c.Request.Context(), GetBranchID(c), c.Param("versionId"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, version)
}

func (h *BOMHandler) DeleteVersion(c *gin.Context) {
	if err := h.bomService.DeleteVersion(c.Request.Context(), GetBranchID(c), c.Param("versionId")); err != nil {
		RespondError(c, err)
		return
	}
	Success(c, nil)
}

func (h *BOMHandler) ListVersionItems(c *gin.Context) {
	items, err := h.bomService.ListLineItems(c.Request.Context(), GetBranchID(c), c.Param("versionId"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, items)
}

// SaveBOM replaces the whole line set of a version. Invalid lines are
// reported in the result while valid ones are persisted.
func (h *BOMHandler) SaveBOM(c *gin.Context) {
	var req service.SaveBOMRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	result, err := h.bomService.SaveBOM(c.Request.Context(), GetBranchID(c), c.Param("id"), c.Param("versionId"), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, result)
}

func (h *BOMHandler) AddItem(c *gin.Context) {
	var req struct {
		service.LineItemRequest
		BOMVersionID string `json:"bom_version_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	item, err := h.bomService.AddLineItem(c.Request.Context(), GetBranchID(c), c.Param("id"), req.BOMVersionID, &req.LineItemRequest)
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, item)
}

func (h *BOMHandler) UpdateItem(c *gin.Context) {
	var req service.LineItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	item, err := h.bomService.UpdateLineItem(c.Request.Context(), GetBranchID(c), c.Param("id"), c.Param("itemId"), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, item)
}

func (h *BOMHandler) DeleteItem(c *gin.Context) {
	if err := h.bomService.DeleteLineItem(c.Request.Context(), GetBranchID(c), c.Param("id"), c.Param("itemId")); err != nil {
		RespondError(c, err)
		return
	}
	Success(c, nil)
}

// CheckCircular is the advisory cycle probe the recipe editor calls before
// offering a component. It always answers 200 with a structured result.
func (h *BOMHandler) CheckCircular(c *gin.Context) {
	var req struct {
		ComponentProductID string `json:"component_product_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	result, err := h.cycle.Check(c.Request.Context(), GetBranchID(c), c.Param("id"), req.ComponentProductID)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, result)
}

// Buildable answers how many units can be assembled from current stock.
// An optional version_id query computes against that version instead of the
// canonical line set.
func (h *BOMHandler) Buildable(c *gin.Context) {
	result, err := h.bomService.Buildable(c.Request.Context(), GetBranchID(c), c.Param("id"), c.Query("version_id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, result)
}
