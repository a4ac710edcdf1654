package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/stockflow/stockflow-bom/internal/repository"
	"github.com/stockflow/stockflow-bom/internal/service"
)

// Handlers bundles every handler for route registration.
type Handlers struct {
	BOM    *BOMHandler
	Report *ReportHandler
}

func NewHandlers(svc *service.Services) *Handlers {
	return &Handlers{
		BOM:    NewBOMHandler(svc.BOM, svc.Cycle),
		Report: NewReportHandler(svc.Report),
	}
}

// Response is the common envelope of every JSON endpoint.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Error maps an application code to an HTTP status by its leading digits.
func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

func Conflict(c *gin.Context, message string) {
	Error(c, 40900, message)
}

func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// GetBranchID reads the branch scope set by the BranchScope middleware.
func GetBranchID(c *gin.Context) string {
	branchID, _ := c.Get("branch_id")
	if id, ok := branchID.(string); ok {
		return id
	}
	return ""
}

// RespondError translates service and repository errors into the HTTP
// vocabulary: missing rows are 404, duplicates and state conflicts are 409,
// invalid input is 400, everything else is 500.
func RespondError(c *gin.Context, err error) {
	var validationErr *service.ValidationError
	var cycleErr *service.CircularReferenceError
	switch {
	case errors.Is(err, repository.ErrNotFound):
		NotFound(c, err.Error())
	case errors.Is(err, repository.ErrDuplicateVersion):
		Conflict(c, err.Error())
	case errors.Is(err, repository.ErrVersionActive):
		Conflict(c, err.Error())
	case errors.As(err, &cycleErr):
		Conflict(c, err.Error())
	case errors.Is(err, service.ErrSelfReference):
		Conflict(c, err.Error())
	case errors.As(err, &validationErr):
		BadRequest(c, err.Error())
	default:
		InternalError(c, err.Error())
	}
}
