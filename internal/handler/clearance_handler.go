package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/nodues-api/internal/dto"
	"github.com/noah-isme/nodues-api/internal/middleware"
	"github.com/noah-isme/nodues-api/internal/models"
	"github.com/noah-isme/nodues-api/internal/service"
	appErrors "github.com/noah-isme/nodues-api/pkg/errors"
	"github.com/noah-isme/nodues-api/pkg/response"
)

type clearanceService interface {
	CreateRequest(ctx context.Context, studentID, actorID string, req dto.CreateClearanceRequest) (*models.ClearanceRequest, error)
	GetActiveRequest(ctx context.Context, studentID string) (*models.ClearanceRequest, error)
	Get(ctx context.Context, id string) (*models.ClearanceRequest, error)
	ListRequests(ctx context.Context, query dto.ClearanceQuery) (*dto.ClearanceList, error)
	SetDepartmentStatus(ctx context.Context, requestID, departmentKey, actorID string, decision models.ClearanceStatus, remarks *string) (*models.ClearanceRequest, error)
}

type writePolicy interface {
	CanActorWrite(role models.UserRole, actorDepartment, departmentKey string) bool
}

type clearanceExporter interface {
	Export(ctx context.Context, format string, query dto.ClearanceQuery) (*service.ExportResult, error)
}

// ClearanceHandler exposes the clearance workflow.
type ClearanceHandler struct {
	service  clearanceService
	policy   writePolicy
	exporter clearanceExporter
}

// NewClearanceHandler constructs the handler.
func NewClearanceHandler(svc clearanceService, policy writePolicy, exporter clearanceExporter) *ClearanceHandler {
	return &ClearanceHandler{service: svc, policy: policy, exporter: exporter}
}

// Create godoc
// @Summary Submit a no-dues request
// @Tags Clearance
// @Accept json
// @Produce json
// @Param payload body dto.CreateClearanceRequest false "Request payload"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /clearances [post]
func (h *ClearanceHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil || claims.StudentID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "only students can submit requests"))
		return
	}
	var req dto.CreateClearanceRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}

	created, err := h.service.CreateRequest(c.Request.Context(), claims.StudentID, claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// Mine godoc
// @Summary Latest request of the signed-in student
// @Tags Clearance
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /clearances/me [get]
func (h *ClearanceHandler) Mine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil || claims.StudentID == "" {
		response.Error(c, appErrors.ErrForbidden)
		return
	}
	req, err := h.service.GetActiveRequest(c.Request.Context(), claims.StudentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if req == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrRequestNotFound, "no clearance request submitted yet"))
		return
	}
	response.JSON(c, http.StatusOK, detail(req), nil)
}

// List godoc
// @Summary List clearance requests
// @Description Faculty only see requests filtered to their own department.
// @Tags Clearance
// @Produce json
// @Param status query string false "Overall status"
// @Param studentId query string false "Student"
// @Param department query string false "Department key"
// @Param departmentStatus query string false "Status within department"
// @Param createdBefore query string false "RFC3339 timestamp"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /clearances [get]
func (h *ClearanceHandler) List(c *gin.Context) {
	query, ok := h.scopedQuery(c)
	if !ok {
		return
	}
	list, err := h.service.ListRequests(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	if claims := claimsFromContext(c); claims != nil && claims.Role == models.RoleFaculty {
		middleware.SetMeta(c, "department_scope", query.DepartmentKey)
	}
	pagination := &models.Pagination{Page: list.Page, PageSize: list.PageSize, TotalCount: list.Total}
	response.JSON(c, http.StatusOK, list.Items, pagination, middleware.ExtractMeta(c))
}

// Export godoc
// @Summary Export clearance requests
// @Tags Clearance
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /clearances/export [get]
func (h *ClearanceHandler) Export(c *gin.Context) {
	query, ok := h.scopedQuery(c)
	if !ok {
		return
	}
	result, err := h.exporter.Export(c.Request.Context(), c.DefaultQuery("format", service.ExportFormatCSV), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, result.Filename, result.ContentType, result.Payload)
}

// Get godoc
// @Summary Get a clearance request
// @Tags Clearance
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /clearances/{id} [get]
func (h *ClearanceHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	req, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if claims.Role == models.RoleStudent && claims.StudentID != req.StudentID {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "request belongs to another student"))
		return
	}
	response.JSON(c, http.StatusOK, detail(req), nil)
}

// Decide godoc
// @Summary Record a department decision
// @Tags Clearance
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param key path string true "Department key"
// @Param payload body dto.DepartmentDecisionRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /clearances/{id}/departments/{key} [patch]
func (h *ClearanceHandler) Decide(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	key := service.NormalizeDepartmentKey(c.Param("key"))
	if !h.policy.CanActorWrite(claims.Role, claims.Department, key) {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "not allowed to decide for this department"))
		return
	}

	var req dto.DepartmentDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	updated, err := h.service.SetDepartmentStatus(c.Request.Context(), c.Param("id"), key, claims.UserID, req.Status, req.Remarks)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail(updated), nil)
}

// scopedQuery parses filters and pins faculty to their own department.
func (h *ClearanceHandler) scopedQuery(c *gin.Context) (dto.ClearanceQuery, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return dto.ClearanceQuery{}, false
	}
	query, err := clearanceQueryFromRequest(c)
	if err != nil {
		response.Error(c, err)
		return dto.ClearanceQuery{}, false
	}
	if claims.Role == models.RoleFaculty {
		if claims.Department == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "faculty account has no department"))
			return dto.ClearanceQuery{}, false
		}
		query.DepartmentKey = claims.Department
	}
	return query, true
}

func detail(req *models.ClearanceRequest) dto.ClearanceDetail {
	return dto.ClearanceDetail{ClearanceRequest: *req, EligibleForCertificate: service.IsEligibleForCertificate(req)}
}
