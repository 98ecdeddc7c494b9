package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/nodues-api/internal/dto"
	"github.com/noah-isme/nodues-api/internal/middleware"
	"github.com/noah-isme/nodues-api/internal/models"
	appErrors "github.com/noah-isme/nodues-api/pkg/errors"
	"github.com/noah-isme/nodues-api/pkg/response"
)

type departmentService interface {
	List(ctx context.Context) ([]models.Department, bool, error)
	Upsert(ctx context.Context, key string, req dto.UpsertDepartmentRequest) (*models.Department, error)
	SetActive(ctx context.Context, key string, active bool) error
}

// DepartmentHandler manages the department registry.
type DepartmentHandler struct {
	service departmentService
}

// NewDepartmentHandler constructs the handler.
func NewDepartmentHandler(svc departmentService) *DepartmentHandler {
	return &DepartmentHandler{service: svc}
}

// List godoc
// @Summary List departments
// @Tags Departments
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /departments [get]
func (h *DepartmentHandler) List(c *gin.Context) {
	items, hit, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, items, nil, middleware.ExtractMeta(c))
}

// Upsert godoc
// @Summary Create or update a department
// @Description Existing clearance requests keep the departments they were created with.
// @Tags Departments
// @Accept json
// @Produce json
// @Param key path string true "Department key"
// @Param payload body dto.UpsertDepartmentRequest true "Department"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /departments/{key} [put]
func (h *DepartmentHandler) Upsert(c *gin.Context) {
	var req dto.UpsertDepartmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	dept, err := h.service.Upsert(c.Request.Context(), c.Param("key"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dept, nil)
}

// SetActive godoc
// @Summary Enable or disable a department for new requests
// @Tags Departments
// @Accept json
// @Param key path string true "Department key"
// @Param payload body object true "{\"active\": bool}"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /departments/{key}/active [patch]
func (h *DepartmentHandler) SetActive(c *gin.Context) {
	var payload struct {
		Active *bool `json:"active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "active flag required"))
		return
	}
	if err := h.service.SetActive(c.Request.Context(), c.Param("key"), *payload.Active); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
