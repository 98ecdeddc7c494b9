package handler

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/nodues-api/internal/dto"
	"github.com/noah-isme/nodues-api/internal/middleware"
	"github.com/noah-isme/nodues-api/internal/models"
	appErrors "github.com/noah-isme/nodues-api/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		return nil
	}
	return claims
}

// clearanceQueryFromRequest reads listing filters from the query string.
func clearanceQueryFromRequest(c *gin.Context) (dto.ClearanceQuery, error) {
	query := dto.ClearanceQuery{
		StudentID:     strings.TrimSpace(c.Query("studentId")),
		DepartmentKey: strings.TrimSpace(c.Query("department")),
	}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status := models.ClearanceStatus(strings.ToUpper(raw))
		query.Status = &status
	}
	if raw := strings.TrimSpace(c.Query("departmentStatus")); raw != "" {
		status := models.ClearanceStatus(strings.ToUpper(raw))
		query.DepartmentStatus = &status
	}
	if raw := strings.TrimSpace(c.Query("createdBefore")); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return query, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "createdBefore must be RFC3339")
		}
		query.CreatedBefore = &ts
	}
	query.Page = intQuery(c, "page")
	query.PageSize = intQuery(c, "pageSize")
	return query, nil
}

func intQuery(c *gin.Context, key string) int {
	value, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return value
}
