package dto

import (
	"time"

	"github.com/noah-isme/nodues-api/internal/models"
)

// CreateClearanceRequest is the payload a student submits to open a request.
type CreateClearanceRequest struct {
	Remarks *string `json:"remarks" validate:"omitempty,max=1000"`
}

// DepartmentDecisionRequest records one department's decision. A nil Remarks keeps the previous remarks.
type DepartmentDecisionRequest struct {
	Status  models.ClearanceStatus `json:"status" validate:"required,oneof=APPROVED REJECTED"`
	Remarks *string                `json:"remarks" validate:"omitempty,max=1000"`
}

// ClearanceQuery mirrors supported listing filters.
type ClearanceQuery struct {
	Status           *models.ClearanceStatus
	StudentID        string
	DepartmentKey    string
	DepartmentStatus *models.ClearanceStatus
	CreatedBefore    *time.Time
	Page             int
	PageSize         int
}

// ClearanceList is a page of requests plus the total count.
type ClearanceList struct {
	Items    []models.ClearanceRequest `json:"items"`
	Total    int                       `json:"total"`
	Page     int                       `json:"page"`
	PageSize int                       `json:"pageSize"`
}

// ClearanceDetail decorates a request with its certificate eligibility.
type ClearanceDetail struct {
	models.ClearanceRequest
	EligibleForCertificate bool `json:"eligibleForCertificate"`
}
