package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// ClearanceStatus captures the state of a department decision or a whole request.
type ClearanceStatus string

const (
	ClearanceStatusPending  ClearanceStatus = "PENDING"
	ClearanceStatusApproved ClearanceStatus = "APPROVED"
	ClearanceStatusRejected ClearanceStatus = "REJECTED"
)

// Valid reports whether the status is one of the known values.
func (s ClearanceStatus) Valid() bool {
	switch s {
	case ClearanceStatusPending, ClearanceStatusApproved, ClearanceStatusRejected:
		return true
	}
	return false
}

// ParseClearanceStatuses converts raw values into statuses, failing on the first unknown one.
func ParseClearanceStatuses(values []string) ([]ClearanceStatus, error) {
	out := make([]ClearanceStatus, 0, len(values))
	for _, value := range values {
		status := ClearanceStatus(value)
		if !status.Valid() {
			return nil, fmt.Errorf("unknown clearance status %q", value)
		}
		out = append(out, status)
	}
	return out, nil
}

// IsDecision reports whether the status can be recorded by a department.
func (s ClearanceStatus) IsDecision() bool {
	return s == ClearanceStatusApproved || s == ClearanceStatusRejected
}

// DepartmentClearance is the decision held for one department key.
type DepartmentClearance struct {
	Status    ClearanceStatus `json:"status" bson:"status"`
	Remarks   string          `json:"remarks" bson:"remarks"`
	UpdatedBy string          `json:"updatedBy,omitempty" bson:"updatedBy,omitempty"`
	UpdatedAt *time.Time      `json:"updatedAt,omitempty" bson:"updatedAt,omitempty"`
}

// DepartmentStatuses maps department keys to their clearance. Stored as JSONB.
type DepartmentStatuses map[string]DepartmentClearance

// Keys returns the department keys in lexical order.
func (d DepartmentStatuses) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy.
func (d DepartmentStatuses) Clone() DepartmentStatuses {
	if d == nil {
		return nil
	}
	out := make(DepartmentStatuses, len(d))
	for k, v := range d {
		if v.UpdatedAt != nil {
			ts := *v.UpdatedAt
			v.UpdatedAt = &ts
		}
		out[k] = v
	}
	return out
}

// Value implements driver.Valuer.
func (d DepartmentStatuses) Value() (driver.Value, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(d)
}

// Scan implements sql.Scanner.
func (d *DepartmentStatuses) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*d = DepartmentStatuses{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan department statuses: unsupported type %T", src)
	}
	out := DepartmentStatuses{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("scan department statuses: %w", err)
	}
	*d = out
	return nil
}

// ClearanceRequest is a student's no-dues request with one decision per department.
type ClearanceRequest struct {
	ID                 string             `db:"id" json:"id" bson:"_id"`
	StudentID          string             `db:"student_id" json:"studentId" bson:"studentId"`
	DepartmentStatuses DepartmentStatuses `db:"department_statuses" json:"departmentStatuses" bson:"departmentStatuses"`
	OverallStatus      ClearanceStatus    `db:"overall_status" json:"overallStatus" bson:"overallStatus"`
	Remarks            *string            `db:"remarks" json:"remarks,omitempty" bson:"remarks,omitempty"`
	Version            int64              `db:"version" json:"version" bson:"version"`
	CreatedAt          time.Time          `db:"created_at" json:"createdAt" bson:"createdAt"`
	UpdatedAt          time.Time          `db:"updated_at" json:"updatedAt" bson:"updatedAt"`
}

// ClearanceFilter constrains listing queries.
type ClearanceFilter struct {
	Status           *ClearanceStatus
	StudentID        string
	DepartmentKey    string
	DepartmentStatus *ClearanceStatus
	CreatedBefore    *time.Time
	Page             int
	PageSize         int
}

// Normalize clamps pagination to sane bounds and returns the offset.
func (f *ClearanceFilter) Normalize() int {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = 20
	}
	if f.PageSize > 100 {
		f.PageSize = 100
	}
	return (f.Page - 1) * f.PageSize
}

// Audit actions emitted by the clearance workflow.
const (
	AuditActionCreateRequest     = "CREATE_REQUEST"
	AuditActionApproveDepartment = "APPROVE_DEPARTMENT"
	AuditActionRejectDepartment  = "REJECT_DEPARTMENT"
	AuditActionIssueCertificate  = "ISSUE_CERTIFICATE"
	AuditActionDepartmentUpsert  = "DEPARTMENT_UPSERT"
)
