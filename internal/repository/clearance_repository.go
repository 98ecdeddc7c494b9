package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/nodues-api/internal/models"
)

const clearanceColumns = `id, student_id, department_statuses, overall_status, remarks, version, created_at, updated_at`

// UpdateDepartmentParams describes a single department decision. A nil Remarks keeps the stored remarks.
type UpdateDepartmentParams struct {
	RequestID     string
	DepartmentKey string
	Status        models.ClearanceStatus
	Remarks       *string
	ActorID       string
	UpdatedAt     time.Time
}

// ClearanceRepository persists clearance requests in PostgreSQL, keeping the department map in a JSONB column.
type ClearanceRepository struct {
	db *sqlx.DB
}

// NewClearanceRepository constructs the repository.
func NewClearanceRepository(db *sqlx.DB) *ClearanceRepository {
	return &ClearanceRepository{db: db}
}

// Create inserts a new request row. A partial unique index on pending requests rejects a second pending
// request for the same student.
func (r *ClearanceRepository) Create(ctx context.Context, req *models.ClearanceRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.OverallStatus == "" {
		req.OverallStatus = models.ClearanceStatusPending
	}
	now := time.Now().UTC()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	req.UpdatedAt = req.CreatedAt
	const query = `INSERT INTO clearance_requests (` + clearanceColumns + `)
	VALUES (:id, :student_id, :department_statuses, :overall_status, :remarks, :version, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateActive
		}
		return fmt.Errorf("create clearance request: %w", err)
	}
	return nil
}

// GetByID fetches a request by identifier.
func (r *ClearanceRepository) GetByID(ctx context.Context, id string) (*models.ClearanceRequest, error) {
	const query = `SELECT ` + clearanceColumns + ` FROM clearance_requests WHERE id = $1`
	var req models.ClearanceRequest
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get clearance request: %w", err)
	}
	return &req, nil
}

// FindLatestByStudent returns the most recent request raised by the student.
func (r *ClearanceRepository) FindLatestByStudent(ctx context.Context, studentID string) (*models.ClearanceRequest, error) {
	const query = `SELECT ` + clearanceColumns + ` FROM clearance_requests
	WHERE student_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`
	var req models.ClearanceRequest
	if err := r.db.GetContext(ctx, &req, query, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find latest clearance request: %w", err)
	}
	return &req, nil
}

// ExistsForStudent reports whether the student owns a request in one of the given overall statuses.
func (r *ClearanceRepository) ExistsForStudent(ctx context.Context, studentID string, statuses []models.ClearanceStatus) (bool, error) {
	if len(statuses) == 0 {
		return false, nil
	}
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}
	const query = `SELECT EXISTS (SELECT 1 FROM clearance_requests WHERE student_id = $1 AND overall_status = ANY($2))`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, studentID, pq.Array(values)); err != nil {
		return false, fmt.Errorf("check active clearance request: %w", err)
	}
	return exists, nil
}

// List returns a page of requests, newest first, plus the total matching count.
func (r *ClearanceRepository) List(ctx context.Context, filter models.ClearanceFilter) ([]models.ClearanceRequest, int, error) {
	offset := filter.Normalize()

	conditions := make([]string, 0, 5)
	args := make([]interface{}, 0, 6)
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		conditions = append(conditions, fmt.Sprintf("overall_status = $%d", len(args)))
	}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if filter.DepartmentKey != "" {
		args = append(args, filter.DepartmentKey)
		keyArg := len(args)
		conditions = append(conditions, fmt.Sprintf("department_statuses ? $%d", keyArg))
		if filter.DepartmentStatus != nil {
			args = append(args, string(*filter.DepartmentStatus))
			conditions = append(conditions, fmt.Sprintf("department_statuses -> $%d ->> 'status' = $%d", keyArg, len(args)))
		}
	}
	if filter.CreatedBefore != nil {
		args = append(args, *filter.CreatedBefore)
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	listQuery := fmt.Sprintf("SELECT %s FROM clearance_requests%s ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d",
		clearanceColumns, where, filter.PageSize, offset)
	var items []models.ClearanceRequest
	if err := r.db.SelectContext(ctx, &items, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list clearance requests: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM clearance_requests"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count clearance requests: %w", err)
	}
	return items, total, nil
}

// UpdateDepartment rewrites exactly one key of the department map in a single statement and bumps the
// version. Concurrent writes to other keys are never lost. It returns the row as it stands after the write.
func (r *ClearanceRepository) UpdateDepartment(ctx context.Context, params UpdateDepartmentParams) (*models.ClearanceRequest, error) {
	const query = `UPDATE clearance_requests
	SET department_statuses = jsonb_set(
	        department_statuses,
	        ARRAY[$2::text],
	        jsonb_build_object(
	            'status', $3::text,
	            'remarks', COALESCE($4::text, department_statuses -> $2::text ->> 'remarks', ''),
	            'updatedBy', $5::text,
	            'updatedAt', $6::text
	        ),
	        false),
	    version = version + 1,
	    updated_at = $7
	WHERE id = $1 AND department_statuses ? $2::text
	RETURNING ` + clearanceColumns
	updatedAt := params.UpdatedAt.UTC()
	var req models.ClearanceRequest
	err := r.db.GetContext(ctx, &req, query,
		params.RequestID,
		params.DepartmentKey,
		string(params.Status),
		params.Remarks,
		params.ActorID,
		updatedAt.Format(time.RFC3339Nano),
		updatedAt,
	)
	if err == nil {
		return &req, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update department clearance: %w", err)
	}

	exists, existsErr := r.exists(ctx, params.RequestID)
	if existsErr != nil {
		return nil, existsErr
	}
	if !exists {
		return nil, ErrNotFound
	}
	return nil, ErrUnknownDepartment
}

// UpdateOverallStatus stores the derived overall status if no department write happened since expectedVersion.
func (r *ClearanceRepository) UpdateOverallStatus(ctx context.Context, id string, status models.ClearanceStatus, expectedVersion int64) error {
	const query = `UPDATE clearance_requests SET overall_status = $2, updated_at = $3 WHERE id = $1 AND version = $4`
	result, err := r.db.ExecContext(ctx, query, id, string(status), time.Now().UTC(), expectedVersion)
	if err != nil {
		return fmt.Errorf("update overall status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check overall status rows: %w", err)
	}
	if rows == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (r *ClearanceRepository) exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM clearance_requests WHERE id = $1)`, id); err != nil {
		return false, fmt.Errorf("check clearance request: %w", err)
	}
	return exists, nil
}
