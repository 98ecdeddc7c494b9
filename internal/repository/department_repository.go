package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/nodues-api/internal/models"
)

const departmentColumns = `key, name, description, active, sort_order, created_at, updated_at`

// DepartmentRepository stores the clearance department registry.
type DepartmentRepository struct {
	db *sqlx.DB
}

// NewDepartmentRepository constructs the repository.
func NewDepartmentRepository(db *sqlx.DB) *DepartmentRepository {
	return &DepartmentRepository{db: db}
}

// List returns every department ordered for display.
func (r *DepartmentRepository) List(ctx context.Context) ([]models.Department, error) {
	const query = `SELECT ` + departmentColumns + ` FROM departments ORDER BY sort_order ASC, key ASC`
	var departments []models.Department
	if err := r.db.SelectContext(ctx, &departments, query); err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	return departments, nil
}

// ListActiveKeys returns the keys of departments that take part in new requests.
func (r *DepartmentRepository) ListActiveKeys(ctx context.Context) ([]string, error) {
	const query = `SELECT key FROM departments WHERE active = TRUE ORDER BY sort_order ASC, key ASC`
	var keys []string
	if err := r.db.SelectContext(ctx, &keys, query); err != nil {
		return nil, fmt.Errorf("list active department keys: %w", err)
	}
	return keys, nil
}

// Upsert inserts or updates a department by key.
func (r *DepartmentRepository) Upsert(ctx context.Context, department *models.Department) error {
	now := time.Now().UTC()
	if department.CreatedAt.IsZero() {
		department.CreatedAt = now
	}
	department.UpdatedAt = now
	const query = `INSERT INTO departments (` + departmentColumns + `)
	VALUES (:key, :name, :description, :active, :sort_order, :created_at, :updated_at)
	ON CONFLICT (key) DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description,
	    active = EXCLUDED.active, sort_order = EXCLUDED.sort_order, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, department); err != nil {
		return fmt.Errorf("upsert department: %w", err)
	}
	return nil
}

// SetActive toggles whether the department is seeded into new requests.
func (r *DepartmentRepository) SetActive(ctx context.Context, key string, active bool) error {
	const query = `UPDATE departments SET active = $2, updated_at = $3 WHERE key = $1`
	result, err := r.db.ExecContext(ctx, query, key, active, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set department active: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check department rows: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
