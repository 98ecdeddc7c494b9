package repository

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/nodues-api/internal/models"
)

var clearanceRowColumns = []string{"id", "student_id", "department_statuses", "overall_status", "remarks", "version", "created_at", "updated_at"}

func clearanceRow(t *testing.T, rows *sqlmock.Rows, id string, statuses models.DepartmentStatuses, overall models.ClearanceStatus, version int64) *sqlmock.Rows {
	t.Helper()
	raw, err := json.Marshal(statuses)
	require.NoError(t, err)
	now := time.Now()
	return rows.AddRow(id, "stu-1", raw, string(overall), nil, version, now, now)
}

func TestClearanceRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClearanceRepository(db)

	mock.ExpectExec("INSERT INTO clearance_requests").
		WithArgs(sqlmock.AnyArg(), "stu-1", sqlmock.AnyArg(), "PENDING", nil, int64(0), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	req := &models.ClearanceRequest{
		StudentID:          "stu-1",
		DepartmentStatuses: models.DepartmentStatuses{"library": {Status: models.ClearanceStatusPending}},
	}
	require.NoError(t, repo.Create(context.Background(), req))
	assert.NotEmpty(t, req.ID)
	assert.Equal(t, models.ClearanceStatusPending, req.OverallStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClearanceRepositoryCreateDuplicatePending(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClearanceRepository(db)

	mock.ExpectExec("INSERT INTO clearance_requests").WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &models.ClearanceRequest{StudentID: "stu-1"})
	require.ErrorIs(t, err, ErrDuplicateActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClearanceRepositoryGetByIDNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClearanceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM clearance_requests WHERE id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(clearanceRowColumns))

	_, err := repo.GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClearanceRepositoryExistsForStudent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClearanceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("overall_status = ANY($2)")).
		WithArgs("stu-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsForStudent(context.Background(), "stu-1", []models.ClearanceStatus{models.ClearanceStatusPending})
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsForStudent(context.Background(), "stu-1", nil)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClearanceRepositoryListWithDepartmentFilter(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClearanceRepository(db)

	pending := models.ClearanceStatusPending
	rows := clearanceRow(t, sqlmock.NewRows(clearanceRowColumns), "req-1",
		models.DepartmentStatuses{"library": {Status: models.ClearanceStatusPending}}, models.ClearanceStatusPending, 0)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT "+clearanceColumns+" FROM clearance_requests WHERE department_statuses ? $1 AND department_statuses -> $1 ->> 'status' = $2 ORDER BY created_at DESC, id DESC LIMIT 10 OFFSET 10")).
		WithArgs("library", "PENDING").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM clearance_requests WHERE department_statuses ? $1")).
		WithArgs("library", "PENDING").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	items, total, err := repo.List(context.Background(), models.ClearanceFilter{
		DepartmentKey:    "library",
		DepartmentStatus: &pending,
		Page:             2,
		PageSize:         10,
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 11, total)
	assert.Equal(t, models.ClearanceStatusPending, items[0].DepartmentStatuses["library"].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClearanceRepositoryUpdateDepartment(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClearanceRepository(db)

	ts := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	rows := clearanceRow(t, sqlmock.NewRows(clearanceRowColumns), "req-1", models.DepartmentStatuses{
		"library":  {Status: models.ClearanceStatusApproved, UpdatedBy: "fac-1", UpdatedAt: &ts},
		"accounts": {Status: models.ClearanceStatusPending},
	}, models.ClearanceStatusPending, 1)

	mock.ExpectQuery(regexp.QuoteMeta("SET department_statuses = jsonb_set(")).
		WithArgs("req-1", "library", "APPROVED", nil, "fac-1", ts.Format(time.RFC3339Nano), ts).
		WillReturnRows(rows)

	req, err := repo.UpdateDepartment(context.Background(), UpdateDepartmentParams{
		RequestID:     "req-1",
		DepartmentKey: "library",
		Status:        models.ClearanceStatusApproved,
		ActorID:       "fac-1",
		UpdatedAt:     ts,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), req.Version)
	assert.Equal(t, models.ClearanceStatusApproved, req.DepartmentStatuses["library"].Status)
	assert.Equal(t, models.ClearanceStatusPending, req.DepartmentStatuses["accounts"].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClearanceRepositoryUpdateDepartmentMisses(t *testing.T) {
	cases := []struct {
		name    string
		exists  bool
		wantErr error
	}{
		{name: "unknown department", exists: true, wantErr: ErrUnknownDepartment},
		{name: "missing request", exists: false, wantErr: ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock, cleanup := newMock(t)
			defer cleanup()
			repo := NewClearanceRepository(db)

			mock.ExpectQuery(regexp.QuoteMeta("SET department_statuses = jsonb_set(")).
				WillReturnRows(sqlmock.NewRows(clearanceRowColumns))
			mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM clearance_requests WHERE id = $1)")).
				WithArgs("req-1").
				WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(tc.exists))

			_, err := repo.UpdateDepartment(context.Background(), UpdateDepartmentParams{
				RequestID:     "req-1",
				DepartmentKey: "gym",
				Status:        models.ClearanceStatusApproved,
				UpdatedAt:     time.Now(),
			})
			require.ErrorIs(t, err, tc.wantErr)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestClearanceRepositoryUpdateOverallStatusConflict(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClearanceRepository(db)

	query := regexp.QuoteMeta("UPDATE clearance_requests SET overall_status = $2, updated_at = $3 WHERE id = $1 AND version = $4")
	mock.ExpectExec(query).
		WithArgs("req-1", "APPROVED", sqlmock.AnyArg(), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(query).
		WithArgs("req-1", "APPROVED", sqlmock.AnyArg(), int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateOverallStatus(context.Background(), "req-1", models.ClearanceStatusApproved, 3)
	require.ErrorIs(t, err, ErrVersionConflict)
	require.NoError(t, repo.UpdateOverallStatus(context.Background(), "req-1", models.ClearanceStatusApproved, 4))
	assert.NoError(t, mock.ExpectationsWereMet())
}
