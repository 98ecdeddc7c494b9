package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/nodues-api/internal/models"
)

func TestDepartmentRepositoryListActiveKeys(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDepartmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT key FROM departments WHERE active = TRUE ORDER BY sort_order ASC, key ASC")).
		WillReturnRows(sqlmock.NewRows([]string{"key"}).AddRow("library").AddRow("accounts"))

	keys, err := repo.ListActiveKeys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"library", "accounts"}, keys)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDepartmentRepositoryUpsert(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDepartmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (key) DO UPDATE")).
		WithArgs("hostel", "Hostel", "", true, 3, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Upsert(context.Background(), &models.Department{Key: "hostel", Name: "Hostel", Active: true, SortOrder: 3})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDepartmentRepositorySetActiveMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDepartmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE departments SET active = $2, updated_at = $3 WHERE key = $1")).
		WithArgs("sports", false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetActive(context.Background(), "sports", false)
	require.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
