package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/nodues-api/internal/dto"
	"github.com/noah-isme/nodues-api/internal/models"
	appErrors "github.com/noah-isme/nodues-api/pkg/errors"
)

type pagedLister struct {
	items   []models.ClearanceRequest
	queries []dto.ClearanceQuery
	err     error
}

func (p *pagedLister) ListRequests(ctx context.Context, query dto.ClearanceQuery) (*dto.ClearanceList, error) {
	p.queries = append(p.queries, query)
	if p.err != nil {
		return nil, p.err
	}
	start := (query.Page - 1) * query.PageSize
	end := start + query.PageSize
	if start > len(p.items) {
		start = len(p.items)
	}
	if end > len(p.items) {
		end = len(p.items)
	}
	return &dto.ClearanceList{Items: p.items[start:end], Total: len(p.items), Page: query.Page, PageSize: query.PageSize}, nil
}

func exportFixtureItems(n int) []models.ClearanceRequest {
	items := make([]models.ClearanceRequest, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, models.ClearanceRequest{
			ID:            fmt.Sprintf("req-%03d", i),
			StudentID:     fmt.Sprintf("stu-%03d", i),
			OverallStatus: models.ClearanceStatusPending,
			DepartmentStatuses: models.DepartmentStatuses{
				"library":  {Status: models.ClearanceStatusApproved},
				"accounts": {Status: models.ClearanceStatusPending},
			},
			CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		})
	}
	return items
}

func TestExportServiceCSVWalksAllPages(t *testing.T) {
	lister := &pagedLister{items: exportFixtureItems(150)}
	svc := NewExportService(lister, ExportConfig{}, nil, nil, nil)

	status := models.ClearanceStatusPending
	result, err := svc.Export(context.Background(), "CSV", dto.ClearanceQuery{Status: &status, Page: 7, PageSize: 3})
	require.NoError(t, err)

	require.Len(t, lister.queries, 2)
	assert.Equal(t, 1, lister.queries[0].Page)
	assert.Equal(t, exportPageSize, lister.queries[0].PageSize)
	assert.Equal(t, &status, lister.queries[1].Status)

	assert.Equal(t, 150, result.Rows)
	assert.Equal(t, "text/csv", result.ContentType)
	assert.True(t, strings.HasSuffix(result.Filename, ".csv"))

	records, err := csv.NewReader(strings.NewReader(string(result.Payload))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 151)
	assert.Equal(t, []string{"request_id", "student_id", "overall_status", "created_at", "accounts", "library"}, records[0])
	assert.Equal(t, "APPROVED", records[1][5])
}

func TestExportServicePDF(t *testing.T) {
	svc := NewExportService(&pagedLister{items: exportFixtureItems(3)}, ExportConfig{}, nil, nil, nil)

	result, err := svc.Export(context.Background(), "pdf", dto.ClearanceQuery{})
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", result.ContentType)
	assert.True(t, strings.HasPrefix(string(result.Payload), "%PDF"))
}

func TestExportServiceTruncatesAtMaxRows(t *testing.T) {
	svc := NewExportService(&pagedLister{items: exportFixtureItems(250)}, ExportConfig{MaxRows: 120}, nil, nil, nil)

	result, err := svc.Export(context.Background(), "", dto.ClearanceQuery{})
	require.NoError(t, err)
	assert.Equal(t, 120, result.Rows)
}

func TestExportServiceErrors(t *testing.T) {
	svc := NewExportService(&pagedLister{}, ExportConfig{}, nil, nil, nil)
	_, err := svc.Export(context.Background(), "xlsx", dto.ClearanceQuery{})
	require.ErrorIs(t, err, appErrors.ErrValidation)

	failing := NewExportService(&pagedLister{err: errors.New("boom")}, ExportConfig{}, nil, nil, nil)
	_, err = failing.Export(context.Background(), "csv", dto.ClearanceQuery{})
	require.Error(t, err)
}
