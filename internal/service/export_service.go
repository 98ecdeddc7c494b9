package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/nodues-api/internal/dto"
	"github.com/noah-isme/nodues-api/internal/models"
	appErrors "github.com/noah-isme/nodues-api/pkg/errors"
	"github.com/noah-isme/nodues-api/pkg/export"
)

// Supported export formats.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

const exportPageSize = 100

type clearanceLister interface {
	ListRequests(ctx context.Context, query dto.ClearanceQuery) (*dto.ClearanceList, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	MaxRows int
}

// ExportResult is a rendered export ready to be streamed to the caller.
type ExportResult struct {
	Filename    string
	ContentType string
	Payload     []byte
	Rows        int
}

// ExportService renders filtered clearance listings as CSV or PDF documents.
type ExportService struct {
	requests  clearanceLister
	exporters map[string]export.Exporter
	logger    *zap.Logger
	cfg       ExportConfig
	now       func() time.Time
}

// NewExportService constructs an ExportService. Nil exporters fall back to the default CSV and PDF renderers.
func NewExportService(requests clearanceLister, cfg ExportConfig, logger *zap.Logger, csv, pdf export.Exporter) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 10000
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		requests:  requests,
		exporters: map[string]export.Exporter{ExportFormatCSV: csv, ExportFormatPDF: pdf},
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Export walks every page matching the query and renders it in the requested format.
func (s *ExportService) Export(ctx context.Context, format string, query dto.ClearanceQuery) (*ExportResult, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = ExportFormatCSV
	}
	exporter, ok := s.exporters[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}

	items, err := s.collect(ctx, query)
	if err != nil {
		return nil, err
	}
	dataset := buildClearanceDataset(items)
	payload, err := exporter.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	s.logger.Info("clearance export rendered", zap.String("format", format), zap.Int("rows", len(items)))
	return &ExportResult{
		Filename:    fmt.Sprintf("clearances_%s.%s", s.now().UTC().Format("20060102_150405"), exporter.Extension()),
		ContentType: exporter.ContentType(),
		Payload:     payload,
		Rows:        len(items),
	}, nil
}

func (s *ExportService) collect(ctx context.Context, query dto.ClearanceQuery) ([]models.ClearanceRequest, error) {
	query.PageSize = exportPageSize
	var items []models.ClearanceRequest
	for page := 1; ; page++ {
		query.Page = page
		list, err := s.requests.ListRequests(ctx, query)
		if err != nil {
			return nil, err
		}
		items = append(items, list.Items...)
		if len(items) >= s.cfg.MaxRows {
			s.logger.Warn("clearance export truncated", zap.Int("max_rows", s.cfg.MaxRows), zap.Int("total", list.Total))
			return items[:s.cfg.MaxRows], nil
		}
		if len(list.Items) < exportPageSize || len(items) >= list.Total {
			return items, nil
		}
	}
}

func buildClearanceDataset(items []models.ClearanceRequest) export.Dataset {
	keySet := map[string]struct{}{}
	for _, item := range items {
		for key := range item.DepartmentStatuses {
			keySet[key] = struct{}{}
		}
	}
	departments := make([]string, 0, len(keySet))
	for key := range keySet {
		departments = append(departments, key)
	}
	sort.Strings(departments)

	headers := append([]string{"request_id", "student_id", "overall_status", "created_at"}, departments...)
	rows := make([]map[string]string, 0, len(items))
	for _, item := range items {
		row := map[string]string{
			"request_id":     item.ID,
			"student_id":     item.StudentID,
			"overall_status": string(item.OverallStatus),
			"created_at":     item.CreatedAt.UTC().Format(time.RFC3339),
		}
		for key, entry := range item.DepartmentStatuses {
			row[key] = string(entry.Status)
		}
		rows = append(rows, row)
	}
	return export.Dataset{Title: "No-Dues Clearance Requests", Headers: headers, Rows: rows}
}
