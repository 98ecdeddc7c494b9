package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/nodues-api/internal/dto"
	"github.com/noah-isme/nodues-api/internal/models"
	"github.com/noah-isme/nodues-api/internal/repository"
	appErrors "github.com/noah-isme/nodues-api/pkg/errors"
)

const clearanceResource = "clearance_request"

// ClearanceStore persists clearance requests. Postgres and MongoDB implementations live in the repository package.
type ClearanceStore interface {
	Create(ctx context.Context, req *models.ClearanceRequest) error
	GetByID(ctx context.Context, id string) (*models.ClearanceRequest, error)
	FindLatestByStudent(ctx context.Context, studentID string) (*models.ClearanceRequest, error)
	ExistsForStudent(ctx context.Context, studentID string, statuses []models.ClearanceStatus) (bool, error)
	List(ctx context.Context, filter models.ClearanceFilter) ([]models.ClearanceRequest, int, error)
	UpdateDepartment(ctx context.Context, params repository.UpdateDepartmentParams) (*models.ClearanceRequest, error)
	UpdateOverallStatus(ctx context.Context, id string, status models.ClearanceStatus, expectedVersion int64) error
}

type studentDirectory interface {
	Exists(ctx context.Context, id string) (bool, error)
}

type departmentRegistry interface {
	ListActiveKeys(ctx context.Context) ([]string, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type clearanceNotifier interface {
	Notify(n Notification)
}

// ClearanceServiceConfig tunes the clearance workflow.
type ClearanceServiceConfig struct {
	// BlockingStatuses are the overall statuses that prevent a student from opening another request.
	BlockingStatuses []models.ClearanceStatus
	// StatusRetries bounds how often the overall status write is retried after losing a version race.
	StatusRetries int
}

// ClearanceService runs the no-dues workflow: opening requests, recording department decisions and
// keeping the derived overall status in step with the department map.
type ClearanceService struct {
	store       ClearanceStore
	students    studentDirectory
	departments departmentRegistry
	audit       auditLogger
	notifier    clearanceNotifier
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         ClearanceServiceConfig
	now         func() time.Time
}

// ClearanceServiceOption configures the service.
type ClearanceServiceOption func(*ClearanceService)

// WithClearanceNotifier sets the notification sink.
func WithClearanceNotifier(n clearanceNotifier) ClearanceServiceOption {
	return func(s *ClearanceService) {
		s.notifier = n
	}
}

// WithClearanceMetrics sets the metrics recorder.
func WithClearanceMetrics(m *MetricsService) ClearanceServiceOption {
	return func(s *ClearanceService) {
		s.metrics = m
	}
}

// WithClearanceClock overrides the clock used for decision timestamps.
func WithClearanceClock(now func() time.Time) ClearanceServiceOption {
	return func(s *ClearanceService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewClearanceService constructs the service with defaults.
func NewClearanceService(store ClearanceStore, students studentDirectory, departments departmentRegistry, audit auditLogger, validate *validator.Validate, logger *zap.Logger, cfg ClearanceServiceConfig, opts ...ClearanceServiceOption) *ClearanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.BlockingStatuses == nil {
		cfg.BlockingStatuses = []models.ClearanceStatus{models.ClearanceStatusPending}
	}
	if cfg.StatusRetries <= 0 {
		cfg.StatusRetries = 5
	}
	svc := &ClearanceService{
		store:       store,
		students:    students,
		departments: departments,
		audit:       audit,
		validator:   validate,
		logger:      logger,
		cfg:         cfg,
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// CreateRequest opens a clearance request for the student with every active department pending. actorID is
// the user submitting it and is only used for the audit trail.
func (s *ClearanceService) CreateRequest(ctx context.Context, studentID, actorID string, req dto.CreateClearanceRequest) (*models.ClearanceRequest, error) {
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "studentId is required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid clearance payload")
	}

	exists, err := s.students.Exists(ctx, studentID)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to verify student")
	}
	if !exists {
		return nil, appErrors.ErrStudentNotFound
	}

	blocked, err := s.store.ExistsForStudent(ctx, studentID, s.cfg.BlockingStatuses)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to check existing requests")
	}
	if blocked {
		return nil, appErrors.ErrDuplicateActiveRequest
	}

	keys, err := s.departments.ListActiveKeys(ctx)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "no clearance departments are configured")
	}
	departments := make(models.DepartmentStatuses, len(keys))
	for _, key := range keys {
		departments[NormalizeDepartmentKey(key)] = models.DepartmentClearance{Status: models.ClearanceStatusPending}
	}

	var remarks *string
	if req.Remarks != nil {
		trimmed := strings.TrimSpace(*req.Remarks)
		if trimmed != "" {
			remarks = &trimmed
		}
	}
	request := &models.ClearanceRequest{
		StudentID:          studentID,
		DepartmentStatuses: departments,
		OverallStatus:      models.ClearanceStatusPending,
		Remarks:            remarks,
		CreatedAt:          s.now().UTC(),
	}
	if err := s.store.Create(ctx, request); err != nil {
		if errors.Is(err, repository.ErrDuplicateActive) {
			return nil, appErrors.ErrDuplicateActiveRequest
		}
		return nil, appErrors.Persistence(err, "failed to create clearance request")
	}

	s.metrics.RecordRequestCreated()
	s.emitAudit(ctx, actorID, models.AuditActionCreateRequest, request.ID, request)
	s.notify(Notification{Event: NotificationRequestSubmitted, RequestID: request.ID, StudentID: studentID})
	return request, nil
}

// GetActiveRequest returns the student's most recent request, or nil when none exists.
func (s *ClearanceService) GetActiveRequest(ctx context.Context, studentID string) (*models.ClearanceRequest, error) {
	req, err := s.store.FindLatestByStudent(ctx, strings.TrimSpace(studentID))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, appErrors.Persistence(err, "failed to load clearance request")
	}
	return req, nil
}

// Get returns a request by identifier.
func (s *ClearanceService) Get(ctx context.Context, id string) (*models.ClearanceRequest, error) {
	req, err := s.store.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, appErrors.ErrRequestNotFound
		}
		return nil, appErrors.Persistence(err, "failed to load clearance request")
	}
	return req, nil
}

// ListRequests returns a page of requests, newest first.
func (s *ClearanceService) ListRequests(ctx context.Context, query dto.ClearanceQuery) (*dto.ClearanceList, error) {
	if query.Status != nil && !query.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid status filter")
	}
	if query.DepartmentStatus != nil && !query.DepartmentStatus.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid department status filter")
	}
	filter := models.ClearanceFilter{
		Status:           query.Status,
		StudentID:        strings.TrimSpace(query.StudentID),
		DepartmentKey:    NormalizeDepartmentKey(query.DepartmentKey),
		DepartmentStatus: query.DepartmentStatus,
		CreatedBefore:    query.CreatedBefore,
		Page:             query.Page,
		PageSize:         query.PageSize,
	}
	if filter.DepartmentKey == "" && filter.DepartmentStatus != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "departmentStatus requires departmentKey")
	}
	if filter.DepartmentKey != "" && !ValidDepartmentKey(filter.DepartmentKey) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid department key")
	}
	filter.Normalize()

	items, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to list clearance requests")
	}
	if items == nil {
		items = []models.ClearanceRequest{}
	}
	return &dto.ClearanceList{Items: items, Total: total, Page: filter.Page, PageSize: filter.PageSize}, nil
}

// SetDepartmentStatus records one department's decision and brings the overall status up to date. A nil
// remarks keeps what the department wrote before. Callers authorise the actor first.
//
// Malformed department keys are rejected with UNKNOWN_DEPARTMENT before the store is read, so that error
// wins over REQUEST_NOT_FOUND for a request ID that does not exist.
func (s *ClearanceService) SetDepartmentStatus(ctx context.Context, requestID, departmentKey, actorID string, decision models.ClearanceStatus, remarks *string) (*models.ClearanceRequest, error) {
	if !decision.IsDecision() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be APPROVED or REJECTED")
	}
	key := NormalizeDepartmentKey(departmentKey)
	requestID = strings.TrimSpace(requestID)
	if !ValidDepartmentKey(key) {
		s.logger.Warn("rejected malformed department key", zap.String("request_id", requestID), zap.String("department", departmentKey))
		return nil, appErrors.ErrUnknownDepartment
	}

	updated, err := s.store.UpdateDepartment(ctx, repository.UpdateDepartmentParams{
		RequestID:     requestID,
		DepartmentKey: key,
		Status:        decision,
		Remarks:       remarks,
		ActorID:       actorID,
		UpdatedAt:     s.now().UTC(),
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, appErrors.ErrRequestNotFound
		case errors.Is(err, repository.ErrUnknownDepartment):
			s.logger.Warn("department not part of request",
				zap.String("request_id", requestID),
				zap.String("department", key),
				zap.String("actor_id", actorID))
			return nil, appErrors.ErrUnknownDepartment
		default:
			return nil, appErrors.Persistence(err, "failed to record department decision")
		}
	}
	previous := updated.OverallStatus

	final, err := s.reconcileOverallStatus(ctx, updated)
	if err != nil {
		return nil, err
	}

	action := models.AuditActionApproveDepartment
	if decision == models.ClearanceStatusRejected {
		action = models.AuditActionRejectDepartment
	}
	entry := final.DepartmentStatuses[key]
	s.metrics.RecordDepartmentDecision(key, string(decision))
	s.emitAudit(ctx, actorID, action, final.ID, map[string]interface{}{
		"department":    key,
		"status":        entry.Status,
		"remarks":       entry.Remarks,
		"overallStatus": final.OverallStatus,
	})
	s.notify(Notification{
		Event:         NotificationDepartmentDecision,
		RequestID:     final.ID,
		StudentID:     final.StudentID,
		DepartmentKey: key,
		Status:        decision,
		Remarks:       entry.Remarks,
	})
	if final.OverallStatus != previous && final.OverallStatus != models.ClearanceStatusPending {
		s.notify(Notification{
			Event:     NotificationStatusChanged,
			RequestID: final.ID,
			StudentID: final.StudentID,
			Status:    final.OverallStatus,
		})
	}
	return final, nil
}

// reconcileOverallStatus stores the aggregate of the snapshot's department map. The write is guarded by
// the snapshot version; losing the race means another decision landed, so the latest state is reloaded
// and aggregated again.
func (s *ClearanceService) reconcileOverallStatus(ctx context.Context, snapshot *models.ClearanceRequest) (*models.ClearanceRequest, error) {
	current := snapshot
	for attempt := 0; attempt <= s.cfg.StatusRetries; attempt++ {
		computed := AggregateOverallStatus(current.DepartmentStatuses)
		if computed == current.OverallStatus {
			return current, nil
		}
		err := s.store.UpdateOverallStatus(ctx, current.ID, computed, current.Version)
		if err == nil {
			current.OverallStatus = computed
			current.UpdatedAt = s.now().UTC()
			return current, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, appErrors.Persistence(err, "failed to update overall status")
		}
		s.metrics.RecordStatusConflict()
		s.logger.Debug("overall status write lost a race, reloading",
			zap.String("request_id", current.ID),
			zap.Int64("version", current.Version),
			zap.Int("attempt", attempt+1))

		current, err = s.store.GetByID(ctx, current.ID)
		if err != nil {
			return nil, appErrors.Persistence(err, "failed to reload clearance request")
		}
	}
	return nil, appErrors.Persistence(repository.ErrVersionConflict, "overall status kept changing, retry the decision")
}

func (s *ClearanceService) emitAudit(ctx context.Context, actorID, action, resourceID string, payload interface{}) {
	if s.audit == nil {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("failed to encode audit payload", zap.String("action", action), zap.Error(err))
		return
	}
	entry := &models.AuditLog{
		Action:     action,
		Resource:   clearanceResource,
		ResourceID: &resourceID,
		NewValues:  body,
	}
	if actorID != "" {
		entry.UserID = &actorID
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to write audit log", zap.String("action", action), zap.String("resource_id", resourceID), zap.Error(err))
	}
}

func (s *ClearanceService) notify(n Notification) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(n)
}
