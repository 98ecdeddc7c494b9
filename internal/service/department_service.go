package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/nodues-api/internal/dto"
	"github.com/noah-isme/nodues-api/internal/models"
	"github.com/noah-isme/nodues-api/internal/repository"
	appErrors "github.com/noah-isme/nodues-api/pkg/errors"
)

const (
	departmentsActiveCacheKey = "departments:active"
	departmentsAllCacheKey    = "departments:all"
)

var departmentKeyPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// NormalizeDepartmentKey lower-cases and trims a department key.
func NormalizeDepartmentKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// ValidDepartmentKey reports whether a normalised key is well formed.
func ValidDepartmentKey(key string) bool {
	return departmentKeyPattern.MatchString(key)
}

type departmentStore interface {
	List(ctx context.Context) ([]models.Department, error)
	ListActiveKeys(ctx context.Context) ([]string, error)
	Upsert(ctx context.Context, department *models.Department) error
	SetActive(ctx context.Context, key string, active bool) error
}

type departmentCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// DepartmentServiceConfig tunes the registry.
type DepartmentServiceConfig struct {
	DefaultKeys []string
	CacheTTL    time.Duration
}

// DepartmentService owns the registry of departments seeded into new clearance requests.
type DepartmentService struct {
	repo      departmentStore
	cache     departmentCache
	validator *validator.Validate
	logger    *zap.Logger
	cfg       DepartmentServiceConfig
}

// NewDepartmentService constructs the registry service. cache may be nil.
func NewDepartmentService(repo departmentStore, cache departmentCache, validate *validator.Validate, logger *zap.Logger, cfg DepartmentServiceConfig) *DepartmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	defaults := make([]string, 0, len(cfg.DefaultKeys))
	seen := make(map[string]struct{}, len(cfg.DefaultKeys))
	for _, key := range cfg.DefaultKeys {
		key = NormalizeDepartmentKey(key)
		if _, dup := seen[key]; dup || !ValidDepartmentKey(key) {
			continue
		}
		seen[key] = struct{}{}
		defaults = append(defaults, key)
	}
	cfg.DefaultKeys = defaults
	return &DepartmentService{repo: repo, cache: cache, validator: validate, logger: logger, cfg: cfg}
}

// ListActiveKeys returns the department keys a new request must be cleared by. When the registry table is
// empty the configured defaults are used.
func (s *DepartmentService) ListActiveKeys(ctx context.Context) ([]string, error) {
	var cached []string
	if s.readCache(ctx, departmentsActiveCacheKey, &cached) && len(cached) > 0 {
		return cached, nil
	}

	keys, err := s.repo.ListActiveKeys(ctx)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to load departments")
	}
	if len(keys) == 0 {
		keys = append([]string(nil), s.cfg.DefaultKeys...)
	}
	s.writeCache(ctx, departmentsActiveCacheKey, keys)
	return keys, nil
}

// List returns every registry entry and whether it came from cache.
func (s *DepartmentService) List(ctx context.Context) ([]models.Department, bool, error) {
	var cached []models.Department
	if s.readCache(ctx, departmentsAllCacheKey, &cached) {
		return cached, true, nil
	}
	departments, err := s.repo.List(ctx)
	if err != nil {
		return nil, false, appErrors.Persistence(err, "failed to list departments")
	}
	if departments == nil {
		departments = []models.Department{}
	}
	s.writeCache(ctx, departmentsAllCacheKey, departments)
	return departments, false, nil
}

// Upsert creates or updates a department. Existing requests keep their department sets.
func (s *DepartmentService) Upsert(ctx context.Context, key string, req dto.UpsertDepartmentRequest) (*models.Department, error) {
	key = NormalizeDepartmentKey(key)
	if !ValidDepartmentKey(key) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "department key must be lowercase letters, digits, '_' or '-'")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid department payload")
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	department := &models.Department{
		Key:         key,
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Active:      active,
		SortOrder:   req.SortOrder,
	}
	if err := s.repo.Upsert(ctx, department); err != nil {
		return nil, appErrors.Persistence(err, "failed to save department")
	}
	s.invalidate(ctx)
	return department, nil
}

// SetActive toggles whether a department is seeded into new requests.
func (s *DepartmentService) SetActive(ctx context.Context, key string, active bool) error {
	key = NormalizeDepartmentKey(key)
	if err := s.repo.SetActive(ctx, key, active); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return appErrors.Clone(appErrors.ErrNotFound, "department not found")
		}
		return appErrors.Persistence(err, "failed to update department")
	}
	s.invalidate(ctx)
	return nil
}

func (s *DepartmentService) readCache(ctx context.Context, key string, dest interface{}) bool {
	if s.cache == nil {
		return false
	}
	hit, err := s.cache.Get(ctx, key, dest)
	if err != nil {
		s.logger.Warn("department cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return hit
}

func (s *DepartmentService) writeCache(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("department cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *DepartmentService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, departmentsActiveCacheKey, departmentsAllCacheKey); err != nil {
		s.logger.Warn("department cache invalidate failed", zap.Error(err))
	}
}
