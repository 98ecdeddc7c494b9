package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/nodues-api/internal/dto"
	"github.com/noah-isme/nodues-api/internal/models"
	"github.com/noah-isme/nodues-api/internal/repository"
	appErrors "github.com/noah-isme/nodues-api/pkg/errors"
)

type stubDepartmentStore struct {
	departments []models.Department
	activeKeys  []string
	listErr     error
	activeCalls int
	upserted    []models.Department
	setActive   map[string]bool
}

func (s *stubDepartmentStore) List(ctx context.Context) ([]models.Department, error) {
	return s.departments, s.listErr
}

func (s *stubDepartmentStore) ListActiveKeys(ctx context.Context) ([]string, error) {
	s.activeCalls++
	return s.activeKeys, s.listErr
}

func (s *stubDepartmentStore) Upsert(ctx context.Context, department *models.Department) error {
	s.upserted = append(s.upserted, *department)
	return nil
}

func (s *stubDepartmentStore) SetActive(ctx context.Context, key string, active bool) error {
	if _, ok := s.setActive[key]; !ok {
		return repository.ErrNotFound
	}
	s.setActive[key] = active
	return nil
}

// memoryCache mimics CacheService semantics with JSON round trips.
type memoryCache struct {
	values map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: map[string][]byte{}}
}

func (m *memoryCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, ok := m.values[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (m *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.values[key] = raw
	return nil
}

func (m *memoryCache) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

func TestDepartmentServiceListActiveKeysUsesCache(t *testing.T) {
	store := &stubDepartmentStore{activeKeys: []string{"library", "accounts"}}
	cache := newMemoryCache()
	svc := NewDepartmentService(store, cache, nil, nil, DepartmentServiceConfig{})

	keys, err := svc.ListActiveKeys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"library", "accounts"}, keys)

	keys, err = svc.ListActiveKeys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"library", "accounts"}, keys)
	assert.Equal(t, 1, store.activeCalls)
}

func TestDepartmentServiceFallsBackToDefaults(t *testing.T) {
	store := &stubDepartmentStore{}
	svc := NewDepartmentService(store, nil, nil, nil, DepartmentServiceConfig{
		DefaultKeys: []string{" Library", "accounts", "library", "bad key"},
	})

	keys, err := svc.ListActiveKeys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"library", "accounts"}, keys)
}

func TestDepartmentServiceStoreFailure(t *testing.T) {
	svc := NewDepartmentService(&stubDepartmentStore{listErr: errors.New("db down")}, nil, nil, nil, DepartmentServiceConfig{})

	_, err := svc.ListActiveKeys(context.Background())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPersistence.Code, appErrors.FromError(err).Code)
}

func TestDepartmentServiceUpsertInvalidatesCache(t *testing.T) {
	store := &stubDepartmentStore{activeKeys: []string{"library"}}
	cache := newMemoryCache()
	svc := NewDepartmentService(store, cache, nil, nil, DepartmentServiceConfig{})

	_, err := svc.ListActiveKeys(context.Background())
	require.NoError(t, err)
	require.Contains(t, cache.values, departmentsActiveCacheKey)

	dept, err := svc.Upsert(context.Background(), " Hostel ", dto.UpsertDepartmentRequest{Name: "Hostel", SortOrder: 2})
	require.NoError(t, err)
	assert.Equal(t, "hostel", dept.Key)
	assert.True(t, dept.Active)
	assert.NotContains(t, cache.values, departmentsActiveCacheKey)
	require.Len(t, store.upserted, 1)
}

func TestDepartmentServiceUpsertValidation(t *testing.T) {
	svc := NewDepartmentService(&stubDepartmentStore{}, nil, nil, nil, DepartmentServiceConfig{})

	_, err := svc.Upsert(context.Background(), "bad key!", dto.UpsertDepartmentRequest{Name: "Bad"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Upsert(context.Background(), "sports", dto.UpsertDepartmentRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestDepartmentServiceSetActive(t *testing.T) {
	store := &stubDepartmentStore{setActive: map[string]bool{"hostel": true}}
	svc := NewDepartmentService(store, nil, nil, nil, DepartmentServiceConfig{})

	require.NoError(t, svc.SetActive(context.Background(), "HOSTEL", false))
	assert.False(t, store.setActive["hostel"])

	err := svc.SetActive(context.Background(), "gym", true)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestDepartmentServiceListReportsCacheHit(t *testing.T) {
	store := &stubDepartmentStore{departments: []models.Department{{Key: "library", Name: "Library", Active: true}}}
	svc := NewDepartmentService(store, newMemoryCache(), nil, nil, DepartmentServiceConfig{})

	items, hit, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.False(t, hit)
	require.Len(t, items, 1)

	items, hit, err = svc.List(context.Background())
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "library", items[0].Key)
}
