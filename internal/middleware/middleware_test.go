package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/nodues-api/internal/models"
	appErrors "github.com/noah-isme/nodues-api/pkg/errors"
	"github.com/noah-isme/nodues-api/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubValidator struct {
	claims *models.JWTClaims
}

func (s stubValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return s.claims, nil
}

type recordingAudit struct {
	mu   sync.Mutex
	logs []*models.AuditLog
	err  error
}

func (r *recordingAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, log)
	return r.err
}

type recordingObserver struct {
	method, path string
	status       int
}

func (r *recordingObserver) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	r.method, r.path, r.status = method, path, status
}

func perform(router *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestJWTAndRequireRoles(t *testing.T) {
	claims := &models.JWTClaims{UserID: "fac-1", Role: models.RoleFaculty, Department: "library"}
	router := gin.New()
	router.GET("/staff", JWT(stubValidator{claims: claims}), RequireRoles(models.RoleFaculty, models.RoleAdmin), func(c *gin.Context) {
		got, ok := CurrentClaims(c)
		require.True(t, ok)
		assert.Equal(t, "fac-1", c.GetString(logger.ContextActorKey))
		c.String(http.StatusOK, got.Department)
	})
	router.GET("/admin", JWT(stubValidator{claims: claims}), RequireRoles(models.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	rec := perform(router, http.MethodGet, "/staff", "good")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "library", rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, perform(router, http.MethodGet, "/staff", "").Code)
	assert.Equal(t, http.StatusUnauthorized, perform(router, http.MethodGet, "/staff", "bad").Code)
	assert.Equal(t, http.StatusForbidden, perform(router, http.MethodGet, "/admin", "good").Code)
}

func TestOptionalJWTNeverBlocks(t *testing.T) {
	router := gin.New()
	router.GET("/open", OptionalJWT(stubValidator{claims: &models.JWTClaims{UserID: "u-1"}}), func(c *gin.Context) {
		_, ok := CurrentClaims(c)
		if ok {
			c.String(http.StatusOK, "auth")
			return
		}
		c.String(http.StatusOK, "anon")
	})

	assert.Equal(t, "auth", perform(router, http.MethodGet, "/open", "good").Body.String())
	assert.Equal(t, "anon", perform(router, http.MethodGet, "/open", "bad").Body.String())
	assert.Equal(t, "anon", perform(router, http.MethodGet, "/open", "").Body.String())
}

func TestRequireRolesWithoutClaims(t *testing.T) {
	router := gin.New()
	router.GET("/x", RequireRoles(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusUnauthorized, perform(router, http.MethodGet, "/x", "").Code)
}

func TestAuditRecordsSuccessfulRequests(t *testing.T) {
	recorder := &recordingAudit{}
	claims := &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
	router := gin.New()
	router.PUT("/departments/:key", JWT(stubValidator{claims: claims}),
		Audit(recorder, nil, models.AuditActionDepartmentUpsert, "department", "key"),
		func(c *gin.Context) {
			if c.Param("key") == "broken" {
				c.Status(http.StatusBadRequest)
				return
			}
			c.Status(http.StatusOK)
		})

	assert.Equal(t, http.StatusOK, perform(router, http.MethodPut, "/departments/library", "good").Code)
	assert.Equal(t, http.StatusBadRequest, perform(router, http.MethodPut, "/departments/broken", "good").Code)

	require.Len(t, recorder.logs, 1)
	log := recorder.logs[0]
	assert.Equal(t, models.AuditActionDepartmentUpsert, log.Action)
	require.NotNil(t, log.ResourceID)
	assert.Equal(t, "library", *log.ResourceID)
	require.NotNil(t, log.UserID)
	assert.Equal(t, "admin-1", *log.UserID)
}

func TestAuditFailureDoesNotChangeResponse(t *testing.T) {
	router := gin.New()
	router.POST("/x", Audit(&recordingAudit{err: errors.New("db down")}, nil, "X", "x", ""), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})
	assert.Equal(t, http.StatusCreated, perform(router, http.MethodPost, "/x", "").Code)
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	observer := &recordingObserver{}
	router := gin.New()
	router.Use(Metrics(observer))
	router.GET("/clearances/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	perform(router, http.MethodGet, "/clearances/abc", "")
	assert.Equal(t, "/clearances/:id", observer.path)
	assert.Equal(t, http.StatusNoContent, observer.status)

	perform(router, http.MethodGet, "/nowhere", "")
	assert.Equal(t, "unmatched", observer.path)
	assert.Equal(t, http.StatusNotFound, observer.status)
}

func TestResponseMetaTracksCacheHit(t *testing.T) {
	router := gin.New()
	router.Use(WithResponseMeta())
	router.GET("/x", func(c *gin.Context) {
		SetCacheHit(c, true)
		meta := ExtractMeta(c)
		c.JSON(http.StatusOK, meta)
	})
	rec := perform(router, http.MethodGet, "/x", "")
	assert.JSONEq(t, `{"cache_hit":true}`, rec.Body.String())
}
