package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/nodues-api/internal/handler"
	"github.com/noah-isme/nodues-api/internal/middleware"
	"github.com/noah-isme/nodues-api/internal/models"
	"github.com/noah-isme/nodues-api/pkg/config"
	"github.com/noah-isme/nodues-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/nodues-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/nodues-api/pkg/middleware/requestid"
)

func newRouter(cfg *config.Config, logr *zap.Logger, app *application) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(app.metrics))
	r.Use(middleware.WithResponseMeta())

	ops := handler.NewMetricsHandler(app.metrics, app.readiness, logr)
	r.GET("/health", ops.Health)
	r.GET("/ready", ops.Ready)
	r.GET("/metrics", ops.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authHandler := handler.NewAuthHandler(app.auth)
	clearanceHandler := handler.NewClearanceHandler(app.clearances, app.policy, app.exports)
	certificateHandler := handler.NewCertificateHandler(app.certificates)
	departmentHandler := handler.NewDepartmentHandler(app.departments)

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)
	api.GET("/certificates/download/:token", certificateHandler.Download)

	secured := api.Group("")
	secured.Use(middleware.JWT(app.auth))
	secured.GET("/auth/me", authHandler.Me)

	staff := []models.UserRole{models.RoleSuperAdmin, models.RoleAdmin, models.RoleFaculty}
	admins := []models.UserRole{models.RoleSuperAdmin, models.RoleAdmin}

	clearances := secured.Group("/clearances")
	clearances.POST("", middleware.RequireRoles(models.RoleStudent), clearanceHandler.Create)
	clearances.GET("/me", middleware.RequireRoles(models.RoleStudent), clearanceHandler.Mine)
	clearances.GET("", middleware.RequireRoles(staff...), clearanceHandler.List)
	clearances.GET("/export", middleware.RequireRoles(admins...), clearanceHandler.Export)
	clearances.GET("/:id", clearanceHandler.Get)
	clearances.PATCH("/:id/departments/:key", middleware.RequireRoles(staff...), clearanceHandler.Decide)
	clearances.POST("/:id/certificate",
		middleware.RequireRoles(models.RoleStudent, models.RoleAdmin, models.RoleSuperAdmin),
		certificateHandler.Issue)

	departments := secured.Group("/departments")
	departments.GET("", departmentHandler.List)
	departments.PUT("/:key", middleware.RequireRoles(admins...),
		middleware.Audit(app.audit, logr, models.AuditActionDepartmentUpsert, "department", "key"),
		departmentHandler.Upsert)
	departments.PATCH("/:key/active", middleware.RequireRoles(admins...),
		middleware.Audit(app.audit, logr, models.AuditActionDepartmentUpsert, "department", "key"),
		departmentHandler.SetActive)

	return r
}
