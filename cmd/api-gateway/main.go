package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/mail"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	_ "github.com/noah-isme/nodues-api/api/swagger"
	"github.com/noah-isme/nodues-api/internal/handler"
	"github.com/noah-isme/nodues-api/internal/models"
	"github.com/noah-isme/nodues-api/internal/repository"
	"github.com/noah-isme/nodues-api/internal/service"
	"github.com/noah-isme/nodues-api/pkg/cache"
	"github.com/noah-isme/nodues-api/pkg/config"
	"github.com/noah-isme/nodues-api/pkg/database"
	"github.com/noah-isme/nodues-api/pkg/email"
	"github.com/noah-isme/nodues-api/pkg/logger"
	"github.com/noah-isme/nodues-api/pkg/storage"
)

// @title No-Dues Clearance API
// @version 1.0.0
// @description Student no-dues clearance workflow: requests, department decisions and certificates.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap(ctx, cfg, logr)
	if err != nil {
		logr.Fatal("bootstrap failed", zap.Error(err))
	}
	defer app.close()

	app.notifications.Start(ctx)
	defer app.notifications.Stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           newRouter(cfg, logr, app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

type application struct {
	db            *sqlx.DB
	mongoClient   *mongo.Client
	redis         *redis.Client
	metrics       *service.MetricsService
	auth          *service.AuthService
	clearances    *service.ClearanceService
	departments   *service.DepartmentService
	certificates  *service.CertificateService
	exports       *service.ExportService
	notifications *service.NotificationService
	policy        *service.DepartmentPolicy
	audit         *repository.AuditRepository
	readiness     map[string]handler.ReadinessCheck
}

func bootstrap(ctx context.Context, cfg *config.Config, logr *zap.Logger) (*application, error) {
	policy, err := service.NewDepartmentPolicy(cfg.Clearance.WritePolicy, logr)
	if err != nil {
		return nil, err
	}
	blocking, err := models.ParseClearanceStatuses(cfg.Clearance.BlockingStatuses)
	if err != nil {
		return nil, fmt.Errorf("CLEARANCE_BLOCKING_STATUSES: %w", err)
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	app := &application{db: db, policy: policy, readiness: map[string]handler.ReadinessCheck{
		"postgres": db.PingContext,
	}}

	var clearanceStore service.ClearanceStore
	switch cfg.StoreDriver {
	case config.StoreDriverMongo:
		client, mdb, err := database.NewMongo(ctx, cfg.Mongo)
		if err != nil {
			app.close()
			return nil, err
		}
		app.mongoClient = client
		repo := repository.NewMongoClearanceRepository(mdb)
		if err := repo.EnsureIndexes(ctx); err != nil {
			app.close()
			return nil, fmt.Errorf("ensure mongo indexes: %w", err)
		}
		clearanceStore = repo
		app.readiness["mongo"] = func(ctx context.Context) error { return client.Ping(ctx, nil) }
	case config.StoreDriverPostgres, "":
		clearanceStore = repository.NewClearanceRepository(db)
	default:
		app.close()
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		app.close()
		return nil, err
	}
	app.redis = redisClient
	if redisClient != nil {
		app.readiness["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	validate := validator.New()
	app.metrics = service.NewMetricsService()
	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, app.metrics, cfg.Departments.CacheTTL, logr, redisClient != nil)

	users := repository.NewUserRepository(db)
	students := repository.NewStudentRepository(db)
	app.audit = repository.NewAuditRepository(db)

	app.auth = service.NewAuthService(users, app.audit, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})

	app.departments = service.NewDepartmentService(repository.NewDepartmentRepository(db), cacheSvc, validate, logr, service.DepartmentServiceConfig{
		DefaultKeys: cfg.Departments.DefaultKeys,
		CacheTTL:    cfg.Departments.CacheTTL,
	})

	app.notifications = service.NewNotificationService(students, newEmailSender(cfg, logr), logr, service.NotificationConfig{
		Enabled:    cfg.Notifications.Enabled,
		Workers:    cfg.Notifications.Workers,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: 2 * time.Second,
		AppName:    cfg.Email.FromName,
	})

	app.clearances = service.NewClearanceService(clearanceStore, students, app.departments, app.audit, validate, logr,
		service.ClearanceServiceConfig{BlockingStatuses: blocking, StatusRetries: cfg.Clearance.StatusRetries},
		service.WithClearanceNotifier(app.notifications),
		service.WithClearanceMetrics(app.metrics),
	)

	files, err := storage.NewLocalStorage(cfg.Certificates.StorageDir)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("init certificate storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Certificates.SignedURLSecret, cfg.Certificates.SignedURLTTL)
	app.certificates = service.NewCertificateService(repository.NewCertificateRepository(db), app.clearances, students, files, signer,
		app.audit, app.metrics, logr, service.CertificateConfig{
			APIPrefix:  cfg.APIPrefix,
			IssuerName: cfg.Certificates.IssuerName,
		}, nil)
	app.exports = service.NewExportService(app.clearances, service.ExportConfig{}, logr, nil, nil)

	logr.Info("clearance workflow ready",
		zap.String("store", cfg.StoreDriver),
		zap.Strings("blocking_statuses", cfg.Clearance.BlockingStatuses),
		zap.String("write_policy", policy.Expression()),
		zap.Bool("cache", redisClient != nil))
	return app, nil
}

func (a *application) close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.mongoClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.mongoClient.Disconnect(ctx)
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

func newEmailSender(cfg *config.Config, logr *zap.Logger) email.Sender {
	if cfg.Email.Provider == config.EmailProviderSendgrid {
		if cfg.Email.SendgridAPIKey == "" {
			logr.Warn("sendgrid selected without api key, falling back to console sender")
		} else {
			from := mail.Address{Name: cfg.Email.FromName, Address: cfg.Email.FromAddress}
			return email.NewSendgridSender(cfg.Email.SendgridAPIKey, from, cfg.Email.FromName)
		}
	}
	return email.NewConsoleSender(logr)
}
