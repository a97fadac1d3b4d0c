package main

import (
	"context"
	"log"
	"time"

	"github.com/go-playground/validator/v10"

	_ "github.com/edutech/college-api/api/swagger"
	"github.com/edutech/college-api/internal/handler"
	"github.com/edutech/college-api/internal/repository"
	"github.com/edutech/college-api/internal/server"
	"github.com/edutech/college-api/internal/service"
	"github.com/edutech/college-api/pkg/cache"
	"github.com/edutech/college-api/pkg/config"
	"github.com/edutech/college-api/pkg/database"
	"github.com/edutech/college-api/pkg/jobs"
	"github.com/edutech/college-api/pkg/logger"
	"github.com/edutech/college-api/pkg/mailer"
	"github.com/edutech/college-api/pkg/storage"
)

// @title College API
// @version 1.0.0
// @description Course catalog, enrollment and campus services backend
// @BasePath /api
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	facultyRepo := repository.NewFacultyRepository(db)
	eventRepo := repository.NewEventRepository(db)
	contactRepo := repository.NewContactRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	authSvc := service.NewAuthService(userRepo, studentRepo, facultyRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
		SingleSession:      cfg.JWT.SingleSession,
	})
	courseSvc := service.NewCourseService(courseRepo, userRepo, cacheRepo, validate, logr, service.CourseCacheConfig{
		Enabled:  cfg.Cache.Enabled && redisClient != nil,
		TTL:      cfg.Cache.TTL,
		StatsTTL: cfg.Cache.StatsTTL,
	})
	exportSvc := service.NewExportService(courseRepo, logr)
	studentSvc := service.NewStudentService(studentRepo, courseRepo, validate, logr)
	facultySvc := service.NewFacultyService(facultyRepo, courseRepo, validate, logr)
	eventSvc := service.NewEventService(eventRepo, validate, logr)
	metricsSvc := service.NewMetricsService()

	mail := mailer.New(cfg.SMTP, logr)
	contactSvc := service.NewContactService(contactRepo, mail, validate, logr, jobs.QueueConfig{
		Workers:    cfg.Contact.MailWorkers,
		MaxRetries: cfg.Contact.MailMaxRetries,
		RetryDelay: cfg.Contact.MailRetryDelay,
	})

	store, err := storage.NewLocalStorage(cfg.Uploads.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare upload storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Uploads.SignedURLSecret, cfg.Uploads.SignedURLTTL)
	uploadSvc := service.NewUploadService(store, signer, cfg.Uploads.MaxFileSizeBytes, logr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	contactSvc.StartQueue(ctx)
	defer contactSvc.StopQueue()

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				eventSvc.RefreshStatuses(ctx)
				if n, err := userRepo.DeleteExpiredRefreshTokens(ctx); err == nil && n > 0 {
					logr.Sugar().Infow("expired sessions removed", "count", n)
				}
			}
		}
	}()
	go uploadSvc.CleanupLoop(ctx, time.Hour, 30*24*time.Hour)

	handlers := server.Handlers{
		Auth:     handler.NewAuthHandler(authSvc),
		Courses:  handler.NewCourseHandler(courseSvc, exportSvc, metricsSvc),
		Students: handler.NewStudentHandler(studentSvc),
		Faculty:  handler.NewFacultyHandler(facultySvc),
		Events:   handler.NewEventHandler(eventSvc, metricsSvc),
		Contacts: handler.NewContactHandler(contactSvc),
		Uploads:  handler.NewUploadHandler(uploadSvc),
		Metrics:  handler.NewMetricsHandler(metricsSvc),
		Admin:    handler.NewAdminHandler(userRepo),
	}

	srv := server.New(cfg, logr, authSvc, metricsSvc, userRepo, handlers)
	if err := srv.Run(); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
