package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/edutech/college-api/internal/handler"
	"github.com/edutech/college-api/internal/middleware"
	"github.com/edutech/college-api/internal/models"
	"github.com/edutech/college-api/internal/repository"
	"github.com/edutech/college-api/internal/service"
	"github.com/edutech/college-api/pkg/config"
	"github.com/edutech/college-api/pkg/logger"
	corsmiddleware "github.com/edutech/college-api/pkg/middleware/cors"
	reqidmiddleware "github.com/edutech/college-api/pkg/middleware/requestid"
)

// Handlers bundles the HTTP handlers the router mounts.
type Handlers struct {
	Auth     *handler.AuthHandler
	Courses  *handler.CourseHandler
	Students *handler.StudentHandler
	Faculty  *handler.FacultyHandler
	Events   *handler.EventHandler
	Contacts *handler.ContactHandler
	Uploads  *handler.UploadHandler
	Metrics  *handler.MetricsHandler
	Admin    *handler.AdminHandler
}

// Server owns the gin engine and the HTTP listener lifecycle.
type Server struct {
	cfg    *config.Config
	engine *gin.Engine
	logger *zap.Logger
	http   *http.Server
}

// New builds the router with the full middleware chain and route table.
func New(cfg *config.Config, logr *zap.Logger, auth *service.AuthService, metrics *service.MetricsService, users *repository.UserRepository, h Handlers) *Server {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(reqidmiddleware.Middleware())
	engine.Use(logger.GinMiddleware(logr))
	engine.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	engine.Use(middleware.Metrics(metrics))
	engine.Use(middleware.WithResponseMeta())

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	engine.GET("/metrics", h.Metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		engine.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registerRoutes(engine.Group(cfg.APIPrefix), auth, users, h)

	return &Server{cfg: cfg, engine: engine, logger: logr}
}

func registerRoutes(api *gin.RouterGroup, auth *service.AuthService, users *repository.UserRepository, h Handlers) {
	authJWT := middleware.JWT(auth)
	staffOnly := middleware.RequireRoles(models.RoleFaculty, models.RoleAdmin)
	adminOnly := middleware.RequireRoles(models.RoleAdmin)
	studentOnly := middleware.RequireRoles(models.RoleStudent)
	facultyOnly := middleware.RequireRoles(models.RoleFaculty)

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", h.Auth.Register)
		authGroup.POST("/login", h.Auth.Login)
		authGroup.POST("/refresh", h.Auth.Refresh)
		authGroup.POST("/logout", authJWT, h.Auth.Logout)
		authGroup.GET("/me", authJWT, h.Auth.Me)
		authGroup.PUT("/me", authJWT, h.Auth.UpdateMe)
	}

	courses := api.Group("/courses")
	{
		courses.GET("", h.Courses.List)
		courses.GET("/statistics", authJWT, adminOnly, h.Courses.Statistics)
		courses.GET("/mine", authJWT, h.Courses.MyCourses)
		courses.GET("/:id", h.Courses.Get)
		courses.POST("", authJWT, facultyOnly, h.Courses.Create)
		courses.PUT("/:id", authJWT, staffOnly, h.Courses.Update)
		courses.DELETE("/:id", authJWT, staffOnly, h.Courses.Delete)
		courses.PATCH("/:id/status", authJWT, staffOnly, h.Courses.ToggleActive)
		courses.POST("/:id/enroll", authJWT, studentOnly, h.Courses.Enroll)
		courses.POST("/:id/unenroll", authJWT, h.Courses.Unenroll)
		courses.GET("/:id/students", authJWT, staffOnly, h.Courses.Roster)
		courses.GET("/:id/students/export", authJWT, staffOnly, h.Courses.ExportRoster)
		courses.POST("/:id/resources", authJWT, staffOnly, h.Courses.AddResource)
		courses.DELETE("/:id/resources/:resourceId", authJWT, staffOnly, h.Courses.RemoveResource)
	}

	students := api.Group("/students", authJWT)
	{
		students.GET("", staffOnly, h.Students.List)
		students.GET("/me", studentOnly, h.Students.Me)
		students.GET("/:id", h.Students.Get)
		students.PUT("/:id", adminOnly, middleware.Audit(users, models.AuditActionStudentUpdate, "students"), h.Students.Update)
		students.GET("/:id/records", h.Students.AcademicRecords)
		students.POST("/:id/records", staffOnly, h.Students.AddAcademicRecord)
		students.GET("/:id/attendance", h.Students.Attendance)
		students.POST("/:id/attendance", staffOnly, h.Students.MarkAttendance)
		students.GET("/:id/courses", h.Students.Courses)
	}

	faculty := api.Group("/faculty")
	{
		faculty.GET("", h.Faculty.List)
		faculty.GET("/me", authJWT, facultyOnly, h.Faculty.Me)
		faculty.GET("/:id", h.Faculty.Get)
		faculty.PUT("/:id", authJWT, staffOnly, h.Faculty.Update)
		faculty.DELETE("/:id", authJWT, adminOnly, middleware.Audit(users, models.AuditActionFacultyDisable, "faculty_profiles"), h.Faculty.Deactivate)
	}

	events := api.Group("/events")
	{
		events.GET("", h.Events.List)
		events.GET("/mine", authJWT, h.Events.MyEvents)
		events.GET("/:id", h.Events.Get)
		events.POST("", authJWT, staffOnly, h.Events.Create)
		events.PUT("/:id", authJWT, staffOnly, h.Events.Update)
		events.DELETE("/:id", authJWT, adminOnly, middleware.Audit(users, models.AuditActionEventDelete, "events"), h.Events.Delete)
		events.POST("/:id/register", authJWT, h.Events.Register)
		events.DELETE("/:id/register", authJWT, h.Events.Unregister)
		events.GET("/:id/participants", authJWT, staffOnly, h.Events.Participants)
	}

	contact := api.Group("/contact")
	{
		contact.POST("", middleware.OptionalJWT(auth), h.Contacts.Submit)
		contact.GET("", authJWT, staffOnly, h.Contacts.List)
		contact.GET("/:id", authJWT, staffOnly, h.Contacts.Get)
		contact.PATCH("/:id/status", authJWT, staffOnly, h.Contacts.UpdateStatus)
		contact.POST("/:id/respond", authJWT, staffOnly, middleware.Audit(users, models.AuditActionContactRespond, "contacts"), h.Contacts.Respond)
	}

	uploads := api.Group("/uploads")
	{
		uploads.POST("", authJWT, staffOnly, h.Uploads.Upload)
		uploads.GET("/:token", h.Uploads.Download)
		uploads.POST("/:token/refresh", authJWT, h.Uploads.Refresh)
	}

	admin := api.Group("/admin", authJWT, adminOnly)
	{
		admin.GET("/metrics", h.Metrics.Snapshot)
		admin.GET("/users", h.Admin.Users)
		admin.GET("/audit", h.Admin.AuditLog)
	}
}

// Engine exposes the router, used by tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run starts the listener and blocks until shutdown.
func (s *Server) Run() error {
	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Sugar().Infow("server starting", "addr", s.http.Addr, "env", s.cfg.Env)
		serverErrors <- s.http.ListenAndServe()
	}()

	osSignals := make(chan os.Signal, 1)
	signal.Notify(osSignals, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-osSignals:
		s.logger.Sugar().Infow("shutdown signal received", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}
