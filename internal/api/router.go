package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/clinicore/ehr-api/internal/api/handler"
	"github.com/clinicore/ehr-api/internal/api/middleware"
	"github.com/clinicore/ehr-api/internal/core/domain"
	"github.com/clinicore/ehr-api/internal/core/ports"
	"github.com/clinicore/ehr-api/internal/core/service"
	mongodb "github.com/clinicore/ehr-api/internal/infrastructure/db/mongo"
	redisdb "github.com/clinicore/ehr-api/internal/infrastructure/db/redis"
	"github.com/clinicore/ehr-api/internal/pkg/config"
)

// NewRouter builds the Echo instance with all routes registered. The
// dispatcher is injected because its worker lifecycle belongs to main, not to
// the router.
func NewRouter(db *mongo.Database, rdb *redis.Client, dispatcher ports.NotificationDispatcher, cfg *config.Config, log zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.Logger())
	e.Use(echoprometheus.NewMiddleware("ehr_identity"))

	// --- Dependencies ---
	users := mongodb.NewUserRepository(db)
	requests := mongodb.NewRegistrationRepository(db)

	var limiter ports.AttemptLimiter
	if rdb != nil {
		limiter = redisdb.NewAttemptLimiter(rdb, cfg.Auth.MaxAttempts, cfg.Auth.AttemptWindow)
	}

	issuer := service.NewTokenIssuer(cfg.Auth.SessionSecret, cfg.Auth.RefreshSecret, cfg.Auth.SessionTTL, cfg.Auth.RefreshTTL)
	authService := service.NewAuthService(users, issuer, limiter, log)
	registrationService := service.NewRegistrationService(requests, users, issuer, dispatcher, limiter, cfg.Auth.BcryptCost, log)

	authHandler := handler.NewAuthHandler(authService)
	registrationHandler := handler.NewRegistrationHandler(registrationService)

	authGate := middleware.Auth(issuer, users)
	adminOnly := middleware.RequireRole(log, domain.RoleAdmin)

	// --- Public auth routes ---
	v1 := e.Group("/v1")
	v1.POST("/auth/login", authHandler.Login)
	v1.POST("/auth/refresh", authHandler.Refresh)

	// --- Public registration workflow ---
	reg := v1.Group("/registration")
	reg.POST("/request", registrationHandler.Request)
	reg.POST("/verify", registrationHandler.Verify)
	reg.POST("/complete", registrationHandler.Complete)
	reg.GET("/status/:email", registrationHandler.Status)

	// --- Admin review queue (authentication + authorization gates) ---
	admin := reg.Group("/admin", authGate, adminOnly)
	admin.GET("/requests", registrationHandler.ListRequests)
	admin.POST("/approve/:id", registrationHandler.Approve)
	admin.POST("/reject/:id", registrationHandler.Reject)

	// --- Health probes and metrics (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	readinessHandler := handler.NewReadinessHandler(db, rdb)

	e.GET("/health", healthHandler.Liveness)
	e.GET("/health/ready", readinessHandler.Readiness)
	e.GET("/metrics", echoprometheus.NewHandler())

	return e
}
