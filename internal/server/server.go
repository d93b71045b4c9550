package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/screenlens/demo-gateway/internal/config"
	"github.com/screenlens/demo-gateway/internal/handler"
	"github.com/screenlens/demo-gateway/internal/middleware"
	"github.com/screenlens/demo-gateway/internal/repository"
	"github.com/screenlens/demo-gateway/internal/service"
	"github.com/screenlens/demo-gateway/internal/storage"
	"github.com/screenlens/demo-gateway/internal/upstream"
)

type Server struct {
	router     *gin.Engine
	config     *config.Config
	postgres   *storage.Postgres
	redis      *storage.RedisClient
	upstream   *upstream.Client
	authSvc    *service.AuthService
	httpServer *http.Server

	completion *handler.CompletionHandler
	identities *handler.IdentityHandler
	analytics  *handler.AnalyticsHandler
	system     *handler.SystemHandler
	auth       *handler.AuthHandler
}

// New wires the full gateway. postgres and redis may be nil: without the
// store the metered endpoint fails closed with CONFIG_ERROR, and without
// redis the identity cache and velocity limiter are simply skipped.
func New(cfg *config.Config, postgres *storage.Postgres, redis *storage.RedisClient) *Server {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	upstreamClient := upstream.New(cfg.Upstream.URL, cfg.Upstream.APIKey, cfg.Upstream.Timeout)

	s := &Server{
		router:   router,
		config:   cfg,
		postgres: postgres,
		redis:    redis,
		upstream: upstreamClient,
		system:   handler.NewSystemHandler(upstreamClient),
	}

	var quotaSvc *service.QuotaService
	if postgres != nil {
		identityRepo := repository.NewIdentityRepository(postgres)
		usageRepo := repository.NewUsageRepository(postgres)
		roleRepo := repository.NewRoleRepository(postgres)
		requestLogRepo := repository.NewRequestLogRepository(postgres)
		adminUserRepo := repository.NewAdminUserRepository(postgres)

		quotaSvc = service.NewQuotaService(
			identityRepo,
			usageRepo,
			roleRepo,
			redis,
			service.Policy{
				DailyLimit:    cfg.Quota.DailyLimit,
				VelocityLimit: cfg.Quota.VelocityLimit,
			},
			cfg.Quota.VelocityAlgorithm,
			cfg.Quota.VelocityWindow,
		)

		identitySvc := service.NewIdentityService(identityRepo, roleRepo, usageRepo, quotaSvc)
		analyticsSvc := service.NewAnalyticsService(requestLogRepo)
		s.authSvc = service.NewAuthService(adminUserRepo, cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry)

		s.identities = handler.NewIdentityHandler(identitySvc)
		s.analytics = handler.NewAnalyticsHandler(analyticsSvc)
		s.auth = handler.NewAuthHandler(s.authSvc)

		middleware.InitRequestLogger(requestLogRepo, 1000)
	}

	s.completion = handler.NewCompletionHandler(quotaSvc, upstreamClient)

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recovery())
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Logger())
	s.router.Use(middleware.CORS())
	s.router.Use(middleware.RequestLogger())
}

func (s *Server) setupRoutes() {
	// Anything that is neither the metered POST nor a preflight gets a 405.
	s.router.HandleMethodNotAllowed = true
	s.router.NoMethod(methodNotAllowed)
	s.router.NoRoute(methodNotAllowed)

	s.router.POST("/", s.completion.Complete)
	s.router.OPTIONS("/", s.completion.Preflight)

	s.router.GET("/health", s.healthCheck)

	if s.postgres == nil {
		return
	}

	s.router.POST("/admin/auth/login", s.auth.Login)

	admin := s.router.Group("/admin")
	admin.Use(middleware.RequireAuth(s.authSvc))
	{
		admin.GET("/identities", s.identities.List)
		admin.GET("/identities/:id", s.identities.Get)
		admin.GET("/identities/:id/usage", s.identities.Usage)
		admin.GET("/identities/:id/rate", s.analytics.RequestRate)
		admin.PATCH("/identities/:id/role", s.identities.SetRole)
		admin.GET("/analytics/summary", s.analytics.Summary)
		admin.GET("/breaker", s.system.BreakerStatus)
		admin.POST("/breaker/reset", s.system.ResetBreaker)
	}
}

func methodNotAllowed(c *gin.Context) {
	c.JSON(http.StatusMethodNotAllowed, gin.H{
		"error": "Method not allowed",
	})
}

func (s *Server) healthCheck(c *gin.Context) {
	dbHealthy := s.postgres != nil
	if dbHealthy {
		if err := s.postgres.Ping(c.Request.Context()); err != nil {
			dbHealthy = false
			log.Printf("Database health check failed: %v", err)
		}
	}

	redisHealthy := true
	if s.redis != nil {
		if err := s.redis.Ping(c.Request.Context()); err != nil {
			redisHealthy = false
			log.Printf("Redis health check failed: %v", err)
		}
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !dbHealthy || !redisHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"status":    status,
		"service":   "demo-gateway",
		"timestamp": time.Now().Unix(),
		"checks": gin.H{
			"database": dbHealthy,
			"redis":    redisHealthy,
		},
	})
}

func (s *Server) Run(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.config.Upstream.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Printf("Starting demo gateway on %s", addr)
	log.Printf("Environment: %s", s.config.Server.Environment)

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

// Seed ensures the built-in roles exist and bootstraps the first admin user
// when configured.
func (s *Server) Seed(ctx context.Context) error {
	if s.postgres == nil {
		return nil
	}

	roleRepo := repository.NewRoleRepository(s.postgres)
	if err := roleRepo.Seed(ctx, s.config.Quota.DailyLimit, s.config.Quota.VelocityLimit); err != nil {
		return err
	}

	if s.config.Auth.SeedEmail != "" && s.config.Auth.SeedPassword != "" {
		err := s.authSvc.Register(ctx, s.config.Auth.SeedEmail, s.config.Auth.SeedPassword, "bootstrap")
		if err != nil && err.Error() != "user with this email already exists" {
			return err
		}
	}

	return nil
}
