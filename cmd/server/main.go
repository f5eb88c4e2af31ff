package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	connectapp "github.com/quotedeck/backend/internal/application/connect"
	reconcileapp "github.com/quotedeck/backend/internal/application/reconcile"
	sequenceapp "github.com/quotedeck/backend/internal/application/sequence"
	"github.com/quotedeck/backend/internal/domain/reconcile"
	"github.com/quotedeck/backend/internal/infrastructure/auth"
	"github.com/quotedeck/backend/internal/infrastructure/cache"
	"github.com/quotedeck/backend/internal/infrastructure/config"
	"github.com/quotedeck/backend/internal/infrastructure/logger"
	"github.com/quotedeck/backend/internal/infrastructure/persistence"
	"github.com/quotedeck/backend/internal/infrastructure/pipedrive"
	"github.com/quotedeck/backend/internal/infrastructure/telemetry"
	"github.com/quotedeck/backend/internal/infrastructure/xero"
	"github.com/quotedeck/backend/internal/interfaces/http/handler"
	"github.com/quotedeck/backend/internal/interfaces/http/middleware"
	"github.com/quotedeck/backend/internal/interfaces/http/router"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting QuoteDeck Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Initialize tracing
	tracerProvider, err := telemetry.NewTracerProvider(context.Background(), telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.App.Name,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	// Create GORM logger backed by zap
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel)

	// Initialize database connection with custom logger
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Initialize repositories
	credentialRepo := persistence.NewGormCredentialRepository(db.DB)
	tenantConfigRepo := persistence.NewGormTenantConfigRepository(db.DB)
	auditRepo := persistence.NewGormAuditRepository(db.DB)
	jobSequenceRepo := persistence.NewGormJobSequenceRepository(db.DB)

	// Initialize platform adapters
	crmAdapter, err := pipedrive.NewAdapter(&pipedrive.Config{
		APIBaseURL:     cfg.Pipedrive.APIBaseURL,
		TimeoutSeconds: cfg.Pipedrive.TimeoutSeconds,
		BurstLimit:     cfg.Pipedrive.BurstLimit,
		BurstWindow:    cfg.Pipedrive.BurstWindow,
		DailyLimit:     cfg.Pipedrive.DailyLimit,
	}, log)
	if err != nil {
		log.Fatal("Failed to create Pipedrive adapter", zap.Error(err))
	}

	accountingAdapter, err := xero.NewAdapter(&xero.Config{
		ClientID:       cfg.Xero.ClientID,
		ClientSecret:   cfg.Xero.ClientSecret,
		APIBaseURL:     cfg.Xero.APIBaseURL,
		TokenURL:       cfg.Xero.TokenURL,
		TimeoutSeconds: cfg.Xero.TimeoutSeconds,
		MinuteLimit:    cfg.Xero.MinuteLimit,
		DailyLimit:     cfg.Xero.DailyLimit,
	}, log)
	if err != nil {
		log.Fatal("Failed to create Xero adapter", zap.Error(err))
	}

	// Session guard: Redis when reachable, in-memory otherwise. A
	// single-process deployment loses nothing with the fallback.
	var sessionGuard reconcile.SessionGuard
	var tokenBlacklist auth.TokenBlacklist
	redisGuard, err := cache.NewRedisSessionGuard(cache.RedisConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Warn("Redis unavailable, using in-memory session guard", zap.Error(err))
		sessionGuard = cache.NewInMemorySessionGuard()
		tokenBlacklist = auth.NewInMemoryTokenBlacklist()
	} else {
		sessionGuard = redisGuard
		tokenBlacklist = auth.NewRedisTokenBlacklistWithClient(redisGuard.GetClient())
	}
	defer func() {
		if err := sessionGuard.Close(); err != nil {
			log.Error("Error closing session guard", zap.Error(err))
		}
	}()

	// Initialize application services
	tokenService := connectapp.NewTokenService(
		credentialRepo,
		accountingAdapter,
		accountingAdapter,
		log,
		connectapp.TokenServiceConfig{RefreshBuffer: cfg.Reconcile.RefreshBuffer},
	)
	validationService := reconcileapp.NewValidationService(
		tenantConfigRepo,
		tokenService,
		crmAdapter,
		accountingAdapter,
		log,
	)
	fixService := reconcileapp.NewFixService(
		crmAdapter,
		accountingAdapter,
		auditRepo,
		log,
		reconcileapp.FixServiceConfig{
			BatchSize:  cfg.Reconcile.BatchSize,
			BatchDelay: cfg.Reconcile.BatchDelay,
		},
	)
	sequenceService := sequenceapp.NewService(jobSequenceRepo, log)

	jwtService := auth.NewJWTService(cfg.JWT)

	// Initialize HTTP handlers
	connectHandler := handler.NewConnectHandler(tokenService, log)
	reconcileHandler := handler.NewReconcileHandler(
		validationService,
		fixService,
		tenantConfigRepo,
		tokenService,
		auditRepo,
		sessionGuard,
		log,
	)
	sequenceHandler := handler.NewSequenceHandler(sequenceService, log)

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Middleware stack: request ID, recovery, logging, tracing,
	// security headers, CORS, body limit, rate limit.
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: cfg.App.Name,
		Enabled:     cfg.Telemetry.Enabled,
	}))
	engine.Use(middleware.SpanErrorMarker())
	engine.Use(middleware.Secure())

	corsConfig := middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	engine.Use(middleware.CORSWithConfig(corsConfig))

	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	if cfg.HTTP.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		engine.Use(middleware.RateLimit(rateLimiter))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	// Health check endpoint (outside API versioning)
	engine.GET("/health", healthHandler(db))

	// Setup API routes
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))

	jwtConfig := middleware.JWTMiddlewareConfig{
		JWTService:     jwtService,
		TokenBlacklist: tokenBlacklist,
		SkipPaths: []string{
			"/api/v1/ping",
		},
		Logger: log,
	}
	r.Use(middleware.JWTAuthMiddlewareWithConfig(jwtConfig))

	// Tenant context is optional at the middleware level: the connect
	// and sequence endpoints are tenant-free, reconcile handlers
	// resolve and require it themselves.
	tenantConfig := middleware.DefaultTenantConfig()
	tenantConfig.Required = false
	tenantConfig.Logger = log
	r.Use(middleware.TenantMiddlewareWithConfig(tenantConfig))

	// Connection lifecycle for the accounting platform
	connectRoutes := router.NewDomainGroup("connect", "/connect")
	connectRoutes.POST("/xero", connectHandler.Connect)
	connectRoutes.GET("/xero", connectHandler.Status)
	connectRoutes.DELETE("/xero", connectHandler.Disconnect)

	// Reconciliation: streaming validation, fix workflow, session audit
	reconcileRoutes := router.NewDomainGroup("reconcile", "/reconcile")
	reconcileRoutes.GET("/validate/stream", reconcileHandler.StreamValidation)
	reconcileRoutes.POST("/fix/stream", reconcileHandler.StreamFix)
	reconcileRoutes.GET("/sessions", reconcileHandler.ListSessions)
	reconcileRoutes.DELETE("/sessions", reconcileHandler.RollbackSession)
	reconcileRoutes.GET("/sessions/:id", reconcileHandler.GetSession)

	// Job number sequences
	sequenceRoutes := router.NewDomainGroup("sequences", "/sequences")
	sequenceRoutes.POST("", sequenceHandler.Record)
	sequenceRoutes.POST("/next", sequenceHandler.Next)

	r.Register(connectRoutes).
		Register(reconcileRoutes).
		Register(sequenceRoutes)

	r.Setup()

	// Simple ping at root API level for basic liveness checks
	engine.GET("/api/v1/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// healthHandler returns a handler for health check endpoints
func healthHandler(db *persistence.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqLog := logger.GetGinLogger(c)
		if err := db.Ping(); err != nil {
			reqLog.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"time":     time.Now().Format(time.RFC3339),
				"database": "error",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": "ok",
		})
	}
}
