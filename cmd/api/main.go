package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/schemagate/internal/cache"
	"github.com/GTDGit/schemagate/internal/config"
	"github.com/GTDGit/schemagate/internal/database"
	"github.com/GTDGit/schemagate/internal/handler"
	"github.com/GTDGit/schemagate/internal/middleware"
	"github.com/GTDGit/schemagate/internal/repository"
	"github.com/GTDGit/schemagate/internal/service"
	"github.com/GTDGit/schemagate/internal/sse"
	"github.com/GTDGit/schemagate/internal/worker"
	"github.com/GTDGit/schemagate/pkg/llm"
)

const lockWait = 5 * time.Second

// main is the application entrypoint for the schemagate API.
func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Setup logger
	setupLogger(cfg.Env)
	log.Info().Str("env", cfg.Env).Msg("starting schemagate")

	// Context for startup retries, workers and graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Connect database
	db, err := database.Connect(ctx, &cfg.DB)
	if err != nil {
		log.Error().Err(err).Msg("database connection failed")
		fmt.Fprintf(os.Stderr, "database connection failed: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	// 3a. Run migrations
	if err := database.Migrate(db.DB, "migrations"); err != nil {
		log.Error().Err(err).Msg("migration failed")
		fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
		os.Exit(1)
	}
	log.Info().Msg("migrations completed successfully")

	// 3b. Connect to Redis; the artifact cache and product lock are optional
	var (
		artifactCache service.ArtifactCacher
		locker        service.ProductLocker
		redisPinger   handler.Pinger
	)
	redisClient, err := cache.NewRedisClient(&cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable - running without artifact cache and product lock")
		redisErr := err
		redisPinger = handler.PingFunc(func(context.Context) error { return redisErr })
	} else {
		defer redisClient.Close()
		artifactCache = cache.NewArtifactCache(redisClient, 0)
		locker = cache.NewProductLocker(redisClient, cfg.LockTTL, lockWait)
		redisPinger = handler.PingFunc(redisClient.Ping)
		log.Info().Msg("redis connected successfully")
	}

	// 4. Initialize repositories
	tenantRepo := repository.NewTenantRepository(db)
	productRepo := repository.NewProductRecordRepository(db)

	// 5. Initialize LLM client
	llmClient := llm.NewClient(llm.Config{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
	})
	log.Info().Str("model", llmClient.Model()).Msg("llm client configured")

	// 6. Initialize services
	hub := sse.NewHub()
	notifier := sse.NewHubNotifier(hub)

	creditSvc := service.NewCreditService(tenantRepo, cfg.Ledger.DefaultCredits)
	onboardingSvc := service.NewOnboardingService(tenantRepo, cfg.Ledger.DefaultCredits)
	generator := service.NewLLMGenerator(llmClient)

	var delivery *service.DeliveryService
	if cfg.S3.Bucket != "" {
		publisher, err := service.NewS3Publisher(ctx, &cfg.S3)
		if err != nil {
			log.Warn().Err(err).Msg("S3 publisher initialization failed - artifact delivery will be disabled")
		} else {
			delivery = service.NewDeliveryService(publisher, productRepo)
			delivery.SetNotifier(notifier)
		}
	}

	var deliverer service.Deliverer
	if delivery != nil {
		deliverer = delivery
	}
	schemaSvc := service.NewSchemaService(tenantRepo, creditSvc, generator, productRepo, artifactCache, locker, deliverer)
	schemaSvc.SetNotifier(notifier)

	// 7. Initialize handlers
	handlers := &Handlers{
		Health:  handler.NewHealthHandler(db, redisPinger),
		Webhook: handler.NewWebhookHandler(schemaSvc),
		Product: handler.NewProductHandler(schemaSvc),
		Tenant:  handler.NewTenantHandler(creditSvc, onboardingSvc),
		SSE:     handler.NewSSEHandler(hub, cfg.JWTSecret),
	}

	// 8. Initialize middleware
	webhookMw := middleware.NewWebhookAuthMiddleware(cfg.WebhookSecret, middleware.NewInvalidAuthRateLimiter())
	jwtMw := middleware.NewJWTMiddleware(cfg.JWTSecret)

	// 9. Setup router
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware(cfg.CORSHosts))
	router.Use(middleware.LoggingMiddleware())
	setupRoutes(router, handlers, webhookMw, jwtMw)

	// 10. Start workers
	if delivery != nil {
		go worker.NewSyncWorker(
			productRepo, delivery,
			cfg.Worker.SyncInterval,
			cfg.Worker.SyncBatchSize,
			cfg.Worker.SyncConcurrency,
		).Start(ctx)
	}

	// 11. Start HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// 12. Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// 13. Cancel context to stop workers
	cancel()

	// 14. Shutdown HTTP server with timeout, then drain in-flight deliveries
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	schemaSvc.Wait()
	log.Info().Msg("Server exited")
}

// Handlers groups all HTTP handlers used by the server.
type Handlers struct {
	Health  *handler.HealthHandler
	Webhook *handler.WebhookHandler
	Product *handler.ProductHandler
	Tenant  *handler.TenantHandler
	SSE     *handler.SSEHandler
}

// setupRoutes registers all routes.
func setupRoutes(router *gin.Engine, handlers *Handlers, webhookMiddleware *middleware.WebhookAuthMiddleware, jwtMiddleware *middleware.JWTMiddleware) {
	// Storefront webhooks (HMAC signed)
	router.POST("/webhooks/products", webhookMiddleware.Handle(), handlers.Webhook.HandleProductUpdate)

	router.GET("/v1/health", handlers.Health.GetHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Admin SSE (JWT via query param, EventSource cannot set headers)
	router.GET("/v1/admin/events", handlers.SSE.Stream)

	// Admin routes
	admin := router.Group("/v1/admin")
	admin.Use(jwtMiddleware.Handle())
	{
		// Tenants
		admin.GET("/tenants/:shop/balance", handlers.Tenant.GetBalance)
		admin.POST("/tenants/:shop/credits", handlers.Tenant.AddCredits)
		admin.POST("/tenants/:shop/onboard", handlers.Tenant.Onboard)

		// Products
		admin.POST("/products/process", handlers.Product.ProcessProduct)
		admin.GET("/products/:productId", handlers.Product.GetProduct)
	}
}

func setupLogger(env string) {
	if env == "production" {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}
