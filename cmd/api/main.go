package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/prodplan/prodplan_api/internal/cache"
	"github.com/prodplan/prodplan_api/internal/config"
	"github.com/prodplan/prodplan_api/internal/database"
	"github.com/prodplan/prodplan_api/internal/handler"
	"github.com/prodplan/prodplan_api/internal/middleware"
	"github.com/prodplan/prodplan_api/internal/models"
	"github.com/prodplan/prodplan_api/internal/monitor"
	"github.com/prodplan/prodplan_api/internal/repository"
	"github.com/prodplan/prodplan_api/internal/service"
	"github.com/prodplan/prodplan_api/internal/worker"
	"github.com/prodplan/prodplan_api/pkg/moysklad"
)

// main is the application entrypoint for the production planning API.
func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Setup logger
	setupLogger(cfg.Env)
	log.Info().Str("env", cfg.Env).Msg("starting prodplan api")

	// 3. Connect database
	db, err := database.Connect(&cfg.DB)
	if err != nil {
		log.Error().Err(err).Msg("database connection failed")
		fmt.Fprintf(os.Stderr, "database connection failed: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	// 3a. Run migrations
	if err := runMigrations(db.DB); err != nil {
		log.Error().Err(err).Msg("migration failed")
		fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
		os.Exit(1)
	}
	log.Info().Msg("migrations completed successfully")

	// 3b. Connect to Redis
	redisClient, err := cache.NewRedisClient(&cfg.Redis)
	if err != nil {
		log.Error().Err(err).Msg("redis connection failed")
		fmt.Fprintf(os.Stderr, "redis connection failed: %v\n", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected successfully")

	// 3c. Initialize reference cache
	refCache := cache.NewReferenceCache(redisClient)

	// 4. Initialize upstream ERP client
	erp := moysklad.NewClient(moysklad.Config{
		BaseURL:    cfg.Upstream.BaseURL,
		Token:      cfg.Upstream.Token,
		Timeout:    cfg.Upstream.HTTPTimeout,
		RetryCount: cfg.Upstream.RetryCount,
		RPS:        cfg.Upstream.RateLimit,
		Debug:      cfg.Env != "production",
		Observer:   monitor.ObserveERPRequest,
	})

	// 5. Initialize repositories
	productRepo := repository.NewProductRepository(db)
	imageRepo := repository.NewImageRepository(db)
	syncLogRepo := repository.NewSyncLogRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)
	executionRepo := repository.NewExecutionRepository(db)

	// 5a. Seed the settings singletons from the environment on first boot
	if err := seedSettings(settingsRepo, cfg); err != nil {
		log.Error().Err(err).Msg("settings seeding failed")
		fmt.Fprintf(os.Stderr, "settings seeding failed: %v\n", err)
		os.Exit(1)
	}

	// 6. Initialize services
	mon := monitor.NewMonitor(executionRepo)
	imageSvc := service.NewImageService(erp, productRepo, imageRepo, cfg.Sync.ImageSyncTTL)
	syncSvc := service.NewSyncService(erp, productRepo, syncLogRepo, settingsRepo, imageSvc, mon, cfg.Sync)

	// 6a. Start periodic probes
	probes := monitor.NewProbes(executionRepo, productRepo, syncLogRepo)
	if err := probes.Start(); err != nil {
		log.Error().Err(err).Msg("probe scheduling failed")
		fmt.Fprintf(os.Stderr, "probe scheduling failed: %v\n", err)
		os.Exit(1)
	}
	defer probes.Stop()

	// 7. Create context for graceful shutdown; manual and scheduled runs
	// both derive from it
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 8. Initialize handlers
	handlers := &Handlers{
		Health:    handler.NewHealthHandler(db, erp),
		Product:   handler.NewProductHandler(productRepo, imageRepo, settingsRepo, syncSvc, cfg.Calculator.ProductsPerPage),
		Sync:      handler.NewSyncHandler(ctx, syncSvc, syncLogRepo),
		Settings:  handler.NewSettingsHandler(settingsRepo),
		Reference: handler.NewReferenceHandler(erp, refCache),
	}

	// 9. Setup router
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware(os.Getenv("CORS_ALLOWED_HOSTS")))
	router.Use(middleware.LoggingMiddleware())
	setupRoutes(router, handlers)

	// 10. Start workers
	go worker.NewSyncWorker(syncSvc, settingsRepo, cfg.Sync.Interval).Start(ctx)
	go worker.NewSweepWorker(syncLogRepo, cfg.Sync.StallTimeout, cfg.Sync.SweepInterval).Start(ctx)

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

	// 14. Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited")
}

// Handlers groups all HTTP handlers used by the server.
type Handlers struct {
	Health    *handler.HealthHandler
	Product   *handler.ProductHandler
	Sync      *handler.SyncHandler
	Settings  *handler.SettingsHandler
	Reference *handler.ReferenceHandler
}

// setupRoutes registers all routes.
func setupRoutes(router *gin.Engine, handlers *Handlers) {
	router.GET("/v1/health", handlers.Health.GetHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	products := router.Group("/v1/products")
	{
		products.GET("", handlers.Product.GetProducts)
		products.GET("/summary", handlers.Product.GetSummary)
		products.POST("/recalculate", handlers.Product.Recalculate)
		products.GET("/:id", handlers.Product.GetProduct)
		products.POST("/:id/recalculate", handlers.Product.RecalculateOne)
		products.GET("/:id/images/:imageId", handlers.Product.GetProductImage)
	}

	sync := router.Group("/v1/sync")
	{
		sync.POST("", handlers.Sync.TriggerSync)
		sync.GET("/status", handlers.Sync.GetStatus)
		sync.GET("/logs", handlers.Sync.GetLogs)
	}

	settings := router.Group("/v1/settings")
	{
		settings.GET("/schedule", handlers.Settings.GetSchedule)
		settings.PUT("/schedule", handlers.Settings.UpdateSchedule)
		settings.GET("/general", handlers.Settings.GetGeneral)
		settings.PUT("/general", handlers.Settings.UpdateGeneral)
	}

	reference := router.Group("/v1/reference")
	{
		reference.GET("/warehouses", handlers.Reference.GetWarehouses)
		reference.GET("/product-groups", handlers.Reference.GetProductGroups)
	}
}

// seedSettings creates the settings singletons on first boot, taking the
// calculator tunables and the default warehouse from the environment.
// Existing rows are left untouched; later changes go through the API.
func seedSettings(repo *repository.SettingsRepository, cfg *config.Config) error {
	seed := &models.GeneralSettings{
		DefaultNewProductStock: cfg.Calculator.DefaultNewStock,
		ProductsPerPage:        cfg.Calculator.ProductsPerPage,
		LowStockThreshold:      cfg.Calculator.LowStock,
		LowSalesThreshold:      cfg.Calculator.LowSales,
		MediumSalesUpper:       cfg.Calculator.MedSalesHi,
		MediumStockUpper:       cfg.Calculator.MedStockHi,
		TargetStockDays:        cfg.Calculator.TargetDays,
	}
	if err := repo.EnsureGeneral(seed); err != nil {
		return err
	}

	sched, err := repo.GetSchedule()
	if err != nil {
		return err
	}
	if sched.WarehouseID == "" && cfg.Sync.DefaultWarehouseID != "" {
		sched.WarehouseID = cfg.Sync.DefaultWarehouseID
		sched.IntervalSeconds = int(cfg.Sync.Interval / time.Second)
		if err := repo.SaveSchedule(sched); err != nil {
			return err
		}
	}
	return nil
}

// setupLogger configures zerolog depending on the environment.
func setupLogger(env string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if env == "production" {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

// runMigrations applies database migrations from the migrations directory.
func runMigrations(db *sql.DB) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migrate driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://migrations", "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
