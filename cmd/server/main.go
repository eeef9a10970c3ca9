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

	approvalapp "github.com/receiving/backend/internal/application/approval"
	catalogapp "github.com/receiving/backend/internal/application/catalog"
	receivingapp "github.com/receiving/backend/internal/application/receiving"
	"github.com/receiving/backend/internal/domain/shared"
	"github.com/receiving/backend/internal/infrastructure/cache"
	"github.com/receiving/backend/internal/infrastructure/config"
	"github.com/receiving/backend/internal/infrastructure/enrichment"
	"github.com/receiving/backend/internal/infrastructure/event"
	"github.com/receiving/backend/internal/infrastructure/logger"
	"github.com/receiving/backend/internal/infrastructure/persistence"
	"github.com/receiving/backend/internal/infrastructure/storage"
	"github.com/receiving/backend/internal/interfaces/http/handler"
	"github.com/receiving/backend/internal/interfaces/http/middleware"
	"github.com/receiving/backend/internal/interfaces/http/router"
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

	log.Info("Starting receiving backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Database with zap-backed GORM logging
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		_ = db.Close()
	}()

	if err := persistence.AutoMigrate(db.DB); err != nil {
		log.Fatal("Failed to migrate database schema", zap.Error(err))
	}

	// Run claim store: Redis when enabled, process-local otherwise
	var claims shared.RunClaimStore
	if cfg.Redis.Enabled {
		redisClaims, err := cache.NewRedisClaimStore(cache.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		claims = redisClaims
		log.Info("Using Redis run claim store", zap.String("addr", cfg.Redis.Addr()))
	} else {
		claims = cache.NewInMemoryClaimStore()
		log.Warn("Using in-memory run claim store; claims are not shared across instances")
	}
	defer func() {
		_ = claims.Close()
	}()

	// Export storage: S3 when configured, in-memory stub for development
	var exportStorage receivingapp.ExportStorage
	if cfg.Storage.Endpoint != "" || cfg.App.Env == "production" {
		s3Storage, err := storage.NewS3ObjectStorage(&cfg.Storage, storage.WithLogger(log))
		if err != nil {
			log.Fatal("Failed to initialize object storage", zap.Error(err))
		}
		exportStorage = s3Storage
	} else {
		exportStorage = storage.NewStubObjectStorage()
		log.Warn("Using in-memory export storage; download references will not survive restarts")
	}

	ensureCtx, ensureCancel := context.WithTimeout(context.Background(), 15*time.Second)
	if err := exportStorage.EnsureBucket(ensureCtx); err != nil {
		ensureCancel()
		log.Fatal("Failed to ensure export bucket", zap.Error(err))
	}
	ensureCancel()

	// Registry enrichment client
	registryClient, err := enrichment.NewRegistryClient(enrichment.Config{
		BaseURL:        cfg.Enrichment.BaseURL,
		APIKey:         cfg.Enrichment.APIKey,
		RequestTimeout: cfg.Enrichment.RequestTimeout,
		MaxRetries:     cfg.Enrichment.MaxRetries,
		RetryBackoff:   cfg.Enrichment.RetryBackoff,
		Concurrency:    cfg.Enrichment.Concurrency,
	}, log.Named("enrichment"))
	if err != nil {
		log.Fatal("Failed to initialize registry client", zap.Error(err))
	}

	// Repositories
	deliveryRepo := persistence.NewGormDeliveryRepository(db.DB)
	recordRepo := persistence.NewGormCanonicalRecordRepository(db.DB)
	catalogRepo := persistence.NewGormCatalogRepository(db.DB)
	approvalRepo := persistence.NewGormApprovalRepository(db.DB)

	// Event bus
	eventBus := event.NewInMemoryEventBus(log.Named("eventbus"), event.InMemoryEventBusOptions{
		BufferSize: cfg.Event.BufferSize,
		Workers:    cfg.Event.Workers,
	})

	// Application services
	ingestService := receivingapp.NewIngestService(deliveryRepo, recordRepo, log.Named("ingest"))
	ingestService.SetEventPublisher(eventBus)

	reconciliationService := receivingapp.NewReconciliationService(
		deliveryRepo,
		recordRepo,
		catalogRepo,
		claims,
		registryClient,
		exportStorage,
		receivingapp.ReconciliationConfig{
			ClaimTTL:    cfg.Claim.TTL,
			DownloadTTL: cfg.Storage.PresignTTL,
		},
		log.Named("reconciliation"),
	)
	reconciliationService.SetEventPublisher(eventBus)

	approvalService := approvalapp.NewApprovalService(approvalRepo, log.Named("approval"))
	approvalService.SetEventPublisher(eventBus)

	catalogService := catalogapp.NewCatalogService(catalogRepo, log.Named("catalog"))

	// Event handlers: completeness check and approval opening
	eventBus.Subscribe(receivingapp.NewDocumentSubmittedHandler(reconciliationService, log.Named("submitted-handler")))
	eventBus.Subscribe(approvalapp.NewDeliveryPublishedHandler(approvalRepo, log.Named("published-handler")))

	busCtx, busCancel := context.WithCancel(context.Background())
	defer busCancel()
	if err := eventBus.Start(busCtx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}

	// HTTP engine
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Fatal("Failed to set trusted proxies", zap.Error(err))
		}
	}
	engine.Use(
		middleware.RequestID(),
		logger.GinMiddleware(log),
		logger.Recovery(log),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
	)

	// Routes
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Register(handler.NewDocumentHandler(ingestService)).
		Register(handler.NewDeliveryHandler(ingestService, reconciliationService)).
		Register(handler.NewApprovalHandler(approvalService)).
		Register(handler.NewCatalogHandler(catalogService))
	r.Setup()

	handler.NewSystemHandler(db).RegisterRoutes(engine)

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

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
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	// Drain in-flight event handling before exit
	if err := eventBus.Stop(ctx); err != nil {
		log.Error("Event bus did not stop cleanly", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
