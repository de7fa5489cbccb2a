package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	stdsync "sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/headwalluk/headlog-sub000/internal/auth"
	"github.com/headwalluk/headlog-sub000/internal/cache"
	"github.com/headwalluk/headlog-sub000/internal/cluster"
	"github.com/headwalluk/headlog-sub000/internal/config"
	"github.com/headwalluk/headlog-sub000/internal/db"
	"github.com/headwalluk/headlog-sub000/internal/handlers"
	"github.com/headwalluk/headlog-sub000/internal/housekeeping"
	"github.com/headwalluk/headlog-sub000/internal/ingest"
	"github.com/headwalluk/headlog-sub000/internal/logger"
	"github.com/headwalluk/headlog-sub000/internal/middleware"
	"github.com/headwalluk/headlog-sub000/internal/sync"
)

func main() {
	cfg := config.MustLoad()
	logger.Initialize(cfg.LogLevel, cfg.LogPretty)

	guard := cluster.New(cfg.NodeAppInstance)

	logger.Log.Info().Str("node_app_instance", cfg.NodeAppInstance).Bool("worker_zero", guard.IsWorkerZero()).Msg("starting headlog server")

	database, err := db.NewDatabase(db.Config{
		Host:         cfg.DBHost,
		Port:         cfg.DBPort,
		User:         cfg.DBUser,
		Password:     cfg.DBPassword,
		DBName:       cfg.DBName,
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxIdleConns,
	})
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	if !cfg.AutoRunMigrationsDisabled && guard.IsWorkerZero() {
		logger.Log.Info().Msg("running database migrations")
		if err := database.Migrate(); err != nil {
			logger.Log.Fatal().Err(err).Msg("failed to run migrations")
		}
	}

	redisCache, err := cache.New(cache.Config{
		Host:     cfg.CacheHost,
		Port:     cfg.CachePort,
		Password: cfg.CachePassword,
		DB:       cfg.CacheDB,
		Enabled:  cfg.CacheEnabled,
	})
	if err != nil {
		logger.Log.Warn().Err(err).Msg("cache unavailable, continuing without it")
		redisCache, _ = cache.New(cache.Config{Enabled: false})
	}
	defer redisCache.Close()

	hostCache := db.NewHostCache(database, redisCache)
	codeCache := db.NewHTTPCodeCache(database, redisCache)
	websiteCache := db.NewWebsiteCache(database)

	if err := hostCache.Warm(context.Background()); err != nil {
		logger.Log.Fatal().Err(err).Msg("failed to warm host cache")
	}
	if err := codeCache.Warm(context.Background()); err != nil {
		logger.Log.Fatal().Err(err).Msg("failed to warm http code cache")
	}

	authenticator := auth.NewAuthenticator(database)
	ingestService := ingest.NewService(database, websiteCache, hostCache, codeCache)

	// syncCancel and syncWG let the shutdown handler below stop the sync
	// worker deterministically: cancel its context to abort any in-flight
	// POST, then wait (bounded) for its goroutine to actually return
	// before main exits, instead of racing process exit against it.
	syncCancel := func() {}
	var syncWG stdsync.WaitGroup

	if cfg.UpstreamEnabled {
		syncWorker := sync.NewWorker(database, guard, sync.Config{
			Enabled:         cfg.UpstreamEnabled,
			UpstreamURL:     cfg.UpstreamServer,
			UpstreamAPIKey:  cfg.UpstreamAPIKey,
			TargetBatchSize: cfg.UpstreamBatchSize,
			MinBatchSize:    cfg.UpstreamBatchSizeMin,
			RecoveryStep:    cfg.UpstreamBatchSizeRecovery,
			Interval:        cfg.UpstreamBatchInterval,
			Compress:        cfg.UpstreamCompression,
			SourceInstance:  cfg.SourceInstance,
			RequestTimeout:  30 * time.Second,
			RecoveryHorizon: cfg.UpstreamRecoveryHorizon,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := syncWorker.ReconcileOnStartup(ctx); err != nil {
			logger.Log.Error().Err(err).Msg("startup batch reconciliation failed")
		}
		cancel()

		var syncCtx context.Context
		syncCtx, syncCancel = context.WithCancel(context.Background())
		syncWG.Add(1)
		go func() {
			defer syncWG.Done()
			syncWorker.Start(syncCtx)
		}()
	}

	housekeepingScheduler := housekeeping.NewScheduler(database, guard, housekeeping.Config{
		LogRetentionDays:    cfg.LogRetentionDays,
		InactiveWebsiteDays: cfg.InactiveWebsiteDays,
		UpstreamEnabled:     cfg.UpstreamEnabled,
	})
	if err := housekeepingScheduler.Start(context.Background()); err != nil {
		logger.Log.Fatal().Err(err).Msg("failed to start housekeeping scheduler")
	}
	defer housekeepingScheduler.Stop()

	router := buildRouter(cfg, authenticator, ingestService, database)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		logger.Log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Log.Info().Str("signal", sig.String()).Msg("shutdown signal received")

	// Cancel the sync worker's context immediately so any in-flight
	// upstream POST aborts right away instead of racing process exit.
	syncCancel()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Warn().Err(err).Msg("http server forced to shutdown")
	} else {
		logger.Log.Info().Msg("http server stopped gracefully")
	}

	syncStopped := make(chan struct{})
	go func() {
		syncWG.Wait()
		close(syncStopped)
	}()

	select {
	case <-syncStopped:
		logger.Log.Info().Msg("upstream sync worker stopped")
	case <-time.After(cfg.ShutdownTimeout):
		logger.Log.Warn().Msg("upstream sync worker did not stop within the shutdown timeout")
	}
}

func buildRouter(cfg *config.Config, authenticator *auth.Authenticator, ingestService *ingest.Service, database *db.Database) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(gin.Recovery())
	router.Use(middleware.StructuredLogger())
	router.Use(middleware.AllowedHTTPMethods())
	router.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	router.Use(middleware.SecurityHeaders())

	if cfg.RateLimitEnabled {
		limiter := middleware.NewRateLimiter(cfg.RateLimitMax/cfg.RateLimitWindow.Seconds(), int(cfg.RateLimitMax), cfg.RateLimitAllowlist, cfg.RateLimitCache)
		router.Use(limiter.Middleware())
	}

	// GzipRequest must run before RequestSizeLimiter: the 10 MB body
	// limit applies to the decompressed payload, and
	// RequestSizeLimiter's http.MaxBytesReader wrap needs to sit around
	// the inflated stream, not the compressed wire bytes, to enforce it.
	router.Use(middleware.GzipRequest())
	router.Use(middleware.RequestSizeLimiter(middleware.MaxIngestBodySize))
	router.Use(middleware.GzipResponse([]string{"/health"}))

	router.GET("/health", handlers.Health)

	logsHandler := handlers.NewLogsHandler(ingestService)
	websitesHandler := handlers.NewWebsitesHandler(database)

	api := router.Group("/api")
	api.Use(authenticator.RequireBearer())
	{
		api.POST("/logs", logsHandler.Ingest)
		api.POST("/logs/batch", logsHandler.IngestUpstreamBatch)
		api.GET("/websites", websitesHandler.List)
		api.GET("/websites/:domain", websitesHandler.Get)
		api.PUT("/websites/:domain", websitesHandler.Update)
		api.DELETE("/websites/:domain", websitesHandler.Delete)
	}

	return router
}
