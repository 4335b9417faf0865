package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/timetable-engine/api/swagger"
	"github.com/noah-isme/timetable-engine/internal/handler"
	"github.com/noah-isme/timetable-engine/internal/middleware"
	"github.com/noah-isme/timetable-engine/internal/repository"
	"github.com/noah-isme/timetable-engine/internal/service"
	"github.com/noah-isme/timetable-engine/pkg/cache"
	"github.com/noah-isme/timetable-engine/pkg/config"
	"github.com/noah-isme/timetable-engine/pkg/database"
	"github.com/noah-isme/timetable-engine/pkg/jobs"
	"github.com/noah-isme/timetable-engine/pkg/logger"
	corsmiddleware "github.com/noah-isme/timetable-engine/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/timetable-engine/pkg/middleware/requestid"
	"github.com/noah-isme/timetable-engine/pkg/storage"
)

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
		logr.Sugar().Fatalw("database connection failed", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	var workloadStore, historyStore *cache.Store
	if redisClient != nil {
		workloadStore = cache.NewStore(redisClient, "workload")
		historyStore = cache.NewStore(redisClient, "history")
	}

	validate := validator.New()

	workloadRepo := repository.NewWorkloadRepository(db)
	roomRepo := repository.NewRoomRepository(db)
	historyRepo := repository.NewHistoryRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db)

	workloadSvc := service.NewWorkloadService(workloadRepo, workloadStore, service.WorkloadConfig{
		MaxTeacherWeeklyHours: cfg.Engine.MaxWeeklyHours,
		HighLoadWarningHours:  cfg.Engine.HighLoadWarningHours,
		MaxLoadWeeklyHours:    cfg.Engine.MaxLoadWeeklyHours,
		CacheTTL:              cfg.Engine.WorkloadCacheTTL,
	}, logr)
	roomSvc := service.NewRoomService(roomRepo, logr)
	engine := service.NewGenerationEngine(logr)
	detector := service.NewConflictDetector(cfg.Engine.MaxWeeklyHours, logr)
	resolver := service.NewConflictResolver(logr)
	search := service.NewSearchOptimizer(service.SearchConfig{
		PopulationSize: cfg.Optimizer.GAPopulationSize,
		Generations:    cfg.Optimizer.GAGenerations,
		CrossoverRate:  cfg.Optimizer.GACrossoverRate,
		MutationRate:   cfg.Optimizer.GAMutationRate,
		InitialTemp:    cfg.Optimizer.SAInitialTemp,
		CoolingRate:    cfg.Optimizer.SACoolingRate,
		MinTemp:        cfg.Optimizer.SAMinTemp,
	}, logr)
	optimizer := service.NewOptimizerService(detector, resolver, search, service.OptimizerOptions{
		UseGenetic:         cfg.Optimizer.GAEnabled,
		UseAnnealing:       cfg.Optimizer.SAEnabled,
		MaxConsecutiveSame: cfg.Optimizer.MaxConsecutiveSame,
		MinBreakBetween:    cfg.Optimizer.MinBreakBetween,
	}, logr)
	analyzer := service.NewAnalyzerService(historyRepo, historyStore, service.AnalyzerConfig{
		SimilarityThreshold: cfg.Analyzer.SimilarityThreshold,
		MaxSimilarResults:   cfg.Analyzer.MaxSimilarResults,
		HistoryCacheTTL:     cfg.Analyzer.HistoryCacheTTL,
	}, logr)
	perf := service.NewPerformanceService(service.PerformanceConfig{
		ParallelThreshold: cfg.Performance.ParallelThreshold,
		MaxChunks:         cfg.Performance.MaxChunks,
		MemoryBudgetBytes: cfg.Performance.MemoryBudgetBytes,
		RunSoftTimeout:    cfg.Performance.RunSoftTimeout,
	}, logr)
	metrics := service.NewMetricsService()
	workloadSvc.AttachMetrics(metrics)
	analyzer.AttachMetrics(metrics)

	var exportSvc *service.ExportService
	if cfg.Export.SigningSecret != "" {
		files, err := storage.NewLocalStorage(cfg.Export.Dir)
		if err != nil {
			logr.Sugar().Warnw("export storage unavailable, stored exports disabled", "error", err)
		} else {
			signer := storage.NewSignedURLSigner(cfg.Export.SigningSecret, cfg.Export.ResultTTL)
			exportSvc = service.NewExportService(files, signer, service.ExportConfig{
				APIPrefix: cfg.APIPrefix,
				ResultTTL: cfg.Export.ResultTTL,
			}, logr)
		}
	} else {
		logr.Info("stored exports disabled, no signing secret configured")
	}

	generationSvc := service.NewGenerationService(
		workloadSvc, roomSvc, engine, detector, resolver,
		optimizer, analyzer, perf, metrics, scheduleRepo,
		validate, logr,
	)

	queue := jobs.NewQueue("generation", generationSvc.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Jobs.Workers,
		MaxRetries: cfg.Jobs.MaxRetries,
		RetryDelay: cfg.Jobs.RetryDelay,
		Logger:     logr,
	})
	generationSvc.AttachQueue(queue)
	metrics.RegisterQueueDepth(queue.Depth)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	queue.Start(ctx)
	defer queue.Stop()

	if exportSvc != nil {
		go func() {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if _, err := exportSvc.Cleanup(); err != nil {
						logr.Sugar().Warnw("export cleanup failed", "error", err)
					}
				}
			}
		}()
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	generationHandler := handler.NewGenerationHandler(generationSvc, exportSvc)
	metricsHandler := handler.NewMetricsHandler(metrics)

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": "down"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)
	r.GET("/metrics/engine", metricsHandler.EngineSnapshot)
	r.GET("/swagger.json", swagger.Handler())

	api := r.Group(cfg.APIPrefix)
	{
		api.POST("/generation/runs", generationHandler.Generate)
		api.GET("/generation/runs/:id", generationHandler.RunState)
		api.GET("/generation/runs/:id/export", generationHandler.Export)
		api.POST("/generation/runs/:id/archive", generationHandler.ArchiveExport)
		api.GET("/generation/exports/:token", generationHandler.DownloadExport)
		api.POST("/generation/workload/validate", generationHandler.ValidateWorkload)
		api.POST("/generation/analyze", generationHandler.Analyze)
		api.POST("/institutions/:institutionId/years/:yearId/generation", generationHandler.GenerateFromYear)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
