package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/khchop/kickscore/internal/clients/fixtures"
	redisclient "github.com/khchop/kickscore/internal/clients/redis"
	"github.com/khchop/kickscore/internal/config"
	"github.com/khchop/kickscore/internal/data/db"
	"github.com/khchop/kickscore/internal/data/repos"
	"github.com/khchop/kickscore/internal/domain"
	"github.com/khchop/kickscore/internal/http/handlers"
	"github.com/khchop/kickscore/internal/http/middleware"
	"github.com/khchop/kickscore/internal/http/server"
	jobspipeline "github.com/khchop/kickscore/internal/jobs/pipeline"
	"github.com/khchop/kickscore/internal/jobs/queue"
	"github.com/khchop/kickscore/internal/jobs/runtime"
	"github.com/khchop/kickscore/internal/jobs/worker"
	"github.com/khchop/kickscore/internal/llm"
	"github.com/khchop/kickscore/internal/observability"
	"github.com/khchop/kickscore/internal/pipeline"
	"github.com/khchop/kickscore/internal/platform/envutil"
	"github.com/khchop/kickscore/internal/platform/logger"
	"github.com/khchop/kickscore/internal/resilience/breaker"
	"github.com/khchop/kickscore/internal/resilience/budget"
	"github.com/khchop/kickscore/internal/scheduler"
	"github.com/khchop/kickscore/internal/services"
	"github.com/khchop/kickscore/internal/settlement"
)

func main() {
	// Logger
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()

	// Metrics
	shutdownMetrics, err := observability.Init(ctx, "kickscore")
	if err != nil {
		log.Warn("metrics init failed", "error", err)
	} else {
		defer func() { _ = shutdownMetrics(context.Background()) }()
	}

	// Postgres
	dbService, err := db.New(log)
	if err != nil {
		log.Fatal("database init failed", "error", err)
	}
	if err := db.AutoMigrate(dbService.DB()); err != nil {
		log.Fatal("auto migration failed", "error", err)
	}
	gdb := dbService.DB()

	// Redis
	rdb, err := redisclient.New(ctx, log)
	if err != nil {
		log.Fatal("redis init failed", "error", err)
	}

	// Repos
	repoBundle := repos.New(gdb, log)

	// Model catalog. A malformed catalog or fallback graph must stop the
	// process before any job runs.
	catalog, graph, err := config.LoadCatalog(cfg.CatalogPath, cfg.FallbackMaxDepth)
	if err != nil {
		log.Fatal("model catalog rejected", "path", cfg.CatalogPath, "error", err)
	}
	if err := syncCatalog(ctx, log, repoBundle, catalog); err != nil {
		log.Fatal("model catalog sync failed", "error", err)
	}

	// Providers
	providerReg := llm.NewRegistry()
	catalogByName := map[string]config.CatalogModel{}
	for _, cm := range catalog.Models {
		catalogByName[cm.Name] = cm
		timeout := llm.TimeoutFor(cm.TimeoutClass, cfg.ProviderTimeoutStandard, cfg.ProviderTimeoutReasoning)
		provider, err := llm.NewChatProvider(log, cm.ToModel(), timeout)
		if err != nil {
			log.Fatal("provider init failed", "model", cm.Name, "error", err)
		}
		if err := providerReg.Register(provider); err != nil {
			log.Fatal("provider registration failed", "model", cm.Name, "error", err)
		}
	}

	// Resilience
	brk := breaker.New(log,
		breaker.NewRedisCacheStore(rdb, cfg.BreakerCacheTTL),
		breaker.NewRepoDurableStore(repoBundle.Circuits),
		breaker.Options{
			FailureThreshold: cfg.BreakerFailureThreshold,
			OpenTimeout:      cfg.BreakerOpenTimeout,
		})
	budgetEnforcer := budget.NewEnforcer(log,
		budget.NewRedisCounter(rdb),
		catalog.Budgets,
		cfg.BudgetDefaultDailyLimit)

	gate := func(ctx context.Context, modelName string) *llm.CallError {
		cm, ok := catalogByName[modelName]
		if !ok {
			return llm.NewCallError(llm.FailureAPIError, modelName, fmt.Errorf("model %q not in catalog", modelName))
		}
		m, err := repoBundle.Models.GetByName(ctx, nil, modelName)
		if err == nil && m != nil && !m.Active {
			return llm.NewCallError(llm.FailureAPIError, modelName, errors.New("model disabled"))
		}
		if allowed, reason := brk.Allow(ctx, cm.Backend); !allowed {
			return llm.NewCallError(llm.FailureCircuitOpen, modelName, errors.New(reason))
		}
		if _, err := budgetEnforcer.CheckAndIncrement(ctx, cm.Backend); err != nil {
			return llm.NewCallError(llm.FailureBudgetExceeded, modelName, err)
		}
		return nil
	}
	costOf := func(modelName string) float64 {
		return catalogByName[modelName].CostPerCallUSD
	}
	orchestrator := llm.NewOrchestrator(log, providerReg, graph, gate, costOf)

	// Services
	invalidator := services.NewCacheInvalidator(log, rdb)
	fixturesClient := fixtures.NewClient(log)
	jobQueue := queue.New(log, repoBundle.Jobs)
	sched := scheduler.New(log, jobQueue, scheduler.DefaultOffsets())
	settlementEngine := settlement.NewEngine(log, gdb, repoBundle.Matches, repoBundle.Predictions, invalidator)

	// Job handlers + worker pools
	registry := runtime.NewRegistry()
	if err := jobspipeline.Register(registry, jobspipeline.Deps{
		Log:          log,
		DB:           gdb,
		Repos:        repoBundle,
		Cfg:          cfg,
		Fixtures:     fixturesClient,
		Orchestrator: orchestrator,
		Breaker:      brk,
		Scheduler:    sched,
		Settlement:   settlementEngine,
		Invalidator:  invalidator,
	}); err != nil {
		log.Fatal("handler registration failed", "error", err)
	}

	jobWorker := worker.New(gdb, log, repoBundle.Jobs, registry, worker.Options{
		Concurrency: map[string]int{
			domain.JobTypeAnalysis:        cfg.AnalysisConcurrency,
			domain.JobTypePredictions:     cfg.PredictionsConcurrency,
			domain.JobTypePredictionRetry: cfg.PredictionsConcurrency,
			domain.JobTypeLiveMonitor:     cfg.LiveMonitorConcurrency,
			domain.JobTypeSettlement:      cfg.SettlementConcurrency,
			domain.JobTypeBackfill:        cfg.BackfillConcurrency,
		},
		MaxAttempts:  cfg.JobMaxAttempts,
		RetryDelay:   cfg.JobRetryDelay,
		StaleRunning: cfg.JobStaleRunning,
	})
	jobWorker.Start(ctx)

	// Coordination loops
	coordinator := pipeline.NewCoordinator(log, cfg, repoBundle, fixturesClient, sched, invalidator)
	coordinator.Start(ctx)

	// HTTP
	authMiddleware := middleware.NewAuthMiddleware(log, cfg.AdminToken, cfg.ServiceJWTSecret)
	router := server.NewRouter(server.RouterConfig{
		AuthMiddleware: authMiddleware,
		AdminHandler:   handlers.NewAdminHandler(log, repoBundle, invalidator),
		JobsHandler:    handlers.NewJobsHandler(log, repoBundle, sched),
		StatusHandler:  handlers.NewStatusHandler(log, repoBundle, budgetEnforcer),
	})

	log.Info("server starting", "port", cfg.Port, "environment", cfg.Environment)
	go func() {
		if err := router.Run(":" + cfg.Port); err != nil {
			log.Fatal("http server failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
}

// syncCatalog mirrors catalog entries into the model table. Existing rows
// keep their runtime state (activation, failure streaks); only new models
// are inserted.
func syncCatalog(ctx context.Context, log *logger.Logger, r *repos.Bundle, catalog *config.Catalog) error {
	for _, cm := range catalog.Models {
		existing, err := r.Models.GetByName(ctx, nil, cm.Name)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		if _, err := r.Models.Create(ctx, nil, []*domain.Model{cm.ToModel()}); err != nil {
			return err
		}
		log.Info("model added from catalog", "model", cm.Name, "backend", cm.Backend)
	}
	return nil
}
