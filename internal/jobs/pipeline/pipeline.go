// Package pipeline contains the job handlers for the prediction pipeline:
// analysis, predictions, retry, live monitoring, settlement and backfill.
package pipeline

import (
	"gorm.io/gorm"

	"github.com/khchop/kickscore/internal/clients/fixtures"
	"github.com/khchop/kickscore/internal/config"
	"github.com/khchop/kickscore/internal/data/repos"
	"github.com/khchop/kickscore/internal/jobs/runtime"
	"github.com/khchop/kickscore/internal/llm"
	"github.com/khchop/kickscore/internal/platform/logger"
	"github.com/khchop/kickscore/internal/resilience/breaker"
	"github.com/khchop/kickscore/internal/scheduler"
	"github.com/khchop/kickscore/internal/services"
	"github.com/khchop/kickscore/internal/settlement"
)

type Deps struct {
	Log          *logger.Logger
	DB           *gorm.DB
	Repos        *repos.Bundle
	Cfg          *config.Config
	Fixtures     fixtures.Client
	Orchestrator *llm.Orchestrator
	Breaker      *breaker.Breaker
	Scheduler    *scheduler.Scheduler
	Settlement   *settlement.Engine
	Invalidator  *services.CacheInvalidator
}

// Register installs every pipeline handler into the worker registry.
func Register(reg *runtime.Registry, deps Deps) error {
	handlers := []runtime.Handler{
		NewAnalysisHandler(deps),
		NewPredictionsHandler(deps),
		NewPredictionRetryHandler(deps),
		NewLiveMonitorHandler(deps),
		NewSettlementHandler(deps),
		NewBackfillHandler(deps),
	}
	for _, h := range handlers {
		if err := reg.Register(h); err != nil {
			return err
		}
	}
	return nil
}
