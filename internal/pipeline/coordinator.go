// Package pipeline runs the periodic coordination loops: fixture ingestion
// with catch-up scheduling, and the re-enable probe sweep for auto-disabled
// models.
package pipeline

import (
	"context"
	"time"

	"github.com/khchop/kickscore/internal/clients/fixtures"
	"github.com/khchop/kickscore/internal/config"
	"github.com/khchop/kickscore/internal/data/repos"
	"github.com/khchop/kickscore/internal/domain"
	"github.com/khchop/kickscore/internal/platform/logger"
	"github.com/khchop/kickscore/internal/scheduler"
	"github.com/khchop/kickscore/internal/services"
)

type Coordinator struct {
	log         *logger.Logger
	cfg         *config.Config
	repos       *repos.Bundle
	fixtures    fixtures.Client
	scheduler   *scheduler.Scheduler
	invalidator *services.CacheInvalidator
}

func NewCoordinator(log *logger.Logger, cfg *config.Config, r *repos.Bundle, fx fixtures.Client, sched *scheduler.Scheduler, inv *services.CacheInvalidator) *Coordinator {
	return &Coordinator{
		log:         log.With("component", "Coordinator"),
		cfg:         cfg,
		repos:       r,
		fixtures:    fx,
		scheduler:   sched,
		invalidator: inv,
	}
}

// Start launches the sync and probe loops until ctx is cancelled. An
// immediate first pass runs on startup so downtime is caught up without
// waiting a full interval.
func (c *Coordinator) Start(ctx context.Context) {
	go c.loop(ctx, c.cfg.SchedulerInterval, c.syncAndSchedule)
	go c.loop(ctx, c.cfg.ModelProbeCooldown/4, c.probeSweep)
}

func (c *Coordinator) loop(ctx context.Context, interval time.Duration, pass func(context.Context)) {
	if interval <= 0 {
		interval = time.Minute
	}
	pass(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pass(ctx)
		}
	}
}

// syncAndSchedule pulls upcoming fixtures, mirrors them into the match
// table, and runs the scheduling pass over every match inside the horizon.
// Scheduling is idempotent, so the whole pass re-runs on every tick.
func (c *Coordinator) syncAndSchedule(ctx context.Context) {
	fetched, err := c.fixtures.ListUpcoming(ctx, c.cfg.ScheduleHorizon)
	if err != nil {
		c.log.Warn("fixture sync failed", "error", err)
	} else {
		for _, f := range fetched {
			m := &domain.Match{
				ExternalID:    f.ExternalID,
				HomeTeam:      f.HomeTeam,
				AwayTeam:      f.AwayTeam,
				CompetitionID: f.CompetitionID,
				KickoffAt:     f.KickoffAt,
				Status:        f.Status,
			}
			if _, err := c.repos.Matches.UpsertFromFixture(ctx, nil, m); err != nil {
				c.log.Warn("fixture upsert failed", "external_id", f.ExternalID, "error", err)
			}
		}
		c.log.Debug("fixture sync complete", "fetched", len(fetched))
	}

	horizon := time.Now().Add(c.cfg.ScheduleHorizon)
	matches, err := c.repos.Matches.ListUnscheduled(ctx, nil, horizon)
	if err != nil {
		c.log.Warn("scheduling pass query failed", "error", err)
		return
	}
	for _, m := range matches {
		if err := c.scheduler.ScheduleForMatch(ctx, m); err != nil {
			c.log.Warn("scheduling pass incomplete, will retry next tick",
				"match_id", m.ID, "error", err)
		}
	}
}

// probeSweep re-enables disabled models whose cooldown has elapsed. The
// re-enabled model gets exactly one clean shot: its failure streak restarts
// at zero, so the next run of failures disables it again quickly.
func (c *Coordinator) probeSweep(ctx context.Context) {
	eligible, err := c.repos.Models.ListProbeEligible(ctx, nil, c.cfg.ModelProbeCooldown)
	if err != nil {
		c.log.Warn("probe sweep query failed", "error", err)
		return
	}
	for _, m := range eligible {
		if err := c.repos.Models.SetActive(ctx, nil, m.ID, true); err != nil {
			c.log.Warn("model re-enable failed", "model", m.Name, "error", err)
			continue
		}
		c.log.Info("model re-enabled for probe", "model", m.Name)
		if c.invalidator != nil {
			c.invalidator.ModelActivationChanged(ctx, m.ID)
		}
	}
}
