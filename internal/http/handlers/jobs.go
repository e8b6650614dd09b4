package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/khchop/kickscore/internal/data/repos"
	"github.com/khchop/kickscore/internal/domain"
	"github.com/khchop/kickscore/internal/platform/apierr"
	"github.com/khchop/kickscore/internal/platform/logger"
	"github.com/khchop/kickscore/internal/scheduler"
)

type JobsHandler struct {
	log   *logger.Logger
	repos *repos.Bundle
	sched *scheduler.Scheduler
}

func NewJobsHandler(log *logger.Logger, r *repos.Bundle, sched *scheduler.Scheduler) *JobsHandler {
	return &JobsHandler{
		log:   log.With("Handler", "JobsHandler"),
		repos: r,
		sched: sched,
	}
}

// Enqueue schedules a backfill run for a match. Other job types are derived
// by the scheduler, never enqueued directly.
func (h *JobsHandler) Enqueue(c *gin.Context) {
	var body struct {
		JobType string `json:"job_type"`
		MatchID string `json:"match_id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, apierr.New(http.StatusBadRequest, "invalid_body", err))
		return
	}
	if body.JobType != domain.JobTypeBackfill {
		respondError(c, apierr.New(http.StatusBadRequest, "unsupported_job_type", nil))
		return
	}
	matchID, err := uuid.Parse(body.MatchID)
	if err != nil {
		respondError(c, apierr.New(http.StatusBadRequest, "invalid_match_id", err))
		return
	}

	match, err := h.repos.Matches.GetByID(c.Request.Context(), nil, matchID)
	if err != nil {
		respondError(c, apierr.New(http.StatusInternalServerError, "lookup_failed", err))
		return
	}
	if match == nil {
		respondError(c, apierr.New(http.StatusNotFound, "match_not_found", nil))
		return
	}

	if err := h.sched.ScheduleBackfill(c.Request.Context(), matchID); err != nil {
		respondError(c, apierr.New(http.StatusInternalServerError, "enqueue_failed", err))
		return
	}

	key := scheduler.JobKey(domain.JobTypeBackfill, matchID, "")
	job, err := h.repos.Jobs.GetByIdempotencyKey(c.Request.Context(), nil, key)
	if err != nil {
		respondError(c, apierr.New(http.StatusInternalServerError, "lookup_failed", err))
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": job})
}

// Get returns one job run by id.
func (h *JobsHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apierr.New(http.StatusBadRequest, "invalid_job_id", err))
		return
	}
	job, err := h.repos.Jobs.GetByID(c.Request.Context(), nil, id)
	if err != nil {
		respondError(c, apierr.New(http.StatusInternalServerError, "lookup_failed", err))
		return
	}
	if job == nil {
		respondError(c, apierr.New(http.StatusNotFound, "job_not_found", nil))
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job})
}
