package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/khchop/kickscore/internal/data/repos"
	"github.com/khchop/kickscore/internal/domain"
	"github.com/khchop/kickscore/internal/platform/apierr"
	"github.com/khchop/kickscore/internal/platform/logger"
	"github.com/khchop/kickscore/internal/services"
)

type AdminHandler struct {
	log         *logger.Logger
	repos       *repos.Bundle
	invalidator *services.CacheInvalidator
}

func NewAdminHandler(log *logger.Logger, r *repos.Bundle, inv *services.CacheInvalidator) *AdminHandler {
	return &AdminHandler{
		log:         log.With("Handler", "AdminHandler"),
		repos:       r,
		invalidator: inv,
	}
}

// RetryJob puts a failed or dead job back in the queue for immediate
// execution. The caller does not need to know which set the job is in.
func (h *AdminHandler) RetryJob(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apierr.New(http.StatusBadRequest, "invalid_job_id", err))
		return
	}

	requeued, err := h.repos.Jobs.RequeueForRetry(c.Request.Context(), nil, id)
	if err != nil {
		respondError(c, apierr.New(http.StatusInternalServerError, "retry_failed", err))
		return
	}
	if !requeued {
		respondError(c, apierr.New(http.StatusConflict, "job_not_retryable", nil))
		return
	}

	h.log.Info("job requeued by admin", "job_id", id)
	c.JSON(http.StatusOK, gin.H{"job_id": id, "status": domain.JobStatusQueued})
}

// ListDeadJobs surfaces the dead-letter set for operator triage.
func (h *AdminHandler) ListDeadJobs(c *gin.Context) {
	jobs, err := h.repos.Jobs.ListByStatus(c.Request.Context(), nil, []string{domain.JobStatusDead}, 200)
	if err != nil {
		respondError(c, apierr.New(http.StatusInternalServerError, "list_failed", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

// SetModelActive flips a model's activation and fires the invalidation
// event, same as the automatic disable/probe paths.
func (h *AdminHandler) SetModelActive(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apierr.New(http.StatusBadRequest, "invalid_model_id", err))
		return
	}
	var body struct {
		Active bool `json:"active"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, apierr.New(http.StatusBadRequest, "invalid_body", err))
		return
	}

	model, err := h.repos.Models.GetByID(c.Request.Context(), nil, id)
	if err != nil {
		respondError(c, apierr.New(http.StatusInternalServerError, "lookup_failed", err))
		return
	}
	if model == nil {
		respondError(c, apierr.New(http.StatusNotFound, "model_not_found", nil))
		return
	}

	if err := h.repos.Models.SetActive(c.Request.Context(), nil, id, body.Active); err != nil {
		respondError(c, apierr.New(http.StatusInternalServerError, "update_failed", err))
		return
	}
	if h.invalidator != nil {
		h.invalidator.ModelActivationChanged(c.Request.Context(), id)
	}

	h.log.Info("model activation changed by admin", "model", model.Name, "active", body.Active)
	c.JSON(http.StatusOK, gin.H{"model_id": id, "active": body.Active})
}
