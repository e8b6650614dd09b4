package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/khchop/kickscore/internal/data/repos"
	"github.com/khchop/kickscore/internal/platform/apierr"
	"github.com/khchop/kickscore/internal/platform/logger"
	"github.com/khchop/kickscore/internal/resilience/budget"
)

type StatusHandler struct {
	log    *logger.Logger
	repos  *repos.Bundle
	budget *budget.Enforcer
}

func NewStatusHandler(log *logger.Logger, r *repos.Bundle, b *budget.Enforcer) *StatusHandler {
	return &StatusHandler{
		log:    log.With("Handler", "StatusHandler"),
		repos:  r,
		budget: b,
	}
}

// Circuits reports the durable breaker state per backend service.
func (h *StatusHandler) Circuits(c *gin.Context) {
	states, err := h.repos.Circuits.ListAll(c.Request.Context(), nil)
	if err != nil {
		respondError(c, apierr.New(http.StatusInternalServerError, "list_failed", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"circuits": states})
}

// Budgets reports the configured daily limits per provider.
func (h *StatusHandler) Budgets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"limits": h.budget.Limits()})
}
