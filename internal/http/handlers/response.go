// Package handlers exposes the service's HTTP surface: job admin, status
// and enqueue endpoints.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/khchop/kickscore/internal/platform/apierr"
)

func respondError(c *gin.Context, err *apierr.Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": err.Code})
}

func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
