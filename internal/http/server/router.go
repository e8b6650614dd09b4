package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/khchop/kickscore/internal/http/handlers"
	"github.com/khchop/kickscore/internal/http/middleware"
)

type RouterConfig struct {
	AuthMiddleware *middleware.AuthMiddleware
	AdminHandler   *handlers.AdminHandler
	JobsHandler    *handlers.JobsHandler
	StatusHandler  *handlers.StatusHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:3000",
			"http://localhost:5174",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthz", handlers.HealthCheck)

	v1 := router.Group("/v1")
	{
		status := v1.Group("/status")
		status.Use(cfg.AuthMiddleware.RequireService())
		status.GET("/circuits", cfg.StatusHandler.Circuits)
		status.GET("/budgets", cfg.StatusHandler.Budgets)

		jobs := v1.Group("/jobs")
		jobs.Use(cfg.AuthMiddleware.RequireService())
		jobs.POST("", cfg.JobsHandler.Enqueue)
		jobs.GET("/:id", cfg.JobsHandler.Get)

		admin := v1.Group("/admin")
		admin.Use(cfg.AuthMiddleware.RequireAdmin())
		admin.POST("/jobs/:id/retry", cfg.AdminHandler.RetryJob)
		admin.GET("/jobs/dead", cfg.AdminHandler.ListDeadJobs)
		admin.POST("/models/:id/activation", cfg.AdminHandler.SetModelActive)
	}

	return router
}
