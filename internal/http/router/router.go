// Package router wires the thin HTTP surface's routes, mirroring the
// teacher's internal/http/router package shape.
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dustinrgood/CivicAide-PolicyAide/internal/http/handler"
)

// SetupRoutes registers the engine's HTTP surface: a health check plus the
// POST /runs and GET /runs/{id} pair SPEC_FULL.md's C9 expansion names.
func SetupRoutes(router *gin.Engine, runHandler *handler.RunHandler) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	runs := router.Group("/runs")
	{
		runs.POST("", runHandler.Create)
		runs.GET("/:id", runHandler.Get)
	}
}
