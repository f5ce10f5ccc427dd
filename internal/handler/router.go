package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openlegis/legisrag/internal/index"
	"github.com/openlegis/legisrag/internal/middleware"
	"github.com/openlegis/legisrag/internal/pkg/response"
)

type RouterDeps struct {
	Ask *AskHandler
	// Index backs the health endpoint; a process with an unloaded
	// index is not ready to serve.
	Index         *index.Index
	AskRateWindow time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/healthz", func(c *gin.Context) {
		status := "ok"
		if deps.Index == nil || !deps.Index.Ready() {
			status = "index_loading"
		}
		response.Success(c, gin.H{"status": status})
	})
	api.GET("/themes", deps.Ask.Themes)
	api.GET("/summaries", deps.Ask.Summaries)
	api.GET("/search", deps.Ask.Search)

	askGroup := api.Group("")
	if deps.AskRateWindow > 0 {
		askGroup.Use(middleware.RateLimit(deps.AskRateWindow))
	}
	askGroup.POST("/ask", deps.Ask.Ask)
}
