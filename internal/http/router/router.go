package router

import (
	"github.com/gin-gonic/gin"

	"masthead.app/newsroom/internal/http/handler"
	"masthead.app/newsroom/internal/service"
)

type RouterConfig struct {
	TraceHeaderName string
}

func SetupRoutes(router *gin.Engine, runs service.RunService, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		runHandler := handler.NewRunHandler(runs, cfg.TraceHeaderName)
		RunRouter(v1.Group("/runs"), runHandler)
	}
}
