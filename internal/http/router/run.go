package router

import (
	"github.com/gin-gonic/gin"

	"masthead.app/newsroom/internal/http/handler"
)

func RunRouter(router *gin.RouterGroup, handler *handler.RunHandler) {
	router.POST("", handler.Start)
	router.GET("", handler.List)
	router.GET("/:id", handler.Get)
	router.GET("/:id/state", handler.GetState)
	router.POST("/:id/resume", handler.Resume)
}
