package api

import (
	"github.com/gin-gonic/gin"
)

func registerRoutes(router *gin.RouterGroup) {
	router.GET("/list", List)
	router.GET("/version", Version)
	device := router.Group("/device/:udid")
	device.Use(DeviceMiddleware(), LimitNumClientsUDID())
	device.GET("/info", Info)

	initStreamingResponseRoutes(router)
	router.GET("/ws", ListenWebsocket)
}

func initStreamingResponseRoutes(router *gin.RouterGroup) {
	streamingGeneral := router.Group("")
	streamingGeneral.Use(StreamingHeaderMiddleware())
	streamingGeneral.GET("/listen", Listen)
}
