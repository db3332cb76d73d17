package router

import (
	"github.com/gin-gonic/gin"

	"github.com/yabrams/precon-demo-sub001/internal/http/handler"
	"github.com/yabrams/precon-demo-sub001/internal/service"
)

type RouterConfig struct {
	TraceHeaderName string
	IsProduction    bool
}

func SetupRoutes(router *gin.Engine, extractions service.ExtractionService, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		extractionHandler := handler.NewExtractionHandler(extractions, cfg.TraceHeaderName)
		ExtractionRouter(v1, extractionHandler)
	}
}
