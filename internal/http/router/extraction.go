package router

import (
	"github.com/gin-gonic/gin"

	"github.com/yabrams/precon-demo-sub001/internal/http/handler"
)

func ExtractionRouter(rg *gin.RouterGroup, h *handler.ExtractionHandler) {
	rg.POST("/projects/:projectId/extractions", h.Start)
	rg.GET("/projects/:projectId/extractions", h.ListByProject)
	rg.GET("/extractions/:id", h.Get)
	rg.POST("/extractions/estimate", h.Estimate)
}
