package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/paperpilot/internal/pkg/response"
	"github.com/xxxsen/paperpilot/internal/service"
)

type InsightHandler struct {
	insights *service.InsightService
}

func NewInsightHandler(insights *service.InsightService) *InsightHandler {
	return &InsightHandler{insights: insights}
}

func (h *InsightHandler) List(c *gin.Context) {
	items, err := h.insights.List(c.Request.Context(), getUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, items)
}

func (h *InsightHandler) Refresh(c *gin.Context) {
	if err := h.insights.Refresh(c.Request.Context(), getUserID(c)); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"refreshed": true})
}
