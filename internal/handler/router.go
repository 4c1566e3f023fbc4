package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/paperpilot/internal/middleware"
)

type RouterDeps struct {
	Papers    *PaperHandler
	Chat      *ChatHandler
	Plans     *PlanHandler
	Insights  *InsightHandler
	JWTSecret []byte
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	authGroup := api.Group("")
	authGroup.Use(middleware.JWTAuth(deps.JWTSecret))

	authGroup.POST("/papers", deps.Papers.Create)
	authGroup.POST("/papers/upload", deps.Papers.Upload)
	authGroup.GET("/papers", deps.Papers.List)
	authGroup.GET("/papers/:id", deps.Papers.Get)
	authGroup.DELETE("/papers/:id", deps.Papers.Delete)
	authGroup.POST("/papers/:id/retry", deps.Papers.Retry)
	authGroup.POST("/papers/:id/summary", deps.Papers.Summary)
	authGroup.POST("/papers/:id/flashcards", deps.Papers.GenerateFlashcards)
	authGroup.GET("/papers/:id/flashcards", deps.Papers.ListFlashcards)

	authGroup.POST("/chat/sessions", deps.Chat.StartSession)
	authGroup.GET("/chat/sessions", deps.Chat.ListSessions)
	authGroup.GET("/chat/sessions/:id/history", deps.Chat.History)
	authGroup.POST("/chat/sessions/:id/ask", deps.Chat.Ask)

	authGroup.POST("/plans", deps.Plans.Create)
	authGroup.GET("/plans", deps.Plans.List)
	authGroup.GET("/plans/:id", deps.Plans.Get)
	authGroup.DELETE("/plans/:id", deps.Plans.Delete)
	authGroup.POST("/plans/:id/progress", deps.Plans.Progress)

	authGroup.GET("/insights", deps.Insights.List)
	authGroup.POST("/insights/refresh", deps.Insights.Refresh)
}
