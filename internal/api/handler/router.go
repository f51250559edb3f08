package handler

import (
	"protalent/backend/internal/metrics"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter mounts the gateway, the chat API and the operational endpoints.
func NewRouter(h *Handler, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(logger))

	r.GET("/healthz", h.Health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.GET("/ws", h.ServeWebSocket)

	chats := r.Group("/api/chats", h.RequireAuth())
	{
		chats.GET("", h.ListChats)
		chats.GET("/unread-count", h.UnreadCount)
		chats.GET("/search", h.SearchChats)
		chats.POST("/start", h.StartChat)
		chats.GET("/:chatId/messages", h.ListMessages)
		chats.POST("/:chatId/read", h.MarkRead)
		chats.DELETE("/:chatId", h.DeleteChat)
		chats.DELETE("/:chatId/messages/:messageId", h.DeleteMessage)
	}

	return r
}
