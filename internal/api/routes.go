package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"volunteer_hub/internal/api/handlers"
	"volunteer_hub/internal/middleware"
	"volunteer_hub/internal/service"
)

func SetupRoutes(r *gin.Engine, services *service.Services) {
	// 初始化 handlers
	authHandler := handlers.NewAuthHandler(services.User)
	eventHandler := handlers.NewEventHandler(services.Event)
	chatHandler := handlers.NewChatHandler(services.Chat)
	wsHandler := handlers.NewWebSocketHandler(services.Hub)

	// API 路由群組
	api := r.Group("/api")

	// 處理 404 錯誤
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "找不到該路徑",
		})
	})

	// 公開路由
	{
		// 用戶認證相關
		api.POST("/register", authHandler.Register)
		api.POST("/login", authHandler.Login)

		// 基本的健康檢查
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status": "ok",
			})
		})
	}

	// 需要驗證的路由
	authorized := api.Group("/")
	authorized.Use(middleware.AuthMiddleware())
	{
		// 活動相關（聊天核心所需的最小集合）
		events := authorized.Group("/events")
		{
			events.POST("", eventHandler.CreateEvent)
			events.GET("/created", eventHandler.ListCreated)
			events.GET("/:id/volunteers", eventHandler.ListVolunteers)
			events.POST("/:id/apply", eventHandler.Apply)
			events.POST("/:id/applications/:appId/accept", eventHandler.AcceptApplication)
		}

		// 聊天相關
		chat := authorized.Group("/chat")
		{
			chat.GET("/senders", chatHandler.ListSenders)             // 對話摘要列表
			chat.GET("/messages/:counterpartId", chatHandler.DirectMessages) // 一對一補讀
			chat.POST("/reply", chatHandler.Reply)                    // 一對一回覆
			chat.POST("/send", chatHandler.Broadcast)                 // 管理者群發
			chat.POST("/read", chatHandler.MarkRead)                  // 推進已讀水位
			chat.POST("", chatHandler.CreateEventMessage)             // 活動聊天室發言
			chat.GET("/:eventId", chatHandler.EventMessages)          // 活動聊天室補讀
		}

		// WebSocket 連接點（即時推播通道）
		authorized.GET("/ws", wsHandler.HandleWebSocket)
	}
}
