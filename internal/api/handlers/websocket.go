package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"volunteer_hub/internal/service"
)

// 定義 WebSocket 升級器
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // 注意：在生產環境中，應該檢查 origin
	},
}

// WebSocketHandler 處理 WebSocket 連接
type WebSocketHandler struct {
	hub *service.ChatHub
}

// NewWebSocketHandler 創建一個新的 WebSocketHandler 實例
func NewWebSocketHandler(hub *service.ChatHub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

// HandleWebSocket 處理 WebSocket 連接請求。
// 連接建立後由 ChatHub 接管生命週期；
// 房間的加入透過通道上的 joinEventChat / joinUserRoom 框架完成。
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	// 從上下文中獲取用戶 ID
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	// 升級 HTTP 連接為 WebSocket 連接
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "升級WebSocket失敗"})
		return
	}

	// 阻塞到連接關閉，斷開時清除所有房間成員資格
	h.hub.HandleConnection(conn, userID.(uint))
}
