package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"volunteer_hub/internal/apperr"
	"volunteer_hub/internal/models"
	"volunteer_hub/internal/service"
)

// ChatHandler 處理聊天的持久化讀寫路徑。
// 即時推播走 WebSocket，這裡是權威的建立與補讀端點。
type ChatHandler struct {
	chatService *service.ChatService
}

// NewChatHandler 創建一個新的 ChatHandler 實例
func NewChatHandler(chatService *service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// EventMessages 處理活動聊天室的補讀查詢
// GET /chat/:eventId?after=<seq>&limit=<n>
func (h *ChatHandler) EventMessages(c *gin.Context) {
	eventID, err := strconv.ParseUint(c.Param("eventId"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "錯誤的活動ID"})
		return
	}

	messages, err := h.chatService.EventMessages(
		currentUserID(c), uint(eventID), parseSeq(c), parseLimit(c))
	if err != nil {
		respondChatError(c, err)
		return
	}

	c.JSON(http.StatusOK, messages)
}

// CreateEventMessage 在活動聊天室建立一則訊息。
// 接受 multipart 表單：eventId、message、media（可選的照片或影片）。
// 回應的訊息若帶媒體，URL 已經可以直接取回，不需要第二次請求。
// POST /chat
func (h *ChatHandler) CreateEventMessage(c *gin.Context) {
	eventID, err := strconv.ParseUint(c.PostForm("eventId"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "錯誤的活動ID"})
		return
	}

	upload, err := readMediaUpload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "無法讀取上傳的媒體"})
		return
	}

	msg, err := h.chatService.Send(
		models.EventRoom(uint(eventID)), currentUserID(c), c.PostForm("message"), upload)
	if err != nil {
		respondChatError(c, err)
		return
	}

	c.JSON(http.StatusCreated, msg)
}

// ListSenders 回傳呼叫者的一對一對話摘要列表
// GET /chat/senders
func (h *ChatHandler) ListSenders(c *gin.Context) {
	summaries, err := h.chatService.ListSenders(currentUserID(c))
	if err != nil {
		respondChatError(c, err)
		return
	}

	c.JSON(http.StatusOK, summaries)
}

// DirectMessages 補讀與指定對方的一對一對話
// GET /chat/messages/:counterpartId?after=<seq>&limit=<n>
func (h *ChatHandler) DirectMessages(c *gin.Context) {
	counterpartID, err := strconv.ParseUint(c.Param("counterpartId"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "錯誤的用戶ID"})
		return
	}

	messages, err := h.chatService.DirectMessages(
		currentUserID(c), uint(counterpartID), parseSeq(c), parseLimit(c))
	if err != nil {
		respondChatError(c, err)
		return
	}

	c.JSON(http.StatusOK, messages)
}

// ReplyInput 定義一對一回覆請求的結構
type ReplyInput struct {
	RecipientID uint   `json:"recipientId" binding:"required"`
	Message     string `json:"message"`
}

// Reply 在一對一對話中建立一則訊息
// POST /chat/reply
func (h *ChatHandler) Reply(c *gin.Context) {
	var input ReplyInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	senderID := currentUserID(c)
	msg, err := h.chatService.Send(
		models.DirectThread(senderID, input.RecipientID), senderID, input.Message, nil)
	if err != nil {
		respondChatError(c, err)
		return
	}

	c.JSON(http.StatusCreated, msg)
}

// BroadcastInput 定義群發請求的結構
type BroadcastInput struct {
	EventID    uint   `json:"eventId" binding:"required"`
	Recipients []uint `json:"recipients" binding:"required,min=1"`
	Message    string `json:"message" binding:"required"`
}

// Broadcast 活動管理者把訊息分別發給選定的志工
// POST /chat/send
func (h *ChatHandler) Broadcast(c *gin.Context) {
	var input BroadcastInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	messages, err := h.chatService.SendToVolunteers(
		currentUserID(c), input.EventID, input.Recipients, input.Message)
	if err != nil {
		respondChatError(c, err)
		return
	}

	c.JSON(http.StatusCreated, messages)
}

// MarkReadInput 定義推進已讀水位請求的結構
type MarkReadInput struct {
	CounterpartID uint   `json:"counterpartId"`
	EventID       uint   `json:"eventId"`
	UptoSeq       uint64 `json:"uptoSeq" binding:"required"`
}

// MarkRead 推進呼叫者在對話中的已讀水位
// POST /chat/read
func (h *ChatHandler) MarkRead(c *gin.Context) {
	var input MarkReadInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if (input.CounterpartID == 0) == (input.EventID == 0) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "counterpartId 和 eventId 必須指定其中一個"})
		return
	}

	viewerID := currentUserID(c)
	var ref models.ConversationRef
	if input.EventID != 0 {
		ref = models.EventRoom(input.EventID)
	} else {
		ref = models.DirectThread(viewerID, input.CounterpartID)
	}

	if err := h.chatService.MarkRead(viewerID, ref, input.UptoSeq); err != nil {
		respondChatError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}

// readMediaUpload 讀取 multipart 表單中的可選媒體檔案
func readMediaUpload(c *gin.Context) (*service.MediaUpload, error) {
	fileHeader, err := c.FormFile("media")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, err
	}

	file, err := fileHeader.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}

	return &service.MediaUpload{
		Data:        data,
		ContentType: fileHeader.Header.Get("Content-Type"),
	}, nil
}

// respondChatError 把聊天核心的錯誤轉換成對應的 HTTP 狀態碼
func respondChatError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperr.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": "訊息內容不能為空"})
	case errors.Is(err, apperr.ErrNotParticipant):
		c.JSON(http.StatusForbidden, gin.H{"error": "用戶不是此對話的參與者"})
	case errors.Is(err, apperr.ErrUnsupportedMedia):
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "只支援照片和影片"})
	case errors.Is(err, apperr.ErrMediaStorage):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "媒體儲存失敗"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "伺服器錯誤"})
	}
}

// currentUserID 取出中間件放入上下文的用戶 ID
func currentUserID(c *gin.Context) uint {
	userID, _ := c.Get("userID")
	id, _ := userID.(uint)
	return id
}

// parseSeq 解析補讀查詢的 after 參數，預設 0（從頭讀取）
func parseSeq(c *gin.Context) uint64 {
	seq, _ := strconv.ParseUint(c.DefaultQuery("after", "0"), 10, 64)
	return seq
}

// parseLimit 解析補讀查詢的 limit 參數，預設不限制
func parseLimit(c *gin.Context) int {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	return limit
}
