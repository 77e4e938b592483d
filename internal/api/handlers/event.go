package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"volunteer_hub/internal/service"
)

// EventHandler 處理活動相關的請求。
// 只涵蓋聊天核心需要的最小操作集：建立活動、列出自己的活動、
// 查詢志工名單、申請與接受申請。
type EventHandler struct {
	eventService *service.EventService
}

// NewEventHandler 創建一個新的 EventHandler 實例
func NewEventHandler(eventService *service.EventService) *EventHandler {
	return &EventHandler{eventService: eventService}
}

// CreateEventInput 定義建立活動請求的結構
type CreateEventInput struct {
	Title       string    `json:"title" binding:"required"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	StartTime   time.Time `json:"start_time"`
}

// CreateEvent 處理建立新活動的請求
func (h *EventHandler) CreateEvent(c *gin.Context) {
	var input CreateEventInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	event, err := h.eventService.CreateEvent(
		currentUserID(c), input.Title, input.Description, input.Location, input.StartTime)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "創建活動失敗"})
		return
	}

	c.JSON(http.StatusCreated, event)
}

// ListCreated 列出呼叫者建立的所有活動
func (h *EventHandler) ListCreated(c *gin.Context) {
	events, err := h.eventService.ListCreatedEvents(currentUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查詢活動失敗"})
		return
	}

	c.JSON(http.StatusOK, events)
}

// ListVolunteers 列出活動所有已接受的志工
func (h *EventHandler) ListVolunteers(c *gin.Context) {
	eventID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "錯誤的活動ID"})
		return
	}

	volunteers, err := h.eventService.ListVolunteers(uint(eventID))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查詢志工名單失敗"})
		return
	}

	c.JSON(http.StatusOK, volunteers)
}

// Apply 志工申請參加活動
func (h *EventHandler) Apply(c *gin.Context) {
	eventID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "錯誤的活動ID"})
		return
	}

	app, err := h.eventService.Apply(uint(eventID), currentUserID(c))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, app)
}

// AcceptApplication 管理者接受志工的申請
func (h *EventHandler) AcceptApplication(c *gin.Context) {
	eventID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "錯誤的活動ID"})
		return
	}
	appID, err := strconv.ParseUint(c.Param("appId"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "錯誤的申請ID"})
		return
	}

	if err := h.eventService.AcceptApplication(currentUserID(c), uint(eventID), uint(appID)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "申請已接受"})
}
