package service

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"volunteer_hub/internal/models"
)

// Client 代表一個 WebSocket 客戶端連接。
// 每個連接都是獨立的實例，有自己的生命週期，
// 不存在行程層級共享的連接狀態。
type Client struct {
	ID       uuid.UUID       // 連接 ID
	UserID   uint            // 已驗證的用戶 ID
	Conn     *websocket.Conn // WebSocket 連接
	SendChan chan []byte     // 消息發送通道，用於異步傳送消息
	OpenedAt time.Time
}

// ParticipantChecker 是活動成員資格的外部查詢能力
type ParticipantChecker interface {
	IsParticipant(userID, eventID uint) (bool, error)
}

// ChatHub 同時扮演兩個角色：
//   - 房間管理：純記憶體的路由表，記錄哪些連接屬於哪些房間
//   - 連接註冊：管理每個連接的生命週期並提供推播原語
//
// 房間鍵有兩種：活動聊天室 "event:{id}"、個人訊息房 "user:{id}"。
// 一對一訊息的推播走雙方的個人訊息房。
type ChatHub struct {
	clientsMux sync.RWMutex               // 用於保護 rooms/clients 的讀寫鎖
	rooms      map[string]map[*Client]bool // roomKey -> client -> bool
	clients    map[*Client]map[string]bool // client -> 它加入的房間鍵
	events     ParticipantChecker
	log        *slog.Logger
}

// NewChatHub 創建並初始化新的 ChatHub
func NewChatHub(events ParticipantChecker, log *slog.Logger) *ChatHub {
	return &ChatHub{
		rooms:   make(map[string]map[*Client]bool),
		clients: make(map[*Client]map[string]bool),
		events:  events,
		log:     log,
	}
}

// HandleConnection 處理新的 WebSocket 連接請求。
// 連接狀態機：Disconnected → Connected →（加入零或多個房間）→ Disconnected。
// 這個方法會阻塞到連接關閉，關閉時清除該連接的所有房間成員資格。
func (h *ChatHub) HandleConnection(conn *websocket.Conn, userID uint) {
	client := &Client{
		ID:       uuid.New(),
		UserID:   userID,
		Conn:     conn,
		SendChan: make(chan []byte, 256), // 設置緩衝大小為 256 的消息通道
		OpenedAt: time.Now(),
	}

	h.register(client)

	// 確保連接關閉時清理資源。
	// SendChan 只會在持有鎖的 unregister 裡關閉，
	// 推播端在同一把鎖下檢查連接是否仍註冊，不會寫入已關閉的通道。
	defer func() {
		h.unregister(client)
		conn.Close()
	}()

	// 啟動讀寫處理
	go h.writePump(client)
	h.readPump(client)
}

// readPump 持續監聽並處理從客戶端接收的框架
func (h *ChatHub) readPump(client *Client) {
	client.Conn.SetReadLimit(4096) // 設置最大消息大小為 4KB
	client.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, raw, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn("websocket unexpected close", "error", err)
			}
			break
		}

		var frame models.WSFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			h.sendError(client, "無法解析的消息格式")
			continue
		}

		h.handleFrame(client, frame)
	}
}

// handleFrame 分派客戶端發來的框架
func (h *ChatHub) handleFrame(client *Client, frame models.WSFrame) {
	switch frame.Type {
	case models.FrameJoinEventChat:
		var payload models.JoinEventPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			h.sendError(client, "無法解析的 joinEventChat 內容")
			return
		}
		if err := h.JoinEventRoom(client, payload.EventID); err != nil {
			h.sendError(client, err.Error())
		}
	case models.FrameJoinUserRoom:
		var payload models.JoinUserPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			h.sendError(client, "無法解析的 joinUserRoom 內容")
			return
		}
		if err := h.JoinUserRoom(client, payload.UserID); err != nil {
			h.sendError(client, err.Error())
		}
	case models.FrameSendMessage:
		// sendMessage 只是客戶端樂觀回顯的鏡像。
		// 唯一的持久化路徑是 REST 端點，那裡先寫入再廣播；
		// 在這裡觸發寫入或廣播會造成重複投遞。
		h.log.Debug("ignoring sendMessage mirror frame", "user_id", client.UserID)
	default:
		h.sendError(client, fmt.Sprintf("未知的消息類型: %s", frame.Type))
	}
}

// writePump 處理向客戶端發送消息的邏輯
func (h *ChatHub) writePump(client *Client) {
	// 設置心跳檢查計時器
	ticker := time.NewTicker(54 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-client.SendChan:
			// 設置寫入超時
			client.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			// 發送心跳包
			client.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// JoinEventRoom 把連接加入活動聊天室。
// 只有活動參與者（管理者或申請被接受的志工）可以加入；
// 重複加入是無操作，不是錯誤。
func (h *ChatHub) JoinEventRoom(client *Client, eventID uint) error {
	ok, err := h.events.IsParticipant(client.UserID, eventID)
	if err != nil {
		return fmt.Errorf("無法確認活動成員資格: %w", err)
	}
	if !ok {
		return fmt.Errorf("用戶不是活動 %d 的參與者", eventID)
	}

	h.joinRoom(client, models.EventRoom(eventID).Key())
	return nil
}

// JoinUserRoom 把連接加入個人訊息房。
// 只能加入自己的：請求的 userID 必須等於連接驗證過的身分。
func (h *ChatHub) JoinUserRoom(client *Client, userID uint) error {
	if userID != client.UserID {
		return fmt.Errorf("不能加入其他用戶的訊息房")
	}

	h.joinRoom(client, models.DirectRoomKey(userID))
	return nil
}

// joinRoom 安全地把連接加入房間，重複加入是無操作
func (h *ChatHub) joinRoom(client *Client, roomKey string) {
	h.clientsMux.Lock()
	defer h.clientsMux.Unlock()

	if h.clients[client] == nil {
		// 連接已經關閉，忽略
		return
	}
	if h.rooms[roomKey] == nil {
		h.rooms[roomKey] = make(map[*Client]bool)
	}
	h.rooms[roomKey][client] = true
	h.clients[client][roomKey] = true
}

// LeaveRoom 把連接移出房間
func (h *ChatHub) LeaveRoom(client *Client, roomKey string) {
	h.clientsMux.Lock()
	defer h.clientsMux.Unlock()
	h.leaveRoomLocked(client, roomKey)
}

func (h *ChatHub) leaveRoomLocked(client *Client, roomKey string) {
	if clients, ok := h.rooms[roomKey]; ok {
		delete(clients, client)
		// 如果房間空了，刪除房間
		if len(clients) == 0 {
			delete(h.rooms, roomKey)
		}
	}
	if rooms, ok := h.clients[client]; ok {
		delete(rooms, roomKey)
	}
}

// register 安全地添加新的客戶端連接
func (h *ChatHub) register(client *Client) {
	h.clientsMux.Lock()
	defer h.clientsMux.Unlock()
	h.clients[client] = make(map[string]bool)
}

// unregister 安全地移除客戶端連接及其所有房間成員資格，
// 並關閉發送通道。重複呼叫是無操作。
func (h *ChatHub) unregister(client *Client) {
	h.clientsMux.Lock()
	defer h.clientsMux.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	for roomKey := range h.clients[client] {
		h.leaveRoomLocked(client, roomKey)
	}
	delete(h.clients, client)
	close(client.SendChan)
}

// BroadcastMessage 把一則已持久化的訊息推播給對話的所有在線成員。
// 活動訊息送到活動聊天室，一對一訊息送到雙方的個人訊息房。
//
// 推播是盡力而為：收件者不在線就靜默跳過（訊息已經持久化，
// 對方下次補讀時會取到）；單一連接卡住不會阻塞其他收件者。
func (h *ChatHub) BroadcastMessage(ref models.ConversationRef, msg *models.ChatMessage) {
	frame, err := models.NewWSFrame(models.FrameReceiveMessage, msg)
	if err != nil {
		h.log.Error("failed to encode receiveMessage frame", "error", err)
		return
	}

	for _, roomKey := range deliveryRooms(ref) {
		h.pushToRoom(roomKey, frame)
	}
}

// deliveryRooms 決定一則訊息要推播到哪些房間
func deliveryRooms(ref models.ConversationRef) []string {
	if ref.Kind == models.ConversationEvent {
		return []string{ref.Key()}
	}
	return []string{models.DirectRoomKey(ref.PartyA), models.DirectRoomKey(ref.PartyB)}
}

// pushToRoom 向房間內所有連接非阻塞地推送一個框架。
// 發送在讀鎖下進行，與持寫鎖的 unregister 互斥。
func (h *ChatHub) pushToRoom(roomKey string, frame []byte) {
	var dropped []*Client

	h.clientsMux.RLock()
	for client := range h.rooms[roomKey] {
		select {
		case client.SendChan <- frame:
			// 消息成功加入發送隊列
		default:
			// 客戶端消息隊列已滿：投遞降級，斷開連接讓客戶端重連補讀
			h.log.Warn("delivery degraded, dropping slow client",
				"user_id", client.UserID, "connection_id", client.ID, "room", roomKey)
			dropped = append(dropped, client)
		}
	}
	h.clientsMux.RUnlock()

	for _, client := range dropped {
		h.unregister(client)
		client.Conn.Close()
	}
}

// sendError 向單一連接發送錯誤框架
func (h *ChatHub) sendError(client *Client, message string) {
	frame, err := models.NewWSFrame(models.FrameError, map[string]string{"message": message})
	if err != nil {
		return
	}

	h.clientsMux.RLock()
	defer h.clientsMux.RUnlock()
	if _, ok := h.clients[client]; !ok {
		return
	}
	select {
	case client.SendChan <- frame:
	default:
	}
}

// RoomSize 獲取指定房間的在線連接數量
func (h *ChatHub) RoomSize(roomKey string) int {
	h.clientsMux.RLock()
	defer h.clientsMux.RUnlock()
	return len(h.rooms[roomKey])
}
