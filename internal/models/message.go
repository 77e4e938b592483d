package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// MediaKind 定義媒體附件的種類
type MediaKind string

const (
	MediaPhoto MediaKind = "photo"
	MediaVideo MediaKind = "video"
)

// MediaRef 是一個已解析完成的媒體附件引用。
// URL 一定指向可以直接取回的資源，不會是尚待處理的佔位符。
type MediaRef struct {
	Kind MediaKind `json:"kind"`
	URL  string    `json:"url"`
}

// ChatMessage 代表一則聊天訊息，寫入後不可變更，只能追加和讀取。
//
// Seq 是每個對話內嚴格遞增的序號，在寫入時由訊息儲存層原子分配，
// 是對話內唯一的排序依據（CreatedAt 可能相同，不作排序用）。
type ChatMessage struct {
	ID              uint      `gorm:"primarykey" json:"id"`
	ConversationKey string    `gorm:"size:64;uniqueIndex:idx_conversation_seq,priority:1" json:"-"`
	Seq             uint64    `gorm:"uniqueIndex:idx_conversation_seq,priority:2" json:"seq"`
	EventID         uint      `gorm:"index" json:"eventId,omitempty"` // 活動聊天室才有值
	PartyA          uint      `gorm:"index" json:"-"`                 // 一對一對話才有值
	PartyB          uint      `gorm:"index" json:"-"`
	SenderID        uint      `json:"senderId"`
	SenderName      string    `gorm:"size:128" json:"senderName,omitempty"`
	Text            string    `gorm:"type:text" json:"text"`
	MediaKind       MediaKind `gorm:"size:16" json:"-"`
	MediaURL        string    `json:"-"`
	Media           *MediaRef `gorm:"-" json:"media,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// NewChatMessage 建立一則尚未分配序號的訊息。
// Seq 與 ID 由訊息儲存層在 Append 時填入。
func NewChatMessage(ref ConversationRef, senderID uint, senderName, text string, media *MediaRef) *ChatMessage {
	msg := &ChatMessage{
		ConversationKey: ref.Key(),
		EventID:         ref.EventID,
		PartyA:          ref.PartyA,
		PartyB:          ref.PartyB,
		SenderID:        senderID,
		SenderName:      senderName,
		Text:            text,
		CreatedAt:       time.Now(),
	}
	if media != nil {
		msg.Media = media
		msg.MediaKind = media.Kind
		msg.MediaURL = media.URL
	}
	return msg
}

// Conversation 還原這則訊息所屬的對話引用
func (m *ChatMessage) Conversation() ConversationRef {
	if m.EventID != 0 {
		return EventRoom(m.EventID)
	}
	return DirectThread(m.PartyA, m.PartyB)
}

// AfterFind 從資料庫欄位還原媒體引用
func (m *ChatMessage) AfterFind(*gorm.DB) error {
	if m.MediaKind != "" {
		m.Media = &MediaRef{Kind: m.MediaKind, URL: m.MediaURL}
	}
	return nil
}

// ConversationCounter 保存每個對話的序號計數器，
// 在寫入訊息的交易中以鎖定方式遞增。
type ConversationCounter struct {
	ConversationKey string `gorm:"primaryKey;size:64"`
	NextSeq         uint64
}

// ReadMark 是唯一被持久化的未讀追蹤狀態：
// 每個 (用戶, 對話) 一筆已讀水位，只會單調前進。
type ReadMark struct {
	UserID          uint   `gorm:"primaryKey"`
	ConversationKey string `gorm:"primaryKey;size:64"`
	LastReadSeq     uint64
	UpdatedAt       time.Time
}

// WSFrame 是 WebSocket 通道上雙向傳遞的訊息框架。
// 進出連線的資料都經過這個明確的結構，不再是隱式信任的動態物件。
type WSFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// 客戶端到伺服器的事件類型
const (
	FrameJoinEventChat = "joinEventChat"
	FrameJoinUserRoom  = "joinUserRoom"
	FrameSendMessage   = "sendMessage" // 樂觀回顯鏡像，不觸發持久化
)

// 伺服器到客戶端的事件類型
const (
	FrameReceiveMessage = "receiveMessage"
	FrameError          = "error"
)

// JoinEventPayload 是 joinEventChat 事件的內容
type JoinEventPayload struct {
	EventID uint `json:"eventId"`
}

// JoinUserPayload 是 joinUserRoom 事件的內容
type JoinUserPayload struct {
	UserID uint `json:"userId"`
}

// NewWSFrame 編碼一個帶有指定內容的伺服器端框架
func NewWSFrame(frameType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(WSFrame{Type: frameType, Payload: raw})
}
