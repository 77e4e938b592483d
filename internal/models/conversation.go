package models

import (
	"fmt"
)

// ConversationKind 定義對話種類的類型
type ConversationKind string

const (
	ConversationEvent  ConversationKind = "event"  // 活動群組聊天室
	ConversationDirect ConversationKind = "direct" // 志工與活動管理者的一對一對話
)

// ConversationRef 標識一個對話。對話不需要事先建立，
// 從第一則訊息引用它的那一刻起就存在。
//
// 兩種形式：
//   - 活動聊天室：Kind=event，EventID 有值
//   - 一對一對話：Kind=direct，PartyA/PartyB 有值且 PartyA < PartyB
type ConversationRef struct {
	Kind    ConversationKind
	EventID uint
	PartyA  uint
	PartyB  uint
}

// EventRoom 建立一個活動聊天室的對話引用
func EventRoom(eventID uint) ConversationRef {
	return ConversationRef{Kind: ConversationEvent, EventID: eventID}
}

// DirectThread 建立一個一對一對話的引用。
// 參與者順序會被正規化（小的 ID 在前），因此同樣的兩個用戶
// 無論誰先發起，都會對應到同一個對話。
func DirectThread(a, b uint) ConversationRef {
	if a > b {
		a, b = b, a
	}
	return ConversationRef{Kind: ConversationDirect, PartyA: a, PartyB: b}
}

// Key 回傳對話的唯一鍵，作為訊息排序計數器和已讀水位的索引鍵
func (r ConversationRef) Key() string {
	if r.Kind == ConversationEvent {
		return fmt.Sprintf("event:%d", r.EventID)
	}
	return fmt.Sprintf("dm:%d:%d", r.PartyA, r.PartyB)
}

// DirectRoomKey 回傳用戶個人訊息房的房間鍵。
// 一對一訊息推播到雙方的個人訊息房，而不是對話本身的鍵。
func DirectRoomKey(userID uint) string {
	return fmt.Sprintf("user:%d", userID)
}

// Includes 判斷用戶是否為一對一對話的其中一方。
// 活動聊天室的成員資格需查詢活動參與者，不在此判斷。
func (r ConversationRef) Includes(userID uint) bool {
	return r.Kind == ConversationDirect && (r.PartyA == userID || r.PartyB == userID)
}

// Counterpart 回傳一對一對話中 viewer 的對方。
// viewer 不是對話一方時回傳 0。
func (r ConversationRef) Counterpart(viewerID uint) uint {
	switch {
	case r.Kind != ConversationDirect:
		return 0
	case r.PartyA == viewerID:
		return r.PartyB
	case r.PartyB == viewerID:
		return r.PartyA
	default:
		return 0
	}
}

// SenderSummary 是某個用戶視角下的對話摘要：
// 對方是誰、最後一則訊息、未讀數量。
// 這個結構不會被儲存，每次查詢時由訊息記錄和已讀水位重新計算。
type SenderSummary struct {
	CounterpartID uint         `json:"counterpartId"`
	Name          string       `json:"name"`
	LastMessage   *ChatMessage `json:"lastMessage"`
	UnreadCount   int64        `json:"unreadCount"`
}
