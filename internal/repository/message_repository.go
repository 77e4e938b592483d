package repository

import (
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"volunteer_hub/internal/apperr"
	"volunteer_hub/internal/models"
	"volunteer_hub/internal/storage"
)

// MessageRepository 是訊息的持久化儲存，也是訊息順序的唯一來源。
//
// Append 在單一交易內為訊息分配對話範圍內嚴格遞增的序號：
// 兩個併發寫入取得序號的先後，就是所有讀取者（即時推播或
// 補讀查詢）觀察到的順序，下游不允許重排。
type MessageRepository interface {
	Append(msg *models.ChatMessage) error
	ListSince(ref models.ConversationRef, afterSeq uint64, limit int) ([]models.ChatMessage, error)
	LastMessage(ref models.ConversationRef) (*models.ChatMessage, error)
	CountFrom(ref models.ConversationRef, senderID uint, afterSeq uint64) (int64, error)
	DirectThreadsFor(userID uint) ([]models.ConversationRef, error)
}

type messageRepository struct {
	baseRepository
}

func NewMessageRepository(db *storage.PostgresDB) MessageRepository {
	return &messageRepository{baseRepository{db: db}}
}

// Append 持久化一則訊息。內容和媒體同時為空會被拒絕，不產生任何寫入。
//
// 序號分配與訊息寫入在同一個交易內完成：先以 FOR UPDATE 鎖定
// 對話的計數器列再遞增，因此同一對話的併發寫入會在這裡被序列化，
// 序號不會重複也不會出現空洞。
func (r *messageRepository) Append(msg *models.ChatMessage) error {
	if strings.TrimSpace(msg.Text) == "" && msg.Media == nil {
		return apperr.ErrEmptyMessage
	}

	return r.db.Transaction(func(tx *gorm.DB) error {
		counter := models.ConversationCounter{ConversationKey: msg.ConversationKey}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&counter).Error; err != nil {
			return err
		}
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("conversation_key = ?", msg.ConversationKey).
			First(&counter).Error; err != nil {
			return err
		}

		counter.NextSeq++
		if err := tx.Save(&counter).Error; err != nil {
			return err
		}

		msg.Seq = counter.NextSeq
		return tx.Create(msg).Error
	})
}

// ListSince 讀取對話中序號大於 afterSeq 的訊息，按序號升冪排列。
// limit <= 0 表示不限制筆數。
func (r *messageRepository) ListSince(ref models.ConversationRef, afterSeq uint64, limit int) ([]models.ChatMessage, error) {
	query := r.db.
		Where("conversation_key = ? AND seq > ?", ref.Key(), afterSeq).
		Order("seq asc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var messages []models.ChatMessage
	err := query.Find(&messages).Error
	return messages, err
}

// LastMessage 取回對話中序號最大的訊息，對話不存在時回傳 nil
func (r *messageRepository) LastMessage(ref models.ConversationRef) (*models.ChatMessage, error) {
	var msg models.ChatMessage
	err := r.db.
		Where("conversation_key = ?", ref.Key()).
		Order("seq desc").
		First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

// CountFrom 計算對話中指定發送者、序號大於 afterSeq 的訊息數，
// 用於未讀數的推導。
func (r *messageRepository) CountFrom(ref models.ConversationRef, senderID uint, afterSeq uint64) (int64, error) {
	var count int64
	err := r.db.Model(&models.ChatMessage{}).
		Where("conversation_key = ? AND sender_id = ? AND seq > ?", ref.Key(), senderID, afterSeq).
		Count(&count).Error
	return count, err
}

// DirectThreadsFor 列舉用戶參與過的所有一對一對話
func (r *messageRepository) DirectThreadsFor(userID uint) ([]models.ConversationRef, error) {
	type pair struct {
		PartyA uint
		PartyB uint
	}
	var pairs []pair
	err := r.db.Model(&models.ChatMessage{}).
		Select("DISTINCT party_a, party_b").
		Where("event_id = 0 AND (party_a = ? OR party_b = ?)", userID, userID).
		Scan(&pairs).Error
	if err != nil {
		return nil, err
	}

	refs := make([]models.ConversationRef, 0, len(pairs))
	for _, p := range pairs {
		refs = append(refs, models.DirectThread(p.PartyA, p.PartyB))
	}
	return refs, nil
}
