package repository

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"volunteer_hub/internal/models"
	"volunteer_hub/internal/storage"
)

// ReadMarkRepository 保存每個 (用戶, 對話) 的已讀水位
type ReadMarkRepository interface {
	Get(userID uint, conversationKey string) (uint64, error)
	Advance(userID uint, conversationKey string, uptoSeq uint64) error
}

type readMarkRepository struct {
	baseRepository
}

func NewReadMarkRepository(db *storage.PostgresDB) ReadMarkRepository {
	return &readMarkRepository{baseRepository{db: db}}
}

// Get 讀取已讀水位，沒有記錄時視為 0
func (r *readMarkRepository) Get(userID uint, conversationKey string) (uint64, error) {
	var mark models.ReadMark
	err := r.db.
		Where("user_id = ? AND conversation_key = ?", userID, conversationKey).
		First(&mark).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return mark.LastReadSeq, nil
}

// Advance 推進已讀水位。水位只會單調前進，
// 嘗試往回設定是無操作（no-op），不是錯誤。
func (r *readMarkRepository) Advance(userID uint, conversationKey string, uptoSeq uint64) error {
	mark := models.ReadMark{
		UserID:          userID,
		ConversationKey: conversationKey,
		LastReadSeq:     uptoSeq,
	}
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "conversation_key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"last_read_seq": gorm.Expr("GREATEST(read_marks.last_read_seq, ?)", uptoSeq),
		}),
	}).Create(&mark).Error
}
