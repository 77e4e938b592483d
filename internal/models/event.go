package models

import (
	"time"

	"gorm.io/gorm"
)

// Event 表示一個志工活動。
// 活動生命週期本身不是聊天核心的範圍，這裡只保留
// 成員資格判斷（管理者是誰、誰的申請被接受）所需的最小結構。
type Event struct {
	gorm.Model
	Title        string        `gorm:"not null" json:"title"`
	Description  string        `gorm:"type:text" json:"description"`
	Location     string        `json:"location"`
	StartTime    time.Time     `json:"start_time"`
	ManagerID    uint          `gorm:"index;not null" json:"manager_id"` // 建立活動的管理者
	Applications []Application `gorm:"foreignKey:EventID" json:"-"`
}

// Application 表示志工對活動的申請
type Application struct {
	gorm.Model
	EventID     uint              `gorm:"index;not null" json:"event_id"`
	VolunteerID uint              `gorm:"index;not null" json:"volunteer_id"`
	Status      ApplicationStatus `gorm:"not null" json:"status"`
}

// ApplicationStatus 定義申請狀態的類型
type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "pending"
	ApplicationAccepted ApplicationStatus = "accepted"
	ApplicationRejected ApplicationStatus = "rejected"
)
