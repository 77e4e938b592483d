package repository

import (
	"errors"

	"gorm.io/gorm"

	"volunteer_hub/internal/models"
	"volunteer_hub/internal/storage"
)

type EventRepository interface {
	Create(event *models.Event) error
	FindByID(id uint) (*models.Event, error)
	FindByManager(managerID uint) ([]models.Event, error)
	CreateApplication(app *models.Application) error
	FindApplication(id uint) (*models.Application, error)
	UpdateApplication(app *models.Application) error
	AcceptedVolunteers(eventID uint) ([]models.User, error)
	IsParticipant(userID, eventID uint) (bool, error)
}

type eventRepository struct {
	baseRepository
}

func NewEventRepository(db *storage.PostgresDB) EventRepository {
	return &eventRepository{baseRepository{db: db}}
}

func (r *eventRepository) Create(event *models.Event) error {
	return r.create(event)
}

func (r *eventRepository) FindByID(id uint) (*models.Event, error) {
	var event models.Event
	if err := r.findByID(id, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *eventRepository) FindByManager(managerID uint) ([]models.Event, error) {
	var events []models.Event
	err := r.db.Where("manager_id = ?", managerID).Order("created_at DESC").Find(&events).Error
	return events, err
}

func (r *eventRepository) CreateApplication(app *models.Application) error {
	return r.create(app)
}

func (r *eventRepository) FindApplication(id uint) (*models.Application, error) {
	var app models.Application
	if err := r.findByID(id, &app); err != nil {
		return nil, err
	}
	return &app, nil
}

func (r *eventRepository) UpdateApplication(app *models.Application) error {
	return r.update(app)
}

// AcceptedVolunteers 查詢活動所有申請已被接受的志工
func (r *eventRepository) AcceptedVolunteers(eventID uint) ([]models.User, error) {
	var users []models.User
	err := r.db.
		Joins("JOIN applications ON applications.volunteer_id = users.id").
		Where("applications.event_id = ? AND applications.status = ?", eventID, models.ApplicationAccepted).
		Find(&users).Error
	return users, err
}

// IsParticipant 判斷用戶是否為活動的參與者：
// 建立活動的管理者，或申請被接受的志工。
func (r *eventRepository) IsParticipant(userID, eventID uint) (bool, error) {
	event, err := r.FindByID(eventID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	if event.ManagerID == userID {
		return true, nil
	}

	var count int64
	err = r.db.Model(&models.Application{}).
		Where("event_id = ? AND volunteer_id = ? AND status = ?", eventID, userID, models.ApplicationAccepted).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
