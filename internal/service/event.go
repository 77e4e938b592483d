package service

import (
	"errors"
	"time"

	"volunteer_hub/internal/models"
	"volunteer_hub/internal/repository"
)

// EventService 提供聊天核心所需的活動成員資格查詢，
// 以及建立活動、申請、接受申請的最小操作集。
// 完整的活動生命週期管理不在此範圍。
type EventService struct {
	eventRepo repository.EventRepository
}

func NewEventService(eventRepo repository.EventRepository) *EventService {
	return &EventService{eventRepo: eventRepo}
}

// IsParticipant 判斷用戶是否為活動的參與者：
// 建立活動的管理者，或申請被接受的志工。
// 活動聊天室的加入與發言授權都以這個判斷為準。
func (s *EventService) IsParticipant(userID, eventID uint) (bool, error) {
	return s.eventRepo.IsParticipant(userID, eventID)
}

func (s *EventService) CreateEvent(managerID uint, title, description, location string, startTime time.Time) (*models.Event, error) {
	event := &models.Event{
		Title:       title,
		Description: description,
		Location:    location,
		StartTime:   startTime,
		ManagerID:   managerID,
	}
	if err := s.eventRepo.Create(event); err != nil {
		return nil, err
	}
	return event, nil
}

func (s *EventService) GetEvent(eventID uint) (*models.Event, error) {
	return s.eventRepo.FindByID(eventID)
}

// ListCreatedEvents 列出管理者建立的所有活動
func (s *EventService) ListCreatedEvents(managerID uint) ([]models.Event, error) {
	return s.eventRepo.FindByManager(managerID)
}

// ListVolunteers 列出活動所有申請已被接受的志工
func (s *EventService) ListVolunteers(eventID uint) ([]models.User, error) {
	return s.eventRepo.AcceptedVolunteers(eventID)
}

// Apply 志工申請參加活動
func (s *EventService) Apply(eventID, volunteerID uint) (*models.Application, error) {
	event, err := s.eventRepo.FindByID(eventID)
	if err != nil {
		return nil, err
	}
	if event.ManagerID == volunteerID {
		return nil, errors.New("管理者不能申請自己的活動")
	}

	app := &models.Application{
		EventID:     eventID,
		VolunteerID: volunteerID,
		Status:      models.ApplicationPending,
	}
	if err := s.eventRepo.CreateApplication(app); err != nil {
		return nil, err
	}
	return app, nil
}

// AcceptApplication 管理者接受志工的申請。
// 只有活動的建立者可以操作。
func (s *EventService) AcceptApplication(managerID, eventID, appID uint) error {
	event, err := s.eventRepo.FindByID(eventID)
	if err != nil {
		return err
	}
	if event.ManagerID != managerID {
		return errors.New("只有活動的建立者可以審核申請")
	}

	app, err := s.eventRepo.FindApplication(appID)
	if err != nil {
		return err
	}
	if app.EventID != eventID {
		return errors.New("申請不屬於此活動")
	}

	app.Status = models.ApplicationAccepted
	return s.eventRepo.UpdateApplication(app)
}
