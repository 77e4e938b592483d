package repository

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"gorm.io/gorm"

	"volunteer_hub/internal/apperr"
	"volunteer_hub/internal/models"
)

// 本檔案提供各 repository 介面的記憶體實作，
// 供測試與不連資料庫的本機開發使用。
// 併發語義與 gorm 實作一致：序號分配和水位推進都在鎖內完成。

// MemoryMessageRepository 是 MessageRepository 的記憶體實作
type MemoryMessageRepository struct {
	mu     sync.RWMutex
	byConv map[string][]models.ChatMessage
	nextID uint
}

func NewMemoryMessageRepository() *MemoryMessageRepository {
	return &MemoryMessageRepository{byConv: make(map[string][]models.ChatMessage)}
}

func (r *MemoryMessageRepository) Append(msg *models.ChatMessage) error {
	if strings.TrimSpace(msg.Text) == "" && msg.Media == nil {
		return apperr.ErrEmptyMessage
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	msg.ID = r.nextID
	msg.Seq = uint64(len(r.byConv[msg.ConversationKey])) + 1
	r.byConv[msg.ConversationKey] = append(r.byConv[msg.ConversationKey], *msg)
	return nil
}

func (r *MemoryMessageRepository) ListSince(ref models.ConversationRef, afterSeq uint64, limit int) ([]models.ChatMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []models.ChatMessage
	for _, msg := range r.byConv[ref.Key()] {
		if msg.Seq > afterSeq {
			result = append(result, msg)
			if limit > 0 && len(result) >= limit {
				break
			}
		}
	}
	return result, nil
}

func (r *MemoryMessageRepository) LastMessage(ref models.ConversationRef) (*models.ChatMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	msgs := r.byConv[ref.Key()]
	if len(msgs) == 0 {
		return nil, nil
	}
	last := msgs[len(msgs)-1]
	return &last, nil
}

func (r *MemoryMessageRepository) CountFrom(ref models.ConversationRef, senderID uint, afterSeq uint64) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var count int64
	for _, msg := range r.byConv[ref.Key()] {
		if msg.SenderID == senderID && msg.Seq > afterSeq {
			count++
		}
	}
	return count, nil
}

func (r *MemoryMessageRepository) DirectThreadsFor(userID uint) ([]models.ConversationRef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var refs []models.ConversationRef
	for _, msgs := range r.byConv {
		if len(msgs) == 0 {
			continue
		}
		ref := msgs[0].Conversation()
		if ref.Includes(userID) {
			refs = append(refs, ref)
		}
	}
	// map 迭代順序不固定，排序讓結果可重現
	sort.Slice(refs, func(i, j int) bool { return refs[i].Key() < refs[j].Key() })
	return refs, nil
}

// MemoryReadMarkRepository 是 ReadMarkRepository 的記憶體實作
type MemoryReadMarkRepository struct {
	mu    sync.Mutex
	marks map[string]uint64 // key = "userID|conversationKey"
}

func NewMemoryReadMarkRepository() *MemoryReadMarkRepository {
	return &MemoryReadMarkRepository{marks: make(map[string]uint64)}
}

func markKey(userID uint, conversationKey string) string {
	return fmt.Sprintf("%d|%s", userID, conversationKey)
}

func (r *MemoryReadMarkRepository) Get(userID uint, conversationKey string) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.marks[markKey(userID, conversationKey)], nil
}

func (r *MemoryReadMarkRepository) Advance(userID uint, conversationKey string, uptoSeq uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := markKey(userID, conversationKey)
	if uptoSeq > r.marks[key] {
		r.marks[key] = uptoSeq
	}
	return nil
}

// MemoryEventRepository 是 EventRepository 的記憶體實作
type MemoryEventRepository struct {
	mu     sync.RWMutex
	events map[uint]models.Event
	apps   map[uint]models.Application
	nextID uint
}

func NewMemoryEventRepository() *MemoryEventRepository {
	return &MemoryEventRepository{
		events: make(map[uint]models.Event),
		apps:   make(map[uint]models.Application),
	}
}

func (r *MemoryEventRepository) Create(event *models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	event.ID = r.nextID
	r.events[event.ID] = *event
	return nil
}

func (r *MemoryEventRepository) FindByID(id uint) (*models.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	event, ok := r.events[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &event, nil
}

func (r *MemoryEventRepository) FindByManager(managerID uint) ([]models.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var events []models.Event
	for _, event := range r.events {
		if event.ManagerID == managerID {
			events = append(events, event)
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })
	return events, nil
}

func (r *MemoryEventRepository) CreateApplication(app *models.Application) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	app.ID = r.nextID
	r.apps[app.ID] = *app
	return nil
}

func (r *MemoryEventRepository) FindApplication(id uint) (*models.Application, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	app, ok := r.apps[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &app, nil
}

func (r *MemoryEventRepository) UpdateApplication(app *models.Application) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.apps[app.ID] = *app
	return nil
}

func (r *MemoryEventRepository) AcceptedVolunteers(eventID uint) ([]models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var users []models.User
	for _, app := range r.apps {
		if app.EventID == eventID && app.Status == models.ApplicationAccepted {
			user := models.User{Role: models.RoleVolunteer}
			user.ID = app.VolunteerID
			users = append(users, user)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (r *MemoryEventRepository) IsParticipant(userID, eventID uint) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	event, ok := r.events[eventID]
	if !ok {
		return false, nil
	}
	if event.ManagerID == userID {
		return true, nil
	}
	for _, app := range r.apps {
		if app.EventID == eventID && app.VolunteerID == userID && app.Status == models.ApplicationAccepted {
			return true, nil
		}
	}
	return false, nil
}

// MemoryUserRepository 是 UserRepository 的記憶體實作
type MemoryUserRepository struct {
	mu     sync.RWMutex
	users  map[uint]models.User
	nextID uint
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[uint]models.User)}
}

func (r *MemoryUserRepository) Create(user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	user.ID = r.nextID
	r.users[user.ID] = *user
	return nil
}

func (r *MemoryUserRepository) FindByID(id uint) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &user, nil
}

func (r *MemoryUserRepository) FindByUsername(username string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, user := range r.users {
		if user.Username == username {
			u := user
			return &u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}
