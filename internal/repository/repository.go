package repository

import "volunteer_hub/internal/storage"

type Repositories struct {
	User     UserRepository
	Event    EventRepository
	Message  MessageRepository
	ReadMark ReadMarkRepository
}

func NewRepositories(db *storage.PostgresDB) *Repositories {
	return &Repositories{
		User:     NewUserRepository(db),
		Event:    NewEventRepository(db),
		Message:  NewMessageRepository(db),
		ReadMark: NewReadMarkRepository(db),
	}
}
