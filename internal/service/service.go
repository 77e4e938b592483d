package service

import (
	"log/slog"

	"volunteer_hub/internal/repository"
)

type Services struct {
	User  *UserService
	Event *EventService
	Media *MediaService
	Chat  *ChatService
	Hub   *ChatHub
}

func NewServices(repos *repository.Repositories, blobs BlobStore, log *slog.Logger) *Services {
	userService := NewUserService(repos.User)
	eventService := NewEventService(repos.Event)
	mediaService := NewMediaService(blobs)

	hub := NewChatHub(eventService, log)
	chatService := NewChatService(
		repos.Message, repos.ReadMark, repos.User,
		eventService, mediaService, hub, log)

	return &Services{
		User:  userService,
		Event: eventService,
		Media: mediaService,
		Chat:  chatService,
		Hub:   hub,
	}
}
