package service

import (
	"log/slog"
	"sort"

	"github.com/samber/lo"

	"volunteer_hub/internal/apperr"
	"volunteer_hub/internal/models"
	"volunteer_hub/internal/repository"
)

// Broadcaster 是即時推播的能力，由 ChatHub 提供。
// 推播是盡力而為的：失敗不回傳錯誤，補讀查詢是通用的恢復路徑。
type Broadcaster interface {
	BroadcastMessage(ref models.ConversationRef, msg *models.ChatMessage)
}

// MediaUpload 是隨訊息上傳的媒體內容
type MediaUpload struct {
	Data        []byte
	ContentType string
}

// EventDirectory 是聊天核心對活動管理這個外部協作者的依賴：
// 成員資格查詢，加上群發授權所需的活動查詢。
type EventDirectory interface {
	ParticipantChecker
	GetEvent(eventID uint) (*models.Event, error)
}

// ChatService 是訊息投遞的協調者：接收發送請求，先持久化再推播。
// 它是唯一允許在單次邏輯發送中同時動到儲存層和即時路由的元件。
type ChatService struct {
	messageRepo  repository.MessageRepository
	readMarkRepo repository.ReadMarkRepository
	userRepo     repository.UserRepository
	events       EventDirectory
	media        *MediaService
	hub          Broadcaster
	log          *slog.Logger
}

func NewChatService(
	messageRepo repository.MessageRepository,
	readMarkRepo repository.ReadMarkRepository,
	userRepo repository.UserRepository,
	events EventDirectory,
	media *MediaService,
	hub Broadcaster,
	log *slog.Logger,
) *ChatService {
	return &ChatService{
		messageRepo:  messageRepo,
		readMarkRepo: readMarkRepo,
		userRepo:     userRepo,
		events:       events,
		media:        media,
		hub:          hub,
		log:          log,
	}
}

// Send 是發送訊息的唯一權威路徑：
//
//  1. 有媒體先解析媒體（失敗原樣傳回，不寫入任何東西）
//  2. 驗證發送者是對話的合法參與者
//  3. 寫入訊息儲存，這是持久化提交點：
//     之後無論推播結果如何，訊息都已永久存在
//  4. 向對話的在線成員推播
//  5. 把已持久化的訊息回傳給呼叫者（呼叫者自己立即渲染，
//     不需要等自己的回顯推播）
//
// 持久化嚴格先於推播：在 3 和 4 之間崩潰的最壞結果是
// 「漏掉即時推播、補讀可取回」，永遠不會是「推播了卻遺失」。
// 推播失敗不回滾、不向呼叫者回報錯誤。
func (s *ChatService) Send(ref models.ConversationRef, senderID uint, text string, upload *MediaUpload) (*models.ChatMessage, error) {
	// 媒體解析可能很慢（例如大影片），在進任何鎖之前完成
	var media *models.MediaRef
	if upload != nil {
		var err error
		media, err = s.media.Store(upload.Data, upload.ContentType)
		if err != nil {
			return nil, err
		}
	}

	if err := s.authorizeSender(ref, senderID); err != nil {
		return nil, err
	}

	msg := models.NewChatMessage(ref, senderID, s.senderName(senderID), text, media)
	if err := s.messageRepo.Append(msg); err != nil {
		return nil, err
	}

	// 持久化提交點之後：只推播，不再失敗
	s.hub.BroadcastMessage(ref, msg)

	return msg, nil
}

// SendToVolunteers 是群發變體：活動管理者把同一段文字
// 分別發給選定的一批已接受志工，每人一則一對一訊息。
// 所有授權檢查在第一次寫入之前完成，驗證失敗不留任何痕跡。
func (s *ChatService) SendToVolunteers(managerID, eventID uint, recipientIDs []uint, text string) ([]*models.ChatMessage, error) {
	event, err := s.eventOwnedBy(managerID, eventID)
	if err != nil {
		return nil, err
	}

	recipientIDs = lo.Uniq(recipientIDs)
	for _, recipientID := range recipientIDs {
		ok, err := s.events.IsParticipant(recipientID, event.ID)
		if err != nil {
			return nil, err
		}
		if !ok || recipientID == managerID {
			return nil, apperr.ErrNotParticipant
		}
	}

	messages := make([]*models.ChatMessage, 0, len(recipientIDs))
	for _, recipientID := range recipientIDs {
		msg, err := s.Send(models.DirectThread(managerID, recipientID), managerID, text, nil)
		if err != nil {
			return messages, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// EventMessages 補讀活動聊天室的訊息，序號升冪。
// 只有活動參與者可以讀取。
func (s *ChatService) EventMessages(viewerID, eventID uint, afterSeq uint64, limit int) ([]models.ChatMessage, error) {
	ref := models.EventRoom(eventID)
	if err := s.authorizeSender(ref, viewerID); err != nil {
		return nil, err
	}
	return s.messageRepo.ListSince(ref, afterSeq, limit)
}

// DirectMessages 補讀與指定對方的一對一對話，序號升冪
func (s *ChatService) DirectMessages(viewerID, counterpartID uint, afterSeq uint64, limit int) ([]models.ChatMessage, error) {
	return s.messageRepo.ListSince(models.DirectThread(viewerID, counterpartID), afterSeq, limit)
}

// ListSenders 推導 viewer 的對話摘要列表：
// 每個交換過訊息的對方一筆，帶最後一則訊息和未讀數，
// 按最後訊息時間由新到舊排列。
//
// 摘要不是獨立維護的狀態，每次查詢都從訊息記錄
// 和已讀水位重新計算。
func (s *ChatService) ListSenders(viewerID uint) ([]models.SenderSummary, error) {
	refs, err := s.messageRepo.DirectThreadsFor(viewerID)
	if err != nil {
		return nil, err
	}

	summaries := make([]models.SenderSummary, 0, len(refs))
	for _, ref := range refs {
		counterpartID := ref.Counterpart(viewerID)

		last, err := s.messageRepo.LastMessage(ref)
		if err != nil {
			return nil, err
		}
		if last == nil {
			continue
		}

		watermark, err := s.readMarkRepo.Get(viewerID, ref.Key())
		if err != nil {
			return nil, err
		}
		// 未讀數只計對方發的：自己發的訊息不需要被自己讀
		unread, err := s.messageRepo.CountFrom(ref, counterpartID, watermark)
		if err != nil {
			return nil, err
		}

		summaries = append(summaries, models.SenderSummary{
			CounterpartID: counterpartID,
			Name:          s.senderName(counterpartID),
			LastMessage:   last,
			UnreadCount:   unread,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastMessage.CreatedAt.After(summaries[j].LastMessage.CreatedAt)
	})
	return summaries, nil
}

// MarkRead 推進 viewer 在對話中的已讀水位。
// 水位單調前進，往回設定是無操作。
func (s *ChatService) MarkRead(viewerID uint, ref models.ConversationRef, uptoSeq uint64) error {
	if err := s.authorizeSender(ref, viewerID); err != nil {
		return err
	}
	return s.readMarkRepo.Advance(viewerID, ref.Key(), uptoSeq)
}

// authorizeSender 驗證用戶是對話的合法參與者。
// 一對一對話：必須是兩個具名參與者之一，第三方不能加入；
// 活動聊天室：必須是活動參與者（委託給活動成員資格查詢）。
func (s *ChatService) authorizeSender(ref models.ConversationRef, userID uint) error {
	switch ref.Kind {
	case models.ConversationDirect:
		if !ref.Includes(userID) {
			return apperr.ErrNotParticipant
		}
		return nil
	case models.ConversationEvent:
		ok, err := s.events.IsParticipant(userID, ref.EventID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.ErrNotParticipant
		}
		return nil
	default:
		return apperr.ErrNotParticipant
	}
}

// eventOwnedBy 取回活動並確認 managerID 是它的建立者
func (s *ChatService) eventOwnedBy(managerID, eventID uint) (*models.Event, error) {
	event, err := s.events.GetEvent(eventID)
	if err != nil {
		return nil, apperr.ErrNotParticipant
	}
	if event.ManagerID != managerID {
		return nil, apperr.ErrNotParticipant
	}
	return event, nil
}

// senderName 查詢用戶顯示名稱，查不到就留空，不阻擋發送
func (s *ChatService) senderName(userID uint) string {
	user, err := s.userRepo.FindByID(userID)
	if err != nil {
		return ""
	}
	if user.Name != "" {
		return user.Name
	}
	return user.Username
}
