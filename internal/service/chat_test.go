package service

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volunteer_hub/internal/apperr"
	"volunteer_hub/internal/models"
	"volunteer_hub/internal/repository"
)

// recordingBroadcaster 記錄每次推播，供測試驗證推播次數與內容
type recordingBroadcaster struct {
	refs []models.ConversationRef
	msgs []*models.ChatMessage
}

func (b *recordingBroadcaster) BroadcastMessage(ref models.ConversationRef, msg *models.ChatMessage) {
	b.refs = append(b.refs, ref)
	b.msgs = append(b.msgs, msg)
}

type chatFixture struct {
	chat      *ChatService
	messages  *repository.MemoryMessageRepository
	readMarks *repository.MemoryReadMarkRepository
	users     *repository.MemoryUserRepository
	events    *repository.MemoryEventRepository
	hub       *recordingBroadcaster
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()

	f := &chatFixture{
		messages:  repository.NewMemoryMessageRepository(),
		readMarks: repository.NewMemoryReadMarkRepository(),
		users:     repository.NewMemoryUserRepository(),
		events:    repository.NewMemoryEventRepository(),
		hub:       &recordingBroadcaster{},
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.chat = NewChatService(
		f.messages, f.readMarks, f.users,
		NewEventService(f.events),
		NewMediaService(newFakeBlobStore()),
		f.hub, log,
	)
	return f
}

func (f *chatFixture) addUser(t *testing.T, username, name string, role models.UserRole) uint {
	t.Helper()
	user := &models.User{Username: username, Name: name, Role: role}
	require.NoError(t, f.users.Create(user))
	return user.ID
}

// 建立一個活動並接受指定志工，回傳活動 ID
func (f *chatFixture) addEvent(t *testing.T, managerID uint, volunteerIDs ...uint) uint {
	t.Helper()
	event := &models.Event{Title: "河岸淨灘", ManagerID: managerID}
	require.NoError(t, f.events.Create(event))
	for _, id := range volunteerIDs {
		app := &models.Application{EventID: event.ID, VolunteerID: id, Status: models.ApplicationAccepted}
		require.NoError(t, f.events.CreateApplication(app))
	}
	return event.ID
}

func TestChatService_SendPersistsThenBroadcasts(t *testing.T) {
	f := newChatFixture(t)
	manager := f.addUser(t, "mgr", "王經理", models.RoleEventManager)
	volunteer := f.addUser(t, "vol", "小明", models.RoleVolunteer)
	ref := models.DirectThread(manager, volunteer)

	msg, err := f.chat.Send(ref, manager, "活動時間改到下午兩點", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), msg.Seq)
	assert.Equal(t, "王經理", msg.SenderName)

	// 訊息已持久化
	stored, err := f.messages.ListSince(ref, 0, 0)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "活動時間改到下午兩點", stored[0].Text)

	// 推播帶的是已持久化的那一則
	require.Len(t, f.hub.msgs, 1)
	assert.Equal(t, msg, f.hub.msgs[0])
	assert.Equal(t, ref, f.hub.refs[0])
}

func TestChatService_SendRejectsEmpty(t *testing.T) {
	f := newChatFixture(t)
	a := f.addUser(t, "a", "", models.RoleVolunteer)
	b := f.addUser(t, "b", "", models.RoleVolunteer)
	ref := models.DirectThread(a, b)

	_, err := f.chat.Send(ref, a, "  ", nil)
	require.ErrorIs(t, err, apperr.ErrEmptyMessage)

	// 拒絕的發送不留痕跡：不寫入也不推播
	stored, _ := f.messages.ListSince(ref, 0, 0)
	assert.Empty(t, stored)
	assert.Empty(t, f.hub.msgs)
}

func TestChatService_SendRejectsThirdParty(t *testing.T) {
	f := newChatFixture(t)
	a := f.addUser(t, "a", "", models.RoleVolunteer)
	b := f.addUser(t, "b", "", models.RoleVolunteer)
	outsider := f.addUser(t, "c", "", models.RoleVolunteer)
	ref := models.DirectThread(a, b)

	_, err := f.chat.Send(ref, outsider, "讓我加入", nil)
	require.ErrorIs(t, err, apperr.ErrNotParticipant)

	stored, _ := f.messages.ListSince(ref, 0, 0)
	assert.Empty(t, stored)
	assert.Empty(t, f.hub.msgs)
}

func TestChatService_SendEventRoomAuthorization(t *testing.T) {
	f := newChatFixture(t)
	manager := f.addUser(t, "mgr", "", models.RoleEventManager)
	volunteer := f.addUser(t, "vol", "", models.RoleVolunteer)
	outsider := f.addUser(t, "out", "", models.RoleVolunteer)
	eventID := f.addEvent(t, manager, volunteer)
	ref := models.EventRoom(eventID)

	_, err := f.chat.Send(ref, manager, "大家好", nil)
	require.NoError(t, err)
	_, err = f.chat.Send(ref, volunteer, "你好", nil)
	require.NoError(t, err)

	_, err = f.chat.Send(ref, outsider, "我也來", nil)
	require.ErrorIs(t, err, apperr.ErrNotParticipant)

	stored, _ := f.messages.ListSince(ref, 0, 0)
	assert.Len(t, stored, 2)
}

func TestChatService_SendWithMedia(t *testing.T) {
	f := newChatFixture(t)
	a := f.addUser(t, "a", "", models.RoleVolunteer)
	b := f.addUser(t, "b", "", models.RoleVolunteer)
	ref := models.DirectThread(a, b)

	msg, err := f.chat.Send(ref, a, "現場照片", &MediaUpload{Data: pngBytes, ContentType: "image/png"})
	require.NoError(t, err)
	require.NotNil(t, msg.Media)
	assert.Equal(t, models.MediaPhoto, msg.Media.Kind)
	assert.NotEmpty(t, msg.Media.URL)
}

func TestChatService_SendUnsupportedMediaLeavesNoTrace(t *testing.T) {
	f := newChatFixture(t)
	a := f.addUser(t, "a", "", models.RoleVolunteer)
	b := f.addUser(t, "b", "", models.RoleVolunteer)
	ref := models.DirectThread(a, b)

	_, err := f.chat.Send(ref, a, "附件", &MediaUpload{Data: pdfBytes, ContentType: "application/pdf"})
	require.ErrorIs(t, err, apperr.ErrUnsupportedMedia)

	stored, _ := f.messages.ListSince(ref, 0, 0)
	assert.Empty(t, stored)
	assert.Empty(t, f.hub.msgs)
}

func TestChatService_SendToVolunteers(t *testing.T) {
	f := newChatFixture(t)
	manager := f.addUser(t, "mgr", "王經理", models.RoleEventManager)
	v1 := f.addUser(t, "v1", "小明", models.RoleVolunteer)
	v2 := f.addUser(t, "v2", "小華", models.RoleVolunteer)
	eventID := f.addEvent(t, manager, v1, v2)

	msgs, err := f.chat.SendToVolunteers(manager, eventID, []uint{v1, v2, v1}, "集合地點更新")
	require.NoError(t, err)
	// 重複的收件人去重，每人恰好一則
	require.Len(t, msgs, 2)

	for _, v := range []uint{v1, v2} {
		stored, err := f.messages.ListSince(models.DirectThread(manager, v), 0, 0)
		require.NoError(t, err)
		require.Len(t, stored, 1)
		assert.Equal(t, "集合地點更新", stored[0].Text)
		assert.Equal(t, manager, stored[0].SenderID)
	}
}

func TestChatService_SendToVolunteersRejectsNonParticipant(t *testing.T) {
	f := newChatFixture(t)
	manager := f.addUser(t, "mgr", "", models.RoleEventManager)
	v1 := f.addUser(t, "v1", "", models.RoleVolunteer)
	stranger := f.addUser(t, "s", "", models.RoleVolunteer)
	eventID := f.addEvent(t, manager, v1)

	// 名單中有一個非參與者：整批拒絕，合法收件人也不該收到
	msgs, err := f.chat.SendToVolunteers(manager, eventID, []uint{v1, stranger}, "通知")
	require.ErrorIs(t, err, apperr.ErrNotParticipant)
	assert.Empty(t, msgs)

	stored, _ := f.messages.ListSince(models.DirectThread(manager, v1), 0, 0)
	assert.Empty(t, stored)
}

func TestChatService_SendToVolunteersRejectsNonOwner(t *testing.T) {
	f := newChatFixture(t)
	manager := f.addUser(t, "mgr", "", models.RoleEventManager)
	other := f.addUser(t, "other", "", models.RoleEventManager)
	v1 := f.addUser(t, "v1", "", models.RoleVolunteer)
	eventID := f.addEvent(t, manager, v1)

	_, err := f.chat.SendToVolunteers(other, eventID, []uint{v1}, "通知")
	require.ErrorIs(t, err, apperr.ErrNotParticipant)
}

func TestChatService_CatchUpAfterOffline(t *testing.T) {
	f := newChatFixture(t)
	a := f.addUser(t, "a", "", models.RoleVolunteer)
	b := f.addUser(t, "b", "", models.RoleVolunteer)
	ref := models.DirectThread(a, b)

	// b 離線期間 a 連發三則；推播沒有人收到也無妨
	for _, text := range []string{"一", "二", "三"} {
		_, err := f.chat.Send(ref, a, text, nil)
		require.NoError(t, err)
	}

	// b 上線後從序號 1 之後補讀
	msgs, err := f.chat.DirectMessages(b, a, 1, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "二", msgs[0].Text)
	assert.Equal(t, "三", msgs[1].Text)
}

func TestChatService_EventMessagesRequiresParticipant(t *testing.T) {
	f := newChatFixture(t)
	manager := f.addUser(t, "mgr", "", models.RoleEventManager)
	outsider := f.addUser(t, "out", "", models.RoleVolunteer)
	eventID := f.addEvent(t, manager)

	_, err := f.chat.Send(models.EventRoom(eventID), manager, "hello", nil)
	require.NoError(t, err)

	_, err = f.chat.EventMessages(outsider, eventID, 0, 0)
	require.ErrorIs(t, err, apperr.ErrNotParticipant)
}

func TestChatService_SendersAndUnread(t *testing.T) {
	f := newChatFixture(t)
	a := f.addUser(t, "a", "阿明", models.RoleVolunteer)
	b := f.addUser(t, "b", "阿華", models.RoleVolunteer)

	ref := models.DirectThread(a, b)
	_, err := f.chat.Send(ref, a, "嗨", nil)
	require.NoError(t, err)
	last, err := f.chat.Send(ref, a, "在嗎", nil)
	require.NoError(t, err)

	// b 的視角：一個對話、兩則未讀、最後一則是「在嗎」
	summaries, err := f.chat.ListSenders(b)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, a, summaries[0].CounterpartID)
	assert.Equal(t, "阿明", summaries[0].Name)
	assert.Equal(t, int64(2), summaries[0].UnreadCount)
	assert.Equal(t, "在嗎", summaries[0].LastMessage.Text)

	// 標記已讀後未讀歸零
	require.NoError(t, f.chat.MarkRead(b, ref, last.Seq))
	summaries, err = f.chat.ListSenders(b)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, int64(0), summaries[0].UnreadCount)

	// b 回覆：a 有未讀，b 自己發的不算進 b 的未讀
	_, err = f.chat.Send(ref, b, "在啊", nil)
	require.NoError(t, err)

	summaries, err = f.chat.ListSenders(b)
	require.NoError(t, err)
	assert.Equal(t, int64(0), summaries[0].UnreadCount)

	summaries, err = f.chat.ListSenders(a)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, b, summaries[0].CounterpartID)
	assert.Equal(t, int64(1), summaries[0].UnreadCount)
}

func TestChatService_MarkReadMonotonic(t *testing.T) {
	f := newChatFixture(t)
	a := f.addUser(t, "a", "", models.RoleVolunteer)
	b := f.addUser(t, "b", "", models.RoleVolunteer)
	ref := models.DirectThread(a, b)

	for i := 0; i < 3; i++ {
		_, err := f.chat.Send(ref, a, "x", nil)
		require.NoError(t, err)
	}

	require.NoError(t, f.chat.MarkRead(b, ref, 3))
	// 往回標記是無操作，水位不退
	require.NoError(t, f.chat.MarkRead(b, ref, 1))

	summaries, err := f.chat.ListSenders(b)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, int64(0), summaries[0].UnreadCount)
}

func TestChatService_MarkReadRequiresParticipant(t *testing.T) {
	f := newChatFixture(t)
	a := f.addUser(t, "a", "", models.RoleVolunteer)
	b := f.addUser(t, "b", "", models.RoleVolunteer)
	outsider := f.addUser(t, "c", "", models.RoleVolunteer)

	err := f.chat.MarkRead(outsider, models.DirectThread(a, b), 1)
	require.ErrorIs(t, err, apperr.ErrNotParticipant)
}
