package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volunteer_hub/internal/api"
	"volunteer_hub/internal/models"
	"volunteer_hub/internal/repository"
	"volunteer_hub/internal/service"
	"volunteer_hub/internal/storage"
	"volunteer_hub/internal/utils"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

type apiFixture struct {
	router   *gin.Engine
	services *service.Services
	users    *repository.MemoryUserRepository
	events   *repository.MemoryEventRepository
	messages *repository.MemoryMessageRepository
}

// newAPIFixture 架起完整的 HTTP 層，底下接記憶體儲存和暫存目錄的媒體儲存
func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	utils.SetSecret("test-secret")

	f := &apiFixture{
		users:    repository.NewMemoryUserRepository(),
		events:   repository.NewMemoryEventRepository(),
		messages: repository.NewMemoryMessageRepository(),
	}
	repos := &repository.Repositories{
		User:     f.users,
		Event:    f.events,
		Message:  f.messages,
		ReadMark: repository.NewMemoryReadMarkRepository(),
	}

	blobs, err := storage.NewDiskStore(t.TempDir(), "/media")
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.services = service.NewServices(repos, blobs, log)

	f.router = gin.New()
	api.SetupRoutes(f.router, f.services)
	return f
}

// addUser 直接在儲存層建立用戶並回傳它的 token
func (f *apiFixture) addUser(t *testing.T, username, name string, role models.UserRole) (uint, string) {
	t.Helper()
	user := &models.User{Username: username, Name: name, Password: "x", Role: role}
	require.NoError(t, f.users.Create(user))

	token, err := utils.GenerateToken(user.ID, string(role))
	require.NoError(t, err)
	return user.ID, token
}

func (f *apiFixture) addEvent(t *testing.T, managerID uint, volunteerIDs ...uint) uint {
	t.Helper()
	event := &models.Event{Title: "食物銀行分裝", ManagerID: managerID}
	require.NoError(t, f.events.Create(event))
	for _, id := range volunteerIDs {
		app := &models.Application{EventID: event.ID, VolunteerID: id, Status: models.ApplicationAccepted}
		require.NoError(t, f.events.CreateApplication(app))
	}
	return event.ID
}

func (f *apiFixture) doJSON(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestRegisterAndLogin(t *testing.T) {
	f := newAPIFixture(t)

	w := f.doJSON(t, http.MethodPost, "/api/register", "", gin.H{
		"username": "ming",
		"password": "secret123",
		"name":     "小明",
		"role":     "volunteer",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.doJSON(t, http.MethodPost, "/api/login", "", gin.H{
		"username": "ming",
		"password": "secret123",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Token  string `json:"token"`
		UserID uint   `json:"userId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
	assert.NotZero(t, resp.UserID)

	w = f.doJSON(t, http.MethodPost, "/api/login", "", gin.H{
		"username": "ming",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestChatRequiresToken(t *testing.T) {
	f := newAPIFixture(t)

	w := f.doJSON(t, http.MethodGet, "/api/chat/senders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.doJSON(t, http.MethodGet, "/api/chat/senders", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestReplyAndDirectCatchUp(t *testing.T) {
	f := newAPIFixture(t)
	aID, aToken := f.addUser(t, "a", "阿明", models.RoleVolunteer)
	bID, bToken := f.addUser(t, "b", "阿華", models.RoleVolunteer)

	w := f.doJSON(t, http.MethodPost, "/api/chat/reply", aToken, gin.H{
		"recipientId": bID,
		"message":     "你好",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var sent models.ChatMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sent))
	assert.Equal(t, uint64(1), sent.Seq)
	assert.Equal(t, aID, sent.SenderID)

	// 對方補讀整個對話
	w = f.doJSON(t, http.MethodGet, fmt.Sprintf("/api/chat/messages/%d", aID), bToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var messages []models.ChatMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &messages))
	require.Len(t, messages, 1)
	assert.Equal(t, "你好", messages[0].Text)

	// 從已讀過的序號之後補讀，沒有新訊息
	w = f.doJSON(t, http.MethodGet, fmt.Sprintf("/api/chat/messages/%d?after=1", aID), bToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &messages))
	assert.Empty(t, messages)
}

func TestReplyRejectsEmptyMessage(t *testing.T) {
	f := newAPIFixture(t)
	_, aToken := f.addUser(t, "a", "", models.RoleVolunteer)
	bID, _ := f.addUser(t, "b", "", models.RoleVolunteer)

	w := f.doJSON(t, http.MethodPost, "/api/chat/reply", aToken, gin.H{
		"recipientId": bID,
		"message":     "   ",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSendersAndMarkRead(t *testing.T) {
	f := newAPIFixture(t)
	aID, aToken := f.addUser(t, "a", "阿明", models.RoleVolunteer)
	bID, bToken := f.addUser(t, "b", "阿華", models.RoleVolunteer)

	w := f.doJSON(t, http.MethodPost, "/api/chat/reply", aToken, gin.H{
		"recipientId": bID,
		"message":     "活動延期",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.doJSON(t, http.MethodGet, "/api/chat/senders", bToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var summaries []models.SenderSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, aID, summaries[0].CounterpartID)
	assert.Equal(t, "阿明", summaries[0].Name)
	assert.Equal(t, int64(1), summaries[0].UnreadCount)
	require.NotNil(t, summaries[0].LastMessage)
	assert.Equal(t, "活動延期", summaries[0].LastMessage.Text)

	w = f.doJSON(t, http.MethodPost, "/api/chat/read", bToken, gin.H{
		"counterpartId": aID,
		"uptoSeq":       summaries[0].LastMessage.Seq,
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.doJSON(t, http.MethodGet, "/api/chat/senders", bToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, int64(0), summaries[0].UnreadCount)
}

func TestMarkReadValidation(t *testing.T) {
	f := newAPIFixture(t)
	_, token := f.addUser(t, "a", "", models.RoleVolunteer)

	// counterpartId 和 eventId 同時給或都不給都是錯的
	w := f.doJSON(t, http.MethodPost, "/api/chat/read", token, gin.H{"uptoSeq": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.doJSON(t, http.MethodPost, "/api/chat/read", token, gin.H{
		"counterpartId": 2, "eventId": 3, "uptoSeq": 1,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBroadcastToVolunteers(t *testing.T) {
	f := newAPIFixture(t)
	managerID, managerToken := f.addUser(t, "mgr", "王經理", models.RoleEventManager)
	v1, v1Token := f.addUser(t, "v1", "小明", models.RoleVolunteer)
	v2, _ := f.addUser(t, "v2", "小華", models.RoleVolunteer)
	eventID := f.addEvent(t, managerID, v1, v2)

	w := f.doJSON(t, http.MethodPost, "/api/chat/send", managerToken, gin.H{
		"eventId":    eventID,
		"recipients": []uint{v1, v2},
		"message":    "請記得帶手套",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var sent []models.ChatMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sent))
	assert.Len(t, sent, 2)

	// 志工端看到的是與管理者的一對一訊息
	w = f.doJSON(t, http.MethodGet, fmt.Sprintf("/api/chat/messages/%d", managerID), v1Token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var messages []models.ChatMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &messages))
	require.Len(t, messages, 1)
	assert.Equal(t, "請記得帶手套", messages[0].Text)
}

func TestBroadcastForbiddenForNonOwner(t *testing.T) {
	f := newAPIFixture(t)
	managerID, _ := f.addUser(t, "mgr", "", models.RoleEventManager)
	_, otherToken := f.addUser(t, "other", "", models.RoleEventManager)
	v1, _ := f.addUser(t, "v1", "", models.RoleVolunteer)
	eventID := f.addEvent(t, managerID, v1)

	w := f.doJSON(t, http.MethodPost, "/api/chat/send", otherToken, gin.H{
		"eventId":    eventID,
		"recipients": []uint{v1},
		"message":    "通知",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestEventCatchUpForbiddenForOutsider(t *testing.T) {
	f := newAPIFixture(t)
	managerID, managerToken := f.addUser(t, "mgr", "", models.RoleEventManager)
	_, outsiderToken := f.addUser(t, "out", "", models.RoleVolunteer)
	eventID := f.addEvent(t, managerID)

	require.NoError(t, f.messages.Append(
		models.NewChatMessage(models.EventRoom(eventID), managerID, "", "內部討論", nil)))

	w := f.doJSON(t, http.MethodGet, fmt.Sprintf("/api/chat/%d", eventID), outsiderToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.doJSON(t, http.MethodGet, fmt.Sprintf("/api/chat/%d", eventID), managerToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateEventMessageWithMedia(t *testing.T) {
	f := newAPIFixture(t)
	managerID, managerToken := f.addUser(t, "mgr", "王經理", models.RoleEventManager)
	eventID := f.addEvent(t, managerID)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("eventId", fmt.Sprint(eventID)))
	require.NoError(t, mw.WriteField("message", "現場狀況"))
	part, err := mw.CreateFormFile("media", "scene.png")
	require.NoError(t, err)
	_, err = part.Write(pngBytes)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/chat", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+managerToken)

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var msg models.ChatMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msg))
	require.NotNil(t, msg.Media)
	assert.Equal(t, models.MediaPhoto, msg.Media.Kind)
	assert.Contains(t, msg.Media.URL, "/media/")
	assert.Equal(t, "現場狀況", msg.Text)
	assert.Equal(t, uint64(1), msg.Seq)
}

func TestCreateEventMessageRejectsUnsupportedMedia(t *testing.T) {
	f := newAPIFixture(t)
	managerID, managerToken := f.addUser(t, "mgr", "", models.RoleEventManager)
	eventID := f.addEvent(t, managerID)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("eventId", fmt.Sprint(eventID)))
	require.NoError(t, mw.WriteField("message", "附件"))
	part, err := mw.CreateFormFile("media", "doc.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4 hello"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/chat", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+managerToken)

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}
