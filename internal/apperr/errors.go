// Package apperr 定義了聊天核心使用的錯誤類型。
//
// 這些錯誤作為哨兵值（sentinel errors）使用，讓 handler 層可以
// 用 errors.Is 判斷錯誤種類並轉換成對應的 HTTP 狀態碼。
package apperr

import "errors"

var (
	// ErrEmptyMessage 表示訊息內容和媒體附件同時為空
	ErrEmptyMessage = errors.New("message text and media are both empty")

	// ErrNotParticipant 表示發送者不是目標對話的合法參與者
	ErrNotParticipant = errors.New("not a participant of the conversation")

	// ErrUnsupportedMedia 表示上傳的檔案無法歸類為照片或影片
	ErrUnsupportedMedia = errors.New("media is neither a photo nor a video")

	// ErrMediaStorage 表示媒體寫入底層儲存失敗
	ErrMediaStorage = errors.New("media storage write failed")
)
