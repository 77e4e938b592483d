package service

import (
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"volunteer_hub/internal/apperr"
	"volunteer_hub/internal/models"
)

// BlobStore 是媒體 blob 的底層儲存
type BlobStore interface {
	Save(name string, data []byte) (string, error)
}

// MediaService 接收上傳的媒體，歸類成照片或影片並寫入儲存，
// 回傳可直接取回的媒體引用。對呼叫者而言是同步的：
// 回傳時媒體已經寫入完成，URL 一定有效。
type MediaService struct {
	blobs BlobStore
}

func NewMediaService(blobs BlobStore) *MediaService {
	return &MediaService{blobs: blobs}
}

// Store 解析並儲存一個媒體 blob。
//
// 種類由內容判斷（而不是信任客戶端宣告的 Content-Type）；
// 但若宣告的種類與偵測結果矛盾，一樣拒絕。
// 無法歸類為照片或影片回傳 ErrUnsupportedMedia，
// 寫入失敗回傳包裝過的 ErrMediaStorage，兩者都不會留下半成品。
func (s *MediaService) Store(data []byte, declaredType string) (*models.MediaRef, error) {
	mtype := mimetype.Detect(data)
	kind := classifyMedia(mtype.String())
	if kind == "" {
		return nil, apperr.ErrUnsupportedMedia
	}
	if declared := classifyMedia(declaredType); declared != "" && declared != kind {
		return nil, apperr.ErrUnsupportedMedia
	}

	name := uuid.NewString() + mtype.Extension()
	url, err := s.blobs.Save(name, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrMediaStorage, err)
	}
	return &models.MediaRef{Kind: kind, URL: url}, nil
}

// classifyMedia 把 MIME 類型映射到媒體種類，無法歸類時回傳空字串
func classifyMedia(mimeType string) models.MediaKind {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return models.MediaPhoto
	case strings.HasPrefix(mimeType, "video/"):
		return models.MediaVideo
	default:
		return ""
	}
}
