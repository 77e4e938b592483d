package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// DiskStore 把媒體 blob 寫到本機磁碟，並回傳可直接取回的 URL 路徑。
// 上傳的媒體在訊息持久化之前就已經寫入完成，
// 所以訊息上的媒體引用永遠不會指向不存在的資源。
type DiskStore struct {
	dir     string
	urlBase string
}

// NewDiskStore 建立媒體目錄（若不存在）並回傳 DiskStore
func NewDiskStore(dir, urlBase string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media dir: %w", err)
	}
	return &DiskStore{dir: dir, urlBase: urlBase}, nil
}

// Save 寫入一個 blob，回傳對外提供的 URL 路徑
func (s *DiskStore) Save(name string, data []byte) (string, error) {
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return "", err
	}
	return s.urlBase + "/" + name, nil
}

// Dir 回傳媒體目錄，供靜態檔案路由使用
func (s *DiskStore) Dir() string {
	return s.dir
}
