package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileBackend はJSONファイルにスロットを保存するバックエンド。
// 書き込みは一時ファイルへの出力とリネームで行い、途中の状態が読まれることはない。
type FileBackend struct {
	path string
}

// fileSlots はファイル上の形式。キー名はスロット名と一致する。
type fileSlots struct {
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	UserInfo     string `json:"userInfo,omitempty"`
}

// NewFileBackend はFileBackendを生成する。
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Path は保存先のファイルパスを返す。
func (b *FileBackend) Path() string {
	return b.path
}

// Load はファイルからスロットを読み込む。ファイルが存在しない場合は空のスロットを返す。
func (b *FileBackend) Load(_ context.Context) (Slots, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Slots{}, nil
	}
	if err != nil {
		return Slots{}, fmt.Errorf("failed to read credential file: %w", err)
	}

	var stored fileSlots
	if err := json.Unmarshal(data, &stored); err != nil {
		return Slots{}, fmt.Errorf("failed to parse credential file: %w", err)
	}
	return Slots{
		AccessToken:  stored.AccessToken,
		RefreshToken: stored.RefreshToken,
		UserInfo:     stored.UserInfo,
	}, nil
}

// Save はスロットをファイルに書き込む。ファイルは所有者のみ読み書き可能。
func (b *FileBackend) Save(_ context.Context, slots Slots) error {
	data, err := json.Marshal(fileSlots{
		AccessToken:  slots.AccessToken,
		RefreshToken: slots.RefreshToken,
		UserInfo:     slots.UserInfo,
	})
	if err != nil {
		return fmt.Errorf("failed to encode credential file: %w", err)
	}

	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".credential-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, b.path); err != nil {
		return fmt.Errorf("failed to replace credential file: %w", err)
	}
	return nil
}

// Clear はファイルを削除する。存在しない場合は何もしない。
func (b *FileBackend) Clear(_ context.Context) error {
	if err := os.Remove(b.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove credential file: %w", err)
	}
	return nil
}

// compile-time interface check
var _ Backend = (*FileBackend)(nil)
