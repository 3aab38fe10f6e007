package credential

import (
	"context"
	"sync"
)

// MemoryBackend はプロセス内メモリにスロットを保持するバックエンド。
// プロセス終了とともに内容は失われる。テストや一時的な利用向け。
type MemoryBackend struct {
	mu    sync.Mutex
	slots Slots
}

// NewMemoryBackend はMemoryBackendを生成する。
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

// Load は保持しているスロットを返す。
func (b *MemoryBackend) Load(_ context.Context) (Slots, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.slots, nil
}

// Save はスロットを置き換える。
func (b *MemoryBackend) Save(_ context.Context, slots Slots) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.slots = slots
	return nil
}

// Clear はスロットを空にする。
func (b *MemoryBackend) Clear(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.slots = Slots{}
	return nil
}

// compile-time interface check
var _ Backend = (*MemoryBackend)(nil)
