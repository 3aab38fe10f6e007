// Package credential はアクセストークン・リフレッシュトークン・ユーザー情報のキャッシュを提供する。
// 3つのスロットは常に1つの単位として保存・削除され、片方だけが見える状態を作らない。
package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hitoshi/shelfman/internal/model"
)

// キャッシュのスロット名。
const (
	SlotAccessToken  = "accessToken"
	SlotRefreshToken = "refreshToken"
	SlotUserInfo     = "userInfo"
)

// Slots はバックエンドに保存される3つのスロットの生の内容。
// UserInfo はユーザー情報のJSONスナップショット。存在しないスロットは空文字。
type Slots struct {
	AccessToken  string
	RefreshToken string
	UserInfo     string
}

// Backend はキー・バリュー型のクレデンシャルキャッシュのインターフェース。
// Save と Clear は3スロットを不可分に扱わなければならない。
type Backend interface {
	// Load は保存されているスロットを返す。存在しないスロットは空文字で返す。
	Load(ctx context.Context) (Slots, error)
	// Save は3スロットを1つの単位として保存する。
	Save(ctx context.Context, slots Slots) error
	// Clear は3スロットをすべて削除する。
	Clear(ctx context.Context) error
}

// Store はセッション状態（トークン一式とユーザー情報）を保持する。
// プロセス内で明示的に所有され、RequestPipeline と SessionService に参照として渡される。
// 読み取りは最後にコミットされたスナップショットを返し、書き込みをブロックしない。
type Store struct {
	backend Backend
	logger  *slog.Logger

	// writeMu はバックエンドへの書き込みを直列化する。mu はスナップショットの差し替えにのみ使う。
	writeMu sync.Mutex
	mu      sync.RWMutex
	current *model.Credential
}

// NewStore はStoreを生成する。起動時の復元には Load を呼び出すこと。
func NewStore(backend Backend, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		backend: backend,
		logger:  logger,
	}
}

// Load は保存済みのセッションを復元する。
// いずれかのスロットが欠けている、ユーザー情報が解析できない、バックエンドがエラーを返した場合は
// nil を返し「セッションなし」として扱う。失敗が致命的になることはない。
func (s *Store) Load(ctx context.Context) *model.Credential {
	slots, err := s.backend.Load(ctx)
	if err != nil {
		s.logger.Warn("failed to load credential cache",
			slog.String("error", err.Error()),
		)
		return nil
	}

	cred, err := decodeSlots(slots)
	if err != nil {
		s.logger.Warn("discarding unreadable credential cache",
			slog.String("error", err.Error()),
		)
		return nil
	}
	if cred == nil {
		return nil
	}

	s.writeMu.Lock()
	s.swap(cred)
	s.writeMu.Unlock()

	copied := *cred
	return &copied
}

// Save はトークン一式とユーザー情報を1つの単位として保存し、スナップショットを更新する。
// バックエンドへの保存に失敗した場合、スナップショットは以前の状態のまま変わらない。
func (s *Store) Save(ctx context.Context, cred model.Credential) error {
	slots, err := encodeSlots(cred)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.backend.Save(ctx, slots); err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	s.swap(&cred)
	return nil
}

// UpdateTokens はリフレッシュで得たトークン一式を現在のユーザー情報と合わせて保存する。
// セッションが存在しない場合はエラーを返す。
func (s *Store) UpdateTokens(ctx context.Context, tokens model.TokenBundle) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current := s.Current()
	if current == nil {
		return fmt.Errorf("failed to update tokens: no active session")
	}

	cred := model.Credential{Tokens: tokens, User: current.User}
	slots, err := encodeSlots(cred)
	if err != nil {
		return err
	}
	if err := s.backend.Save(ctx, slots); err != nil {
		return fmt.Errorf("failed to save refreshed tokens: %w", err)
	}
	s.swap(&cred)
	return nil
}

// Clear はセッション状態をすべて削除し、削除前にセッションが存在したかを返す。
// スナップショットは無条件に破棄される。バックエンドの削除失敗はログに記録するのみ。
// 呼び出し元のコンテキストがキャンセル済みでもバックエンドの削除は行う。
func (s *Store) Clear(ctx context.Context) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	existed := s.swap(nil) != nil

	if err := s.backend.Clear(context.WithoutCancel(ctx)); err != nil {
		s.logger.Warn("failed to clear credential cache",
			slog.String("error", err.Error()),
		)
	}
	return existed
}

// swap はスナップショットを差し替え、以前の値を返す。
func (s *Store) swap(next *model.Credential) *model.Credential {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.current
	s.current = next
	return prev
}

// Current は現在のセッションのコピーを返す。未ログインの場合はnil。
func (s *Store) Current() *model.Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return nil
	}
	copied := *s.current
	return &copied
}

// AccessToken は現在のアクセストークンを返す。未ログインの場合は空文字。
func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return ""
	}
	return s.current.Tokens.AccessToken
}

// RefreshToken は現在のリフレッシュトークンを返す。未ログインの場合は空文字。
func (s *Store) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return ""
	}
	return s.current.Tokens.RefreshToken
}

// Identity は現在のユーザー情報のコピーを返す。未ログインの場合はnil。
func (s *Store) Identity() *model.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return nil
	}
	user := s.current.User
	return &user
}

func encodeSlots(cred model.Credential) (Slots, error) {
	if cred.Tokens.AccessToken == "" {
		return Slots{}, fmt.Errorf("failed to encode credential: access token is empty")
	}

	userInfo, err := json.Marshal(cred.User)
	if err != nil {
		return Slots{}, fmt.Errorf("failed to encode user info: %w", err)
	}

	return Slots{
		AccessToken:  cred.Tokens.AccessToken,
		RefreshToken: cred.Tokens.RefreshToken,
		UserInfo:     string(userInfo),
	}, nil
}

// decodeSlots はスロットからセッションを組み立てる。
// アクセストークンとユーザー情報の両方が揃っていない場合は (nil, nil) を返す。
func decodeSlots(slots Slots) (*model.Credential, error) {
	if slots.AccessToken == "" || slots.UserInfo == "" {
		return nil, nil
	}

	var user model.Identity
	if err := json.Unmarshal([]byte(slots.UserInfo), &user); err != nil {
		return nil, fmt.Errorf("failed to parse user info: %w", err)
	}

	return &model.Credential{
		Tokens: model.TokenBundle{
			AccessToken:  slots.AccessToken,
			RefreshToken: slots.RefreshToken,
		},
		User: user,
	}, nil
}
