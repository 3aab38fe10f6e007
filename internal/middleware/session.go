// Package middleware はローカルエージェントのHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/hitoshi/shelfman/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// identityContextKey はリクエストコンテキストにログイン中ユーザーを格納するためのキー。
	identityContextKey = contextKey("identity")
	// userIDSlotKey はロギングミドルウェアがユーザーIDを受け取るための格納先のキー。
	userIDSlotKey = contextKey("user_id_slot")
)

// SessionFinder は現在のセッションのユーザー情報を返すインターフェース。
// credential.Store の部分集合として定義する。
type SessionFinder interface {
	Identity() *model.Identity
}

// NewSessionMiddleware はクレデンシャルキャッシュにセッションが存在するかを確認するミドルウェアを返す。
// ログイン中ユーザーをリクエストコンテキストに注入する。
// 未ログインの場合はリモートAPIを呼ばずに401 SESSION_EXPIREDを返す。
func NewSessionMiddleware(finder SessionFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := finder.Identity()
			if identity == nil {
				WriteAPIError(w, model.NewSessionExpiredError(nil))
				return
			}

			if slot, ok := r.Context().Value(userIDSlotKey).(*string); ok {
				*slot = strconv.FormatInt(identity.ID, 10)
			}

			ctx := ContextWithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewAdminMiddleware は管理者以外のリクエストを403で拒否するミドルウェアを返す。
// SessionMiddleware の後に配置する。
func NewAdminMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := IdentityFromContext(r.Context())
			if err != nil {
				WriteAPIError(w, model.NewSessionExpiredError(err))
				return
			}
			if !identity.IsAdmin() {
				WriteAPIError(w, model.NewForbiddenError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IdentityFromContext はリクエストコンテキストからログイン中ユーザーを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func IdentityFromContext(ctx context.Context) (*model.Identity, error) {
	identity, ok := ctx.Value(identityContextKey).(*model.Identity)
	if !ok || identity == nil {
		return nil, fmt.Errorf("identity not found in context")
	}
	return identity, nil
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを文字列で取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	identity, err := IdentityFromContext(ctx)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(identity.ID, 10), nil
}

// ContextWithIdentity はコンテキストにログイン中ユーザーを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithIdentity(ctx context.Context, identity *model.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

func withUserIDSlot(ctx context.Context, slot *string) context.Context {
	return context.WithValue(ctx, userIDSlotKey, slot)
}
