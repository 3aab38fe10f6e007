package middleware

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/shelfman/internal/model"
)

const (
	// csrfCookieName はCSRFトークンを保持するCookieの名前。
	// UIからJavaScriptで読み取れるよう、HttpOnlyではない。
	csrfCookieName = "shelfman_csrf"

	// csrfHeaderName は状態変更リクエストでCSRFトークンを送るヘッダー名。
	csrfHeaderName = "X-CSRF-Token"

	// csrfTokenContextKey はミドルウェアが発行したトークンをハンドラーへ渡すキー。
	csrfTokenContextKey = contextKey("csrf_token")

	csrfTokenBytes = 32
	csrfCookieAge  = 12 * 60 * 60
)

// CSRFConfig はCSRF対策の設定。
type CSRFConfig struct {
	CookieSecure bool
}

// CSRF はダブルサブミットCookie方式のCSRF対策を提供する。
// ローカルエージェントはブラウザから到達できるため、他サイトからの状態変更リクエストを拒否する。
type CSRF struct {
	config CSRFConfig
	logger *slog.Logger
}

// NewCSRF はCSRFを生成する。
func NewCSRF(config CSRFConfig, logger *slog.Logger) *CSRF {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSRF{config: config, logger: logger}
}

// Middleware はCSRFトークンを検証するミドルウェアを返す。
// GET, HEAD, OPTIONS は検証せず、Cookieが未設定であれば発行する。
// それ以外のメソッドはCookieとヘッダーのトークンが一致しなければ403を返す。
func (c *CSRF) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				if _, err := r.Cookie(csrfCookieName); err != nil {
					token, err := c.issue(w)
					if err != nil {
						c.logger.Error("failed to generate CSRF token", slog.String("error", err.Error()))
					} else {
						// 同じリクエスト内の TokenHandler が発行済みのトークンを返せるようにする
						r = r.WithContext(context.WithValue(r.Context(), csrfTokenContextKey, token))
					}
				}
				next.ServeHTTP(w, r)
				return
			}

			if reason := verifyCSRF(r); reason != "" {
				c.logger.Warn("CSRF validation failed",
					slog.String("reason", reason),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				WriteErrorResponse(w, http.StatusForbidden, &model.APIError{
					Code:     "CSRF_REJECTED",
					Message:  "リクエストを検証できませんでした。",
					Category: "auth",
					Action:   "画面を再読み込みしてから再度お試しください。",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// TokenHandler はCSRFトークンを返すハンドラー。
// GET /api/csrf-token
// ミドルウェアがこのリクエストで発行したトークン、既存のCookieのトークンの順に返し、
// どちらもなければ新規に発行する。1回のリクエストでCookieを2回発行することはない。
func (c *CSRF) TokenHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var token string
		if issued, ok := r.Context().Value(csrfTokenContextKey).(string); ok && issued != "" {
			token = issued
		} else if cookie, err := r.Cookie(csrfCookieName); err == nil && cookie.Value != "" {
			token = cookie.Value
		} else {
			token, err = c.issue(w)
			if err != nil {
				c.logger.Error("failed to generate CSRF token", slog.String("error", err.Error()))
				WriteInternalServerError(w)
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"token": token})
	})
}

func (c *CSRF) issue(w http.ResponseWriter) (string, error) {
	b := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token := hex.EncodeToString(b)

	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   csrfCookieAge,
		HttpOnly: false,
		Secure:   c.config.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
	return token, nil
}

// verifyCSRF はトークン検証に失敗した理由を返す。成功時は空文字。
func verifyCSRF(r *http.Request) string {
	cookie, err := r.Cookie(csrfCookieName)
	if err != nil || cookie.Value == "" {
		return "missing cookie token"
	}
	header := r.Header.Get(csrfHeaderName)
	if header == "" {
		return "missing header token"
	}
	if subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(header)) != 1 {
		return "token mismatch"
	}
	return ""
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}
