package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/shelfman/internal/model"
)

// SessionServiceInterface はセッションハンドラーが必要とするサービスインターフェース。
type SessionServiceInterface interface {
	// Login は資格情報でログインし、ログインしたユーザーを返す。
	Login(ctx context.Context, username, password string) (*model.Identity, error)
	// Logout はリモートのログアウトを試み、ローカルのセッションを必ず破棄する。
	Logout(ctx context.Context) error
	// Register は利用者を登録する。現在のセッションは変更しない。
	Register(ctx context.Context, req model.RegisterRequest) (*model.Identity, error)
	// CurrentUser はログイン中のユーザーを返す。未ログインの場合はnil。
	CurrentUser() *model.Identity
}

// SessionHandler はログイン・ログアウトのHTTPハンドラー。
type SessionHandler struct {
	service SessionServiceInterface
	logger  *slog.Logger
}

// NewSessionHandler はSessionHandlerを生成する。
func NewSessionHandler(service SessionServiceInterface, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{service: service, logger: logger}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// sessionResponse はセッション状態のレスポンス。
type sessionResponse struct {
	Authenticated bool            `json:"authenticated"`
	IsAdmin       bool            `json:"isAdmin"`
	User          *model.Identity `json:"user,omitempty"`
}

func newSessionResponse(user *model.Identity) sessionResponse {
	return sessionResponse{
		Authenticated: user != nil,
		IsAdmin:       user.IsAdmin(),
		User:          user,
	}
}

// Get は現在のセッション状態を返す。
// GET /api/session
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newSessionResponse(h.service.CurrentUser()))
}

// Login はログインを処理する。
// POST /api/session/login
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	user, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(user))
}

// Register は利用者登録を処理する。登録後のログインは別途行う。
// POST /api/session/register
func (h *SessionHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	user, err := h.service.Register(r.Context(), req)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// Logout はログアウトを処理する。リモートの失敗にかかわらず204を返す。
// POST /api/session/logout
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context()); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
