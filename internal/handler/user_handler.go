package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/shelfman/internal/model"
)

// UserServiceInterface はユーザー管理ハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	List(ctx context.Context, q model.UserQuery) (*model.PageResult[model.Identity], error)
	UpdateRole(ctx context.Context, userID int64, role model.Role) error
	UpdateStatus(ctx context.Context, userID int64, status int) error
	Get(ctx context.Context, userID int64) (*model.Identity, error)
	UpdatePassword(ctx context.Context, userID int64, newPassword string) error
}

// UserHandler は管理者向けユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
	logger  *slog.Logger
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface, logger *slog.Logger) *UserHandler {
	return &UserHandler{service: service, logger: logger}
}

type updateRoleRequest struct {
	Role model.Role `json:"role"`
}

type updateStatusRequest struct {
	Status *int `json:"status"`
}

// List はユーザー一覧を返す。
// GET /api/admin/users?keyword=&page=&size=
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	page, size, err := pageParams(r)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	result, err := h.service.List(r.Context(), model.UserQuery{
		Page:    page,
		Size:    size,
		Keyword: r.URL.Query().Get("keyword"),
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// UpdateRole はユーザーの権限区分を変更する。
// PUT /api/admin/users/{id}/role
func (h *UserHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	var req updateRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	if err := h.service.UpdateRole(r.Context(), id, req.Role); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	h.logger.Info("user role updated",
		slog.Int64("target_user_id", id),
		slog.String("role", string(req.Role)),
		slog.String("user_id", userIDOf(r)),
	)
	w.WriteHeader(http.StatusNoContent)
}

// UpdateStatus はユーザーの有効・無効を変更する。
// PUT /api/admin/users/{id}/status
func (h *UserHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	var req updateStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	if req.Status == nil {
		handleServiceError(w, h.logger, model.NewValidationError("status", "必須です"))
		return
	}

	if err := h.service.UpdateStatus(r.Context(), id, *req.Status); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	h.logger.Info("user status updated",
		slog.Int64("target_user_id", id),
		slog.Int("status", *req.Status),
		slog.String("user_id", userIDOf(r)),
	)
	w.WriteHeader(http.StatusNoContent)
}

// Get はユーザーの詳細を返す。
// GET /api/admin/users/{id}
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	user, err := h.service.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UpdatePassword はユーザーのパスワードを再設定する。
// PUT /api/admin/users/{id}/password
func (h *UserHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	var req model.UpdatePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	if err := h.service.UpdatePassword(r.Context(), id, req.NewPassword); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	h.logger.Info("user password reset",
		slog.Int64("target_user_id", id),
		slog.String("user_id", userIDOf(r)),
	)
	w.WriteHeader(http.StatusNoContent)
}
