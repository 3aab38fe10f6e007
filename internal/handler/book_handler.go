package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hitoshi/shelfman/internal/model"
)

// BookServiceInterface は図書ハンドラーが必要とするサービスインターフェース。
type BookServiceInterface interface {
	List(ctx context.Context, q model.BookQuery) (*model.PageResult[model.Book], error)
	Get(ctx context.Context, id int64) (*model.Book, error)
	Categories(ctx context.Context) ([]model.Category, error)
	Create(ctx context.Context, req model.BookRequest) (*model.Book, error)
	Update(ctx context.Context, id int64, req model.BookRequest) (*model.Book, error)
	Delete(ctx context.Context, id int64) error
}

// BookHandler は図書の参照と管理者向けの登録・更新・削除のHTTPハンドラー。
type BookHandler struct {
	service BookServiceInterface
	logger  *slog.Logger
}

// NewBookHandler はBookHandlerを生成する。
func NewBookHandler(service BookServiceInterface, logger *slog.Logger) *BookHandler {
	return &BookHandler{service: service, logger: logger}
}

// List は図書一覧を返す。
// GET /api/books?keyword=&categoryId=&page=&size=
func (h *BookHandler) List(w http.ResponseWriter, r *http.Request) {
	page, size, err := pageParams(r)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	q := model.BookQuery{Page: page, Size: size, Keyword: r.URL.Query().Get("keyword")}
	if raw := r.URL.Query().Get("categoryId"); raw != "" {
		q.CategoryID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			handleServiceError(w, h.logger, model.NewValidationError("categoryId", "整数で指定してください"))
			return
		}
	}

	result, err := h.service.List(r.Context(), q)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Get は図書の詳細を返す。
// GET /api/books/{id}
func (h *BookHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	book, err := h.service.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// Categories は分類一覧を返す。
// GET /api/categories
func (h *BookHandler) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.Categories(r.Context())
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	if categories == nil {
		categories = []model.Category{}
	}
	writeJSON(w, http.StatusOK, categories)
}

// Create は図書を登録する。
// POST /api/admin/books
func (h *BookHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.BookRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	book, err := h.service.Create(r.Context(), req)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	h.logger.Info("book created",
		slog.Int64("book_id", book.ID),
		slog.String("isbn", req.Isbn),
		slog.String("user_id", userIDOf(r)),
	)
	writeJSON(w, http.StatusCreated, book)
}

// Update は図書の全項目を置き換える。
// PUT /api/admin/books/{id}
func (h *BookHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	var req model.BookRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	book, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	h.logger.Info("book updated",
		slog.Int64("book_id", id),
		slog.String("user_id", userIDOf(r)),
	)
	writeJSON(w, http.StatusOK, book)
}

// Delete は図書を削除する。
// DELETE /api/admin/books/{id}
func (h *BookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	h.logger.Info("book deleted",
		slog.Int64("book_id", id),
		slog.String("user_id", userIDOf(r)),
	)
	w.WriteHeader(http.StatusNoContent)
}
