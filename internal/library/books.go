package library

import (
	"context"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/shelfman/internal/api"
	"github.com/hitoshi/shelfman/internal/model"
)

// Books は図書の参照APIと管理者向けの登録・更新・削除APIを提供する。
type Books struct {
	client   *api.Client
	validate *validator.Validate
}

// NewBooks はBooksを生成する。
func NewBooks(client *api.Client) *Books {
	return &Books{client: client, validate: validator.New()}
}

// List は図書一覧を取得する。
func (b *Books) List(ctx context.Context, q model.BookQuery) (*model.PageResult[model.Book], error) {
	values := pageValues(q.Page, q.Size)
	if q.Keyword != "" {
		values.Set("keyword", q.Keyword)
	}
	if q.CategoryID > 0 {
		values.Set("categoryId", strconv.FormatInt(q.CategoryID, 10))
	}

	var page model.PageResult[model.Book]
	if err := b.client.Get(ctx, "/api/books", values, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Get は図書の詳細を取得する。
func (b *Books) Get(ctx context.Context, id int64) (*model.Book, error) {
	if id <= 0 {
		return nil, model.NewValidationError("bookId", "正の整数で指定してください")
	}

	var book model.Book
	if err := b.client.Get(ctx, idPath("/api/books", id), nil, &book); err != nil {
		return nil, err
	}
	return &book, nil
}

// Categories は図書の分類一覧を取得する。
func (b *Books) Categories(ctx context.Context) ([]model.Category, error) {
	var categories []model.Category
	if err := b.client.Get(ctx, "/api/categories", nil, &categories); err != nil {
		return nil, err
	}
	return categories, nil
}

// Create は図書を登録し、登録された図書を返す。
func (b *Books) Create(ctx context.Context, req model.BookRequest) (*model.Book, error) {
	if err := b.validate.Struct(req); err != nil {
		return nil, structError(err)
	}

	var book model.Book
	if err := b.client.Post(ctx, "/api/books", req, &book); err != nil {
		return nil, err
	}
	return &book, nil
}

// Update は図書の全項目を置き換え、更新後の図書を返す。
func (b *Books) Update(ctx context.Context, id int64, req model.BookRequest) (*model.Book, error) {
	if id <= 0 {
		return nil, model.NewValidationError("bookId", "正の整数で指定してください")
	}
	if err := b.validate.Struct(req); err != nil {
		return nil, structError(err)
	}

	var book model.Book
	if err := b.client.Put(ctx, idPath("/api/books", id), nil, req, &book); err != nil {
		return nil, err
	}
	return &book, nil
}

// Delete は図書を削除する。
func (b *Books) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return model.NewValidationError("bookId", "正の整数で指定してください")
	}
	return b.client.Delete(ctx, idPath("/api/books", id), nil)
}
