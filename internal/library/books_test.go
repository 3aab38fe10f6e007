package library

import (
	"context"
	"net/http"
	"testing"

	"github.com/hitoshi/shelfman/internal/model"
)

func TestBooks_List_SendsPagingAndFilters(t *testing.T) {
	env := newTestEnv(t, okWith(model.PageResult[model.Book]{
		Records: []model.Book{{ID: 1, Title: "Go入門", AvailableStock: 3}},
		Total:   1,
		Current: 2,
	}))
	books := NewBooks(env.client)

	page, err := books.List(context.Background(), model.BookQuery{Page: 2, Size: 5, Keyword: "Go", CategoryID: 7})
	if err != nil {
		t.Fatalf("List がエラーを返した: %v", err)
	}
	if len(page.Records) != 1 || page.Records[0].Title != "Go入門" {
		t.Errorf("Records = %+v", page.Records)
	}

	q := env.last.Load().query
	if env.last.Load().path != "/api/books" {
		t.Errorf("path = %q, want /api/books", env.last.Load().path)
	}
	if q["pageNum"] != "2" || q["pageSize"] != "5" || q["keyword"] != "Go" || q["categoryId"] != "7" {
		t.Errorf("query = %v", q)
	}
	if env.last.Load().auth != "Bearer at1" {
		t.Errorf("Authorization = %q, want Bearer at1", env.last.Load().auth)
	}
}

func TestBooks_List_DefaultsPaging(t *testing.T) {
	env := newTestEnv(t, okWith(model.PageResult[model.Book]{}))
	books := NewBooks(env.client)

	if _, err := books.List(context.Background(), model.BookQuery{}); err != nil {
		t.Fatalf("List がエラーを返した: %v", err)
	}
	q := env.last.Load().query
	if q["pageNum"] != "1" || q["pageSize"] != "10" {
		t.Errorf("既定のページング = %v, want pageNum=1 pageSize=10", q)
	}
	if _, ok := q["keyword"]; ok {
		t.Error("空のキーワードは送信されるべきでない")
	}
	if _, ok := q["categoryId"]; ok {
		t.Error("未指定の分類は送信されるべきでない")
	}
}

func TestBooks_Get(t *testing.T) {
	env := newTestEnv(t, okWith(model.Book{ID: 42, Title: "詳細"}))
	books := NewBooks(env.client)

	book, err := books.Get(context.Background(), 42)
	if err != nil {
		t.Fatalf("Get がエラーを返した: %v", err)
	}
	if book.ID != 42 || env.last.Load().path != "/api/books/42" {
		t.Errorf("book = %+v, path = %q", book, env.last.Load().path)
	}
}

func TestBooks_Get_InvalidIDIsRejectedLocally(t *testing.T) {
	env := newTestEnv(t, okWith(nil))
	books := NewBooks(env.client)

	_, err := books.Get(context.Background(), 0)
	assertCode(t, err, model.ErrValidation)
	if env.calls.Load() != 0 {
		t.Errorf("ネットワーク呼び出し回数 = %d, want 0", env.calls.Load())
	}
}

func TestBooks_Categories(t *testing.T) {
	env := newTestEnv(t, okWith([]model.Category{
		{ID: 1, Name: "技術", Children: []model.Category{{ID: 2, Name: "プログラミング", ParentID: 1}}},
	}))
	books := NewBooks(env.client)

	categories, err := books.Categories(context.Background())
	if err != nil {
		t.Fatalf("Categories がエラーを返した: %v", err)
	}
	if len(categories) != 1 || len(categories[0].Children) != 1 {
		t.Errorf("categories = %+v", categories)
	}
}

func validBookRequest() model.BookRequest {
	return model.BookRequest{
		Isbn:        "9787111213826",
		Title:       "Go言語プログラミング",
		Author:      "山田",
		PublishDate: "2024-04-01",
		CategoryID:  2,
		Price:       3200,
		TotalStock:  5,
		Status:      1,
	}
}

func TestBooks_Create(t *testing.T) {
	env := newTestEnv(t, okWith(model.Book{ID: 9, Title: "Go言語プログラミング", TotalStock: 5, AvailableStock: 5}))
	books := NewBooks(env.client)

	book, err := books.Create(context.Background(), validBookRequest())
	if err != nil {
		t.Fatalf("Create がエラーを返した: %v", err)
	}
	if book.ID != 9 {
		t.Errorf("book = %+v", book)
	}
	last := env.last.Load()
	if last.method != http.MethodPost || last.path != "/api/books" {
		t.Errorf("%s %s", last.method, last.path)
	}
	if last.body["isbn"] != "9787111213826" || last.body["categoryId"] != float64(2) || last.body["totalStock"] != float64(5) {
		t.Errorf("body = %v", last.body)
	}
}

func TestBooks_Update(t *testing.T) {
	env := newTestEnv(t, okWith(model.Book{ID: 9, Title: "改訂版"}))
	books := NewBooks(env.client)

	req := validBookRequest()
	req.Title = "改訂版"
	if _, err := books.Update(context.Background(), 9, req); err != nil {
		t.Fatalf("Update がエラーを返した: %v", err)
	}
	last := env.last.Load()
	if last.method != http.MethodPut || last.path != "/api/books/9" || last.body["title"] != "改訂版" {
		t.Errorf("%s %s body=%v", last.method, last.path, last.body)
	}
}

func TestBooks_Delete(t *testing.T) {
	env := newTestEnv(t, okWith(nil))
	books := NewBooks(env.client)

	if err := books.Delete(context.Background(), 9); err != nil {
		t.Fatalf("Delete がエラーを返した: %v", err)
	}
	if env.last.Load().method != http.MethodDelete || env.last.Load().path != "/api/books/9" {
		t.Errorf("%s %s", env.last.Load().method, env.last.Load().path)
	}
}

func TestBooks_WriteValidationIsLocal(t *testing.T) {
	env := newTestEnv(t, okWith(nil))
	books := NewBooks(env.client)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(r *model.BookRequest)
	}{
		{"ISBNなし", func(r *model.BookRequest) { r.Isbn = "" }},
		{"書名なし", func(r *model.BookRequest) { r.Title = "" }},
		{"著者なし", func(r *model.BookRequest) { r.Author = "" }},
		{"分類なし", func(r *model.BookRequest) { r.CategoryID = 0 }},
		{"価格が負", func(r *model.BookRequest) { r.Price = -1 }},
		{"在庫が負", func(r *model.BookRequest) { r.TotalStock = -1 }},
		{"状態が範囲外", func(r *model.BookRequest) { r.Status = 2 }},
		{"出版日の形式が不正", func(r *model.BookRequest) { r.PublishDate = "2024/04/01" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validBookRequest()
			tt.mutate(&req)
			_, err := books.Create(ctx, req)
			assertCode(t, err, model.ErrValidation)
		})
	}

	_, err := books.Update(ctx, 0, validBookRequest())
	assertCode(t, err, model.ErrValidation)
	assertCode(t, books.Delete(ctx, -1), model.ErrValidation)

	if n := env.calls.Load(); n != 0 {
		t.Errorf("検証で拒否されたのにネットワークが呼ばれた: calls=%d", n)
	}
}
