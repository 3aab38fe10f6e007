package model

// Book は図書を表す。
type Book struct {
	ID             int64   `json:"id"`
	Isbn           string  `json:"isbn"`
	Title          string  `json:"title"`
	Author         string  `json:"author"`
	Publisher      string  `json:"publisher"`
	PublishDate    string  `json:"publishDate"`
	CategoryID     int64   `json:"categoryId"`
	CategoryName   string  `json:"categoryName,omitempty"`
	Price          float64 `json:"price"`
	TotalStock     int     `json:"totalStock"`
	AvailableStock int     `json:"availableStock"`
	CoverURL       string  `json:"coverUrl,omitempty"`
	Description    string  `json:"description,omitempty"`
	Status         int     `json:"status"`
}

// Category は図書の分類を表す。
type Category struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	ParentID    int64      `json:"parentId,omitempty"`
	Description string     `json:"description,omitempty"`
	Children    []Category `json:"children,omitempty"`
}

// BookQuery は図書一覧の検索条件。
type BookQuery struct {
	Page       int
	Size       int
	Keyword    string
	CategoryID int64
}

// BookRequest は図書の登録・更新APIのリクエストボディ（管理者向け）。
// 更新は全項目の置き換えとして扱う。
type BookRequest struct {
	Isbn        string  `json:"isbn" validate:"required,max=20"`
	Title       string  `json:"title" validate:"required,max=200"`
	Author      string  `json:"author" validate:"required,max=100"`
	Publisher   string  `json:"publisher,omitempty" validate:"max=100"`
	PublishDate string  `json:"publishDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	CategoryID  int64   `json:"categoryId" validate:"required,gt=0"`
	Price       float64 `json:"price" validate:"gte=0"`
	TotalStock  int     `json:"totalStock" validate:"gte=0"`
	CoverURL    string  `json:"coverUrl,omitempty" validate:"max=500"`
	Description string  `json:"description,omitempty" validate:"max=2000"`
	Status      int     `json:"status" validate:"oneof=0 1"`
}

// RequestFrom は既存の図書から更新用のリクエストを組み立てる。
func RequestFrom(b Book) BookRequest {
	return BookRequest{
		Isbn:        b.Isbn,
		Title:       b.Title,
		Author:      b.Author,
		Publisher:   b.Publisher,
		PublishDate: b.PublishDate,
		CategoryID:  b.CategoryID,
		Price:       b.Price,
		TotalStock:  b.TotalStock,
		CoverURL:    b.CoverURL,
		Description: b.Description,
		Status:      b.Status,
	}
}
