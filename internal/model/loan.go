package model

import (
	"bytes"
	"encoding/json"
)

// LoanStatus は借用記録のサーバー側ステータス。
type LoanStatus int

const (
	LoanStatusBorrowing LoanStatus = 0 // 借用中
	LoanStatusReturned  LoanStatus = 1 // 返却済み
	LoanStatusOverdue   LoanStatus = 2 // 延滞（サーバー判定）
	LoanStatusRenewed   LoanStatus = 3 // 延長済み
)

// String はステータスの表示名を返す。
func (s LoanStatus) String() string {
	switch s {
	case LoanStatusBorrowing:
		return "BORROWING"
	case LoanStatusReturned:
		return "RETURNED"
	case LoanStatusOverdue:
		return "OVERDUE"
	case LoanStatusRenewed:
		return "RENEWED"
	default:
		return "UNKNOWN"
	}
}

// RawInstant はサーバーから届く日時の生表現を保持する。
// ISO形式に近い文字列、または [年, 月(1始まり), 日, 時, 分, 秒] の配列のどちらかで届く。
// 比較や表示の前に borrow.NormalizeInstant で time.Time に正規化すること。
type RawInstant struct {
	Text  string
	Parts []int
}

// InstantText は文字列表現のRawInstantを生成する。
func InstantText(s string) RawInstant {
	return RawInstant{Text: s}
}

// InstantParts は配列表現のRawInstantを生成する。
func InstantParts(parts ...int) RawInstant {
	return RawInstant{Parts: parts}
}

// IsEmpty は値が存在しない場合にtrueを返す。
func (r RawInstant) IsEmpty() bool {
	return r.Text == "" && len(r.Parts) == 0
}

// UnmarshalJSON は文字列・数値配列・nullのいずれも受け付ける。
// 解釈できない表現は「値なし」として扱い、レコード全体のデコードを失敗させない。
func (r *RawInstant) UnmarshalJSON(b []byte) error {
	*r = RawInstant{}

	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 {
		return nil
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			r.Text = s
		}
	case '[':
		var parts []int
		if err := json.Unmarshal(trimmed, &parts); err == nil {
			r.Parts = parts
		}
	}
	return nil
}

// MarshalJSON は受け取ったときの表現のまま出力する。
func (r RawInstant) MarshalJSON() ([]byte, error) {
	switch {
	case len(r.Parts) > 0:
		return json.Marshal(r.Parts)
	case r.Text != "":
		return json.Marshal(r.Text)
	default:
		return []byte("null"), nil
	}
}

// LoanRecord は図書の借用記録を表す。
// 不変条件: ReturnTime は Status == LoanStatusReturned のときに限り設定される。
type LoanRecord struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"userId"`
	Username    string     `json:"username,omitempty"`
	BookID      int64      `json:"bookId"`
	BookTitle   string     `json:"bookTitle,omitempty"`
	BookIsbn    string     `json:"bookIsbn,omitempty"`
	BorrowTime  RawInstant `json:"borrowTime"`
	DueTime     RawInstant `json:"dueTime"`
	ReturnTime  RawInstant `json:"returnTime"`
	RenewCount  int        `json:"renewCount"`
	Status      LoanStatus `json:"status"`
	StatusDesc  string     `json:"statusDesc,omitempty"`
	Overdue     bool       `json:"overdue,omitempty"`
	OverdueDays int64      `json:"overdueDays,omitempty"`
	Quantity    int        `json:"quantity,omitempty"`
	Remark      string     `json:"remark,omitempty"`
}

// BorrowRequest は借用APIのリクエストボディ。
type BorrowRequest struct {
	BookID     int64  `json:"bookId" validate:"required,gt=0"`
	Quantity   int    `json:"quantity" validate:"required,min=1"`
	BorrowDays int    `json:"borrowDays" validate:"required,min=1"`
	Remark     string `json:"remark,omitempty"`
}

// RenewRequest は延長APIのリクエストボディ。
type RenewRequest struct {
	BorrowID  int64 `json:"borrowId" validate:"required,gt=0"`
	RenewDays int   `json:"renewDays" validate:"required,min=1"`
}

// ReturnRequest は返却APIのリクエストボディ。
type ReturnRequest struct {
	BorrowID int64 `json:"borrowId" validate:"required,gt=0"`
}

// LoanQuery は借用記録一覧の検索条件。
type LoanQuery struct {
	Page   int
	Size   int
	Status *LoanStatus
	UserID int64
}

// LoanStatistics はサーバーが集計したユーザーの借用統計。
type LoanStatistics struct {
	TotalBorrowed    int `json:"totalBorrowed"`
	CurrentBorrowing int `json:"currentBorrowing"`
	OverdueCount     int `json:"overdueCount"`
}
