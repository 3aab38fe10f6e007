package borrow

import (
	"time"

	"github.com/hitoshi/shelfman/internal/model"
)

// Policy は借用ルールの上限値を保持する。
type Policy struct {
	MaxBorrowDays int            // 借用日数の上限
	MaxRenewDays  int            // 延長日数の上限
	MaxRenewCount int            // 延長できる回数の上限（renewCount がこの値未満の間のみ延長可能）
	Location      *time.Location // タイムゾーンを持たない日時の解釈に使う。nilはtime.Local
}

// DefaultPolicy は標準の借用ルール。
var DefaultPolicy = Policy{
	MaxBorrowDays: 365,
	MaxRenewDays:  90,
	MaxRenewCount: 2,
}

// Summary は借用記録一覧の集計結果。
type Summary struct {
	Total     int
	Borrowing int
	Overdue   int
	Returned  int
}

// DueAt は記録の返却期限を正規化して返す。
func (p Policy) DueAt(r model.LoanRecord) (time.Time, bool) {
	return NormalizeInstantIn(r.DueTime, p.Location)
}

// IsOverdue は借用中かつ現在時刻が返却期限を過ぎている場合にtrueを返す。
// 返却期限が解釈できない場合は延滞とみなさない。
func (p Policy) IsOverdue(r model.LoanRecord, now time.Time) bool {
	if r.Status != model.LoanStatusBorrowing {
		return false
	}
	due, ok := p.DueAt(r)
	if !ok {
		return false
	}
	return now.After(due)
}

// DisplayStatus は表示用ステータスを RETURNED / OVERDUE / BORROWING のいずれかで返す。
// サーバーの OVERDUE フラグと時刻による延滞判定は論理和で扱い、どちらか一方だけを信用しない。
func (p Policy) DisplayStatus(r model.LoanRecord, now time.Time) model.LoanStatus {
	switch {
	case r.Status == model.LoanStatusReturned:
		return model.LoanStatusReturned
	case r.Status == model.LoanStatusOverdue || p.IsOverdue(r, now):
		return model.LoanStatusOverdue
	default:
		return model.LoanStatusBorrowing
	}
}

// CanRenew は延長可能かを返す。
// 借用中であり、延長回数が上限未満で、延滞していないことが条件。
// サーバーが OVERDUE と判定した記録は借用中ではないため延長できない。
func (p Policy) CanRenew(r model.LoanRecord, now time.Time) bool {
	return r.Status == model.LoanStatusBorrowing &&
		r.RenewCount < p.MaxRenewCount &&
		!p.IsOverdue(r, now)
}

// CanReturn は返却可能かを返す。
func (p Policy) CanReturn(r model.LoanRecord) bool {
	return r.Status == model.LoanStatusBorrowing
}

// OverdueDays は延滞日数を返す。
// 返却済みの記録は返却日時と期限の差、借用中の記録は現在時刻と期限の差で計算する。
// 延滞していない場合は0。
func (p Policy) OverdueDays(r model.LoanRecord, now time.Time) int64 {
	due, ok := p.DueAt(r)
	if !ok {
		return 0
	}

	end := now
	if r.Status == model.LoanStatusReturned {
		returned, ok := NormalizeInstantIn(r.ReturnTime, p.Location)
		if !ok {
			return 0
		}
		end = returned
	}

	if !end.After(due) {
		return 0
	}
	return int64(end.Sub(due) / (24 * time.Hour))
}

// Summarize は記録一覧を表示ステータスごとに集計する。
func (p Policy) Summarize(records []model.LoanRecord, now time.Time) Summary {
	s := Summary{Total: len(records)}
	for _, r := range records {
		switch p.DisplayStatus(r, now) {
		case model.LoanStatusReturned:
			s.Returned++
		case model.LoanStatusOverdue:
			s.Overdue++
		default:
			s.Borrowing++
		}
	}
	return s
}

// ProjectedDueDate は延長を申請した場合の返却期限（表示用の見込み値）を返す。
// 暦日で加算する。実際の期限はサーバーが決定する。
func ProjectedDueDate(currentDue time.Time, extraDays int) time.Time {
	return currentDue.AddDate(0, 0, extraDays)
}

// IsOverdue は DefaultPolicy で延滞を判定する。
func IsOverdue(r model.LoanRecord, now time.Time) bool {
	return DefaultPolicy.IsOverdue(r, now)
}

// DisplayStatus は DefaultPolicy で表示用ステータスを返す。
func DisplayStatus(r model.LoanRecord, now time.Time) model.LoanStatus {
	return DefaultPolicy.DisplayStatus(r, now)
}

// CanRenew は DefaultPolicy で延長可否を返す。
func CanRenew(r model.LoanRecord, now time.Time) bool {
	return DefaultPolicy.CanRenew(r, now)
}

// CanReturn は DefaultPolicy で返却可否を返す。
func CanReturn(r model.LoanRecord) bool {
	return DefaultPolicy.CanReturn(r)
}
