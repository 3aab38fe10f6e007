package library

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/shelfman/internal/api"
	"github.com/hitoshi/shelfman/internal/borrow"
	"github.com/hitoshi/shelfman/internal/model"
)

// Loans は借用・返却・延長のAPIを提供する。
// 日数と借用状態はポリシーに従ってローカルで検証し、条件を満たさない場合はネットワークを呼ばない。
type Loans struct {
	client   *api.Client
	policy   borrow.Policy
	validate *validator.Validate
}

// NewLoans はLoansを生成する。
func NewLoans(client *api.Client, policy borrow.Policy) *Loans {
	return &Loans{
		client:   client,
		policy:   policy,
		validate: validator.New(),
	}
}

// Policy は検証に使うポリシーを返す。
func (l *Loans) Policy() borrow.Policy {
	return l.policy
}

// Borrow は図書を借用し、作成された借用記録のIDを返す。
// 日数は1以上 MaxBorrowDays 以下の整数、冊数は1以上でなければならない。
func (l *Loans) Borrow(ctx context.Context, bookID int64, quantity int, days float64, remark string) (int64, error) {
	n, err := l.policy.ValidateBorrowDays(days)
	if err != nil {
		return 0, err
	}

	req := model.BorrowRequest{BookID: bookID, Quantity: quantity, BorrowDays: n, Remark: remark}
	if err := l.validate.Struct(req); err != nil {
		return 0, structError(err)
	}

	var id int64
	if err := l.client.Post(ctx, "/api/borrow", req, &id); err != nil {
		return 0, err
	}
	return id, nil
}

// Return は借用中の記録を返却する。
func (l *Loans) Return(ctx context.Context, record model.LoanRecord) error {
	if !l.policy.CanReturn(record) {
		return model.NewBorrowNotAllowedError("返却できるのは借用中の記録のみです。")
	}
	return l.client.Post(ctx, "/api/return", model.ReturnRequest{BorrowID: record.ID}, nil)
}

// Renew は借用期限を延長する。延滞中、延長回数が上限、借用中でない記録は延長できない。
// 延長後の期限が必要な場合は Get で取得し直す。
func (l *Loans) Renew(ctx context.Context, record model.LoanRecord, days float64, now time.Time) error {
	if !l.policy.CanRenew(record, now) {
		return model.NewBorrowNotAllowedError(l.renewRejection(record, now))
	}
	n, err := l.policy.ValidateRenewDays(days)
	if err != nil {
		return err
	}
	return l.client.Post(ctx, "/api/renew", model.RenewRequest{BorrowID: record.ID, RenewDays: n}, nil)
}

func (l *Loans) renewRejection(record model.LoanRecord, now time.Time) string {
	switch {
	case record.Status != model.LoanStatusBorrowing:
		return "延長できるのは借用中の記録のみです。"
	case l.policy.IsOverdue(record, now):
		return "延滞中の記録は延長できません。先に返却してください。"
	default:
		return "延長回数の上限に達しています。"
	}
}

// Get は借用記録を1件取得する。
func (l *Loans) Get(ctx context.Context, id int64) (*model.LoanRecord, error) {
	if id <= 0 {
		return nil, model.NewValidationError("borrowId", "正の整数で指定してください")
	}

	var record model.LoanRecord
	if err := l.client.Get(ctx, idPath("/api/borrow", id), nil, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Mine はログイン中のユーザーの借用記録を取得する。
func (l *Loans) Mine(ctx context.Context, q model.LoanQuery) (*model.PageResult[model.LoanRecord], error) {
	return l.list(ctx, "/api/borrow/my", q)
}

// All はすべての借用記録を取得する（管理者向け）。
func (l *Loans) All(ctx context.Context, q model.LoanQuery) (*model.PageResult[model.LoanRecord], error) {
	return l.list(ctx, "/api/borrow/all", q)
}

// Statistics はログイン中のユーザーの借用統計をサーバーから取得する。
func (l *Loans) Statistics(ctx context.Context) (*model.LoanStatistics, error) {
	var stats model.LoanStatistics
	if err := l.client.Get(ctx, "/api/borrow/statistics", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (l *Loans) list(ctx context.Context, path string, q model.LoanQuery) (*model.PageResult[model.LoanRecord], error) {
	values := pageValues(q.Page, q.Size)
	if q.Status != nil {
		values.Set("status", strconv.Itoa(int(*q.Status)))
	}
	if q.UserID > 0 {
		values.Set("userId", strconv.FormatInt(q.UserID, 10))
	}

	var page model.PageResult[model.LoanRecord]
	if err := l.client.Get(ctx, path, values, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func structError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return model.NewValidationError(fe.Field(), "条件 "+fe.Tag()+" を満たしていません")
	}
	return model.NewValidationError("request", err.Error())
}
