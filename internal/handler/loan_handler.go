package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/shelfman/internal/borrow"
	"github.com/hitoshi/shelfman/internal/middleware"
	"github.com/hitoshi/shelfman/internal/model"
)

// defaultBorrowQuantity は冊数が指定されなかった場合の借用冊数。
const defaultBorrowQuantity = 1

// LoanServiceInterface は借用ハンドラーが必要とするサービスインターフェース。
type LoanServiceInterface interface {
	Mine(ctx context.Context, q model.LoanQuery) (*model.PageResult[model.LoanRecord], error)
	All(ctx context.Context, q model.LoanQuery) (*model.PageResult[model.LoanRecord], error)
	Get(ctx context.Context, id int64) (*model.LoanRecord, error)
	Statistics(ctx context.Context) (*model.LoanStatistics, error)
	Borrow(ctx context.Context, bookID int64, quantity int, days float64, remark string) (int64, error)
	Renew(ctx context.Context, record model.LoanRecord, days float64, now time.Time) error
	Return(ctx context.Context, record model.LoanRecord) error
}

// LoanHandler は借用・延長・返却のHTTPハンドラー。
// 一覧の各記録には現在時刻で評価した表示用ステータスと操作可否を付与する。
type LoanHandler struct {
	service LoanServiceInterface
	policy  borrow.Policy
	now     func() time.Time
	logger  *slog.Logger
}

// NewLoanHandler はLoanHandlerを生成する。now がnilの場合は time.Now を使う。
func NewLoanHandler(service LoanServiceInterface, policy borrow.Policy, now func() time.Time, logger *slog.Logger) *LoanHandler {
	if now == nil {
		now = time.Now
	}
	return &LoanHandler{
		service: service,
		policy:  policy,
		now:     now,
		logger:  logger,
	}
}

// --- リクエスト・レスポンス型 ---

type borrowRequest struct {
	BookID     int64   `json:"bookId"`
	Quantity   int     `json:"quantity"`
	BorrowDays float64 `json:"borrowDays"`
	Remark     string  `json:"remark"`
}

type renewRequest struct {
	RenewDays float64 `json:"renewDays"`
}

// loanResponse は表示用の情報を付与した借用記録。
// 日時は正規化済みの値を返し、解釈できない場合は省略する。
type loanResponse struct {
	ID            int64      `json:"id"`
	UserID        int64      `json:"userId"`
	Username      string     `json:"username,omitempty"`
	BookID        int64      `json:"bookId"`
	BookTitle     string     `json:"bookTitle,omitempty"`
	BookIsbn      string     `json:"bookIsbn,omitempty"`
	Quantity      int        `json:"quantity,omitempty"`
	RenewCount    int        `json:"renewCount"`
	Status        string     `json:"status"`
	DisplayStatus string     `json:"displayStatus"`
	BorrowedAt    *time.Time `json:"borrowedAt,omitempty"`
	DueAt         *time.Time `json:"dueAt,omitempty"`
	ReturnedAt    *time.Time `json:"returnedAt,omitempty"`
	OverdueDays   int64      `json:"overdueDays"`
	CanRenew      bool       `json:"canRenew"`
	CanReturn     bool       `json:"canReturn"`
	Remark        string     `json:"remark,omitempty"`
}

// previewResponse は申請前に表示する返却期限の見込み。
// 暦日で加算した表示用の値であり、確定した期限は申請後に記録を取得し直して得る。
type previewResponse struct {
	LoanID         int64      `json:"loanId,omitempty"`
	Days           int        `json:"days"`
	CurrentDueAt   *time.Time `json:"currentDueAt,omitempty"`
	ProjectedDueAt *time.Time `json:"projectedDueAt,omitempty"`
	CanRenew       *bool      `json:"canRenew,omitempty"`
	Estimate       bool       `json:"estimate"`
}

type summaryResponse struct {
	Total     int `json:"total"`
	Borrowing int `json:"borrowing"`
	Overdue   int `json:"overdue"`
	Returned  int `json:"returned"`
}

type loanListResponse struct {
	Records []loanResponse  `json:"records"`
	Total   int64           `json:"total"`
	Current int64           `json:"current"`
	Pages   int64           `json:"pages"`
	Summary summaryResponse `json:"summary"`
}

func (h *LoanHandler) toLoanResponse(r model.LoanRecord, now time.Time) loanResponse {
	return loanResponse{
		ID:            r.ID,
		UserID:        r.UserID,
		Username:      r.Username,
		BookID:        r.BookID,
		BookTitle:     r.BookTitle,
		BookIsbn:      r.BookIsbn,
		Quantity:      r.Quantity,
		RenewCount:    r.RenewCount,
		Status:        r.Status.String(),
		DisplayStatus: h.policy.DisplayStatus(r, now).String(),
		BorrowedAt:    h.instant(r.BorrowTime),
		DueAt:         h.instant(r.DueTime),
		ReturnedAt:    h.instant(r.ReturnTime),
		OverdueDays:   h.policy.OverdueDays(r, now),
		CanRenew:      h.policy.CanRenew(r, now),
		CanReturn:     h.policy.CanReturn(r),
		Remark:        r.Remark,
	}
}

func (h *LoanHandler) instant(raw model.RawInstant) *time.Time {
	t, ok := borrow.NormalizeInstantIn(raw, h.policy.Location)
	if !ok {
		return nil
	}
	return &t
}

func (h *LoanHandler) toListResponse(page *model.PageResult[model.LoanRecord]) loanListResponse {
	now := h.now()
	records := make([]loanResponse, 0, len(page.Records))
	for _, r := range page.Records {
		records = append(records, h.toLoanResponse(r, now))
	}
	s := h.policy.Summarize(page.Records, now)

	return loanListResponse{
		Records: records,
		Total:   page.Total,
		Current: page.Current,
		Pages:   page.Pages,
		Summary: summaryResponse{
			Total:     s.Total,
			Borrowing: s.Borrowing,
			Overdue:   s.Overdue,
			Returned:  s.Returned,
		},
	}
}

// loanQuery はクエリパラメータ page, size, status, userId を読み取る。
func loanQuery(r *http.Request) (model.LoanQuery, error) {
	page, size, err := pageParams(r)
	if err != nil {
		return model.LoanQuery{}, err
	}
	q := model.LoanQuery{Page: page, Size: size}

	if raw := r.URL.Query().Get("status"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < int(model.LoanStatusBorrowing) || n > int(model.LoanStatusRenewed) {
			return model.LoanQuery{}, model.NewValidationError("status", "0〜3で指定してください")
		}
		status := model.LoanStatus(n)
		q.Status = &status
	}
	if raw := r.URL.Query().Get("userId"); raw != "" {
		q.UserID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return model.LoanQuery{}, model.NewValidationError("userId", "整数で指定してください")
		}
	}
	return q, nil
}

// --- ハンドラー ---

// Mine はログイン中のユーザーの借用記録を返す。
// GET /api/loans?page=&size=&status=
func (h *LoanHandler) Mine(w http.ResponseWriter, r *http.Request) {
	q, err := loanQuery(r)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	q.UserID = 0

	page, err := h.service.Mine(r.Context(), q)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toListResponse(page))
}

// All はすべての借用記録を返す（管理者向け）。
// GET /api/admin/loans?page=&size=&status=&userId=
func (h *LoanHandler) All(w http.ResponseWriter, r *http.Request) {
	q, err := loanQuery(r)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	page, err := h.service.All(r.Context(), q)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toListResponse(page))
}

// Get は借用記録1件を返す。
// GET /api/loans/{id}
func (h *LoanHandler) Get(w http.ResponseWriter, r *http.Request) {
	record, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.toLoanResponse(*record, h.now()))
}

// Statistics はサーバーが集計した借用統計を返す。
// GET /api/loans/statistics
func (h *LoanHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Statistics(r.Context())
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Borrow は図書を借用し、作成された借用記録を返す。
// POST /api/loans
func (h *LoanHandler) Borrow(w http.ResponseWriter, r *http.Request) {
	var req borrowRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	if req.Quantity == 0 {
		req.Quantity = defaultBorrowQuantity
	}

	id, err := h.service.Borrow(r.Context(), req.BookID, req.Quantity, req.BorrowDays, req.Remark)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	h.logger.Info("book borrowed",
		slog.Int64("loan_id", id),
		slog.Int64("book_id", req.BookID),
		slog.String("user_id", userIDOf(r)),
	)

	record, err := h.service.Get(r.Context(), id)
	if err != nil {
		// 借用は成立しているため、記録の取得に失敗してもIDのみ返す
		h.logger.Warn("failed to fetch borrowed record",
			slog.Int64("loan_id", id),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
		return
	}
	writeJSON(w, http.StatusCreated, h.toLoanResponse(*record, h.now()))
}

// Renew は借用期限を延長し、更新後の記録を返す。
// POST /api/loans/{id}/renew
func (h *LoanHandler) Renew(w http.ResponseWriter, r *http.Request) {
	var req renewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	record, ok := h.lookup(w, r)
	if !ok {
		return
	}

	if err := h.service.Renew(r.Context(), *record, req.RenewDays, h.now()); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	h.logger.Info("loan renewed",
		slog.Int64("loan_id", record.ID),
		slog.Float64("renew_days", req.RenewDays),
		slog.String("user_id", userIDOf(r)),
	)
	h.respondRefreshed(w, r, record.ID)
}

// Return は借用中の記録を返却し、更新後の記録を返す。
// POST /api/loans/{id}/return
func (h *LoanHandler) Return(w http.ResponseWriter, r *http.Request) {
	record, ok := h.lookup(w, r)
	if !ok {
		return
	}

	if err := h.service.Return(r.Context(), *record); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	h.logger.Info("book returned",
		slog.Int64("loan_id", record.ID),
		slog.String("user_id", userIDOf(r)),
	)
	h.respondRefreshed(w, r, record.ID)
}

// lookup はパスの借用記録IDから最新の記録を取得する。失敗時はレスポンスを書き込みfalseを返す。
// BorrowPreview は借用した場合の返却期限の見込みを返す。ネットワークは呼ばない。
// GET /api/loans/borrow-preview?days=
func (h *LoanHandler) BorrowPreview(w http.ResponseWriter, r *http.Request) {
	raw, err := borrow.ParseDays("borrowDays", r.URL.Query().Get("days"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	days, err := h.policy.ValidateBorrowDays(raw)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	loc := h.policy.Location
	if loc == nil {
		loc = time.Local
	}
	projected := borrow.ProjectedDueDate(h.now().In(loc), days)
	writeJSON(w, http.StatusOK, previewResponse{
		Days:           days,
		ProjectedDueAt: &projected,
		Estimate:       true,
	})
}

// RenewPreview は延長した場合の返却期限の見込みを返す。
// 延長できない記録は canRenew=false とし、見込みは返さない。
// GET /api/loans/{id}/renew-preview?days=
func (h *LoanHandler) RenewPreview(w http.ResponseWriter, r *http.Request) {
	raw, err := borrow.ParseDays("renewDays", r.URL.Query().Get("days"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	days, err := h.policy.ValidateRenewDays(raw)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	record, ok := h.lookup(w, r)
	if !ok {
		return
	}

	canRenew := h.policy.CanRenew(*record, h.now())
	resp := previewResponse{
		LoanID:       record.ID,
		Days:         days,
		CurrentDueAt: h.instant(record.DueTime),
		CanRenew:     &canRenew,
		Estimate:     true,
	}
	if canRenew && resp.CurrentDueAt != nil {
		projected := borrow.ProjectedDueDate(*resp.CurrentDueAt, days)
		resp.ProjectedDueAt = &projected
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *LoanHandler) lookup(w http.ResponseWriter, r *http.Request) (*model.LoanRecord, bool) {
	id, err := pathID(r, "id")
	if err != nil {
		handleServiceError(w, h.logger, err)
		return nil, false
	}
	record, err := h.service.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return nil, false
	}
	return record, true
}

// respondRefreshed は操作後の記録を取得し直して返す。取得に失敗した場合は204を返す。
func (h *LoanHandler) respondRefreshed(w http.ResponseWriter, r *http.Request, id int64) {
	record, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.logger.Warn("failed to refresh loan record",
			slog.Int64("loan_id", id),
			slog.String("error", err.Error()),
		)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, h.toLoanResponse(*record, h.now()))
}

func userIDOf(r *http.Request) string {
	id, _ := middleware.UserIDFromContext(r.Context())
	return id
}
