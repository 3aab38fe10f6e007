package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/shelfman/internal/borrow"
	"github.com/hitoshi/shelfman/internal/middleware"
	"github.com/hitoshi/shelfman/internal/model"
)

// --- モック定義 ---

type mockSessionService struct {
	loginFn    func(ctx context.Context, username, password string) (*model.Identity, error)
	logoutFn   func(ctx context.Context) error
	registerFn func(ctx context.Context, req model.RegisterRequest) (*model.Identity, error)
	current    *model.Identity
}

func (m *mockSessionService) Login(ctx context.Context, username, password string) (*model.Identity, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, username, password)
	}
	return nil, nil
}

func (m *mockSessionService) Logout(ctx context.Context) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx)
	}
	return nil
}

func (m *mockSessionService) Register(ctx context.Context, req model.RegisterRequest) (*model.Identity, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, req)
	}
	return &model.Identity{Username: req.Username}, nil
}

func (m *mockSessionService) CurrentUser() *model.Identity {
	return m.current
}

// Identity は SessionFinder を満たすため、ログイン中のユーザーを返す。
func (m *mockSessionService) Identity() *model.Identity {
	return m.current
}

type mockBookService struct {
	listFn       func(ctx context.Context, q model.BookQuery) (*model.PageResult[model.Book], error)
	getFn        func(ctx context.Context, id int64) (*model.Book, error)
	categoriesFn func(ctx context.Context) ([]model.Category, error)
	createFn     func(ctx context.Context, req model.BookRequest) (*model.Book, error)
	updateFn     func(ctx context.Context, id int64, req model.BookRequest) (*model.Book, error)
	deleteFn     func(ctx context.Context, id int64) error
}

func (m *mockBookService) List(ctx context.Context, q model.BookQuery) (*model.PageResult[model.Book], error) {
	if m.listFn != nil {
		return m.listFn(ctx, q)
	}
	return &model.PageResult[model.Book]{}, nil
}

func (m *mockBookService) Get(ctx context.Context, id int64) (*model.Book, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, model.NewNotFoundError()
}

func (m *mockBookService) Categories(ctx context.Context) ([]model.Category, error) {
	if m.categoriesFn != nil {
		return m.categoriesFn(ctx)
	}
	return nil, nil
}

func (m *mockBookService) Create(ctx context.Context, req model.BookRequest) (*model.Book, error) {
	if m.createFn != nil {
		return m.createFn(ctx, req)
	}
	return &model.Book{Title: req.Title}, nil
}

func (m *mockBookService) Update(ctx context.Context, id int64, req model.BookRequest) (*model.Book, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, req)
	}
	return &model.Book{ID: id, Title: req.Title}, nil
}

func (m *mockBookService) Delete(ctx context.Context, id int64) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

type mockLoanService struct {
	mineFn       func(ctx context.Context, q model.LoanQuery) (*model.PageResult[model.LoanRecord], error)
	allFn        func(ctx context.Context, q model.LoanQuery) (*model.PageResult[model.LoanRecord], error)
	getFn        func(ctx context.Context, id int64) (*model.LoanRecord, error)
	statisticsFn func(ctx context.Context) (*model.LoanStatistics, error)
	borrowFn     func(ctx context.Context, bookID int64, quantity int, days float64, remark string) (int64, error)
	renewFn      func(ctx context.Context, record model.LoanRecord, days float64, now time.Time) error
	returnFn     func(ctx context.Context, record model.LoanRecord) error
}

func (m *mockLoanService) Mine(ctx context.Context, q model.LoanQuery) (*model.PageResult[model.LoanRecord], error) {
	if m.mineFn != nil {
		return m.mineFn(ctx, q)
	}
	return &model.PageResult[model.LoanRecord]{}, nil
}

func (m *mockLoanService) All(ctx context.Context, q model.LoanQuery) (*model.PageResult[model.LoanRecord], error) {
	if m.allFn != nil {
		return m.allFn(ctx, q)
	}
	return &model.PageResult[model.LoanRecord]{}, nil
}

func (m *mockLoanService) Get(ctx context.Context, id int64) (*model.LoanRecord, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, model.NewNotFoundError()
}

func (m *mockLoanService) Statistics(ctx context.Context) (*model.LoanStatistics, error) {
	if m.statisticsFn != nil {
		return m.statisticsFn(ctx)
	}
	return &model.LoanStatistics{}, nil
}

func (m *mockLoanService) Borrow(ctx context.Context, bookID int64, quantity int, days float64, remark string) (int64, error) {
	if m.borrowFn != nil {
		return m.borrowFn(ctx, bookID, quantity, days, remark)
	}
	return 0, nil
}

func (m *mockLoanService) Renew(ctx context.Context, record model.LoanRecord, days float64, now time.Time) error {
	if m.renewFn != nil {
		return m.renewFn(ctx, record, days, now)
	}
	return nil
}

func (m *mockLoanService) Return(ctx context.Context, record model.LoanRecord) error {
	if m.returnFn != nil {
		return m.returnFn(ctx, record)
	}
	return nil
}

type mockUserService struct {
	listFn         func(ctx context.Context, q model.UserQuery) (*model.PageResult[model.Identity], error)
	updateRoleFn   func(ctx context.Context, userID int64, role model.Role) error
	updateStatusFn func(ctx context.Context, userID int64, status int) error
	getFn          func(ctx context.Context, userID int64) (*model.Identity, error)
	updatePassFn   func(ctx context.Context, userID int64, newPassword string) error
}

func (m *mockUserService) List(ctx context.Context, q model.UserQuery) (*model.PageResult[model.Identity], error) {
	if m.listFn != nil {
		return m.listFn(ctx, q)
	}
	return &model.PageResult[model.Identity]{}, nil
}

func (m *mockUserService) UpdateRole(ctx context.Context, userID int64, role model.Role) error {
	if m.updateRoleFn != nil {
		return m.updateRoleFn(ctx, userID, role)
	}
	return nil
}

func (m *mockUserService) UpdateStatus(ctx context.Context, userID int64, status int) error {
	if m.updateStatusFn != nil {
		return m.updateStatusFn(ctx, userID, status)
	}
	return nil
}

func (m *mockUserService) Get(ctx context.Context, userID int64) (*model.Identity, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID)
	}
	return &model.Identity{ID: userID}, nil
}

func (m *mockUserService) UpdatePassword(ctx context.Context, userID int64, newPassword string) error {
	if m.updatePassFn != nil {
		return m.updatePassFn(ctx, userID, newPassword)
	}
	return nil
}

var (
	_ SessionServiceInterface  = (*mockSessionService)(nil)
	_ middleware.SessionFinder = (*mockSessionService)(nil)
	_ BookServiceInterface     = (*mockBookService)(nil)
	_ LoanServiceInterface     = (*mockLoanService)(nil)
	_ UserServiceInterface     = (*mockUserService)(nil)
)

// --- テストヘルパー ---

var (
	alice = &model.Identity{ID: 10, Username: "alice", Role: model.RoleUser}
	admin = &model.Identity{ID: 1, Username: "admin", Role: model.RoleAdmin}

	// fixedNow はテストで使う現在時刻（2025-12-10 12:00 UTC）。
	fixedNow = time.Date(2025, 12, 10, 12, 0, 0, 0, time.UTC)
)

const testCSRFToken = "test-csrf-token"

type testRouter struct {
	handler  http.Handler
	sessions *mockSessionService
	books    *mockBookService
	loans    *mockLoanService
	users    *mockUserService
	logs     *bytes.Buffer
}

func newTestRouter(t *testing.T, user *model.Identity) *testRouter {
	t.Helper()

	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(logs, nil))

	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(), logger)
	t.Cleanup(rl.Stop)

	policy := borrow.DefaultPolicy
	policy.Location = time.UTC

	tr := &testRouter{
		sessions: &mockSessionService{current: user},
		books:    &mockBookService{},
		loans:    &mockLoanService{},
		users:    &mockUserService{},
		logs:     logs,
	}
	tr.handler = NewRouter(&RouterDeps{
		Logger:         logger,
		SessionFinder:  tr.sessions,
		RateLimiter:    rl,
		CSRF:           middleware.NewCSRF(middleware.CSRFConfig{}, logger),
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("# metrics")) }),
		SessionService: tr.sessions,
		BookService:    tr.books,
		LoanService:    tr.loans,
		UserService:    tr.users,
		Policy:         policy,
		Now:            func() time.Time { return fixedNow },
	})
	return tr
}

// do はCSRFトークン付きでリクエストを送信する。
func (tr *testRouter) do(method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.AddCookie(&http.Cookie{Name: "shelfman_csrf", Value: testCSRFToken})
	req.Header.Set("X-CSRF-Token", testCSRFToken)

	w := httptest.NewRecorder()
	tr.handler.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v\nraw: %s", err, w.Body.String())
	}
	return v
}

func assertStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d\nbody: %s", w.Code, want, w.Body.String())
	}
}

func assertErrorCode(t *testing.T, w *httptest.ResponseRecorder, want string) {
	t.Helper()
	body := decodeBody[middleware.ErrorResponseBody](t, w)
	if body.Code != want {
		t.Errorf("code = %q, want %q", body.Code, want)
	}
}
