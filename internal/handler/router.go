package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/shelfman/internal/borrow"
	"github.com/hitoshi/shelfman/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRF              *middleware.CSRF

	// GET /metrics。nilの場合はルートを登録しない
	MetricsHandler http.Handler

	SessionService SessionServiceInterface
	BookService    BookServiceInterface
	LoanService    LoanServiceInterface
	UserService    UserServiceInterface

	Policy borrow.Policy
	Now    func() time.Time
}

// NewRouter はローカルエージェントの全エンドポイントとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → Logging → SecurityHeaders → CORS → CSRF
//
// ログイン中のみのルートにはさらに Session → RateLimit(General) を適用し、
// 管理者向けルートには Admin を追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(deps.CSRF.Middleware())

	sessionHandler := NewSessionHandler(deps.SessionService, logger)
	bookHandler := NewBookHandler(deps.BookService, logger)
	loanHandler := NewLoanHandler(deps.LoanService, deps.Policy, deps.Now, logger)
	userHandler := NewUserHandler(deps.UserService, logger)

	// --- ログイン不要のルート ---
	r.Method(http.MethodGet, "/health", NewHealthHandler(deps.SessionFinder))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.Method(http.MethodGet, "/api/csrf-token", deps.CSRF.TokenHandler())

	r.Route("/api/session", func(r chi.Router) {
		r.Get("/", sessionHandler.Get)
		r.With(deps.RateLimiter.LoginMiddleware()).Post("/login", sessionHandler.Login)
		r.With(deps.RateLimiter.LoginMiddleware()).Post("/register", sessionHandler.Register)
		r.Post("/logout", sessionHandler.Logout)
	})

	// --- ログインが必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/api/books", bookHandler.List)
		r.Get("/api/books/{id}", bookHandler.Get)
		r.Get("/api/categories", bookHandler.Categories)

		r.Route("/api/loans", func(r chi.Router) {
			r.Get("/", loanHandler.Mine)
			r.Post("/", loanHandler.Borrow)
			r.Get("/statistics", loanHandler.Statistics)
			r.Get("/borrow-preview", loanHandler.BorrowPreview)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", loanHandler.Get)
				r.Get("/renew-preview", loanHandler.RenewPreview)
				r.Post("/renew", loanHandler.Renew)
				r.Post("/return", loanHandler.Return)
			})
		})

		// 管理者向け
		r.Route("/api/admin", func(r chi.Router) {
			r.Use(middleware.NewAdminMiddleware())

			r.Get("/loans", loanHandler.All)

			r.Post("/books", bookHandler.Create)
			r.Put("/books/{id}", bookHandler.Update)
			r.Delete("/books/{id}", bookHandler.Delete)

			r.Get("/users", userHandler.List)
			r.Get("/users/{id}", userHandler.Get)
			r.Put("/users/{id}/role", userHandler.UpdateRole)
			r.Put("/users/{id}/status", userHandler.UpdateStatus)
			r.Put("/users/{id}/password", userHandler.UpdatePassword)
		})
	})

	return r
}
