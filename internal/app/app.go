package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/shelfman/internal/config"
	"github.com/hitoshi/shelfman/internal/database"
	"github.com/hitoshi/shelfman/internal/handler"
	"github.com/hitoshi/shelfman/internal/logger"
	"github.com/hitoshi/shelfman/internal/metrics"
	"github.com/hitoshi/shelfman/internal/middleware"
	"github.com/hitoshi/shelfman/internal/worker/watch"
)

// Stdio はコマンドの入出力先。ログは Err に出力する。
type Stdio struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応する処理を実行する。
// argsにはos.Args[1:]を渡す。ctxのキャンセルでserveはグレースフルシャットダウンする。
func Run(ctx context.Context, stdio Stdio, args []string) error {
	cmd := ParseCommand(args)

	switch cmd {
	case CommandHelp:
		fmt.Fprint(stdio.Out, usage)
		return nil
	case CommandUnknown:
		return fmt.Errorf("unknown command %q\n\n%s", args[0], usage)
	case CommandHealthcheck:
		// 軽量サブコマンドのため、フル初期化をスキップする
		return runHealthcheck(ctx, healthcheckURL())
	}

	cfg, err := Init(stdio.Err)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	log := slog.Default()
	log.Debug("starting application",
		slog.String("command", string(cmd)),
		slog.String("api_base_url", cfg.APIBaseURL),
		slog.String("credential_store", cfg.CredentialStore),
	)

	if cmd == CommandMigrate {
		return runMigrate(cfg, args[1:])
	}

	svc, err := newServices(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer svc.Close()

	if cmd == CommandServe {
		return runServe(ctx, svc)
	}
	return runCLI(ctx, cmd, svc, stdio, args[1:])
}

// runServe はローカルエージェントを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, svc *services) error {
	cfg := svc.cfg
	log := svc.logger

	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	// configの値はreq/min単位なのでreq/secに変換する
	if cfg.AgentRateLimitGeneral > 0 {
		rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.AgentRateLimitGeneral) / 60.0)
		rateLimiterCfg.GeneralBurst = cfg.AgentRateLimitGeneral
	}
	if cfg.AgentRateLimitLogin > 0 {
		rateLimiterCfg.LoginRate = rate.Limit(float64(cfg.AgentRateLimitLogin) / 60.0)
		rateLimiterCfg.LoginBurst = cfg.AgentRateLimitLogin
	}
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg, log)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            log,
		SessionFinder:     svc.store,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		CSRF:              middleware.NewCSRF(middleware.CSRFConfig{CookieSecure: cfg.CookieSecure}, log),
		MetricsHandler:    metrics.Handler(svc.registry),

		SessionService: svc.session,
		BookService:    svc.books,
		LoanService:    svc.loans,
		UserService:    svc.users,

		Policy: svc.policy,
		Now:    time.Now,
	})

	// 1回の呼び出しはリフレッシュと再送を含めて最大3往復になる
	server := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 3*cfg.RequestTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", server.Addr, err)
	}

	if ip := net.ParseIP(cfg.ServerHost); ip == nil || !ip.IsLoopback() {
		log.Warn("local agent is listening on a non-loopback address",
			slog.String("host", cfg.ServerHost),
		)
	}

	jobsCtx, stopJobs := context.WithCancel(ctx)
	jobs := startBackgroundJobs(jobsCtx, svc)
	defer jobs.Wait()
	defer stopJobs()

	errCh := make(chan error, 1)
	go func() {
		log.Info("local agent starting",
			slog.String("addr", ln.Addr().String()),
			slog.Bool("authenticated", svc.session.Authenticated()),
		)
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down local agent...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("local agent stopped gracefully")
	return nil
}

// startBackgroundJobs は借用記録の監視とクレデンシャルキャッシュの削除を開始する。
// どちらもctxのキャンセルで停止する。返り値の Wait で停止を待てる。
func startBackgroundJobs(ctx context.Context, svc *services) *sync.WaitGroup {
	cfg := svc.cfg
	var wg sync.WaitGroup

	if cfg.LoanWatchInterval > 0 {
		watchCfg := watch.DefaultConfig()
		watchCfg.DueSoon = cfg.LoanDueSoon
		watcher := watch.NewWatcher(svc.loans, svc.session, svc.metrics, svc.policy, watchCfg, svc.logger)
		wg.Go(func() { watcher.Start(ctx, cfg.LoanWatchInterval) })
	}

	if svc.cleanup != nil && cfg.CleanupInterval > 0 {
		wg.Go(func() { svc.cleanup.Start(ctx, cfg.CleanupInterval) })
	}
	return &wg
}

// runMigrate はクレデンシャルキャッシュのマイグレーションを実行する。
// 引数に down を指定した場合はすべてロールバックする。
func runMigrate(cfg *config.Config, args []string) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for migrate")
	}

	if len(args) > 0 && args[0] == "down" {
		slog.Info("rolling back database migrations",
			slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		)
		if err := database.RollbackMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
		slog.Info("database migrations rolled back")
		return nil
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// healthcheckURL はSERVER_HOSTとSERVER_PORTからヘルスチェック先を組み立てる。
func healthcheckURL() string {
	host := os.Getenv("SERVER_HOST")
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8090"
	}
	return "http://" + net.JoinHostPort(host, port) + "/health"
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(ctx context.Context, target string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
