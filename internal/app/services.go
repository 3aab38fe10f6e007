package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/shelfman/internal/api"
	"github.com/hitoshi/shelfman/internal/borrow"
	"github.com/hitoshi/shelfman/internal/config"
	"github.com/hitoshi/shelfman/internal/credential"
	"github.com/hitoshi/shelfman/internal/database"
	"github.com/hitoshi/shelfman/internal/library"
	"github.com/hitoshi/shelfman/internal/metrics"
	"github.com/hitoshi/shelfman/internal/session"
	"github.com/hitoshi/shelfman/internal/transport"
	"github.com/hitoshi/shelfman/internal/worker/cleanup"
)

const backendPingTimeout = 5 * time.Second

// services はセッションを扱うコマンドが共有する依存関係一式。
type services struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Collector

	store   *credential.Store
	client  *api.Client
	session *session.Service
	policy  borrow.Policy

	books *library.Books
	loans *library.Loans
	users *library.Users

	// cleanup はPostgreSQLバックエンドでTTLが設定されている場合のみ非nil
	cleanup *cleanup.CleanupJob

	closers []func() error
}

// newServices はクレデンシャルのバックエンドを開き、リクエストパイプラインと各サービスを組み立てる。
// 保存済みのセッションがあれば復元する。
func newServices(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*services, error) {
	svc := &services{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		policy: borrow.Policy{
			MaxBorrowDays: cfg.MaxBorrowDays,
			MaxRenewDays:  cfg.MaxRenewDays,
			MaxRenewCount: cfg.MaxRenewCount,
			Location:      cfg.Location,
		},
	}

	backend, err := svc.openBackend(ctx)
	if err != nil {
		svc.Close()
		return nil, err
	}
	svc.store = credential.NewStore(backend, logger)

	svc.metrics = metrics.NewCollector(svc.registry)
	httpClient := transport.NewClient(cfg.RequestTimeout, transport.Options{
		RateLimit: cfg.RateLimitRPS,
		Burst:     cfg.RateLimitBurst,
		Logger:    logger,
	})

	client, err := api.New(api.Config{
		BaseURL:    cfg.APIBaseURL,
		HTTPClient: httpClient,
		Timeout:    cfg.RequestTimeout,
		Logger:     logger,
		Metrics:    svc.metrics,
	}, svc.store)
	if err != nil {
		svc.Close()
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}
	client.OnSessionEnded(func(reason string) {
		logger.Warn("session ended", slog.String("reason", reason))
	})
	svc.client = client

	svc.session = session.NewService(client, logger)
	svc.books = library.NewBooks(client)
	svc.loans = library.NewLoans(client, svc.policy)
	svc.users = library.NewUsers(client)

	if svc.session.Restore(ctx) {
		logger.Debug("session restored", slog.Int64("user_id", svc.session.CurrentUser().ID))
	}

	return svc, nil
}

// openBackend は設定に応じたクレデンシャルキャッシュのバックエンドを開く。
func (svc *services) openBackend(ctx context.Context) (credential.Backend, error) {
	cfg := svc.cfg

	switch cfg.CredentialStore {
	case config.StoreMemory:
		return credential.NewMemoryBackend(), nil

	case config.StoreRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		svc.closers = append(svc.closers, rdb.Close)

		pingCtx, cancel := context.WithTimeout(ctx, backendPingTimeout)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return credential.NewRedisBackend(rdb, cfg.RedisKeyPrefix, cfg.CredentialProfile, cfg.CredentialTTL), nil

	case config.StorePostgres:
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		svc.closers = append(svc.closers, db.Close)

		if err := database.Ping(ctx, db, backendPingTimeout); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("failed to migrate credential cache: %w", err)
		}
		if cfg.CredentialTTL > 0 {
			// 期限切れのキャッシュを復元しないよう読み込み前に1回削除する
			svc.cleanup = cleanup.NewCleanupJob(db, svc.logger, cfg.CredentialTTL)
			if _, err := svc.cleanup.Run(ctx); err != nil {
				return nil, fmt.Errorf("failed to clean up credential cache: %w", err)
			}
		}
		return credential.NewPostgresBackend(db, cfg.CredentialProfile), nil

	default:
		return credential.NewFileBackend(cfg.CredentialFile), nil
	}
}

// Close は開いたバックエンド接続を閉じる。
func (svc *services) Close() error {
	var errs []error
	for i := len(svc.closers) - 1; i >= 0; i-- {
		if err := svc.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	svc.closers = nil
	return errors.Join(errs...)
}
