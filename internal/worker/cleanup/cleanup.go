// Package cleanup は有効期限を過ぎたクレデンシャルキャッシュの削除ジョブを提供する。
// PostgreSQLバックエンドは行ごとの期限を持たないため、updated_at と CREDENTIAL_TTL で判定する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// CleanupJob は期限切れのクレデンシャルキャッシュ行を削除するジョブ。
// 冪等な削除処理で、何度実行してもよい。
type CleanupJob struct {
	db     Executor
	logger *slog.Logger
	TTL    time.Duration // 最終更新からの保持期間。0以下の場合は何もしない
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(db Executor, logger *slog.Logger, ttl time.Duration) *CleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupJob{
		db:     db,
		logger: logger,
		TTL:    ttl,
	}
}

// Run は updated_at が TTL より古い行を削除し、削除件数を返す。
func (j *CleanupJob) Run(ctx context.Context) (int64, error) {
	if j.TTL <= 0 {
		return 0, nil
	}
	start := time.Now()

	ttlSeconds := int64(j.TTL / time.Second)
	interval := fmt.Sprintf("%d seconds", ttlSeconds)

	query := `DELETE FROM credential_cache WHERE updated_at < now() - $1::interval`
	result, err := j.db.ExecContext(ctx, query, interval)
	if err != nil {
		j.logger.Error("credential cleanup failed",
			slog.String("error", err.Error()),
			slog.Int64("ttl_seconds", ttlSeconds),
		)
		return 0, fmt.Errorf("failed to delete expired credentials: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get deleted count: %w", err)
	}

	j.logger.Info("credential cleanup completed",
		slog.Int64("deleted_count", deletedCount),
		slog.Int64("ttl_seconds", ttlSeconds),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return deletedCount, nil
}

// Start は interval ごとに Run を実行する。ctxがキャンセルされるまで戻らない。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if j.TTL <= 0 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// エラーは Run 内でログ済み
			_, _ = j.Run(ctx)
		}
	}
}
