package credential

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresBackend はPostgreSQLの credential_cache テーブルにスロットを保存するバックエンド。
// プロファイルごとに1行を持ち、3スロットは1つの文で書き込まれる。
type PostgresBackend struct {
	db      *sql.DB
	profile string
}

// NewPostgresBackend はPostgresBackendを生成する。
func NewPostgresBackend(db *sql.DB, profile string) *PostgresBackend {
	if profile == "" {
		profile = "default"
	}
	return &PostgresBackend{db: db, profile: profile}
}

// Load はプロファイルの行を読み込む。行が存在しない場合は空のスロットを返す。
func (b *PostgresBackend) Load(ctx context.Context) (Slots, error) {
	var slots Slots
	err := b.db.QueryRowContext(ctx,
		`SELECT access_token, refresh_token, user_info
		 FROM credential_cache
		 WHERE profile = $1`,
		b.profile,
	).Scan(&slots.AccessToken, &slots.RefreshToken, &slots.UserInfo)

	if err == sql.ErrNoRows {
		return Slots{}, nil
	}
	if err != nil {
		return Slots{}, fmt.Errorf("failed to load credential: %w", err)
	}
	return slots, nil
}

// Save はプロファイルの行を挿入または更新する。
func (b *PostgresBackend) Save(ctx context.Context, slots Slots) error {
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO credential_cache (profile, access_token, refresh_token, user_info, updated_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (profile) DO UPDATE SET
		   access_token = EXCLUDED.access_token,
		   refresh_token = EXCLUDED.refresh_token,
		   user_info = EXCLUDED.user_info,
		   updated_at = now()`,
		b.profile, slots.AccessToken, slots.RefreshToken, slots.UserInfo,
	)
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

// Clear はプロファイルの行を削除する。
func (b *PostgresBackend) Clear(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx,
		`DELETE FROM credential_cache WHERE profile = $1`,
		b.profile,
	)
	if err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	return nil
}

// compile-time interface check
var _ Backend = (*PostgresBackend)(nil)
