package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend はRedisにスロットを保存するバックエンド。
// キーは "<prefix><profile>:<slot>" の形式で、3つのキーは MULTI/EXEC でまとめて書き込み・削除する。
type RedisBackend struct {
	redis   redis.UniversalClient
	prefix  string
	profile string
	ttl     time.Duration
}

// NewRedisBackend はRedisBackendを生成する。ttl が0以下の場合は有効期限を設定しない。
func NewRedisBackend(client redis.UniversalClient, prefix, profile string, ttl time.Duration) *RedisBackend {
	if profile == "" {
		profile = "default"
	}
	return &RedisBackend{
		redis:   client,
		prefix:  prefix,
		profile: profile,
		ttl:     ttl,
	}
}

func (b *RedisBackend) key(slot string) string {
	return b.prefix + b.profile + ":" + slot
}

func (b *RedisBackend) keys() []string {
	return []string{
		b.key(SlotAccessToken),
		b.key(SlotRefreshToken),
		b.key(SlotUserInfo),
	}
}

// Load は3つのキーを1回の MGET で読み込む。
func (b *RedisBackend) Load(ctx context.Context) (Slots, error) {
	values, err := b.redis.MGet(ctx, b.keys()...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Slots{}, fmt.Errorf("failed to load credential from redis: %w", err)
	}

	str := func(i int) string {
		if i >= len(values) || values[i] == nil {
			return ""
		}
		s, _ := values[i].(string)
		return s
	}
	return Slots{
		AccessToken:  str(0),
		RefreshToken: str(1),
		UserInfo:     str(2),
	}, nil
}

// Save は3つのキーをトランザクションで書き込む。空のスロットは削除する。
func (b *RedisBackend) Save(ctx context.Context, slots Slots) error {
	values := []string{slots.AccessToken, slots.RefreshToken, slots.UserInfo}
	keys := b.keys()

	_, err := b.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, key := range keys {
			if values[i] == "" {
				pipe.Del(ctx, key)
				continue
			}
			pipe.Set(ctx, key, values[i], b.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save credential to redis: %w", err)
	}
	return nil
}

// Clear は3つのキーを1回の DEL で削除する。
func (b *RedisBackend) Clear(ctx context.Context) error {
	if err := b.redis.Del(ctx, b.keys()...).Err(); err != nil {
		return fmt.Errorf("failed to clear credential in redis: %w", err)
	}
	return nil
}

// compile-time interface check
var _ Backend = (*RedisBackend)(nil)
