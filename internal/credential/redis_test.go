package credential

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisBackendTest(t *testing.T, ttl time.Duration) (*RedisBackend, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return NewRedisBackend(rdb, "shelfman:", "default", ttl), mr
}

func TestRedisBackend_SaveLoadClear(t *testing.T) {
	ctx := context.Background()
	b, mr := newRedisBackendTest(t, 0)

	slots := Slots{AccessToken: "at1", RefreshToken: "rt1", UserInfo: `{"id":1}`}
	if err := b.Save(ctx, slots); err != nil {
		t.Fatalf("Save がエラーを返した: %v", err)
	}

	if v, _ := mr.Get("shelfman:default:accessToken"); v != "at1" {
		t.Errorf("accessToken キー = %q, want at1", v)
	}
	if v, _ := mr.Get("shelfman:default:userInfo"); v != `{"id":1}` {
		t.Errorf("userInfo キー = %q", v)
	}

	got, err := b.Load(ctx)
	if err != nil {
		t.Fatalf("Load がエラーを返した: %v", err)
	}
	if got != slots {
		t.Errorf("Load = %+v, want %+v", got, slots)
	}

	if err := b.Clear(ctx); err != nil {
		t.Fatalf("Clear がエラーを返した: %v", err)
	}
	for _, key := range []string{"shelfman:default:accessToken", "shelfman:default:refreshToken", "shelfman:default:userInfo"} {
		if mr.Exists(key) {
			t.Errorf("Clear 後もキー %s が残っている", key)
		}
	}
}

func TestRedisBackend_EmptyLoad(t *testing.T) {
	b, _ := newRedisBackendTest(t, 0)
	got, err := b.Load(context.Background())
	if err != nil {
		t.Fatalf("Load がエラーを返した: %v", err)
	}
	if got != (Slots{}) {
		t.Errorf("Load = %+v, want empty", got)
	}
}

func TestRedisBackend_EmptySlotRemovesKey(t *testing.T) {
	ctx := context.Background()
	b, mr := newRedisBackendTest(t, 0)

	if err := b.Save(ctx, Slots{AccessToken: "at1", RefreshToken: "rt1", UserInfo: "{}"}); err != nil {
		t.Fatalf("Save がエラーを返した: %v", err)
	}
	if err := b.Save(ctx, Slots{AccessToken: "at2", UserInfo: "{}"}); err != nil {
		t.Fatalf("Save がエラーを返した: %v", err)
	}

	if mr.Exists("shelfman:default:refreshToken") {
		t.Error("空のリフレッシュトークンのキーは削除されるべき")
	}
	got, _ := b.Load(ctx)
	if got.AccessToken != "at2" || got.RefreshToken != "" {
		t.Errorf("Load = %+v", got)
	}
}

func TestRedisBackend_TTL(t *testing.T) {
	ctx := context.Background()
	b, mr := newRedisBackendTest(t, time.Hour)

	if err := b.Save(ctx, Slots{AccessToken: "at1", RefreshToken: "rt1", UserInfo: "{}"}); err != nil {
		t.Fatalf("Save がエラーを返した: %v", err)
	}
	if ttl := mr.TTL("shelfman:default:accessToken"); ttl != time.Hour {
		t.Errorf("TTL = %v, want 1h", ttl)
	}

	// 期限切れ後はセッションなしとして読み込まれる
	mr.FastForward(2 * time.Hour)
	if got := NewStore(b, nil).Load(ctx); got != nil {
		t.Errorf("期限切れのキャッシュからセッションが復元された: %+v", got)
	}
}

func TestRedisBackend_ProfilesAreIsolated(t *testing.T) {
	ctx := context.Background()
	b, mr := newRedisBackendTest(t, 0)
	other := NewRedisBackend(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "shelfman:", "admin", 0)

	if err := b.Save(ctx, Slots{AccessToken: "at-default", UserInfo: "{}"}); err != nil {
		t.Fatalf("Save がエラーを返した: %v", err)
	}
	if err := other.Save(ctx, Slots{AccessToken: "at-admin", UserInfo: "{}"}); err != nil {
		t.Fatalf("Save がエラーを返した: %v", err)
	}
	if err := other.Clear(ctx); err != nil {
		t.Fatalf("Clear がエラーを返した: %v", err)
	}

	got, _ := b.Load(ctx)
	if got.AccessToken != "at-default" {
		t.Errorf("他のプロファイルの Clear が影響した: %+v", got)
	}
}

func TestRedisBackend_UnavailableReturnsError(t *testing.T) {
	b, mr := newRedisBackendTest(t, 0)
	mr.Close()

	if _, err := b.Load(context.Background()); err == nil {
		t.Error("Redis停止中の Load はエラーを返すべき")
	}
	if err := b.Save(context.Background(), Slots{AccessToken: "at1"}); err == nil {
		t.Error("Redis停止中の Save はエラーを返すべき")
	}
}
