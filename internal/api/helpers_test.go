package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/shelfman/internal/credential"
	"github.com/hitoshi/shelfman/internal/model"
	"github.com/hitoshi/shelfman/internal/transport"
)

// writeEnvelope はリモートAPIと同じ形式のエンベロープを書き込む。
func writeEnvelope(w http.ResponseWriter, status, code int, message string, data any) {
	raw, _ := json.Marshal(data)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(model.Envelope{
		Code:      code,
		Message:   message,
		Data:      raw,
		Timestamp: time.Now().UnixMilli(),
	})
}

func writeOK(w http.ResponseWriter, data any) {
	writeEnvelope(w, http.StatusOK, model.SuccessCode, "success", data)
}

func bearer(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

// fakeAPI はテスト用のリモートAPI。
// /api/auth/refresh の呼び出し回数を数え、保護されたエンドポイントは validToken 以外を401で拒否する。
type fakeAPI struct {
	t *testing.T

	mu         sync.Mutex
	validToken string

	refreshCalls atomic.Int32
	// refreshFn はリフレッシュエンドポイントの振る舞い。nilの場合は at2/rt2 を返す。
	refreshFn func(w http.ResponseWriter, r *http.Request)
	// booksFn は /api/books の振る舞い。nilの場合は validToken と比較する。
	booksFn func(w http.ResponseWriter, r *http.Request)

	lastRefreshAuth string
	lastRefreshHdr  string
}

func (f *fakeAPI) setValidToken(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.validToken = token
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/auth/refresh":
		f.refreshCalls.Add(1)
		f.mu.Lock()
		f.lastRefreshAuth = r.Header.Get("Authorization")
		f.lastRefreshHdr = r.Header.Get("X-Refresh-Token")
		f.mu.Unlock()

		if f.refreshFn != nil {
			f.refreshFn(w, r)
			return
		}
		f.setValidToken("at2")
		writeOK(w, model.LoginResponse{AccessToken: "at2", RefreshToken: "rt2", TokenType: "Bearer", ExpiresIn: 3600})
	case "/api/books":
		if f.booksFn != nil {
			f.booksFn(w, r)
			return
		}
		f.mu.Lock()
		valid := f.validToken
		f.mu.Unlock()
		if bearer(r) != valid {
			writeEnvelope(w, http.StatusUnauthorized, 401, "token expired", nil)
			return
		}
		writeOK(w, map[string]any{"records": []map[string]any{{"id": 1, "title": "Go"}}, "total": 1})
	default:
		http.NotFound(w, r)
	}
}

type fixture struct {
	api     *fakeAPI
	srv     *httptest.Server
	client  *Client
	store   *credential.Store
	backend *credential.MemoryBackend

	endedMu sync.Mutex
	ended   []string
}

func (f *fixture) endedReasons() []string {
	f.endedMu.Lock()
	defer f.endedMu.Unlock()
	return append([]string(nil), f.ended...)
}

func testIdentity() model.Identity {
	return model.Identity{ID: 7, Username: "alice", Role: model.RoleUser, Status: 1}
}

// newFixture は at1/rt1 でログイン済みのストアと fakeAPI を準備する。
func newFixture(t *testing.T, api *fakeAPI) *fixture {
	t.Helper()
	if api == nil {
		api = &fakeAPI{}
	}
	api.t = t
	api.setValidToken("at1")

	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	backend := credential.NewMemoryBackend()
	logger := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	store := credential.NewStore(backend, logger)
	err := store.Save(context.Background(), model.Credential{
		Tokens: model.TokenBundle{AccessToken: "at1", RefreshToken: "rt1"},
		User:   testIdentity(),
	})
	if err != nil {
		t.Fatalf("ストアの準備に失敗: %v", err)
	}

	client, err := New(Config{
		BaseURL:    srv.URL,
		HTTPClient: transport.NewClient(2*time.Second, transport.Options{}),
		Timeout:    2 * time.Second,
		Logger:     logger,
	}, store)
	if err != nil {
		t.Fatalf("Client生成に失敗: %v", err)
	}

	f := &fixture{api: api, srv: srv, client: client, store: store, backend: backend}
	client.OnSessionEnded(func(reason string) {
		f.endedMu.Lock()
		defer f.endedMu.Unlock()
		f.ended = append(f.ended, reason)
	})
	return f
}

// assertCode はエラーが指定したコードの *model.APIError であることを検証する。
func assertCode(t *testing.T, err error, target *model.APIError) *model.APIError {
	t.Helper()
	if err == nil {
		t.Fatalf("エラーが返らなかった: want %s", target.Code)
	}
	apiErr, ok := err.(*model.APIError)
	if !ok {
		t.Fatalf("*model.APIError でない: %T %v", err, err)
	}
	if apiErr.Code != target.Code {
		t.Fatalf("Code = %s, want %s (%v)", apiErr.Code, target.Code, err)
	}
	return apiErr
}

func assertStoreEmpty(t *testing.T, f *fixture) {
	t.Helper()
	if f.store.Current() != nil || f.store.AccessToken() != "" || f.store.RefreshToken() != "" || f.store.Identity() != nil {
		t.Error("ストアが空になっていない")
	}
	slots, _ := f.backend.Load(context.Background())
	if slots != (credential.Slots{}) {
		t.Errorf("バックエンドにスロットが残っている: %+v", slots)
	}
}

func assertStoreTokens(t *testing.T, f *fixture, access, refresh string) {
	t.Helper()
	if got := f.store.AccessToken(); got != access {
		t.Errorf("AccessToken = %q, want %q", got, access)
	}
	if got := f.store.RefreshToken(); got != refresh {
		t.Errorf("RefreshToken = %q, want %q", got, refresh)
	}
}
