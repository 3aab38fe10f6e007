package library

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/shelfman/internal/api"
	"github.com/hitoshi/shelfman/internal/borrow"
	"github.com/hitoshi/shelfman/internal/credential"
	"github.com/hitoshi/shelfman/internal/model"
)

func writeEnvelope(w http.ResponseWriter, status, code int, message string, data any) {
	raw, _ := json.Marshal(data)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(model.Envelope{Code: code, Message: message, Data: raw})
}

// capturedRequest はテストサーバーが受け取ったリクエストの記録。
type capturedRequest struct {
	method string
	path   string
	query  map[string]string
	body   map[string]any
	auth   string
}

type testEnv struct {
	client *api.Client
	calls  *atomic.Int32
	last   atomic.Pointer[capturedRequest]
}

func newTestEnv(t *testing.T, respond func(w http.ResponseWriter, r *http.Request)) *testEnv {
	t.Helper()

	env := &testEnv{calls: &atomic.Int32{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.calls.Add(1)

		captured := &capturedRequest{
			method: r.Method,
			path:   r.URL.Path,
			query:  map[string]string{},
			auth:   r.Header.Get("Authorization"),
		}
		for k := range r.URL.Query() {
			captured.query[k] = r.URL.Query().Get(k)
		}
		if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
			json.Unmarshal(raw, &captured.body)
		}
		env.last.Store(captured)

		respond(w, r)
	}))
	t.Cleanup(srv.Close)

	store := credential.NewStore(credential.NewMemoryBackend(), nil)
	client, err := api.New(api.Config{BaseURL: srv.URL, Timeout: 2 * time.Second}, store)
	if err != nil {
		t.Fatalf("Client生成に失敗: %v", err)
	}
	err = client.Establish(context.Background(), model.Credential{
		Tokens: model.TokenBundle{AccessToken: "at1", RefreshToken: "rt1"},
		User:   model.Identity{ID: 10, Username: "alice", Role: model.RoleUser},
	})
	if err != nil {
		t.Fatalf("セッションの確立に失敗: %v", err)
	}
	env.client = client
	return env
}

func okWith(data any) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeEnvelope(w, http.StatusOK, 200, "success", data)
	}
}

func assertCode(t *testing.T, err error, target *model.APIError) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("エラーコード %s を期待したが got %v", target.Code, err)
	}
}

func utcPolicy() borrow.Policy {
	p := borrow.DefaultPolicy
	p.Location = time.UTC
	return p
}

var now = time.Date(2025, 12, 10, 12, 0, 0, 0, time.UTC)

func record(id int64, status model.LoanStatus, due string, renewCount int) model.LoanRecord {
	return model.LoanRecord{
		ID:         id,
		UserID:     10,
		BookID:     100,
		DueTime:    model.InstantText(due),
		RenewCount: renewCount,
		Status:     status,
	}
}
