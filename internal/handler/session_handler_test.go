package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/hitoshi/shelfman/internal/model"
)

func TestSessionHandler_Get(t *testing.T) {
	tr := newTestRouter(t, admin)

	w := tr.do(http.MethodGet, "/api/session", "")
	assertStatus(t, w, http.StatusOK)

	body := decodeBody[sessionResponse](t, w)
	if !body.Authenticated || !body.IsAdmin || body.User.Username != "admin" {
		t.Errorf("body = %+v", body)
	}
}

func TestSessionHandler_Get_Anonymous(t *testing.T) {
	tr := newTestRouter(t, nil)

	w := tr.do(http.MethodGet, "/api/session", "")
	assertStatus(t, w, http.StatusOK)

	body := decodeBody[sessionResponse](t, w)
	if body.Authenticated || body.IsAdmin || body.User != nil {
		t.Errorf("未ログインのセッション状態 = %+v", body)
	}
}

func TestSessionHandler_Login(t *testing.T) {
	tr := newTestRouter(t, nil)
	tr.sessions.loginFn = func(ctx context.Context, username, password string) (*model.Identity, error) {
		if username != "alice" || password != "secret" {
			t.Errorf("Login(%q, %q)", username, password)
		}
		return alice, nil
	}

	w := tr.do(http.MethodPost, "/api/session/login", `{"username":"alice","password":"secret"}`)
	assertStatus(t, w, http.StatusOK)

	body := decodeBody[sessionResponse](t, w)
	if !body.Authenticated || body.User.ID != alice.ID {
		t.Errorf("body = %+v", body)
	}
}

func TestSessionHandler_Login_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		err      error
		want     int
		wantCode string
	}{
		{"資格情報の誤り", `{"username":"alice","password":"bad"}`, model.NewUnauthorizedError("用户名或密码错误"), http.StatusUnauthorized, model.ErrCodeUnauthorized},
		{"入力不足", `{"username":""}`, model.NewValidationError("username", "必須です"), http.StatusBadRequest, model.ErrCodeValidation},
		{"不正なJSON", `{`, nil, http.StatusBadRequest, model.ErrCodeValidation},
		{"サーバー停止", `{"username":"alice","password":"secret"}`, model.NewNetworkError(errors.New("refused")), http.StatusBadGateway, model.ErrCodeNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTestRouter(t, nil)
			tr.sessions.loginFn = func(ctx context.Context, username, password string) (*model.Identity, error) {
				return nil, tt.err
			}

			w := tr.do(http.MethodPost, "/api/session/login", tt.body)
			assertStatus(t, w, tt.want)
			assertErrorCode(t, w, tt.wantCode)
		})
	}
}

func TestSessionHandler_Logout(t *testing.T) {
	tr := newTestRouter(t, alice)
	called := false
	tr.sessions.logoutFn = func(ctx context.Context) error {
		called = true
		return nil
	}

	w := tr.do(http.MethodPost, "/api/session/logout", "")
	assertStatus(t, w, http.StatusNoContent)
	if !called {
		t.Error("Logout が呼ばれなかった")
	}
}

func TestSessionHandler_LoginIsRateLimited(t *testing.T) {
	tr := newTestRouter(t, nil)
	tr.sessions.loginFn = func(ctx context.Context, username, password string) (*model.Identity, error) {
		return nil, model.NewUnauthorizedError("")
	}

	var last int
	for i := 0; i < 6; i++ {
		last = tr.do(http.MethodPost, "/api/session/login", `{"username":"alice","password":"bad"}`).Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("6回目のログイン試行の status = %d, want 429", last)
	}
}

func TestSessionHandler_Register(t *testing.T) {
	tr := newTestRouter(t, nil)
	var got model.RegisterRequest
	tr.sessions.registerFn = func(ctx context.Context, req model.RegisterRequest) (*model.Identity, error) {
		got = req
		return &model.Identity{ID: 12, Username: req.Username, Role: model.RoleUser}, nil
	}

	w := tr.do(http.MethodPost, "/api/session/register",
		`{"username":"carol","password":"secret1","confirmPassword":"secret1","email":"carol@example.com"}`)
	assertStatus(t, w, http.StatusCreated)
	if got.Username != "carol" || got.ConfirmPassword != "secret1" || got.Email != "carol@example.com" {
		t.Errorf("request = %+v", got)
	}
	if body := decodeBody[model.Identity](t, w); body.ID != 12 {
		t.Errorf("body = %+v", body)
	}
}

func TestSessionHandler_Register_ValidationError(t *testing.T) {
	tr := newTestRouter(t, nil)
	tr.sessions.registerFn = func(ctx context.Context, req model.RegisterRequest) (*model.Identity, error) {
		return nil, model.NewValidationError("ConfirmPassword", "パスワードが一致しません")
	}

	w := tr.do(http.MethodPost, "/api/session/register", `{"username":"carol","password":"secret1","confirmPassword":"x"}`)
	assertStatus(t, w, http.StatusBadRequest)
	assertErrorCode(t, w, model.ErrCodeValidation)
}
