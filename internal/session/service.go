// Package session はログイン・ログアウトと現在のユーザー情報の参照を提供する。
package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/shelfman/internal/api"
	"github.com/hitoshi/shelfman/internal/model"
)

const (
	loginPath    = "/api/auth/login"
	logoutPath   = "/api/auth/logout"
	registerPath = "/api/auth/register"
)

// Service はセッションのライフサイクルを管理する。
// ストアへの書き込みは api.Client の Establish と Terminate を経由する。
type Service struct {
	client   *api.Client
	logger   *slog.Logger
	validate *validator.Validate
}

// NewService はServiceを生成する。
func NewService(client *api.Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		client:   client,
		logger:   logger,
		validate: validator.New(),
	}
}

// Login は資格情報でログインし、トークン一式とユーザー情報をストアに保存する。
// 入力が空の場合はネットワーク呼び出しの前に ValidationError を返す。
// リモートの失敗はそのまま返し、既存のセッションは変更しない。
func (s *Service) Login(ctx context.Context, username, password string) (*model.Identity, error) {
	req := model.LoginRequest{Username: username, Password: password}
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	var resp model.LoginResponse
	err := s.client.Do(ctx, api.Request{
		Method: http.MethodPost,
		Path:   loginPath,
		Body:   req,
		Public: true,
	}, &resp)
	if err != nil {
		return nil, err
	}

	if resp.AccessToken == "" || resp.User == nil {
		return nil, model.NewRequestFailedError(http.StatusOK, "ログインレスポンスにトークンまたはユーザー情報が含まれていません。")
	}

	cred := model.Credential{Tokens: resp.Bundle(), User: *resp.User}
	if err := s.client.Establish(ctx, cred); err != nil {
		return nil, err
	}

	s.logger.Info("login succeeded",
		slog.Int64("user_id", cred.User.ID),
		slog.String("username", cred.User.Username),
	)

	user := cred.User
	return &user, nil
}

// Register は利用者を登録し、登録されたユーザーを返す。
// 登録はログインを兼ねないため、ストアと現在のセッションは変更しない。
// 入力の検証に失敗した場合はネットワークを呼ばない。
func (s *Service) Register(ctx context.Context, req model.RegisterRequest) (*model.Identity, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	var user model.Identity
	err := s.client.Do(ctx, api.Request{
		Method:    http.MethodPost,
		Path:   registerPath,
		Body:   req,
		Public: true,
	}, &user)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered",
		slog.Int64("registered_user_id", user.ID),
		slog.String("username", req.Username),
	)
	return &user, nil
}

// Logout はリモートにログアウトを通知し、ローカルのセッションを破棄する。
// リモートの失敗はログに記録するのみで、ローカルの破棄は常に行う。
func (s *Service) Logout(ctx context.Context) error {
	if s.Authenticated() {
		err := s.client.Do(ctx, api.Request{
			Method:    http.MethodPost,
			Path:      logoutPath,
			NoRecover: true,
		}, nil)
		if err != nil {
			s.logger.Warn("remote logout failed",
				slog.String("error", err.Error()),
			)
		}
	}

	s.client.Terminate(ctx)
	return nil
}

// Restore は保存済みのセッションを読み込む。トークンとユーザー情報が揃っていればtrueを返す。
// サーバーへの確認は行わない。
func (s *Service) Restore(ctx context.Context) bool {
	return s.client.Store().Load(ctx) != nil
}

// CurrentUser は現在のユーザー情報を返す。未ログインの場合はnil。
func (s *Service) CurrentUser() *model.Identity {
	return s.client.Store().Identity()
}

// IsAdmin は現在のユーザーが管理者の場合にtrueを返す。
func (s *Service) IsAdmin() bool {
	return s.CurrentUser().IsAdmin()
}

// Authenticated はセッションが存在する場合にtrueを返す。
func (s *Service) Authenticated() bool {
	return s.client.Store().Current() != nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return model.NewValidationError(fe.Field(), reason(fe))
	}
	return model.NewValidationError("request", err.Error())
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "必須項目です"
	case "min":
		return fe.Param() + "文字以上で入力してください"
	case "max":
		return fe.Param() + "文字以内で入力してください"
	case "email":
		return "メールアドレスの形式が正しくありません"
	case "eqfield":
		return "パスワードが一致しません"
	default:
		return "条件 " + fe.Tag() + " を満たしていません"
	}
}
