package library

import (
	"context"
	"net/url"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/shelfman/internal/api"
	"github.com/hitoshi/shelfman/internal/model"
)

// Users はユーザー管理APIを提供する（管理者向け）。
type Users struct {
	client   *api.Client
	validate *validator.Validate
}

// NewUsers はUsersを生成する。
func NewUsers(client *api.Client) *Users {
	return &Users{client: client, validate: validator.New()}
}

// List はユーザー一覧を取得する。
func (u *Users) List(ctx context.Context, q model.UserQuery) (*model.PageResult[model.Identity], error) {
	values := pageValues(q.Page, q.Size)
	if q.Keyword != "" {
		values.Set("keyword", q.Keyword)
	}

	var page model.PageResult[model.Identity]
	if err := u.client.Get(ctx, "/api/users", values, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Get はユーザーの詳細を取得する。
func (u *Users) Get(ctx context.Context, userID int64) (*model.Identity, error) {
	if err := checkUserID(userID); err != nil {
		return nil, err
	}

	var user model.Identity
	if err := u.client.Get(ctx, idPath("/api/users", userID), nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateRole はユーザーの権限区分を変更する。
func (u *Users) UpdateRole(ctx context.Context, userID int64, role model.Role) error {
	if err := checkUserID(userID); err != nil {
		return err
	}
	if role != model.RoleAdmin && role != model.RoleUser {
		return model.NewValidationError("role", "ADMIN または USER を指定してください")
	}
	body := map[string]string{"role": string(role)}
	return u.client.Put(ctx, idPath("/api/users", userID)+"/role", nil, body, nil)
}

// UpdateStatus はユーザーの有効・無効を変更する。status は 0（無効）または 1（有効）。
func (u *Users) UpdateStatus(ctx context.Context, userID int64, status int) error {
	if err := checkUserID(userID); err != nil {
		return err
	}
	if status != 0 && status != 1 {
		return model.NewValidationError("status", "0 または 1 を指定してください")
	}
	query := url.Values{"status": {strconv.Itoa(status)}}
	return u.client.Put(ctx, idPath("/api/users", userID)+"/status", query, nil, nil)
}

// UpdatePassword はユーザーのパスワードを再設定する。
func (u *Users) UpdatePassword(ctx context.Context, userID int64, newPassword string) error {
	if err := checkUserID(userID); err != nil {
		return err
	}
	req := model.UpdatePasswordRequest{NewPassword: newPassword}
	if err := u.validate.Struct(req); err != nil {
		return structError(err)
	}
	return u.client.Put(ctx, idPath("/api/users", userID)+"/password", nil, req, nil)
}

func checkUserID(userID int64) error {
	if userID <= 0 {
		return model.NewValidationError("userId", "正の整数で指定してください")
	}
	return nil
}
