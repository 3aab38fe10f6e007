package model

// Role はユーザーの権限区分を表す。
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

// Identity はログイン中ユーザーの情報を表す。
// ログイン時に丸ごと置き換えられ、ログアウト時に破棄される。
type Identity struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
	RealName string `json:"realName,omitempty"`
	Role     Role   `json:"role"`
	Status   int    `json:"status"`
}

// IsAdmin は管理者権限を持つ場合にtrueを返す。
func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == RoleAdmin
}

// TokenBundle はアクセストークンとリフレッシュトークンの組を表す。
// トークンは不透明な文字列として扱い、クライアント側で構造や有効期限を解析しない。
type TokenBundle struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"` // 秒
}

// Credential はセッション状態の1単位（トークン一式とユーザー情報）を表す。
// 常に全体として保存・削除される。
type Credential struct {
	Tokens TokenBundle
	User   Identity
}

// LoginRequest はログインAPIのリクエストボディ。
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest は利用者登録APIのリクエストボディ。
type RegisterRequest struct {
	Username        string `json:"username" validate:"required,min=3,max=50"`
	Password        string `json:"password" validate:"required,min=6,max=20"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
	Email           string `json:"email" validate:"required,email"`
	Phone           string `json:"phone,omitempty" validate:"max=20"`
	RealName        string `json:"realName,omitempty" validate:"max=50"`
}

// UpdatePasswordRequest はパスワード変更APIのリクエストボディ（管理者向け）。
type UpdatePasswordRequest struct {
	NewPassword string `json:"newPassword" validate:"required,min=6,max=20"`
}

// LoginResponse はログインAPIおよびリフレッシュAPIのレスポンスデータ。
type LoginResponse struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	TokenType    string    `json:"tokenType"`
	ExpiresIn    int64     `json:"expiresIn"`
	User         *Identity `json:"user,omitempty"`
}

// Bundle はレスポンスからトークン一式を取り出す。
func (r *LoginResponse) Bundle() TokenBundle {
	return TokenBundle{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		ExpiresIn:    r.ExpiresIn,
	}
}

// UserQuery はユーザー一覧（管理者向け）の検索条件。
type UserQuery struct {
	Page    int
	Size    int
	Keyword string
}
