// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// リモート呼び出しの失敗はパイプライン境界で1回だけ分類され、この型で呼び出し元へ伝播する。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code         string // エラーコード
	Message      string // エラーメッセージ
	Category     string // カテゴリ: auth, validation, borrow, system
	Action       string // ユーザー向け対処方法
	HTTPStatus   int    // HTTPステータス（レスポンスがない場合は0）
	BusinessCode int    // エンベロープのcode（業務エラーの場合のみ）
	Err          error  // 原因となったエラー
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は原因となったエラーを返す。
func (e *APIError) Unwrap() error {
	return e.Err
}

// Is はエラーコードが一致する場合にtrueを返す。
// errors.Is(err, model.ErrSessionExpired) のように定義済みエラーと比較できる。
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// 定義済みエラーコード
const (
	ErrCodeBusiness         = "BUSINESS_ERROR"
	ErrCodeSessionExpired   = "SESSION_EXPIRED"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeServer           = "SERVER_ERROR"
	ErrCodeRequestFailed    = "REQUEST_FAILED"
	ErrCodeNetwork          = "NETWORK_ERROR"
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeBorrowNotAllowed = "BORROW_NOT_ALLOWED"
)

// errors.Is で比較するための定義済みエラー。
var (
	ErrBusiness         = &APIError{Code: ErrCodeBusiness}
	ErrSessionExpired   = &APIError{Code: ErrCodeSessionExpired}
	ErrUnauthorized     = &APIError{Code: ErrCodeUnauthorized}
	ErrForbidden        = &APIError{Code: ErrCodeForbidden}
	ErrNotFound         = &APIError{Code: ErrCodeNotFound}
	ErrServer           = &APIError{Code: ErrCodeServer}
	ErrRequestFailed    = &APIError{Code: ErrCodeRequestFailed}
	ErrNetwork          = &APIError{Code: ErrCodeNetwork}
	ErrValidation       = &APIError{Code: ErrCodeValidation}
	ErrBorrowNotAllowed = &APIError{Code: ErrCodeBorrowNotAllowed}
)

// NewBusinessError はエンベロープのcodeが200以外だった場合の業務エラーを生成する。
// メッセージはサーバーから返されたものをそのまま保持する。
func NewBusinessError(code int, message string) *APIError {
	if message == "" {
		message = "リクエストに失敗しました。"
	}
	return &APIError{
		Code:         ErrCodeBusiness,
		Message:      message,
		Category:     "business",
		Action:       "入力内容を確認してください。",
		HTTPStatus:   200,
		BusinessCode: code,
	}
}

// NewSessionExpiredError はセッション失効エラーを生成する。
func NewSessionExpiredError(err error) *APIError {
	return &APIError{
		Code:       ErrCodeSessionExpired,
		Message:    "ログインの有効期限が切れました。",
		Category:   "auth",
		Action:     "再度ログインしてください。",
		HTTPStatus: 401,
		Err:        err,
	}
}

// NewUnauthorizedError は公開エンドポイント（ログイン等）で401が返された場合のエラーを生成する。
func NewUnauthorizedError(message string) *APIError {
	if message == "" {
		message = "認証に失敗しました。"
	}
	return &APIError{
		Code:       ErrCodeUnauthorized,
		Message:    message,
		Category:   "auth",
		Action:     "ユーザー名とパスワードを確認してください。",
		HTTPStatus: 401,
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:       ErrCodeForbidden,
		Message:    "このリソースへのアクセス権限がありません。",
		Category:   "auth",
		Action:     "管理者に権限を確認してください。",
		HTTPStatus: 403,
	}
}

// NewNotFoundError はリソース未検出エラーを生成する。
func NewNotFoundError() *APIError {
	return &APIError{
		Code:       ErrCodeNotFound,
		Message:    "要求されたリソースが存在しません。",
		Category:   "system",
		Action:     "URLまたはIDを確認してください。",
		HTTPStatus: 404,
	}
}

// NewServerError はサーバーエラーを生成する。
// エンベロープにメッセージが含まれていればそれを優先する。
func NewServerError(status int, message string) *APIError {
	if message == "" {
		message = "サーバーエラーが発生しました。"
	}
	return &APIError{
		Code:       ErrCodeServer,
		Message:    message,
		Category:   "system",
		Action:     "しばらく待ってから再度お試しください。",
		HTTPStatus: status,
	}
}

// NewRequestFailedError は分類外のHTTPステータスに対するエラーを生成する。
func NewRequestFailedError(status int, message string) *APIError {
	if message == "" {
		message = "リクエストに失敗しました。"
	}
	return &APIError{
		Code:       ErrCodeRequestFailed,
		Message:    message,
		Category:   "system",
		Action:     "入力内容を確認し、再度お試しください。",
		HTTPStatus: status,
	}
}

// NewNetworkError はレスポンスを受信できなかった場合（タイムアウト、接続不可）のエラーを生成する。
func NewNetworkError(err error) *APIError {
	return &APIError{
		Code:     ErrCodeNetwork,
		Message:  "ネットワークエラーが発生しました。",
		Category: "system",
		Action:   "ネットワーク接続を確認してください。",
		Err:      err,
	}
}

// NewValidationError はローカル入力検証エラーを生成する。
// このエラーはサーバーへ送信される前に返される。
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力値が不正です（%s）: %s", field, reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewBorrowNotAllowedError は貸出延長・返却の条件を満たさない場合のエラーを生成する。
func NewBorrowNotAllowedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeBorrowNotAllowed,
		Message:  reason,
		Category: "borrow",
		Action:   "借用状態を確認してください。延滞中の場合は先に返却してください。",
	}
}
