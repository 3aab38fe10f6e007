package api

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/shelfman/internal/model"
)

// outcomeKind は1回の送信結果の分類。
type outcomeKind int

const (
	// outcomeOK はHTTP 2xxかつエンベロープのcodeが200。
	outcomeOK outcomeKind = iota
	// outcomeAuthExpired はHTTP 401。リフレッシュの対象になりうる唯一の結果。
	outcomeAuthExpired
	// outcomeFailed はそれ以外の失敗（業務エラー、HTTPエラー、通信エラー）。err に分類済みのエラーを持つ。
	outcomeFailed
)

// outcome は送信結果を表すタグ付きの値。
type outcome struct {
	kind     outcomeKind
	status   int
	envelope *model.Envelope
	message  string
	err      *model.APIError
}

// metricLabel はメトリクスに記録する結果種別を返す。
func (o outcome) metricLabel() string {
	switch o.kind {
	case outcomeOK:
		return "ok"
	case outcomeAuthExpired:
		return "auth_expired"
	}
	if o.err == nil {
		return "error"
	}
	switch o.err.Code {
	case model.ErrCodeBusiness:
		return "business"
	case model.ErrCodeNetwork:
		return "network"
	default:
		return "http_error"
	}
}

// classifyResponse はHTTPレスポンスを送信結果に分類する。
// 2xxの場合はエンベロープを解析し、codeが200以外なら業務エラーとする。
func classifyResponse(status int, body []byte) outcome {
	switch {
	case status == http.StatusUnauthorized:
		return outcome{kind: outcomeAuthExpired, status: status, message: envelopeMessage(body)}
	case status >= 200 && status < 300:
		var env model.Envelope
		if err := json.Unmarshal(body, &env); err != nil {
			apiErr := model.NewRequestFailedError(status, "レスポンスの解析に失敗しました。")
			apiErr.Err = err
			return outcome{kind: outcomeFailed, status: status, err: apiErr}
		}
		if !env.OK() {
			return outcome{kind: outcomeFailed, status: status, envelope: &env, err: model.NewBusinessError(env.Code, env.Message)}
		}
		return outcome{kind: outcomeOK, status: status, envelope: &env}
	default:
		return outcome{kind: outcomeFailed, status: status, err: ClassifyHTTPStatus(status, envelopeMessage(body))}
	}
}

// ClassifyHTTPStatus は2xxと401以外のHTTPステータスをエラーに分類する。
// message はレスポンスのエンベロープに含まれていたメッセージ（なければ空文字）。
func ClassifyHTTPStatus(status int, message string) *model.APIError {
	switch {
	case status == http.StatusForbidden:
		return model.NewForbiddenError()
	case status == http.StatusNotFound:
		return model.NewNotFoundError()
	case status >= 500:
		return model.NewServerError(status, message)
	default:
		return model.NewRequestFailedError(status, message)
	}
}

// envelopeMessage はエラーレスポンスの本文からエンベロープのメッセージを取り出す。
func envelopeMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var env model.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return ""
	}
	return env.Message
}
