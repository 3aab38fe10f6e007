package model

import "encoding/json"

// SuccessCode はエンベロープで成功を示す唯一のcode。
const SuccessCode = 200

// Envelope はリモートAPIの全レスポンスに共通するラッパー。
// HTTPが成功していてもcodeが200以外であれば業務エラーとして扱う。
type Envelope struct {
	Code      int             `json:"code"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// OK はエンベロープが成功を示している場合にtrueを返す。
func (e *Envelope) OK() bool {
	return e.Code == SuccessCode
}

// PageResult はページング付き一覧のレスポンスデータ。
type PageResult[T any] struct {
	Records []T   `json:"records"`
	Total   int64 `json:"total"`
	Size    int64 `json:"size"`
	Current int64 `json:"current"`
	Pages   int64 `json:"pages"`
}
