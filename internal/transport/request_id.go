package transport

import (
	"net/http"

	"github.com/google/uuid"
)

// NewRequestID は X-Request-ID が未設定のリクエストにUUIDv4を付与するRoundTripperを返す。
// RoundTripper は元のリクエストを変更してはならないため、ヘッダーを付与する前に複製する。
func NewRequestID(next http.RoundTripper) http.RoundTripper {
	return roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		if req.Header.Get(RequestIDHeader) != "" {
			return next.RoundTrip(req)
		}
		cloned := req.Clone(req.Context())
		cloned.Header.Set(RequestIDHeader, uuid.NewString())
		return next.RoundTrip(cloned)
	})
}
