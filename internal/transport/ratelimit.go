package transport

import (
	"fmt"
	"net/http"

	"golang.org/x/time/rate"
)

// NewRateLimited はトークンバケットで送信レートを制限するRoundTripperを返す。
// トークン待ちはリクエストのコンテキストに従い、キャンセルされた場合はエラーを返す。
func NewRateLimited(next http.RoundTripper, limiter *rate.Limiter) http.RoundTripper {
	return roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		if err := limiter.Wait(req.Context()); err != nil {
			if req.Body != nil {
				req.Body.Close()
			}
			return nil, fmt.Errorf("rate limiter wait aborted: %w", err)
		}
		return next.RoundTrip(req)
	})
}
