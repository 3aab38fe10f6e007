// Package transport は外部APIへの送信に使う http.RoundTripper の連鎖を提供する。
// リクエストIDの付与、送信レートの制限、構造化ログの出力を順に適用する。
package transport

import (
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// RequestIDHeader は送信リクエストに付与する相関IDのヘッダー名。
const RequestIDHeader = "X-Request-ID"

// Options は送信チェーンの設定。
type Options struct {
	// RateLimit は1秒あたりの送信数。0以下の場合は制限しない。
	RateLimit float64
	// Burst はトークンバケットのバーストサイズ。
	Burst int
	// Logger は送信ログの出力先。nilの場合はログを出力しない。
	Logger *slog.Logger
}

// New は base を包む送信チェーンを組み立てる。base がnilの場合は http.DefaultTransport を使う。
// 適用順はリクエストID → レート制限 → ログ → base。
func New(base http.RoundTripper, opts Options) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}

	rt := base
	if opts.Logger != nil {
		rt = NewLogging(rt, opts.Logger)
	}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		rt = NewRateLimited(rt, rate.NewLimiter(rate.Limit(opts.RateLimit), burst))
	}
	return NewRequestID(rt)
}

// NewClient は送信チェーンと呼び出しごとのタイムアウトを設定した http.Client を返す。
func NewClient(timeout time.Duration, opts Options) *http.Client {
	return &http.Client{
		Transport: New(nil, opts),
		Timeout:   timeout,
	}
}

// roundTripperFunc は関数を http.RoundTripper として扱うアダプター。
type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
