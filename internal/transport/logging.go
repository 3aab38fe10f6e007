package transport

import (
	"log/slog"
	"net/http"
	"time"
)

// NewLogging は送信リクエストのJSON構造化ログを出力するRoundTripperを返す。
// ログにはmethod、path、status、duration_ms、request_idを含む。
// Authorization や X-Refresh-Token などのヘッダーは出力しない。
func NewLogging(next http.RoundTripper, logger *slog.Logger) http.RoundTripper {
	return roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		start := time.Now()
		resp, err := next.RoundTrip(req)
		durationMs := float64(time.Since(start).Nanoseconds()) / float64(time.Millisecond)

		args := []any{
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
			slog.Float64("duration_ms", durationMs),
		}
		if id := req.Header.Get(RequestIDHeader); id != "" {
			args = append(args, slog.String("request_id", id))
		}

		if err != nil {
			args = append(args, slog.String("error", err.Error()))
			logger.Log(req.Context(), slog.LevelWarn, "api_request_failed", args...)
			return nil, err
		}

		args = append(args, slog.Int("status", resp.StatusCode))

		level := slog.LevelDebug
		if resp.StatusCode >= 500 {
			level = slog.LevelError
		} else if resp.StatusCode >= 400 {
			level = slog.LevelWarn
		}
		logger.Log(req.Context(), level, "api_request", args...)

		return resp, nil
	})
}
