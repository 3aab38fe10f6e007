// Package handler はローカルエージェントのHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/shelfman/internal/middleware"
	"github.com/hitoshi/shelfman/internal/model"
)

// maxRequestBytes はリクエストボディの上限サイズ。
const maxRequestBytes = 64 << 10

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// handleServiceError はサービス層から返されたエラーを統一エラーフォーマットで書き込む。
// model.APIError 以外のエラーは詳細をログにのみ記録する。
func handleServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		logger.Error("internal server error", slog.String("error", err.Error()))
	}
	middleware.WriteAPIError(w, err)
}

// decodeJSON はリクエストボディをJSONとして読み取る。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return model.NewValidationError("body", "正しいJSON形式でリクエストしてください")
	}
	return nil
}

// pathID はURLパスパラメータを正の整数として解釈する。
func pathID(r *http.Request, key string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, key), 10, 64)
	if err != nil || id <= 0 {
		return 0, model.NewValidationError(key, "正の整数で指定してください")
	}
	return id, nil
}

// queryInt はクエリパラメータを整数として解釈する。未指定の場合は0を返す。
func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, model.NewValidationError(key, "整数で指定してください")
	}
	return n, nil
}

// pageParams はクエリパラメータ page, size を読み取る。
func pageParams(r *http.Request) (page, size int, err error) {
	if page, err = queryInt(r, "page"); err != nil {
		return 0, 0, err
	}
	if size, err = queryInt(r, "size"); err != nil {
		return 0, 0, err
	}
	return page, size, nil
}
