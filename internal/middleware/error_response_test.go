package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/shelfman/internal/model"
)

// TestWriteErrorResponse_WritesUnifiedFormat は統一エラーフォーマットでレスポンスが書き込まれることを検証する。
func TestWriteErrorResponse_WritesUnifiedFormat(t *testing.T) {
	w := httptest.NewRecorder()

	WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
		Code:     "TEST_ERROR",
		Message:  "テストエラーです。",
		Category: "validation",
		Action:   "正しい値を入力してください。",
	})

	resp := w.Result()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if body.Code != "TEST_ERROR" || body.Message != "テストエラーです。" ||
		body.Category != "validation" || body.Action != "正しい値を入力してください。" {
		t.Errorf("body = %+v", body)
	}
}

func TestWriteInternalServerError_HidesDetails(t *testing.T) {
	w := httptest.NewRecorder()
	WriteInternalServerError(w)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	var body ErrorResponseBody
	json.NewDecoder(w.Body).Decode(&body)
	if body.Code != "INTERNAL_ERROR" || body.Category != "system" {
		t.Errorf("body = %+v", body)
	}
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  *model.APIError
		want int
	}{
		{model.NewSessionExpiredError(nil), http.StatusUnauthorized},
		{model.NewUnauthorizedError(""), http.StatusUnauthorized},
		{model.NewValidationError("borrowDays", "範囲外"), http.StatusBadRequest},
		{model.NewForbiddenError(), http.StatusForbidden},
		{model.NewNotFoundError(), http.StatusNotFound},
		{model.NewBusinessError(500, "库存不足"), http.StatusUnprocessableEntity},
		{model.NewBorrowNotAllowedError("延滞中"), http.StatusUnprocessableEntity},
		{model.NewNetworkError(errors.New("refused")), http.StatusBadGateway},
		{model.NewServerError(503, ""), http.StatusBadGateway},
		{model.NewRequestFailedError(409, ""), http.StatusBadGateway},
		{&model.APIError{Code: "UNKNOWN"}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Code, func(t *testing.T) {
			if got := StatusForError(tt.err); got != tt.want {
				t.Errorf("StatusForError(%s) = %d, want %d", tt.err.Code, got, tt.want)
			}
		})
	}
}

func TestWriteAPIError_UnwrapsWrappedErrors(t *testing.T) {
	w := httptest.NewRecorder()
	WriteAPIError(w, fmt.Errorf("failed to borrow: %w", model.NewBusinessError(500, "库存不足")))

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}
	var body ErrorResponseBody
	json.NewDecoder(w.Body).Decode(&body)
	if body.Code != model.ErrCodeBusiness || body.Message != "库存不足" {
		t.Errorf("body = %+v", body)
	}
}

func TestWriteAPIError_PlainErrorIsInternal(t *testing.T) {
	w := httptest.NewRecorder()
	WriteAPIError(w, errors.New("boom"))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}
