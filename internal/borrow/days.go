package borrow

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/shelfman/internal/model"
)

// maxDaysMagnitude はint変換前に弾く日数の絶対値。
const maxDaysMagnitude = 1e9

var validate = validator.New()

// ValidateBorrowDays は借用日数を検証し、整数値を返す。
// 1以上 MaxBorrowDays 以下の整数のみ受け付ける。ネットワーク呼び出しの前に使う。
func (p Policy) ValidateBorrowDays(days float64) (int, error) {
	return validateDays("borrowDays", days, p.MaxBorrowDays)
}

// ValidateRenewDays は延長日数を検証し、整数値を返す。
// 1以上 MaxRenewDays 以下の整数のみ受け付ける。
func (p Policy) ValidateRenewDays(days float64) (int, error) {
	return validateDays("renewDays", days, p.MaxRenewDays)
}

// CanSubmitBorrowDays は借用日数が送信可能な値ならtrueを返す。
func (p Policy) CanSubmitBorrowDays(days float64) bool {
	_, err := p.ValidateBorrowDays(days)
	return err == nil
}

// CanSubmitRenewDays は延長日数が送信可能な値ならtrueを返す。
func (p Policy) CanSubmitRenewDays(days float64) bool {
	_, err := p.ValidateRenewDays(days)
	return err == nil
}

// CanSubmitBorrowDays は DefaultPolicy で借用日数を検証する。
func CanSubmitBorrowDays(days float64) bool {
	return DefaultPolicy.CanSubmitBorrowDays(days)
}

// CanSubmitRenewDays は DefaultPolicy で延長日数を検証する。
func CanSubmitRenewDays(days float64) bool {
	return DefaultPolicy.CanSubmitRenewDays(days)
}

// ParseDays はフォームやコマンドライン引数の文字列を日数として解釈する。
// 数値として解釈できない場合は ValidationError を返す。範囲の検証は行わない。
func ParseDays(field, s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, model.NewValidationError(field, "日数は数値で指定してください")
	}
	return v, nil
}

func validateDays(field string, days float64, max int) (int, error) {
	if math.IsNaN(days) || math.IsInf(days, 0) || days != math.Trunc(days) {
		return 0, model.NewValidationError(field, "日数は整数で指定してください")
	}
	if math.Abs(days) > maxDaysMagnitude {
		return 0, model.NewValidationError(field, rangeMessage(max))
	}

	n := int(days)
	tag := "min=1"
	if max > 0 {
		tag = fmt.Sprintf("min=1,max=%d", max)
	}
	if err := validate.Var(n, tag); err != nil {
		return 0, model.NewValidationError(field, rangeMessage(max))
	}
	return n, nil
}

func rangeMessage(max int) string {
	if max > 0 {
		return fmt.Sprintf("日数は1〜%dの範囲で指定してください", max)
	}
	return "日数は1以上で指定してください"
}
