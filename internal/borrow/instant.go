// Package borrow は借用記録のライフサイクル判定（表示ステータス、延滞、延長可否、期限計算）を提供する。
// すべて純粋関数であり、I/Oや状態を持たない。
package borrow

import (
	"strings"
	"time"

	"github.com/hitoshi/shelfman/internal/model"
)

// zonelessLayouts はタイムゾーンを含まない文字列表現のレイアウト。
// 秒の後ろの小数部はレイアウトに関わらずパース時に受理される。
var zonelessLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// NormalizeInstant は日時の生表現をローカルタイムゾーンの time.Time に正規化する。
// 値がない、または解釈できない場合は (time.Time{}, false) を返す。
func NormalizeInstant(raw model.RawInstant) (time.Time, bool) {
	return NormalizeInstantIn(raw, time.Local)
}

// NormalizeInstantIn はタイムゾーンを持たない表現を loc の時刻として正規化する。
// 文字列表現と配列表現のどちらでも同じ時刻は同じ time.Time になる。
func NormalizeInstantIn(raw model.RawInstant, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}

	if len(raw.Parts) > 0 {
		return fromParts(raw.Parts, loc)
	}

	text := strings.TrimSpace(raw.Text)
	if text == "" {
		return time.Time{}, false
	}
	return fromText(text, loc)
}

func fromText(text string, loc *time.Location) (time.Time, bool) {
	// タイムゾーン付き（RFC 3339）はそのまま解釈する
	if t, err := time.Parse(time.RFC3339Nano, text); err == nil {
		return t, true
	}

	for _, layout := range zonelessLayouts {
		if t, err := time.ParseInLocation(layout, text, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// fromParts は [年, 月, 日, 時, 分, 秒, ナノ秒] を解釈する。
// 月は1始まり。末尾のゼロ要素はサーバー側で省略されることがあるため、3〜7要素を受け付ける。
func fromParts(parts []int, loc *time.Location) (time.Time, bool) {
	if len(parts) < 3 || len(parts) > 7 {
		return time.Time{}, false
	}

	var f [7]int
	copy(f[:], parts)
	year, month, day, hour, minute, second, nanos := f[0], f[1], f[2], f[3], f[4], f[5], f[6]

	if month < 1 || month > 12 || day < 1 || day > 31 ||
		hour < 0 || hour > 23 || minute < 0 || minute > 59 ||
		second < 0 || second > 59 || nanos < 0 || nanos > 999999999 {
		return time.Time{}, false
	}

	t := time.Date(year, time.Month(month), day, hour, minute, second, nanos, loc)
	// 2月30日のような存在しない日付は繰り上がるため不正として扱う
	if t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}
