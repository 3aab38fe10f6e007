package app

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/hitoshi/shelfman/internal/borrow"
	"github.com/hitoshi/shelfman/internal/model"
)

const displayTimeLayout = "2006-01-02 15:04"

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

// formatInstant は日時をポリシーのタイムゾーンで表示用に整形する。解釈できない場合は "-"。
func formatInstant(p borrow.Policy, raw model.RawInstant) string {
	t, ok := borrow.NormalizeInstantIn(raw, p.Location)
	if !ok {
		return "-"
	}
	return t.Format(displayTimeLayout)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func printPageFooter[T any](w io.Writer, page *model.PageResult[T]) {
	fmt.Fprintf(w, "page %d/%d, %d total\n", page.Current, max(page.Pages, 1), page.Total)
}
