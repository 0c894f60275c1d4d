package ops

import (
	"context"
	"fmt"
	"time"

	"github.com/redkey-web/DewaterQuote-sub003/internal/export"
	"github.com/redkey-web/DewaterQuote-sub003/internal/quotes"
)

// ExportQuotes writes the quotes workbook for filter to path and returns
// how many quotes it holds.
func ExportQuotes(ctx context.Context, source export.Source, filter quotes.ListFilter, loc *time.Location, path string) (int, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return 0, fmt.Errorf("export: unknown status %q", filter.Status)
	}
	list, err := source.Export(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("export: load quotes: %w", err)
	}
	book, err := export.QuotesWorkbook(list, loc)
	if err != nil {
		return 0, err
	}
	defer func() { _ = book.Close() }()
	if err := book.SaveAs(path); err != nil {
		return 0, fmt.Errorf("export: save %s: %w", path, err)
	}
	return len(list), nil
}
