package export

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/redkey-web/DewaterQuote-sub003/internal/platform/httpx"
	"github.com/redkey-web/DewaterQuote-sub003/internal/quotes"
)

// Source supplies the quotes to export.
type Source interface {
	Export(ctx context.Context, filter quotes.ListFilter) ([]quotes.Quote, error)
}

// Handler streams workbook downloads.
type Handler struct {
	logger *slog.Logger
	source Source
	loc    *time.Location
	now    func() time.Time
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, source Source, loc *time.Location) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{logger: logger, source: source, loc: loc, now: time.Now}
}

// MountAdmin registers the export routes. Callers guard them with a session.
func (h *Handler) MountAdmin(r chi.Router) {
	r.Get("/quotes/export.xlsx", h.quotes)
}

func (h *Handler) quotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := quotes.ListFilter{
		Status:         quotes.Status(strings.TrimSpace(q.Get("status"))),
		Search:         strings.TrimSpace(q.Get("q")),
		IncludeDeleted: q.Get("deleted") == "1",
	}
	if filter.Status != "" && !filter.Status.Valid() {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", fmt.Sprintf("unknown status %q", filter.Status))
		return
	}

	list, err := h.source.Export(r.Context(), filter)
	if err != nil {
		h.logger.Error("export quotes", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	book, err := QuotesWorkbook(list, h.loc)
	if err != nil {
		h.logger.Error("build quotes workbook", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	defer func() { _ = book.Close() }()

	name := fmt.Sprintf("quotes-%s.xlsx", h.now().In(h.loc).Format("20060102"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	if err := book.Write(w); err != nil {
		h.logger.Warn("write quotes workbook", slog.Any("error", err))
	}
}
