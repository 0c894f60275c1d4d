package quotes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redkey-web/DewaterQuote-sub003/internal/notify"
	"github.com/redkey-web/DewaterQuote-sub003/internal/platform/httpx"
	"github.com/redkey-web/DewaterQuote-sub003/internal/shared"
)

type stubEmailLogs struct {
	logs []notify.EmailLog
	got  string
}

func (s *stubEmailLogs) ListForQuote(_ context.Context, quoteNumber string, _ int) ([]notify.EmailLog, error) {
	s.got = quoteNumber
	return s.logs, nil
}

type historyFromAudit struct{ audit *recordingAudit }

func (h historyFromAudit) ListForEntity(_ context.Context, entity, entityID string, _ int) ([]shared.AuditLog, error) {
	h.audit.mu.Lock()
	defer h.audit.mu.Unlock()
	var out []shared.AuditLog
	for _, e := range h.audit.entries {
		if e.Entity == entity && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

func newTestRouter(f *fixture, emails EmailLogReader) http.Handler {
	h := NewHandler(nil, f.svc, emails, historyFromAudit{f.audit})
	r := chi.NewRouter()
	h.MountPublic(r)
	r.Route("/admin", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(shared.ContextWithAdmin(req.Context(), 42)))
			})
		})
		h.MountAdmin(r)
	})
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func problemOf(t *testing.T, rr *httptest.ResponseRecorder) httpx.ProblemDetail {
	t.Helper()
	var p httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))
	return p
}

// ===== PUBLIC =====

func TestHandlerSubmit(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(f, nil)

	rr := doJSON(t, router, http.MethodPost, "/quotes", `{
		"contactName": "Jane Citizen",
		"email": "jane@acme.example",
		"phone": "0400 000 000",
		"deliveryAddress": {"postcode": "6000"},
		"items": [{"sku": "FC-100", "name": "Flex Coupling", "quantity": 2, "unitPrice": "100.00"}]
	}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var res SubmitResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.True(t, res.Success)
	assert.Equal(t, "DQ-2501-0001", res.QuoteNumber)
	assert.NotContains(t, rr.Body.String(), "quoteId")
}

func TestHandlerSubmitValidation(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(f, nil)

	tests := []struct {
		name string
		body string
	}{
		{"missing phone", `{"contactName":"Jane","email":"jane@acme.example","items":[{"sku":"A","name":"B","quantity":1}]}`},
		{"bad email", `{"contactName":"Jane","email":"nope","phone":"1","items":[{"sku":"A","name":"B","quantity":1}]}`},
		{"no items", `{"contactName":"Jane","email":"jane@acme.example","phone":"1","items":[]}`},
		{"zero quantity", `{"contactName":"Jane","email":"jane@acme.example","phone":"1","items":[{"sku":"A","name":"B","quantity":0}]}`},
		{"invalid json", `{"contactName":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doJSON(t, router, http.MethodPost, "/quotes", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
	assert.Empty(t, f.mailer.Messages())
}

func TestHandlerApproveStatusMapping(t *testing.T) {
	expired := fixedNow.Add(-time.Hour)

	tests := []struct {
		name   string
		token  string
		seed   func(*Quote)
		setup  func(*fixture)
		status int
		detail string
	}{
		{name: "invalid token", token: "missing", status: http.StatusNotFound, detail: "Invalid token"},
		{name: "expired", token: "tok-valid", seed: func(q *Quote) { q.ApprovalTokenExpiresAt = &expired }, status: http.StatusForbidden, detail: "Token expired"},
		{name: "already sent", token: "tok-valid", seed: func(q *Quote) { q.Status = StatusForwarded }, status: http.StatusBadRequest, detail: "Quote already sent to customer"},
		{name: "email unconfigured", token: "tok-valid", setup: func(f *fixture) { f.mailer.Unconfigured = true }, status: http.StatusInternalServerError, detail: "Email service not configured"},
		{name: "render failure is generic", token: "tok-valid", setup: func(f *fixture) { f.renderer.err = errBoom }, status: http.StatusInternalServerError, detail: customerSafeDetail},
		{name: "send failure is generic", token: "tok-valid", setup: func(f *fixture) { f.mailer.Err = errBoom }, status: http.StatusInternalServerError, detail: customerSafeDetail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			var mutators []func(*Quote)
			if tt.seed != nil {
				mutators = append(mutators, tt.seed)
			}
			f.seedQuote(mutators...)
			if tt.setup != nil {
				tt.setup(f)
			}

			rr := doJSON(t, newTestRouter(f, nil), http.MethodPost, "/approve-quote/"+tt.token, "")
			assert.Equal(t, tt.status, rr.Code)
			p := problemOf(t, rr)
			assert.Equal(t, tt.detail, p.Detail)
			assert.NotContains(t, rr.Body.String(), "boom")
		})
	}
}

func TestHandlerApproveSuccess(t *testing.T) {
	f := newFixture(t)
	f.seedQuote()

	rr := doJSON(t, newTestRouter(f, nil), http.MethodPost, "/approve-quote/tok-valid", `{"preparedBy":"Sam"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var res SendResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.True(t, res.Success)
	assert.Equal(t, "Quote sent to jane@acme.example", res.Message)
	assert.Equal(t, "DQ-2501-0001", res.QuoteNumber)

	rr = doJSON(t, newTestRouter(f, nil), http.MethodPost, "/approve-quote/tok-valid", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerApproveRejectsNegativeShipping(t *testing.T) {
	f := newFixture(t)
	f.seedQuote()

	rr := doJSON(t, newTestRouter(f, nil), http.MethodPost, "/approve-quote/tok-valid", `{"shippingCost":"-5"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Zero(t, f.renderer.Calls())
}

func TestHandlerShowApproval(t *testing.T) {
	f := newFixture(t)
	f.seedQuote(func(q *Quote) { q.InternalNotes = strPtr("do not show") })

	rr := doJSON(t, newTestRouter(f, nil), http.MethodGet, "/approve-quote/tok-valid", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"quoteNumber":"DQ-2501-0001"`)
	assert.NotContains(t, rr.Body.String(), "do not show")
	assert.NotContains(t, rr.Body.String(), "tok-valid")
}

// ===== ADMIN =====

func TestHandlerAdminSend(t *testing.T) {
	f := newFixture(t)
	q := f.seedQuote()
	router := newTestRouter(f, nil)

	rr := doJSON(t, router, http.MethodPost, "/admin/quotes/1/send", `{"customMessage":"Cheers"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, StatusForwarded, f.repo.snapshot(q.ID).Status)
	require.NotEmpty(t, f.audit.entries)
	assert.Equal(t, int64(42), f.audit.entries[len(f.audit.entries)-1].ActorID)

	// admin errors keep their detail
	f.renderer.err = errBoom
	rr = doJSON(t, router, http.MethodPost, "/admin/quotes/1/send", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "Failed to generate quote PDF", problemOf(t, rr).Detail)
}

func TestHandlerAdminErrors(t *testing.T) {
	f := newFixture(t)
	f.seedQuote()
	router := newTestRouter(f, nil)

	rr := doJSON(t, router, http.MethodGet, "/admin/quotes/abc", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/admin/quotes/99", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = doJSON(t, router, http.MethodPatch, "/admin/quotes/1", `{"status":"forwarded"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, router, http.MethodPatch, "/admin/quotes/1", `{"status":"archived"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/admin/quotes?status=archived", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerAdminSendFinalQuote(t *testing.T) {
	f := newFixture(t)
	q := f.seedQuote(func(q *Quote) { q.Status = StatusAccepted })

	rr := doJSON(t, newTestRouter(f, nil), http.MethodPost, "/admin/quotes/1/send", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, StatusAccepted, f.repo.snapshot(q.ID).Status)
	assert.Empty(t, f.mailer.Messages())
}

func TestHandlerAdminConflict(t *testing.T) {
	f := newFixture(t)
	q := f.seedQuote()
	lock, err := f.locker.Obtain(context.Background(), shared.QuoteSendLockKey(q.ID), time.Minute)
	require.NoError(t, err)
	defer func() { _ = lock.Release(context.Background()) }()

	rr := doJSON(t, newTestRouter(f, nil), http.MethodPost, "/admin/quotes/1/send", "")
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestHandlerAdminUpdateAndList(t *testing.T) {
	f := newFixture(t)
	f.seedQuote()
	router := newTestRouter(f, nil)

	rr := doJSON(t, router, http.MethodPatch, "/admin/quotes/1", `{"status":"reviewed","internalNotes":"called"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"status":"reviewed"`)

	rr = doJSON(t, router, http.MethodGet, "/admin/quotes?status=reviewed&q=acme", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var page struct {
		Quotes []Summary `json:"quotes"`
		Total  int       `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Quotes, 1)
	assert.Equal(t, "DQ-2501-0001", page.Quotes[0].QuoteNumber)
}

func TestHandlerAdminDeleteRestore(t *testing.T) {
	f := newFixture(t)
	f.seedQuote()
	router := newTestRouter(f, nil)

	rr := doJSON(t, router, http.MethodDelete, "/admin/quotes/1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, int64(42), *f.repo.snapshot(1).DeletedBy)

	rr = doJSON(t, router, http.MethodGet, "/admin/quotes", "")
	assert.Contains(t, rr.Body.String(), `"quotes":[]`)

	rr = doJSON(t, router, http.MethodPost, "/admin/quotes/1/restore", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, f.repo.snapshot(1).IsDeleted)
}

func TestHandlerPreviewPDF(t *testing.T) {
	f := newFixture(t)
	f.seedQuote()

	rr := doJSON(t, newTestRouter(f, nil), http.MethodGet, "/admin/quotes/1/preview.pdf?shippingCost=15", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/pdf", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "DQ-2501-0001-draft.pdf")
	assert.True(t, strings.HasPrefix(rr.Body.String(), "%PDF"))
}

func TestHandlerRegenerateToken(t *testing.T) {
	f := newFixture(t)
	f.seedQuote()

	rr := doJSON(t, newTestRouter(f, nil), http.MethodPost, "/admin/quotes/1/approval-token", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "https://dewaterproducts.com.au/approve-quote/")
}

func TestHandlerEmailLog(t *testing.T) {
	f := newFixture(t)
	f.seedQuote()
	logs := &stubEmailLogs{logs: []notify.EmailLog{{QuoteNumber: "DQ-2501-0001", Recipient: "jane@acme.example"}}}

	rr := doJSON(t, newTestRouter(f, logs), http.MethodGet, "/admin/quotes/1/emails", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "DQ-2501-0001", logs.got)
	assert.Contains(t, rr.Body.String(), "jane@acme.example")
}

func TestHandlerHistory(t *testing.T) {
	f := newFixture(t)
	f.seedQuote()
	router := newTestRouter(f, nil)

	rr := doJSON(t, router, http.MethodPatch, "/admin/quotes/1", `{"status":"reviewed"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/admin/quotes/1/history", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"action":"quote.status_changed"`)

	rr = doJSON(t, router, http.MethodGet, "/admin/quotes/9/history", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
