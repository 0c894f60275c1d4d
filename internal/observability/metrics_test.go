package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/redkey-web/DewaterQuote-sub003/internal/document"
	"github.com/redkey-web/DewaterQuote-sub003/internal/notify"
	"github.com/redkey-web/DewaterQuote-sub003/internal/quotes"
)

var (
	_ document.Observer   = (*Metrics)(nil)
	_ notify.Observer     = (*Metrics)(nil)
	_ quotes.ObserverPort = (*Metrics)(nil)
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	body := scrape(t, metrics)
	if !strings.Contains(body, `dewater_http_requests_total{code="418",route="/test"} 1`) {
		t.Fatalf("expected metrics to record request, got: %s", body)
	}
	if !strings.Contains(body, `dewater_http_request_duration_seconds_bucket{route="/test"`) {
		t.Fatalf("expected duration histogram to be present, got: %s", body)
	}
}

func TestDomainObservers(t *testing.T) {
	metrics := NewMetrics()

	metrics.ObserveSend("token", "sent", 1500*time.Millisecond)
	metrics.ObserveSend("admin", "failed", time.Second)
	metrics.ObserveReconcile("finalized")
	metrics.ObserveEmail("customer", "sent")
	metrics.ObserveWebhookEvent("", "ignored")
	metrics.ObserveRender("gofpdf", 200*time.Millisecond, errors.New("boom"))

	body := scrape(t, metrics)
	for _, want := range []string{
		`dewater_quote_sends_total{outcome="sent",path="token"} 1`,
		`dewater_quote_sends_total{outcome="failed",path="admin"} 1`,
		`dewater_quote_send_duration_seconds_count{path="token"} 1`,
		`dewater_quote_reconcile_total{outcome="finalized"} 1`,
		`dewater_emails_total{outcome="sent",route="customer"} 1`,
		`dewater_email_webhook_events_total{event="unknown",outcome="ignored"} 1`,
		`dewater_pdf_render_failures_total{renderer="gofpdf"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in scrape output", want)
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.ObserveSend("admin", "sent", time.Second)
	metrics.ObserveRender("gofpdf", time.Second, nil)

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 from nil metrics, got %d", rr.Code)
	}
}
