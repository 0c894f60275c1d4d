package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the quote service.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	sendsTotal      *prometheus.CounterVec
	sendDuration    *prometheus.HistogramVec
	reconcileTotal  *prometheus.CounterVec
	emailsTotal     *prometheus.CounterVec
	webhookEvents   *prometheus.CounterVec
	renderDuration  *prometheus.HistogramVec
	renderFailures  *prometheus.CounterVec
}

// NewMetrics initialises the registry with HTTP and quote metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dewater_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dewater_http_request_duration_seconds",
			Help:    "HTTP request latency per route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		sendsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dewater_quote_sends_total",
			Help: "Quote send attempts by authorization path and outcome.",
		}, []string{"path", "outcome"}),
		sendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dewater_quote_send_duration_seconds",
			Help:    "End-to-end duration of quote sends.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40},
		}, []string{"path"}),
		reconcileTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dewater_quote_reconcile_total",
			Help: "Stale send attempts handled by the reconciler by outcome.",
		}, []string{"outcome"}),
		emailsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dewater_emails_total",
			Help: "Outbound emails by route and outcome.",
		}, []string{"route", "outcome"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dewater_email_webhook_events_total",
			Help: "Email provider webhook events by type and outcome.",
		}, []string{"event", "outcome"}),
		renderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dewater_pdf_render_duration_seconds",
			Help:    "PDF render latency per renderer.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"renderer"}),
		renderFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dewater_pdf_render_failures_total",
			Help: "Failed PDF renders per renderer.",
		}, []string{"renderer"}),
	}
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestsTotal, m.requestDuration,
		m.sendsTotal, m.sendDuration, m.reconcileTotal,
		m.emailsTotal, m.webhookEvents,
		m.renderDuration, m.renderFailures,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for job metrics and other collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// ObserveSend records one quote send attempt.
func (m *Metrics) ObserveSend(path, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.sendsTotal.WithLabelValues(path, outcome).Inc()
	m.sendDuration.WithLabelValues(path).Observe(d.Seconds())
}

// ObserveReconcile records a reconciler decision.
func (m *Metrics) ObserveReconcile(outcome string) {
	if m == nil {
		return
	}
	m.reconcileTotal.WithLabelValues(outcome).Inc()
}

// ObserveEmail records an outbound email.
func (m *Metrics) ObserveEmail(route, outcome string) {
	if m == nil {
		return
	}
	m.emailsTotal.WithLabelValues(route, outcome).Inc()
}

// ObserveWebhookEvent records a provider webhook event.
func (m *Metrics) ObserveWebhookEvent(event, outcome string) {
	if m == nil {
		return
	}
	if event == "" {
		event = "unknown"
	}
	m.webhookEvents.WithLabelValues(event, outcome).Inc()
}

// ObserveRender records a PDF render.
func (m *Metrics) ObserveRender(renderer string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.renderDuration.WithLabelValues(renderer).Observe(d.Seconds())
	if err != nil {
		m.renderFailures.WithLabelValues(renderer).Inc()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
