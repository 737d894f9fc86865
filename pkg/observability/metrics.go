package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the API server. All recording
// helpers are safe to call on a nil *Metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Messaging metrics
	MessagesSentTotal     *prometheus.CounterVec
	MessagesRejectedTotal *prometheus.CounterVec

	// Purchase metrics
	PurchasesInitiatedTotal prometheus.Counter
	PurchasesSettledTotal   *prometheus.CounterVec
	CreditsGrantedTotal     prometheus.Counter
	SweepDuration           prometheus.Histogram

	// Cache and rate limit metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec
	RateLimitedTotal prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mindful_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mindful_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		MessagesSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mindful_messages_sent_total",
				Help: "Total number of chat messages stored, by sender",
			},
			[]string{"sender"},
		),
		MessagesRejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mindful_messages_rejected_total",
				Help: "Total number of chat messages rejected, by reason",
			},
			[]string{"reason"},
		),
		PurchasesInitiatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mindful_purchases_initiated_total",
				Help: "Total number of credit purchases sent to the payment gateway",
			},
		),
		PurchasesSettledTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mindful_purchases_settled_total",
				Help: "Total number of credit purchases settled, by final status",
			},
			[]string{"status"},
		),
		CreditsGrantedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mindful_credits_granted_total",
				Help: "Total number of message credits granted by completed purchases",
			},
		),
		SweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mindful_purchase_sweep_duration_seconds",
				Help:    "Duration of the pending purchase sweep",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
			},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mindful_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mindful_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache"},
		),
		RateLimitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mindful_rate_limited_total",
				Help: "Total number of requests rejected by the rate limiter",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.MessagesSentTotal,
		m.MessagesRejectedTotal,
		m.PurchasesInitiatedTotal,
		m.PurchasesSettledTotal,
		m.CreditsGrantedTotal,
		m.SweepDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.RateLimitedTotal,
	)

	return m
}

func (m *Metrics) MessageSent(sender string) {
	if m != nil {
		m.MessagesSentTotal.WithLabelValues(sender).Inc()
	}
}

func (m *Metrics) MessageRejected(reason string) {
	if m != nil {
		m.MessagesRejectedTotal.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) PurchaseInitiated() {
	if m != nil {
		m.PurchasesInitiatedTotal.Inc()
	}
}

// PurchaseSettled records a settled purchase and the credits it granted
func (m *Metrics) PurchaseSettled(status string, credits int) {
	if m == nil {
		return
	}
	m.PurchasesSettledTotal.WithLabelValues(status).Inc()
	if credits > 0 {
		m.CreditsGrantedTotal.Add(float64(credits))
	}
}

func (m *Metrics) ObserveSweep(d time.Duration) {
	if m != nil {
		m.SweepDuration.Observe(d.Seconds())
	}
}

// CacheLookup records a hit or miss for the named cache
func (m *Metrics) CacheLookup(cache string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.WithLabelValues(cache).Inc()
	} else {
		m.CacheMissesTotal.WithLabelValues(cache).Inc()
	}
}

func (m *Metrics) RateLimited() {
	if m != nil {
		m.RateLimitedTotal.Inc()
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests. Requests are labelled by
// their mux route template to keep label cardinality bounded.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			if metrics == nil {
				return
			}
			route := routeTemplate(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(router *mux.Router, gatherer prometheus.Gatherer) {
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}
