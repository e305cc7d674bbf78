package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	ordersCreated    prometheus.Counter
	ordersCancelled  prometheus.Counter
	paymentsApproved prometheus.Counter
	negativeLines    prometheus.Gauge
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetline_http_requests_total",
		Help: "HTTP request count by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fleetline_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	ordersCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fleetline_orders_created_total",
		Help: "Orders created since process start.",
	})
	ordersCancelled := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fleetline_orders_cancelled_total",
		Help: "Orders cancelled since process start.",
	})
	paymentsApproved := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fleetline_driver_payments_approved_total",
		Help: "Driver-to-boss payments approved since process start.",
	})
	negativeLines := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fleetline_inventory_negative_lines",
		Help: "Driver inventory lines with negative remaining, from the last integrity scan.",
	})
	registry.MustRegister(requests, duration, ordersCreated, ordersCancelled, paymentsApproved, negativeLines)
	return &Metrics{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:    requests,
		requestDuration:  duration,
		ordersCreated:    ordersCreated,
		ordersCancelled:  ordersCancelled,
		paymentsApproved: paymentsApproved,
		negativeLines:    negativeLines,
	}
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

// Middleware records metrics for each HTTP request.
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

// OrderCreated increments the created-orders counter.
func (m *Metrics) OrderCreated() {
	if m != nil {
		m.ordersCreated.Inc()
	}
}

// OrderCancelled increments the cancelled-orders counter.
func (m *Metrics) OrderCancelled() {
	if m != nil {
		m.ordersCancelled.Inc()
	}
}

// PaymentApproved increments the approved-payments counter.
func (m *Metrics) PaymentApproved() {
	if m != nil {
		m.paymentsApproved.Inc()
	}
}

// SetNegativeInventoryLines records the latest integrity scan result.
func (m *Metrics) SetNegativeInventoryLines(n int) {
	if m != nil {
		m.negativeLines.Set(float64(n))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func routePattern(r *http.Request) string {
	if ctx := chi.RouteContext(r.Context()); ctx != nil {
		if pattern := ctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
