// Package metrics provides Prometheus instrumentation for the market engine.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TransactionsTotal counts engine operations by op and outcome.
	TransactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "market_transactions_total",
		Help: "Total marketplace operations by outcome",
	}, []string{"op", "outcome"})

	// TransactionLatency tracks engine operation latency.
	TransactionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "market_transaction_latency_seconds",
		Help:    "Marketplace operation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	// CoinsTransferred tracks coins moved from buyers to sellers.
	CoinsTransferred = promauto.NewCounter(prometheus.CounterOpts{
		Name: "market_coins_transferred_total",
		Help: "Cumulative coins paid by buyers to sellers",
	})

	// NotificationsTotal counts seller notifications by outcome.
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "market_notifications_total",
		Help: "Seller sale notifications by outcome",
	}, []string{"outcome"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "market_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "market_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "market_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// ObserveTransaction records one engine operation.
func ObserveTransaction(op, outcome string, start time.Time) {
	TransactionsTotal.WithLabelValues(op, outcome).Inc()
	TransactionLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Route pattern, not the raw path, to keep listing ids out of labels.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack exposes the underlying connection for WebSocket upgrades.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return h.Hijack()
}
