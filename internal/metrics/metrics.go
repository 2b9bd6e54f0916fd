// Package metrics provides Prometheus instrumentation for the trading arena.
package metrics

import (
	"bufio"
	"errors"
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
	// TicksTotal counts completed ticks by mode.
	TicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "truthbench_ticks_total",
		Help: "Total number of trading ticks completed",
	}, []string{"mode"})

	// TickDuration tracks wall time of a full tick.
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "truthbench_tick_duration_seconds",
		Help:    "Trading tick duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})

	// TradesTotal counts executed trades, partitioned by model and action.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "truthbench_trades_total",
		Help: "Total number of trades executed",
	}, []string{"model", "action"})

	// RiskDenials counts entries declined by the risk policy.
	RiskDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "truthbench_risk_denials_total",
		Help: "Entries declined by the risk policy",
	}, []string{"reason"})

	// PredictionFailures counts failed or timed out oracle calls.
	PredictionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "truthbench_prediction_failures_total",
		Help: "Prediction gateway calls that failed or timed out",
	}, []string{"model"})

	// FeedFallbacks counts market refreshes that fell back to the stale set.
	FeedFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "truthbench_feed_fallbacks_total",
		Help: "Market feed refresh failures served from the stale cache",
	})

	// CachedMarkets tracks the size of the current market snapshot.
	CachedMarkets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "truthbench_cached_markets",
		Help: "Number of markets in the current snapshot",
	})

	// UnpricedPositions counts positions marked at cost for lack of a quote.
	UnpricedPositions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "truthbench_unpriced_positions_total",
		Help: "Positions valued at entry price because no quote was found",
	})

	// RecoveredPanics counts model pipelines that panicked.
	RecoveredPanics = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "truthbench_recovered_panics_total",
		Help: "Model pipelines aborted by a recovered panic",
	}, []string{"model"})

	// PersistFailures counts storage writes that failed.
	PersistFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "truthbench_persist_failures_total",
		Help: "Storage writes that failed",
	}, []string{"op"})

	// PortfolioValue tracks total value per model in dollars.
	PortfolioValue = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "truthbench_portfolio_value_dollars",
		Help: "Portfolio total value in dollars",
	}, []string{"model"})

	// PortfolioCash tracks cash per model in dollars.
	PortfolioCash = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "truthbench_portfolio_cash_dollars",
		Help: "Portfolio cash in dollars",
	}, []string{"model"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "truthbench_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "truthbench_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "truthbench_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Route pattern keeps {modelID} out of the label set.
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

// Hijack lets the WebSocket upgrade pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}
