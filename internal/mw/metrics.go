package mw

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kinohub/strangler-proxy/internal/httpx"
)

type Metrics struct {
	Requests *prometheus.CounterVec
	Latency  *prometheus.HistogramVec
	Draws    *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "strangler_http_requests_total",
			Help: "Total HTTP requests relayed through the proxy",
		}, []string{"destination", "method", "code"}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "strangler_http_request_duration_seconds",
			Help:    "End-to-end request latency including the downstream call",
			Buckets: prometheus.DefBuckets,
		}, []string{"destination", "method"}),
		Draws: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "strangler_split_draws_total",
			Help: "Gradual-migration draws by service and resulting destination",
		}, []string{"service", "destination"}),
	}
	reg.MustRegister(m.Requests, m.Latency, m.Draws)
	return m
}

type destKeyType string

const destKey destKeyType = "destination"

// WithDestination tags the request context with the routing decision's
// destination so downstream middleware can label by it.
func WithDestination(next http.Handler, destination string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = r.WithContext(context.WithValue(r.Context(), destKey, destination))
		next.ServeHTTP(w, r)
	})
}

func Destination(ctx context.Context) string {
	if v, ok := ctx.Value(destKey).(string); ok && v != "" {
		return v
	}
	return "unknown"
}

func Instrument(m *Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &httpx.StatusWriter{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(sw, r)
		dest := Destination(r.Context())
		code := sw.Status
		if code == 0 {
			code = http.StatusOK
		}
		m.Requests.WithLabelValues(dest, r.Method, strconv.Itoa(code)).Inc()
		m.Latency.WithLabelValues(dest, r.Method).Observe(time.Since(start).Seconds())
	})
}
