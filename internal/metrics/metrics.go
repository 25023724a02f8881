// Package metrics holds the Prometheus collectors of the bot and the
// handler exposing them.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registrations counts stored tokens by entry point: explicit or auto.
	Registrations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filebot_registrations_total",
			Help: "Registered files by entry point",
		},
		[]string{"source"},
	)

	// Redemptions counts /start outcomes.
	Redemptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filebot_redemptions_total",
			Help: "Token redemptions by outcome",
		},
		[]string{"result"},
	)

	CleanupPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "filebot_cleanup_pending",
			Help: "Scheduled message deletions not yet run",
		},
	)

	CleanupDeletes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filebot_cleanup_deletes_total",
			Help: "Delayed message deletions by outcome",
		},
		[]string{"result"},
	)

	BotAPICalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filebot_botapi_calls_total",
			Help: "Bot API calls by method and outcome",
		},
		[]string{"method", "result"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filebot_http_requests_total",
			Help: "HTTP requests served",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "filebot_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

const (
	ResultDelivered = "delivered"
	ResultInvalid   = "invalid"
	ResultExpired   = "expired"
	ResultExhausted = "exhausted"
	ResultFailed    = "failed"
	ResultOK        = "ok"
	ResultError     = "error"
)

// Middleware records request counts and latency labelled with the chi route
// pattern, so unknown paths collapse into a single series.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			path := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				path = rc.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
			httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func Result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}
