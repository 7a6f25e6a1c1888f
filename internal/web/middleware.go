package web

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/zakazai/enrichdb/internal/types"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enrichdb_http_requests_total",
		Help: "Total number of requests by path, method and status_code.",
	}, []string{"path", "method", "status_code"})
	httpRequestsDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "enrichdb_http_request_duration_seconds",
		Help: "Duration of HTTP requests in seconds by path and method.",
	}, []string{"path", "method"})
)

// httpMetrics records request counts and latency. The label is the route
// pattern, so /tables/{table} rather than /tables/Table1.
func httpMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(ww, r)

		path := "UNDEFINED"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		method := strings.ToUpper(r.Method)
		httpRequestsTotal.WithLabelValues(path, method, strconv.Itoa(ww.status)).Inc()
		httpRequestsDuration.WithLabelValues(path, method).Observe(time.Since(start).Seconds())
	})
}

// requestLogger logs one line per request with its status and duration.
func requestLogger(logger *types.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(ww, r)

			logger.WithFields(map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.status,
				"duration_ms": time.Since(start).Milliseconds(),
				"ip":          r.RemoteAddr,
				"request_id":  middleware.GetReqID(r.Context()),
			}).Info("request")
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *responseWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.status = status
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
