// metrics.go — Prometheus HTTP метрики Claims Admin.
// Регистрирует метрики: ca_http_requests_total, ca_http_request_duration_seconds.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ca_http_requests_total",
			Help: "Общее количество HTTP-запросов к Claims Admin",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ca_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к Claims Admin в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Нормализуем путь для лейблов метрик
			// (заменяем uid на {uid} для предотвращения кардинальности)
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// metricsResponseWriter — обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// normalizePath заменяет uid-сегменты пути на {uid} для предотвращения
// взрывного роста кардинальности метрик.
// /api/v1/users/a1b2c3.../role → /api/v1/users/{uid}/role
func normalizePath(path string) string {
	// Статические пути — возвращаем как есть
	switch path {
	case "/health/live", "/health/ready", "/metrics",
		"/api/v1/bootstrap",
		"/api/v1/events/user-created",
		"/api/v1/me/claims",
		"/api/v1/admins",
		"/api/v1/users",
		"/api/v1/audit":
		return path
	}

	// Динамические пути: /api/v1/users/{uid}[/suffix]
	const usersPrefix = "/api/v1/users/"
	if rest, ok := strings.CutPrefix(path, usersPrefix); ok {
		_, suffix, found := strings.Cut(rest, "/")
		if !found {
			return usersPrefix + "{uid}"
		}
		switch suffix {
		case "admin", "role", "permissions", "claims":
			return usersPrefix + "{uid}/" + suffix
		}
		return usersPrefix + "{uid}"
	}

	return path
}
