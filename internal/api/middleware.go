package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// observe wraps each request with structured logging and, when metrics are
// configured, request counters and latency histograms. The route label uses
// the chi pattern so path parameters do not explode cardinality.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		if s.metrics != nil {
			s.metrics.RequestsInFlight.Inc()
			defer s.metrics.RequestsInFlight.Dec()
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}

		if s.metrics != nil {
			s.metrics.RequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(ww.Status())).Inc()
			s.metrics.RequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
		}

		s.logger.Debug("request served",
			"method", r.Method,
			"route", route,
			"status", ww.Status(),
			"duration_ms", elapsed.Milliseconds(),
		)
	})
}
