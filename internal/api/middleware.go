package api

import (
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"collectwise/internal/metrics"
)

// requestLogger logs one line per request and records the request metrics.
// The route label is the matched chi pattern so ids do not explode
// cardinality.
func requestLogger(logger *logrus.Logger, m metrics.Backend) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			elapsed := time.Since(start)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}

			m.IncCounter(metrics.HTTPRequestsTotal, 1, metrics.Labels{
				"route":  route,
				"method": r.Method,
				"status": strconv.Itoa(status),
			})
			m.ObserveHistogram(metrics.HTTPRequestDuration, elapsed.Seconds(), metrics.Labels{
				"route":  route,
				"method": r.Method,
			})

			logger.WithFields(logrus.Fields{
				"request_id": middleware.GetReqID(r.Context()),
				"method":     r.Method,
				"path":       r.URL.Path,
				"route":      route,
				"status":     status,
				"bytes":      ww.BytesWritten(),
				"remote":     r.RemoteAddr,
				"duration":   elapsed.String(),
			}).Info("http request")
		})
	}
}

// recoverJSON turns a handler panic into a JSON 500.
func recoverJSON(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.WithFields(logrus.Fields{
					"request_id": middleware.GetReqID(r.Context()),
					"panic":      rec,
					"stack":      string(debug.Stack()),
				}).Error("unhandled error")
				writeError(w, http.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred")
			}()
			next.ServeHTTP(w, r)
		})
	}
}
