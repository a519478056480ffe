// ABOUTME: Request logging, metrics and worker-pool middleware for the HTTP server
// ABOUTME: Wraps responses to capture status and size without hiding Flush

package gateway

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/2389/document-gateway/internal/fault"
	"github.com/2389/document-gateway/internal/pool"
)

// statusRecorder captures the status code and body size of a response.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(p []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(p)
	s.bytes += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// observe logs every request and feeds the request metrics.
func (g *Gateway) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		rec := &statusRecorder{ResponseWriter: w}

		defer func() {
			p := recover()

			status := rec.status
			switch {
			case p == http.ErrAbortHandler, status == 0 && r.Context().Err() != nil:
				status = statusClientClosed
			case p != nil:
				status = http.StatusInternalServerError
			case status == 0:
				status = http.StatusOK
			}
			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			took := time.Since(start)
			g.metrics.ObserveRequest(route, status, took)

			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			g.logger.Log(r.Context(), level, "http request",
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", rec.bytes,
				"duration_ms", took.Milliseconds(),
			)

			if p != nil {
				if p != http.ErrAbortHandler {
					g.logger.Error("handler panicked", "path", r.URL.Path, "panic", p)
				}
				panic(p)
			}
		}()

		next.ServeHTTP(rec, r)
	})
}

// pooled runs h on a worker from the request pool. A caller that gives up
// while queued gets nothing; once the pool is closed requests get a 503.
func (g *Gateway) pooled(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := g.pool.Do(r.Context(), func() { h.ServeHTTP(w, r) })
		switch {
		case err == nil:
		case errors.Is(err, pool.ErrClosed):
			w.Header().Set("Content-Type", fault.TextContentType)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("server is shutting down"))
		default:
			g.logger.Debug("request abandoned while queued", "path", r.URL.Path, "error", err)
		}
	})
}
