package middleware

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	pkghttp "github.com/BradenHooton/bnetlogin/pkg/http"
	pkglogger "github.com/BradenHooton/bnetlogin/pkg/logger"
	"github.com/go-chi/chi/v5/middleware"
)

// SecureLogger returns a middleware for logging HTTP requests with sensitive data redaction
func SecureLogger(logger *slog.Logger, ipConfig *pkghttp.IPConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap response writer to capture status and size
			wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(wrapped, r)

			// Sanitize query string if it contains sensitive parameters
			path := r.URL.Path
			if pkglogger.SanitizeQueryString(r.URL.RawQuery) {
				path = path + "?[REDACTED]"
			} else if r.URL.RawQuery != "" {
				path = r.URL.Path + "?" + r.URL.RawQuery
			}

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", path),
				slog.Int("status", wrapped.Status()),
				slog.Int64("bytes", int64(wrapped.BytesWritten())),
				slog.String("duration", time.Since(start).String()),
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.String("remote_addr", pkghttp.ExtractClientIP(r, ipConfig)),
			}

			logger.LogAttrs(context.Background(), slog.LevelInfo, "http_request", attrs...)
		})
	}
}

// maxLoggedContent bounds the request body kept for debug logging
const maxLoggedContent = 4 << 10

type contentLogKey struct{}

type contentLogFlag struct {
	skip bool
}

// RequestContentLogger logs request bodies at debug level once the handler returns.
// Routes wrapped in DoNotLogRequestContent are skipped.
func RequestContentLogger(logger *slog.Logger, enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			flag := &contentLogFlag{}
			r = r.WithContext(context.WithValue(r.Context(), contentLogKey{}, flag))

			var captured bytes.Buffer
			if r.Body != nil {
				r.Body = &teeBody{
					Reader: io.TeeReader(r.Body, &limitedWriter{w: &captured, remaining: maxLoggedContent}),
					Closer: r.Body,
				}
			}

			next.ServeHTTP(w, r)

			if flag.skip {
				return
			}

			logger.LogAttrs(r.Context(), slog.LevelDebug, "http_request_content",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.String("content", captured.String()),
			)
		})
	}
}

// DoNotLogRequestContent keeps a route's request body out of the logs
func DoNotLogRequestContent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if flag, ok := r.Context().Value(contentLogKey{}).(*contentLogFlag); ok {
			flag.skip = true
		}
		next.ServeHTTP(w, r)
	})
}

type teeBody struct {
	io.Reader
	io.Closer
}

// limitedWriter drops everything past remaining bytes without failing the tee
type limitedWriter struct {
	w         io.Writer
	remaining int
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if l.remaining <= 0 {
		return n, nil
	}
	if len(p) > l.remaining {
		p = p[:l.remaining]
	}
	written, err := l.w.Write(p)
	l.remaining -= written
	if err != nil {
		return written, err
	}
	return n, nil
}
