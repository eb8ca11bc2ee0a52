package engine

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/xela07ax/openfinance-gateway/internal/domain"
	"github.com/xela07ax/openfinance-gateway/internal/infra/respond"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type ctxKey string

const traceIDKey ctxKey = "trace_id"

// TracingMiddleware assigns a Trace-ID to every request
func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 1. Reuse the caller's ID when an agent or proxy sent one
		traceID := r.Header.Get("X-Trace-ID")

		// 2. Otherwise generate
		if traceID == "" {
			traceID = uuid.New().String()
		}

		// 3. Context + echo back so the client can correlate
		ctx := context.WithValue(r.Context(), traceIDKey, traceID)
		w.Header().Set("X-Trace-ID", traceID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractTraceID(ctx context.Context) string {
	if id, ok := ctx.Value(traceIDKey).(string); ok {
		return id
	}
	return "00000000-0000-0000-0000-000000000000"
}

// AccessLog logs each request with zap and observes its latency.
func AccessLog(logger *zap.Logger, metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			elapsed := time.Since(start)
			metrics.RequestDuration.WithLabelValues(route, strconv.Itoa(status)).Observe(elapsed.Seconds())

			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", elapsed),
				zap.String("trace_id", extractTraceID(r.Context())),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

// Recoverer turns a panic into INTERNAL_ERROR instead of a dropped connection.
func Recoverer(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("panic recovered",
						zap.Any("panic", rec),
						zap.String("path", r.URL.Path),
						zap.String("trace_id", extractTraceID(r.Context())),
						zap.Stack("stack"),
					)
					respond.Error(w, domain.NewInternalError(""), logger)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Timeout puts a deadline on the request context. A handler that gives up on the
// deadline without writing gets a 504 in the usual error envelope.
func Timeout(d time.Duration, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			if ww.Status() == 0 && ctx.Err() == context.DeadlineExceeded {
				logger.Warn("request timed out",
					zap.String("path", r.URL.Path),
					zap.Duration("timeout", d),
					zap.String("trace_id", extractTraceID(r.Context())),
				)
				respond.Error(w, &domain.APIError{
					Code:    domain.CodeInternalError,
					Status:  http.StatusGatewayTimeout,
					Message: "Request timed out",
				}, logger)
			}
		})
	}
}

// RateLimitMiddleware sheds load above the configured rate. A nil limiter disables it.
func RateLimitMiddleware(limiter *rate.Limiter, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				respond.Error(w, &domain.APIError{
					Code:    domain.CodeRateLimited,
					Status:  http.StatusTooManyRequests,
					Message: "Rate limit exceeded",
				}, logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
