package engine

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/xela07ax/openfinance-gateway/internal/domain"
	"github.com/xela07ax/openfinance-gateway/internal/infra/auth"
	"github.com/xela07ax/openfinance-gateway/internal/infra/respond"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RouterOptions holds the optional perimeter: auth, rate limiting and CORS.
type RouterOptions struct {
	Validator      auth.TokenValidator // nil disables bearer auth
	Limiter        *rate.Limiter       // nil disables rate limiting
	RequestTimeout time.Duration
	CORSOrigins    []string // empty disables CORS headers
}

// NewRouter assembles the public API.
func NewRouter(g *Gateway, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	// --- 1. Infrastructure middleware, order matters ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(TracingMiddleware)
	r.Use(AccessLog(g.logger, g.metrics))
	r.Use(Recoverer(g.logger))
	if opts.RequestTimeout > 0 {
		r.Use(Timeout(opts.RequestTimeout, g.logger))
	}
	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Trace-ID"},
			ExposedHeaders: []string{"X-Trace-ID", "X-Request-ID"},
			MaxAge:         300,
		}))
	}

	// --- 2. Public ---
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		_ = respond.JSON(w, http.StatusOK, map[string]string{"message": "Gateway Online"})
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		_ = respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// --- 3. Decision endpoints ---
	r.Group(func(r chi.Router) {
		r.Use(RateLimitMiddleware(opts.Limiter, g.logger))

		r.Route("/agent", func(r chi.Router) {
			r.With(scope(opts.Validator, g.logger, domain.ScopeAgentAuthorize)).
				Post("/authorize-agent", g.AuthorizeAgent)
		})
		r.Route("/carbon", func(r chi.Router) {
			r.With(scope(opts.Validator, g.logger, domain.ScopeCarbonEnrich)).
				Post("/enrich-transaction", g.EnrichTransaction)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respond.Error(w, &domain.APIError{Code: domain.CodeInvalidInput, Status: http.StatusNotFound, Message: "Route not found"}, g.logger)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respond.Error(w, &domain.APIError{Code: domain.CodeInvalidInput, Status: http.StatusMethodNotAllowed, Message: "Method not allowed"}, g.logger)
	})

	return r
}

func scope(v auth.TokenValidator, logger *zap.Logger, s string) func(http.Handler) http.Handler {
	if v == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return auth.NewMiddleware(v, logger, s)
}
