package auth

import (
	"context"
	"net/http"

	"github.com/xela07ax/openfinance-gateway/internal/domain"
	"github.com/xela07ax/openfinance-gateway/internal/infra/respond"
	"go.uber.org/zap"
)

// TokenValidator turns a bearer token into agent claims.
type TokenValidator interface {
	VerifyToken(tokenStr string) (*domain.AgentClaims, error)
}

type ctxKey struct{}

// NewMiddleware requires a valid token carrying scope. Claims are put into the request context.
func NewMiddleware(v TokenValidator, logger *zap.Logger, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respond.Error(w, domain.NewUnauthorized("missing bearer token"), logger)
				return
			}

			claims, err := v.VerifyToken(authHeader)
			if err != nil {
				logger.Warn("auth failure", zap.Error(err))
				respond.Error(w, domain.NewUnauthorized("invalid bearer token"), logger)
				return
			}

			if !claims.HasScope(scope) {
				logger.Warn("scope missing", zap.String("scope", scope), zap.String("agent_id", claims.AgentID))
				respond.Error(w, domain.NewUnauthorized("token does not grant "+scope), logger)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func WithClaims(ctx context.Context, c *domain.AgentClaims) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// ClaimsFromContext returns nil when the request was not authenticated (auth disabled).
func ClaimsFromContext(ctx context.Context) *domain.AgentClaims {
	c, _ := ctx.Value(ctxKey{}).(*domain.AgentClaims)
	return c
}
