package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/xela07ax/openfinance-gateway/internal/domain"
)

var (
	ErrMissingToken      = errors.New("missing bearer token")
	ErrUnsupportedScheme = errors.New("authorization scheme must be Bearer")
)

// RSAValidator verifies RS256 tokens issued to agent runtimes.
// Every token must carry an expiry; issuer and audience are checked when configured.
type RSAValidator struct {
	publicKey *rsa.PublicKey
	issuer    string
	audience  string
	leeway    time.Duration
	parser    *jwt.Parser
}

// Option tunes an RSAValidator.
type Option func(*RSAValidator)

// WithIssuer requires the "iss" claim to equal iss.
func WithIssuer(iss string) Option {
	return func(v *RSAValidator) { v.issuer = iss }
}

// WithAudience requires aud among the "aud" claim values.
func WithAudience(aud string) Option {
	return func(v *RSAValidator) { v.audience = aud }
}

// WithLeeway tolerates clock skew between the issuer and the gateway.
func WithLeeway(d time.Duration) Option {
	return func(v *RSAValidator) { v.leeway = d }
}

func NewRSAValidator(pubKey *rsa.PublicKey, opts ...Option) *RSAValidator {
	v := &RSAValidator{publicKey: pubKey}
	for _, opt := range opts {
		opt(v)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.audience))
	}
	if v.leeway > 0 {
		parserOpts = append(parserOpts, jwt.WithLeeway(v.leeway))
	}
	v.parser = jwt.NewParser(parserOpts...)
	return v
}

// VerifyToken implements TokenValidator. It takes an Authorization header value
// ("Bearer <jwt>", scheme matched case-insensitively) or a bare token.
func (v *RSAValidator) VerifyToken(header string) (*domain.AgentClaims, error) {
	raw, err := bearerToken(header)
	if err != nil {
		return nil, err
	}

	claims := &domain.AgentClaims{}
	if _, err := v.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.publicKey, nil
	}); err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	// Request agent IDs are trimmed, so a padded binding could never match
	if claims.AgentID != strings.TrimSpace(claims.AgentID) {
		return nil, errors.New("invalid token: malformed agent_id claim")
	}
	return claims, nil
}

func bearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrMissingToken
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found {
		return header, nil
	}
	if !strings.EqualFold(scheme, "Bearer") {
		return "", ErrUnsupportedScheme
	}
	if token = strings.TrimSpace(token); token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// ParseRSAPublicKey turns PEM bytes into a verification key.
func ParseRSAPublicKey(data []byte) (*rsa.PublicKey, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("public key data is empty")
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	return key, nil
}
