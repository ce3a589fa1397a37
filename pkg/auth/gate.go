// Package auth provides the inbound authorization gate and a development
// token issuer. The gate turns an Authorization header into a security
// context before driver resolution runs; the issuer mints compatible context
// tokens with the same shared secret.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cubegate/cubegate/pkg/logger"
	"github.com/cubegate/cubegate/pkg/tenant"
)

// ErrInvalidToken is returned when a presented token fails signature or
// claim validation.
var ErrInvalidToken = errors.New("invalid token")

// Gate validates inbound bearer tokens against the shared signing secret and
// produces the request's security context. A missing header is not an error:
// the request proceeds with the default-dataset context (when configured) or
// an empty context, and downstream resolution falls back or fails.
type Gate struct {
	secret         []byte
	defaultDataset string
	parser         *jwt.Parser
}

// NewGate creates a Gate over the shared secret. defaultDataset may be empty.
func NewGate(secret, defaultDataset string) *Gate {
	return &Gate{
		secret:         []byte(secret),
		defaultDataset: defaultDataset,
		parser:         jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}
}

// Middleware attaches the authorized security context to the request
// context. Requests presenting a token that fails validation are rejected
// with 401; requests without a token pass through with the default context.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sc, err := g.Authorize(r.Header.Get("Authorization"))
		if err != nil {
			logger.Warnw("rejected inbound token", "error", err.Error(), "path", r.URL.Path)
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(tenant.WithSecurityContext(r.Context(), sc)))
	})
}

// Authorize produces the security context for a raw Authorization header.
func (g *Gate) Authorize(header string) (tenant.SecurityContext, error) {
	raw, ok := bearerToken(header)
	if !ok {
		if g.defaultDataset != "" {
			return tenant.SecurityContext{Dataset: g.defaultDataset}, nil
		}
		return tenant.SecurityContext{}, nil
	}

	claims := jwt.MapClaims{}
	if _, err := g.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return g.secret, nil
	}); err != nil {
		return tenant.SecurityContext{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	sc, err := tenant.FromClaims(claims)
	if err != nil {
		return tenant.SecurityContext{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	return g.extend(sc), nil
}

// extend normalizes the extracted context: an empty dataset picks up the
// process default, with a log line marking the substitution. A connection
// identifier is never synthesized here.
func (g *Gate) extend(sc tenant.SecurityContext) tenant.SecurityContext {
	if sc.Dataset == "" && g.defaultDataset != "" {
		logger.Infow("substituting default dataset into security context",
			"connection", sc.Connection, "dataset", g.defaultDataset)
		sc.Dataset = g.defaultDataset
	}
	return sc
}

func bearerToken(header string) (string, bool) {
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
