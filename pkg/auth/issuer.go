package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cubegate/cubegate/pkg/tenant"
)

// DefaultTokenValidity is how long minted context tokens stay valid.
const DefaultTokenValidity = 24 * time.Hour

// Issuer mints HS256 context tokens carrying a security context, signed with
// the same shared secret the gate validates against. Intended for
// development and tenant onboarding; production issuance lives with the
// external identity service.
type Issuer struct {
	secret   []byte
	validity time.Duration
	now      func() time.Time
}

// NewIssuer creates an Issuer over the shared secret.
func NewIssuer(secret string) *Issuer {
	return &Issuer{
		secret:   []byte(secret),
		validity: DefaultTokenValidity,
		now:      time.Now,
	}
}

// Mint signs a context token for sc.
func (i *Issuer) Mint(sc tenant.SecurityContext) (string, error) {
	now := i.now()
	claims := jwt.MapClaims{
		"iat": now.Unix(),
		"exp": now.Add(i.validity).Unix(),
	}
	if sc.Connection != "" {
		claims["connection"] = sc.Connection
	}
	if sc.Dataset != "" {
		claims["dataset"] = sc.Dataset
	}
	if sc.Destination != nil {
		claims["destination_config"] = map[string]any{
			"type":     sc.Destination.Type,
			"hostname": sc.Destination.Hostname,
			"port":     float64(sc.Destination.Port),
			"database": sc.Destination.Database,
			"username": sc.Destination.Username,
			"password": sc.Destination.Password,
		}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("signing context token: %w", err)
	}
	return signed, nil
}
