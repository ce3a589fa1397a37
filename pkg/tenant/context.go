// Package tenant defines the per-request security context identifying which
// tenant and logical dataset a query belongs to, and helpers for carrying it
// through request contexts and token claims.
package tenant

import (
	"context"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// SecurityContext is the per-request identity bundle reconstructed from token
// claims or defaults. Both fields are optional and independently absent; an
// all-empty context is valid and means "no inbound identity".
//
// Once a non-empty Connection is present, every driver and isolation decision
// for the request must use it. Connection and Dataset are never mixed across
// sources within one resolution; fallback replaces the context as a unit.
type SecurityContext struct {
	// Connection is the opaque key naming a tenant's physical data-source
	// configuration.
	Connection string `json:"connection,omitempty"`

	// Dataset is the logical dataset name. Empty means "use the data
	// source's default".
	Dataset string `json:"dataset,omitempty"`

	// Destination is the inline destination payload used by static
	// deployments, where the token itself carries the warehouse
	// coordinates instead of a connection id.
	Destination *Destination `json:"destination_config,omitempty"`
}

// Destination mirrors the destination payload shape minted by the token
// issuer for static deployments.
type Destination struct {
	Type     string `json:"type"`
	Hostname string `json:"hostname"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Empty reports whether the context carries no identity at all.
func (c SecurityContext) Empty() bool {
	return c.Connection == "" && c.Dataset == "" && c.Destination == nil
}

// String returns a loggable representation. Destination credentials are
// redacted; only identifiers appear.
func (c SecurityContext) String() string {
	dest := ""
	if c.Destination != nil {
		dest = fmt.Sprintf(" destination=%s/%s", c.Destination.Type, c.Destination.Database)
	}
	return fmt.Sprintf("SecurityContext{connection:%q dataset:%q%s}", c.Connection, c.Dataset, dest)
}

// FromClaims extracts a SecurityContext from verified token claims.
// Unknown claims are ignored; missing claims leave fields empty. Field values
// of unexpected types are rejected rather than coerced.
func FromClaims(claims jwt.MapClaims) (SecurityContext, error) {
	var sc SecurityContext

	if raw, ok := claims["connection"]; ok {
		s, ok := raw.(string)
		if !ok {
			return SecurityContext{}, fmt.Errorf("connection claim is not a string: %T", raw)
		}
		sc.Connection = strings.TrimSpace(s)
	}

	if raw, ok := claims["dataset"]; ok {
		s, ok := raw.(string)
		if !ok {
			return SecurityContext{}, fmt.Errorf("dataset claim is not a string: %T", raw)
		}
		sc.Dataset = strings.TrimSpace(s)
	}

	if raw, ok := claims["destination_config"]; ok && raw != nil {
		m, ok := raw.(map[string]any)
		if !ok {
			return SecurityContext{}, fmt.Errorf("destination_config claim is not an object: %T", raw)
		}
		dest, err := destinationFromClaim(m)
		if err != nil {
			return SecurityContext{}, err
		}
		sc.Destination = dest
	}

	return sc, nil
}

func destinationFromClaim(m map[string]any) (*Destination, error) {
	dest := &Destination{}
	var err error

	if dest.Type, err = stringField(m, "type"); err != nil {
		return nil, err
	}
	if dest.Hostname, err = stringField(m, "hostname"); err != nil {
		return nil, err
	}
	if dest.Database, err = stringField(m, "database"); err != nil {
		return nil, err
	}
	if dest.Username, err = stringField(m, "username"); err != nil {
		return nil, err
	}
	if dest.Password, err = stringField(m, "password"); err != nil {
		return nil, err
	}

	if raw, ok := m["port"]; ok && raw != nil {
		// JSON numbers decode as float64.
		f, ok := raw.(float64)
		if !ok {
			return nil, fmt.Errorf("destination_config port is not a number: %T", raw)
		}
		dest.Port = int(f)
	}

	return dest, nil
}

func stringField(m map[string]any, key string) (string, error) {
	raw, ok := m[key]
	if !ok || raw == nil {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("destination_config %s is not a string: %T", key, raw)
	}
	return s, nil
}

// securityContextKey is the context key for the request-scoped security
// context. An empty struct type prevents collisions with other packages.
type securityContextKey struct{}

// WithSecurityContext stores a SecurityContext in the request context.
func WithSecurityContext(ctx context.Context, sc SecurityContext) context.Context {
	return context.WithValue(ctx, securityContextKey{}, sc)
}

// SecurityContextFromRequest retrieves the SecurityContext placed in the
// context by the auth gate. Returns the context and true if present.
func SecurityContextFromRequest(ctx context.Context) (SecurityContext, bool) {
	sc, ok := ctx.Value(securityContextKey{}).(SecurityContext)
	return sc, ok
}
