package driver

import (
	"context"
	"fmt"

	"github.com/cubegate/cubegate/pkg/config"
	"github.com/cubegate/cubegate/pkg/tenant"
)

// StaticSource builds descriptors without upstream calls: from the
// destination embedded in the security context when present, else from the
// configured default destination. This is the single-dataset deployment
// mode, where the token issuer signs the warehouse coordinates directly into
// the context token.
type StaticSource struct {
	fallback config.StaticDestination
}

// NewStaticSource creates a StaticSource with the configured default
// destination, which may be zero.
func NewStaticSource(fallback config.StaticDestination) *StaticSource {
	return &StaticSource{fallback: fallback}
}

// Identified reports whether a descriptor can be built from sc alone. A
// configured default destination makes every context identifiable.
func (s *StaticSource) Identified(sc tenant.SecurityContext) bool {
	return sc.Destination != nil || s.fallback.Configured()
}

// Build constructs the descriptor from the embedded or configured
// destination. Only postgres destinations are supported in static mode.
func (s *StaticSource) Build(_ context.Context, sc tenant.SecurityContext) (*Descriptor, error) {
	dest := sc.Destination
	if dest == nil {
		if !s.fallback.Configured() {
			return nil, ErrNoConnection
		}
		dest = &tenant.Destination{
			Type:     s.fallback.Type,
			Hostname: s.fallback.Hostname,
			Port:     s.fallback.Port,
			Database: s.fallback.Database,
			Username: s.fallback.Username,
			Password: s.fallback.Password,
		}
	}

	if dest.Type != "postgres" {
		return nil, fmt.Errorf("unsupported destination type %q", dest.Type)
	}

	return &Descriptor{
		Type:     dest.Type,
		Host:     dest.Hostname,
		Port:     dest.Port,
		Database: dest.Database,
		User:     dest.Username,
		Password: dest.Password,
		Dataset:  sc.Dataset,
	}, nil
}

// FetchRefreshContexts implements the tenant cache's fetcher contract for
// static deployments: the known-tenant list is the single configured
// destination.
func (s *StaticSource) FetchRefreshContexts(_ context.Context) ([]tenant.RefreshContext, error) {
	if !s.fallback.Configured() {
		return []tenant.RefreshContext{}, nil
	}
	return []tenant.RefreshContext{
		{SecurityContext: tenant.SecurityContext{
			Destination: &tenant.Destination{
				Type:     s.fallback.Type,
				Hostname: s.fallback.Hostname,
				Port:     s.fallback.Port,
				Database: s.fallback.Database,
				Username: s.fallback.Username,
				Password: s.fallback.Password,
			},
		}},
	}, nil
}
