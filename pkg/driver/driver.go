// Package driver resolves an inbound security context into a concrete
// data-source connection descriptor. It is the per-request entry point of the
// resolution pipeline: the auth gate produces the context, this package
// turns it into the descriptor the query engine connects with.
package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cubegate/cubegate/pkg/contextcache"
	"github.com/cubegate/cubegate/pkg/logger"
	"github.com/cubegate/cubegate/pkg/metrics"
	"github.com/cubegate/cubegate/pkg/tenant"
)

// ErrNoConnection is returned when no connection identity is resolvable from
// either the inbound context or the cache fallback. It signals an onboarding
// gap rather than a transient fault: schema compilation cannot proceed
// without a connection identity.
var ErrNoConnection = errors.New("no connection identifier resolvable from request or tenant cache")

// Descriptor is the connection configuration handed to the query engine.
// Constructed fresh per request and never mutated afterwards; the engine
// owns the connection lifecycle from here.
type Descriptor struct {
	Type        string         `json:"type"`
	ProjectID   string         `json:"projectId,omitempty"`
	Credentials map[string]any `json:"credentials,omitempty"`
	Dataset     string         `json:"dataset,omitempty"`

	// Static-destination fields, used when the descriptor is built from an
	// embedded destination payload instead of a fetched service account.
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Database string `json:"database,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
}

// Source builds a descriptor from a fully-resolved security context.
// Implementations are the two deployment modes: remote (upstream credential
// service) and static (token-embedded or configured destination).
type Source interface {
	// Identified reports whether sc alone carries enough identity to
	// build a descriptor, without consulting the tenant cache.
	Identified(sc tenant.SecurityContext) bool

	// Build constructs the descriptor for sc.
	Build(ctx context.Context, sc tenant.SecurityContext) (*Descriptor, error)
}

// Resolver implements the per-request resolution algorithm over a credential
// source and the shared tenant context cache.
type Resolver struct {
	source  Source
	cache   *contextcache.Cache
	metrics metrics.Metrics
	now     func() time.Time
}

// NewResolver creates a Resolver. The cache may be shared with the
// background pre-warm loop; the resolver only reads it.
func NewResolver(source Source, cache *contextcache.Cache, m metrics.Metrics) *Resolver {
	if m == nil {
		m = metrics.Noop{}
	}
	return &Resolver{
		source:  source,
		cache:   cache,
		metrics: m,
		now:     time.Now,
	}
}

// Resolve produces the driver descriptor for the inbound security context.
//
// A context that identifies its tenant is used as-is and the cache is never
// consulted. Otherwise the first entry of the tenant cache becomes the
// default context as a unit, with the inbound dataset (when present)
// carrying through. If neither source yields an identity, resolution fails
// with ErrNoConnection before any credential fetch.
func (r *Resolver) Resolve(ctx context.Context, inbound tenant.SecurityContext) (*Descriptor, error) {
	start := r.now()
	traceID := uuid.NewString()
	logger.Debugw("resolving driver", "trace_id", traceID, "context", inbound.String())

	desc, err := r.resolve(ctx, inbound, traceID)
	status := "success"
	if err != nil {
		status = "error"
	}
	r.metrics.ObserveResolve(status, r.now().Sub(start).Seconds())
	return desc, err
}

func (r *Resolver) resolve(ctx context.Context, inbound tenant.SecurityContext, traceID string) (*Descriptor, error) {
	resolved := inbound

	if !r.source.Identified(inbound) {
		contexts, err := r.cache.Contexts(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoConnection, err)
		}
		if len(contexts) == 0 {
			return nil, ErrNoConnection
		}

		// Fall back to the default tenant as a unit: first entry of the
		// upstream-returned list, source order, no tie-break.
		resolved = contexts[0].SecurityContext
		if inbound.Dataset != "" {
			resolved.Dataset = inbound.Dataset
		}
		logger.Debugw("using default tenant from cache",
			"trace_id", traceID, "connection", resolved.Connection, "dataset", resolved.Dataset)

		if !r.source.Identified(resolved) {
			return nil, ErrNoConnection
		}
	}

	return r.source.Build(ctx, resolved)
}
