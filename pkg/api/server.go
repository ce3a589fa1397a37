// Package api contains the REST API for cubegate.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	v1 "github.com/cubegate/cubegate/pkg/api/v1"
	"github.com/cubegate/cubegate/pkg/auth"
	"github.com/cubegate/cubegate/pkg/contextcache"
	"github.com/cubegate/cubegate/pkg/driver"
	"github.com/cubegate/cubegate/pkg/logger"
	"github.com/cubegate/cubegate/pkg/metrics"
)

const (
	middlewareTimeout = 60 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Deps bundles the resolved collaborators the API serves.
type Deps struct {
	Resolver *driver.Resolver
	Cache    *contextcache.Cache
	Gate     *auth.Gate

	// Issuer enables POST /api/v1/token when non-nil.
	Issuer *auth.Issuer

	// Gatherer backs GET /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

// Router assembles the full HTTP handler tree.
func Router(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Timeout(middlewareTimeout),
	)

	r.Mount("/health", v1.HealthcheckRouter())
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(deps.Gate.Middleware)
		r.Mount("/driver-config", v1.DriverConfigRouter(deps.Resolver))
		r.Mount("/context-keys", v1.ContextKeysRouter())
		r.Mount("/refresh-contexts", v1.RefreshContextsRouter(deps.Cache))
		if deps.Issuer != nil {
			r.Mount("/token", v1.TokenRouter(deps.Issuer))
		}
	})

	return r
}

// Serve starts the server on the given address and serves the API until ctx
// is cancelled. The caller sets up signal handling.
func Serve(ctx context.Context, address string, deps Deps) error {
	srv := &http.Server{
		BaseContext:       func(net.Listener) context.Context { return ctx },
		Addr:              address,
		Handler:           Router(deps),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	logger.Infof("starting HTTP server on %s", address)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server stopped with error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	logger.Info("HTTP server stopped")
	return nil
}
