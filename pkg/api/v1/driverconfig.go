// Package v1 contains the v1 routes of the cubegate REST API.
package v1

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cubegate/cubegate/pkg/driver"
	"github.com/cubegate/cubegate/pkg/logger"
	"github.com/cubegate/cubegate/pkg/tenant"
)

// DriverConfigRoutes defines the routes for driver resolution.
type DriverConfigRoutes struct {
	resolver *driver.Resolver
}

// DriverConfigRouter creates a new router for driver resolution.
func DriverConfigRouter(resolver *driver.Resolver) http.Handler {
	routes := DriverConfigRoutes{resolver: resolver}

	r := chi.NewRouter()
	r.Post("/", routes.resolveDriverConfig)
	return r
}

// resolveRequest is the shared request body of the resolution endpoints. The
// securityContext field overrides the token-derived context when present, so
// the query engine can resolve on behalf of a request it already
// authenticated.
type resolveRequest struct {
	SecurityContext *tenant.SecurityContext `json:"securityContext"`
}

// inboundContext picks the security context for a resolution request: the
// posted body when it carries one, else the context the auth gate attached.
func inboundContext(r *http.Request) (tenant.SecurityContext, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return tenant.SecurityContext{}, err
	}

	if len(body) > 0 {
		var req resolveRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return tenant.SecurityContext{}, err
		}
		if req.SecurityContext != nil {
			return *req.SecurityContext, nil
		}
	}

	sc, _ := tenant.SecurityContextFromRequest(r.Context())
	return sc, nil
}

func (d *DriverConfigRoutes) resolveDriverConfig(w http.ResponseWriter, r *http.Request) {
	sc, err := inboundContext(r)
	if err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	desc, err := d.resolver.Resolve(r.Context(), sc)
	if err != nil {
		writeResolveError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(desc); err != nil {
		http.Error(w, "failed to encode driver config", http.StatusInternalServerError)
	}
}

// writeResolveError maps resolution failures to status codes: a missing
// connection identity is an onboarding gap (424), everything else from the
// resolution path is an upstream dependency failure (502).
func writeResolveError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	if errors.Is(err, driver.ErrNoConnection) {
		status = http.StatusFailedDependency
	}
	logger.Errorw("driver resolution failed", "error", err.Error(), "status", status)
	http.Error(w, err.Error(), status)
}
