package v1

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cubegate/cubegate/pkg/contextcache"
	"github.com/cubegate/cubegate/pkg/logger"
	"github.com/cubegate/cubegate/pkg/tenant"
)

// RefreshContextsRoutes defines the routes for the known-tenant list.
type RefreshContextsRoutes struct {
	cache *contextcache.Cache
}

// RefreshContextsRouter creates a new router for the known-tenant list.
func RefreshContextsRouter(cache *contextcache.Cache) http.Handler {
	routes := RefreshContextsRoutes{cache: cache}

	r := chi.NewRouter()
	r.Get("/", routes.listRefreshContexts)
	return r
}

// listRefreshContexts serves the cached tenant list. Stale-serve semantics
// live in the cache; this endpoint fails only when no snapshot exists at all.
func (c *RefreshContextsRoutes) listRefreshContexts(w http.ResponseWriter, r *http.Request) {
	contexts, err := c.cache.Contexts(r.Context())
	if err != nil {
		logger.Errorw("refresh-contexts lookup failed", "error", err.Error())
		http.Error(w, "tenant list unavailable", http.StatusBadGateway)
		return
	}
	if contexts == nil {
		contexts = []tenant.RefreshContext{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(contexts); err != nil {
		http.Error(w, "failed to encode tenant list", http.StatusInternalServerError)
	}
}
