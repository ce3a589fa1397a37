package v1

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cubegate/cubegate/pkg/isolation"
)

// ContextKeysRoutes defines the routes for isolation-key derivation.
type ContextKeysRoutes struct{}

// ContextKeysRouter creates a new router for isolation-key derivation.
func ContextKeysRouter() http.Handler {
	routes := ContextKeysRoutes{}

	r := chi.NewRouter()
	r.Post("/", routes.deriveContextKeys)
	return r
}

type contextKeysResponse struct {
	AppID                string `json:"appId"`
	OrchestratorID       string `json:"orchestratorId"`
	PreAggregationSchema string `json:"preAggregationsSchema"`
}

func (*ContextKeysRoutes) deriveContextKeys(w http.ResponseWriter, r *http.Request) {
	sc, err := inboundContext(r)
	if err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	resp := contextKeysResponse{
		AppID:                isolation.AppID(sc),
		OrchestratorID:       isolation.OrchestratorID(sc),
		PreAggregationSchema: isolation.PreAggregationSchema(sc),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, "failed to encode context keys", http.StatusInternalServerError)
	}
}
