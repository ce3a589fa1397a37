package v1

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cubegate/cubegate/pkg/auth"
	"github.com/cubegate/cubegate/pkg/logger"
	"github.com/cubegate/cubegate/pkg/tenant"
)

// TokenRoutes defines the routes of the development token issuer.
type TokenRoutes struct {
	issuer *auth.Issuer
}

// TokenRouter creates a new router for the development token issuer. Only
// mounted when token issuance is enabled in configuration.
func TokenRouter(issuer *auth.Issuer) http.Handler {
	routes := TokenRoutes{issuer: issuer}

	r := chi.NewRouter()
	r.Post("/", routes.mintToken)
	return r
}

type mintTokenRequest struct {
	SecurityContext tenant.SecurityContext `json:"securityContext"`
}

type mintTokenResponse struct {
	Token string `json:"token"`
}

func (t *TokenRoutes) mintToken(w http.ResponseWriter, r *http.Request) {
	var req mintTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	token, err := t.issuer.Mint(req.SecurityContext)
	if err != nil {
		logger.Errorw("token minting failed", "error", err.Error())
		http.Error(w, "failed to mint token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(mintTokenResponse{Token: token}); err != nil {
		http.Error(w, "failed to encode token", http.StatusInternalServerError)
	}
}
