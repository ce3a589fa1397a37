package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/cubegate/cubegate/pkg/logger"
	"github.com/cubegate/cubegate/pkg/tenant"
)

// ServiceAccount is the physical-datasource credential set for one
// connection. It exists only for the duration of driver construction; the
// descriptor built from it is what persists in the query engine.
type ServiceAccount struct {
	// ConnectionID is the connection this credential set belongs to.
	ConnectionID string

	// ProjectID is the warehouse project identifier. Always present; its
	// absence in the upstream response is a fatal shape error.
	ProjectID string

	// Region is the warehouse region, when the upstream reports one.
	Region string

	// Credentials is the full upstream response object, passed through to
	// the driver descriptor as key material.
	Credentials map[string]any
}

// FetchServiceAccount retrieves the credential set for a connection. It
// requires an authenticated session; on HTTP 401 it re-authenticates once
// and retries exactly once, on 5xx it retries once without
// re-authenticating. There is no per-connection cache: every call is a live
// upstream round-trip.
func (c *Client) FetchServiceAccount(ctx context.Context, connectionID string) (*ServiceAccount, error) {
	if connectionID == "" {
		return nil, fmt.Errorf("%w: empty connection id", ErrCredentialFetch)
	}

	path := fmt.Sprintf("/api/cube/config/%s/service-account", url.PathEscape(connectionID))

	var raw map[string]any
	if err := c.getAuthorized(ctx, path, "service_account", &raw); err != nil {
		if errors.Is(err, ErrAuth) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: connection %q: %w", ErrCredentialFetch, connectionID, err)
	}

	projectID, _ := raw["project_id"].(string)
	if projectID == "" {
		return nil, fmt.Errorf("%w: response for connection %q missing project_id", ErrCredentialFetch, connectionID)
	}
	region, _ := raw["region"].(string)

	return &ServiceAccount{
		ConnectionID: connectionID,
		ProjectID:    projectID,
		Region:       region,
		Credentials:  raw,
	}, nil
}

// FetchRefreshContexts retrieves the full set of known tenant security
// contexts for proactive cache warming. Ordering is significant: the first
// entry is the default-tenant fallback.
func (c *Client) FetchRefreshContexts(ctx context.Context) ([]tenant.RefreshContext, error) {
	var contexts []tenant.RefreshContext
	if err := c.getAuthorized(ctx, refreshContextsPath, "refresh_contexts", &contexts); err != nil {
		if errors.Is(err, ErrAuth) {
			return nil, err
		}
		return nil, fmt.Errorf("fetch refresh contexts: %w", err)
	}
	return contexts, nil
}

// getAuthorized issues an authorized GET and decodes the JSON response.
// Retry policy per response: 401 means the local session bookkeeping is
// stale despite the expiry margin, so re-authenticate once and retry exactly
// once; 5xx retries once with the same token; anything else non-2xx fails.
func (c *Client) getAuthorized(ctx context.Context, path, operation string, out any) error {
	token, err := c.ensureAuthenticated(ctx)
	if err != nil {
		return err
	}

	fullURL := c.baseURL + path
	status, body, err := c.send(ctx, http.MethodGet, fullURL, nil, token, operation)
	if err != nil {
		return err
	}

	switch {
	case status == http.StatusUnauthorized:
		logger.Infow("upstream rejected session token, re-authenticating", "operation", operation)
		c.invalidate()
		c.metrics.IncReauth()
		token, err = c.authenticate(ctx)
		if err != nil {
			return err
		}
		status, body, err = c.send(ctx, http.MethodGet, fullURL, nil, token, operation)
	case status >= 500:
		logger.Warnw("upstream returned server error, retrying once", "operation", operation, "status", status)
		c.metrics.IncUpstreamRetry(operation)
		status, body, err = c.send(ctx, http.MethodGet, fullURL, nil, token, operation)
	}
	if err != nil {
		return err
	}

	if status < 200 || status >= 300 {
		return NewHTTPError(status, fullURL, preview(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("malformed response from %s: %w", path, err)
	}
	return nil
}
