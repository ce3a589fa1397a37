package driver

import (
	"context"

	"github.com/cubegate/cubegate/pkg/tenant"
	"github.com/cubegate/cubegate/pkg/upstream"
)

// CredentialFetcher resolves a connection id to its service-account
// credential set. Satisfied by *upstream.Client.
type CredentialFetcher interface {
	FetchServiceAccount(ctx context.Context, connectionID string) (*upstream.ServiceAccount, error)
}

// RemoteSource builds BigQuery descriptors from credentials fetched live
// from the upstream identity/config service. Credentials are not cached:
// every resolution is an upstream round-trip, and only the constructed
// descriptor outlives the call.
type RemoteSource struct {
	fetcher CredentialFetcher
}

// NewRemoteSource creates a RemoteSource over the given fetcher.
func NewRemoteSource(fetcher CredentialFetcher) *RemoteSource {
	return &RemoteSource{fetcher: fetcher}
}

// Identified reports whether the context names a connection.
func (*RemoteSource) Identified(sc tenant.SecurityContext) bool {
	return sc.Connection != ""
}

// Build fetches the service account for the context's connection and wraps
// it in a descriptor. The context's dataset carries through untouched; empty
// means the data source's default.
func (s *RemoteSource) Build(ctx context.Context, sc tenant.SecurityContext) (*Descriptor, error) {
	if sc.Connection == "" {
		return nil, ErrNoConnection
	}

	account, err := s.fetcher.FetchServiceAccount(ctx, sc.Connection)
	if err != nil {
		return nil, err
	}

	return &Descriptor{
		Type:        "bigquery",
		ProjectID:   account.ProjectID,
		Credentials: account.Credentials,
		Dataset:     sc.Dataset,
	}, nil
}
