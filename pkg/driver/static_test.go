package driver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubegate/cubegate/pkg/config"
	"github.com/cubegate/cubegate/pkg/contextcache"
	"github.com/cubegate/cubegate/pkg/tenant"
)

func newStaticResolver(t *testing.T, src *StaticSource) *Resolver {
	t.Helper()
	cache := contextcache.New(src)
	t.Cleanup(cache.Stop)
	return NewResolver(src, cache, nil)
}

func configuredFallback() config.StaticDestination {
	return config.StaticDestination{
		Type:     "postgres",
		Hostname: "warehouse.internal",
		Port:     5432,
		Database: "analytics",
		Username: "cube",
		Password: "hunter2",
	}
}

func TestStaticSourceEmbeddedDestination(t *testing.T) {
	t.Parallel()

	s := NewStaticSource(config.StaticDestination{})
	sc := tenant.SecurityContext{
		Dataset: "public",
		Destination: &tenant.Destination{
			Type:     "postgres",
			Hostname: "db.tenant.example",
			Port:     5433,
			Database: "tenantdb",
			Username: "tenant",
			Password: "s3cret",
		},
	}

	require.True(t, s.Identified(sc))

	desc, err := s.Build(context.Background(), sc)
	require.NoError(t, err)
	assert.Equal(t, "postgres", desc.Type)
	assert.Equal(t, "db.tenant.example", desc.Host)
	assert.Equal(t, 5433, desc.Port)
	assert.Equal(t, "tenantdb", desc.Database)
	assert.Equal(t, "tenant", desc.User)
	assert.Equal(t, "s3cret", desc.Password)
	assert.Equal(t, "public", desc.Dataset)
}

func TestStaticSourceConfiguredFallback(t *testing.T) {
	t.Parallel()

	s := NewStaticSource(configuredFallback())
	sc := tenant.SecurityContext{Dataset: "public"}

	require.True(t, s.Identified(sc))

	desc, err := s.Build(context.Background(), sc)
	require.NoError(t, err)
	assert.Equal(t, "warehouse.internal", desc.Host)
	assert.Equal(t, "analytics", desc.Database)
	assert.Equal(t, "public", desc.Dataset)
}

func TestStaticSourceEmbeddedTakesPrecedence(t *testing.T) {
	t.Parallel()

	s := NewStaticSource(configuredFallback())
	sc := tenant.SecurityContext{
		Destination: &tenant.Destination{
			Type:     "postgres",
			Hostname: "db.tenant.example",
			Port:     5433,
			Database: "tenantdb",
			Username: "tenant",
			Password: "s3cret",
		},
	}

	desc, err := s.Build(context.Background(), sc)
	require.NoError(t, err)
	assert.Equal(t, "db.tenant.example", desc.Host)
}

func TestStaticSourceUnconfigured(t *testing.T) {
	t.Parallel()

	s := NewStaticSource(config.StaticDestination{})
	sc := tenant.SecurityContext{}

	assert.False(t, s.Identified(sc))

	_, err := s.Build(context.Background(), sc)
	require.ErrorIs(t, err, ErrNoConnection)
}

func TestStaticSourceRejectsUnsupportedType(t *testing.T) {
	t.Parallel()

	s := NewStaticSource(config.StaticDestination{})
	sc := tenant.SecurityContext{
		Destination: &tenant.Destination{Type: "mysql", Hostname: "db"},
	}

	_, err := s.Build(context.Background(), sc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported destination type")
}

func TestStaticSourceFetchRefreshContexts(t *testing.T) {
	t.Parallel()

	s := NewStaticSource(configuredFallback())
	contexts, err := s.FetchRefreshContexts(context.Background())
	require.NoError(t, err)
	require.Len(t, contexts, 1)
	require.NotNil(t, contexts[0].SecurityContext.Destination)
	assert.Equal(t, "warehouse.internal", contexts[0].SecurityContext.Destination.Hostname)

	empty := NewStaticSource(config.StaticDestination{})
	contexts, err = empty.FetchRefreshContexts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, contexts)
}

func TestStaticResolverEndToEnd(t *testing.T) {
	t.Parallel()

	src := NewStaticSource(configuredFallback())
	r := newStaticResolver(t, src)

	desc, err := r.Resolve(context.Background(), tenant.SecurityContext{Dataset: "public"})
	require.NoError(t, err)
	assert.Equal(t, "postgres", desc.Type)
	assert.Equal(t, "warehouse.internal", desc.Host)
	assert.Equal(t, "public", desc.Dataset)
}
