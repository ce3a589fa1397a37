package tenant

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromClaims(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		claims      jwt.MapClaims
		want        SecurityContext
		expectError bool
	}{
		{
			name:   "complete context",
			claims: jwt.MapClaims{"connection": "acme", "dataset": "sales"},
			want:   SecurityContext{Connection: "acme", Dataset: "sales"},
		},
		{
			name:   "connection only",
			claims: jwt.MapClaims{"connection": "acme"},
			want:   SecurityContext{Connection: "acme"},
		},
		{
			name:   "dataset only",
			claims: jwt.MapClaims{"dataset": "sales"},
			want:   SecurityContext{Dataset: "sales"},
		},
		{
			name:   "no recognized claims",
			claims: jwt.MapClaims{"sub": "user", "exp": 123456.0},
			want:   SecurityContext{},
		},
		{
			name:   "whitespace trimmed",
			claims: jwt.MapClaims{"connection": " acme ", "dataset": "\tsales\n"},
			want:   SecurityContext{Connection: "acme", Dataset: "sales"},
		},
		{
			name:        "connection of wrong type",
			claims:      jwt.MapClaims{"connection": 42},
			expectError: true,
		},
		{
			name:        "dataset of wrong type",
			claims:      jwt.MapClaims{"dataset": []string{"sales"}},
			expectError: true,
		},
		{
			name: "embedded destination",
			claims: jwt.MapClaims{
				"destination_config": map[string]any{
					"type":     "postgres",
					"hostname": "warehouse1",
					"port":     5432.0,
					"database": "analytics",
					"username": "svc",
					"password": "secret",
				},
			},
			want: SecurityContext{Destination: &Destination{
				Type:     "postgres",
				Hostname: "warehouse1",
				Port:     5432,
				Database: "analytics",
				Username: "svc",
				Password: "secret",
			}},
		},
		{
			name:        "destination of wrong shape",
			claims:      jwt.MapClaims{"destination_config": "postgres"},
			expectError: true,
		},
		{
			name: "destination port of wrong type",
			claims: jwt.MapClaims{
				"destination_config": map[string]any{"type": "postgres", "port": "5432"},
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := FromClaims(tt.claims)
			if tt.expectError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEmpty(t *testing.T) {
	t.Parallel()

	assert.True(t, SecurityContext{}.Empty())
	assert.False(t, SecurityContext{Connection: "acme"}.Empty())
	assert.False(t, SecurityContext{Dataset: "sales"}.Empty())
	assert.False(t, SecurityContext{Destination: &Destination{Type: "postgres"}}.Empty())
}

func TestStringRedactsCredentials(t *testing.T) {
	t.Parallel()

	sc := SecurityContext{
		Connection: "acme",
		Dataset:    "sales",
		Destination: &Destination{
			Type:     "postgres",
			Database: "analytics",
			Username: "svc",
			Password: "supersecret",
		},
	}

	s := sc.String()
	assert.Contains(t, s, "acme")
	assert.Contains(t, s, "postgres")
	assert.NotContains(t, s, "supersecret")
	assert.NotContains(t, s, "svc")
}

func TestRequestContextRoundTrip(t *testing.T) {
	t.Parallel()

	_, ok := SecurityContextFromRequest(context.Background())
	assert.False(t, ok)

	sc := SecurityContext{Connection: "acme", Dataset: "sales"}
	ctx := WithSecurityContext(context.Background(), sc)

	got, ok := SecurityContextFromRequest(ctx)
	require.True(t, ok)
	assert.Equal(t, sc, got)
}
