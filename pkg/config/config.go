// Package config contains the definition of the cubegate runtime
// configuration and the logic required to load it from viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Credential source modes for the driver resolver.
const (
	// SourceRemote resolves warehouse credentials from the upstream
	// identity/config service, keyed by the connection id in the
	// security context.
	SourceRemote = "remote"

	// SourceStatic builds the driver descriptor from the destination
	// embedded in the security context, or from configured defaults,
	// without any upstream calls.
	SourceStatic = "static"
)

var (
	// ErrMissingUpstream is returned when remote mode is selected but the
	// upstream service location or credentials are not configured.
	ErrMissingUpstream = errors.New("upstream base URL, email and password are required in remote mode")

	// ErrMissingSecret is returned when no token signing secret is configured.
	ErrMissingSecret = errors.New("api secret is required")
)

// Config represents the runtime configuration of the cubegate service.
// It is materialized once at startup and passed into constructors; nothing
// reads viper after Load returns.
type Config struct {
	// Address is the listen address of the REST API.
	Address string

	// UpstreamBaseURL is the base URL of the identity/config service that
	// owns tenant onboarding data (connections, service accounts).
	UpstreamBaseURL string

	// UpstreamEmail and UpstreamPassword are the fixed service credentials
	// cubegate uses for its own upstream login.
	UpstreamEmail    string
	UpstreamPassword string

	// APISecret is the shared HS256 secret the token issuer signs security
	// context tokens with. The auth gate verifies inbound tokens against it.
	APISecret string

	// DefaultDataset is substituted when an inbound context carries no
	// dataset. Empty means "no process default".
	DefaultDataset string

	// CredentialSource selects between SourceRemote and SourceStatic.
	CredentialSource string

	// EnableTokenEndpoint exposes POST /api/v1/token for development and
	// tenant onboarding flows. Off by default.
	EnableTokenEndpoint bool

	// ContextTTL bounds how long a refresh-context snapshot is considered
	// fresh before the next access triggers a refresh.
	ContextTTL time.Duration

	// RefreshInterval is the period of the background pre-warm loop.
	RefreshInterval time.Duration

	// UpstreamTimeout bounds every upstream HTTP call.
	UpstreamTimeout time.Duration

	// StaticDestination is the fallback destination for static mode when
	// the inbound context carries no embedded destination.
	StaticDestination StaticDestination
}

// StaticDestination mirrors the destination payload shape used by the token
// issuer in static deployments.
type StaticDestination struct {
	Type     string
	Hostname string
	Port     int
	Database string
	Username string
	Password string
}

// Configured reports whether any static destination field is set.
func (d StaticDestination) Configured() bool {
	return d.Type != "" || d.Hostname != "" || d.Database != ""
}

// Load materializes the configuration from viper, applying defaults and
// validating per-mode requirements.
func Load() (*Config, error) {
	cfg := &Config{
		Address:             viper.GetString("address"),
		UpstreamBaseURL:     strings.TrimRight(viper.GetString("upstream-url"), "/"),
		UpstreamEmail:       viper.GetString("upstream-email"),
		UpstreamPassword:    viper.GetString("upstream-password"),
		APISecret:           viper.GetString("api-secret"),
		DefaultDataset:      viper.GetString("default-dataset"),
		CredentialSource:    viper.GetString("credential-source"),
		EnableTokenEndpoint: viper.GetBool("enable-token-endpoint"),
		ContextTTL:          viper.GetDuration("context-ttl"),
		RefreshInterval:     viper.GetDuration("refresh-interval"),
		UpstreamTimeout:     viper.GetDuration("upstream-timeout"),
		StaticDestination: StaticDestination{
			Type:     viper.GetString("static-type"),
			Hostname: viper.GetString("static-hostname"),
			Port:     viper.GetInt("static-port"),
			Database: viper.GetString("static-database"),
			Username: viper.GetString("static-username"),
			Password: viper.GetString("static-password"),
		},
	}

	if cfg.Address == "" {
		cfg.Address = ":8686"
	}
	if cfg.CredentialSource == "" {
		cfg.CredentialSource = SourceRemote
	}
	if cfg.ContextTTL <= 0 {
		cfg.ContextTTL = 5 * time.Minute
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = cfg.ContextTTL
	}
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = 10 * time.Second
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.APISecret == "" {
		return ErrMissingSecret
	}

	switch c.CredentialSource {
	case SourceRemote:
		if c.UpstreamBaseURL == "" || c.UpstreamEmail == "" || c.UpstreamPassword == "" {
			return ErrMissingUpstream
		}
		if _, err := url.ParseRequestURI(c.UpstreamBaseURL); err != nil {
			return fmt.Errorf("invalid upstream base URL %q: %w", c.UpstreamBaseURL, err)
		}
	case SourceStatic:
		// Static mode needs no upstream; destinations arrive in the token
		// or via the static-* settings.
	default:
		return fmt.Errorf("invalid credential source %q (valid sources: %s, %s)",
			c.CredentialSource, SourceRemote, SourceStatic)
	}
	return nil
}
