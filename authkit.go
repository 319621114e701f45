// Package authkit provides a framework-agnostic Go SDK for the trust and
// session-continuity boundary of a multi-tenant trainer/client platform.
//
// The SDK covers four cooperating concerns: an authenticated request
// pipeline with transparent single-flight credential renewal (pipeline/),
// a single-use OAuth anti-forgery state ledger (oauthstate/), webhook
// subscription contract validation (webhook/), and request correlation
// tagging (middleware/). Concrete storage and verification backends are
// injected via Option functions, keeping the SDK independent of any
// specific server or persistence layer.
//
// Example usage:
//
//	client, err := authkit.NewClient(
//	    authkit.Config{RefreshURL: "https://api.example.com/auth/refresh-token"},
//	    authkit.WithCredentialStore(session.New()),
//	    authkit.WithStateStore(pgStore),
//	)
package authkit

import (
	"fmt"
	"io"
	"log/slog"
	"time"
)

// Fixed wire-level names shared by both sides of the boundary.
const (
	// HeaderRequestID is the correlation identifier header, accepted on
	// input and always present on output.
	HeaderRequestID = "X-Request-Id"

	// CodeTokenExpired is the machine-readable code paired with a 401
	// status that distinguishes a renewable expiry from a generic
	// unauthorized response.
	CodeTokenExpired = "TOKEN_EXPIRED"
)

// Defaults applied by NewClient for zero-valued Config fields.
const (
	DefaultRefreshTimeout = 10 * time.Second
	DefaultStateTTL       = 5 * time.Minute
)

// DefaultProviders is the third-party login provider set used when the
// Config does not name one.
var DefaultProviders = []string{"google", "apple", "github", "discord"}

// Config holds connection and behavior configuration.
type Config struct {
	// RefreshURL is the session-renewal endpoint. The pipeline POSTs the
	// refresh token there when it sees a renewable expiry.
	RefreshURL string `yaml:"refresh_url"`

	// RefreshTimeout bounds the renewal call. Default: 10 seconds.
	RefreshTimeout time.Duration `yaml:"refresh_timeout"`

	// RefreshBuffer is how long before a known token expiry the pipeline
	// renews proactively. Zero disables proactive renewal; tokens whose
	// expiry cannot be read are unaffected either way.
	RefreshBuffer time.Duration `yaml:"refresh_buffer"`

	// StateTTL is the lifetime of issued OAuth state nonces.
	// Default: 5 minutes.
	StateTTL time.Duration `yaml:"state_ttl"`

	// Providers is the allowed third-party login provider set.
	// Default: DefaultProviders.
	Providers []string `yaml:"providers"`

	// JWKSUrl is the URL to fetch JWKS public keys for server-side token
	// verification. Example: "https://auth.example.com/.well-known/jwks.json"
	JWKSUrl string `yaml:"jwks_url"`
}

// Option configures the Client.
type Option func(*Client)

// Client is the main entry point wiring the boundary components together.
// Storage and verification implementations are injected via Option functions.
type Client struct {
	config      Config
	logger      *slog.Logger
	verifier    TokenVerifier
	credentials CredentialStore
	states      StateStore
}

// WithLogger sets a structured logger for the client.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithTokenVerifier sets the token verification implementation.
func WithTokenVerifier(v TokenVerifier) Option {
	return func(c *Client) { c.verifier = v }
}

// WithCredentialStore sets the session credential store implementation.
func WithCredentialStore(s CredentialStore) Option {
	return func(c *Client) { c.credentials = s }
}

// WithStateStore sets the OAuth state store implementation.
func WithStateStore(s StateStore) Option {
	return func(c *Client) { c.states = s }
}

// NewClient creates a new client with the given configuration and options.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if cfg.RefreshTimeout == 0 {
		cfg.RefreshTimeout = DefaultRefreshTimeout
	}
	if cfg.StateTTL == 0 {
		cfg.StateTTL = DefaultStateTTL
	}
	if len(cfg.Providers) == 0 {
		cfg.Providers = DefaultProviders
	}
	if cfg.RefreshTimeout < 0 || cfg.StateTTL < 0 {
		return nil, fmt.Errorf("authkit: timeouts must not be negative")
	}

	c := &Client{config: cfg}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Config returns the client configuration.
func (c *Client) Config() Config { return c.config }

// Logger returns the configured logger, or nil if not set.
func (c *Client) Logger() *slog.Logger { return c.logger }

// Verifier returns the token verifier, or nil if not configured.
func (c *Client) Verifier() TokenVerifier { return c.verifier }

// Credentials returns the credential store, or nil if not configured.
func (c *Client) Credentials() CredentialStore { return c.credentials }

// States returns the OAuth state store, or nil if not configured.
func (c *Client) States() StateStore { return c.states }

// Close releases all resources held by the client.
// Any injected backend that implements io.Closer will be closed.
func (c *Client) Close() error {
	closers := []interface{}{c.verifier, c.credentials, c.states}
	var firstErr error
	for _, svc := range closers {
		if cl, ok := svc.(io.Closer); ok && cl != nil {
			if err := cl.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
