package oidc

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-multierror"

	"github.com/transmitsecurity/bindid-go/internal/strutils"
)

// Alg represents asymmetric signing algorithms supported for id_token
// verification.
type Alg string

const (
	RS256 Alg = "RS256"
	RS384 Alg = "RS384"
	RS512 Alg = "RS512"
)

var supportedAlgorithms = map[Alg]bool{
	RS256: true,
	RS384: true,
	RS512: true,
}

// BindID production environment endpoints.
const (
	AuthEndpoint  = "https://signin.identity.security/authorize"
	TokenEndpoint = "https://signin.identity.security/token"
	JWKSURI       = "https://signin.identity.security/jwks"
)

// BindID sandbox environment endpoints.
const (
	SandboxAuthEndpoint  = "https://signin.bindid-sandbox.io/authorize"
	SandboxTokenEndpoint = "https://signin.bindid-sandbox.io/token"
	SandboxJWKSURI       = "https://signin.bindid-sandbox.io/jwks"
)

const (
	// DefaultScope is requested of the IdP when no scope is configured.
	DefaultScope = "openid email"

	// DefaultSessionTTL bounds how long an authentication session stays
	// consumable after the authentication URL is built.
	DefaultSessionTTL = 600 * time.Second

	// DefaultRequestTimeout bounds every outbound request to the IdP.
	DefaultRequestTimeout = 30 * time.Second
)

type ClientSecret string

// RedactedClientSecret is the redacted string or json for an oauth client secret
const RedactedClientSecret = "[REDACTED: client secret]"

// String will redact the client secret
func (t ClientSecret) String() string {
	return RedactedClientSecret
}

// MarshalJSON will redact the client secret
func (t ClientSecret) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedClientSecret)
}

// Config represents the configuration for the BindID authorization code
// flow.  Every recognized option is an explicit field; there is no dynamic
// settings bag.
type Config struct {
	// ClientID is the relying party id issued by BindID.
	ClientID string

	// ClientSecret is the relying party secret.  The core consumes the
	// already-decrypted value; secret-at-rest handling is a configuration
	// store concern.
	ClientSecret ClientSecret

	// Scope is the space separated list of oidc scopes to request.
	Scope string

	// AuthEndpoint is the IdP's authorization endpoint.
	AuthEndpoint string

	// TokenEndpoint is the IdP's token exchange endpoint.
	TokenEndpoint string

	// JWKSURI is where the IdP publishes its signing keys.
	JWKSURI string

	// RedirectURL is the relying party's callback URL, registered with the
	// IdP.
	RedirectURL string

	// SessionTTL is how long an unconsumed authentication session remains
	// valid.
	SessionTTL time.Duration

	// EnforceMultifactor requires the id_token's amr claim to carry a
	// recognized strong-authentication marker.
	EnforceMultifactor bool

	// ProductionMode selects the production endpoint set; the sandbox set
	// is used otherwise.  Explicit endpoint options override either set.
	ProductionMode bool

	// SupportedSigningAlgs constrains the id_token header algorithm.
	SupportedSigningAlgs []Alg

	// ProviderCA is an optional CA cert PEM to use when sending requests
	// to the IdP.
	ProviderCA string
}

// NewConfig composes a new relying party config.  Endpoints default to the
// BindID sandbox environment; WithProductionMode selects the production
// set and WithEndpoints overrides both (useful against a test IdP).
//
// Supported options: WithScope, WithSessionTTL, WithEnforceMultifactor,
// WithProductionMode, WithEndpoints, WithSupportedAlgs, WithProviderCA
func NewConfig(clientID string, clientSecret ClientSecret, redirectURL string, opt ...Option) (*Config, error) {
	const op = "oidc.NewConfig"
	opts := getConfigOpts(opt...)
	c := &Config{
		ClientID:             clientID,
		ClientSecret:         clientSecret,
		RedirectURL:          redirectURL,
		Scope:                opts.withScope,
		SessionTTL:           opts.withSessionTTL,
		EnforceMultifactor:   opts.withEnforceMultifactor,
		ProductionMode:       opts.withProductionMode,
		SupportedSigningAlgs: opts.withSupportedAlgs,
		ProviderCA:           opts.withProviderCA,
	}
	switch {
	case opts.withAuthEndpoint != "":
		c.AuthEndpoint = opts.withAuthEndpoint
		c.TokenEndpoint = opts.withTokenEndpoint
		c.JWKSURI = opts.withJWKSURI
	case c.ProductionMode:
		c.AuthEndpoint = AuthEndpoint
		c.TokenEndpoint = TokenEndpoint
		c.JWKSURI = JWKSURI
	default:
		c.AuthEndpoint = SandboxAuthEndpoint
		c.TokenEndpoint = SandboxTokenEndpoint
		c.JWKSURI = SandboxJWKSURI
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid relying party config: %w", op, err)
	}
	return c, nil
}

// Validate the config.  All problems are reported together.
func (c *Config) Validate() error {
	const op = "oidc.Config.Validate"
	if c == nil {
		return fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	var result *multierror.Error
	if c.ClientID == "" {
		result = multierror.Append(result, fmt.Errorf("client id is empty: %w", ErrInvalidParameter))
	}
	if c.ClientSecret == "" {
		result = multierror.Append(result, fmt.Errorf("client secret is empty: %w", ErrInvalidParameter))
	}
	if c.RedirectURL == "" {
		result = multierror.Append(result, fmt.Errorf("redirect URL is empty: %w", ErrInvalidParameter))
	}
	if c.Scope == "" {
		result = multierror.Append(result, fmt.Errorf("scope is empty: %w", ErrInvalidParameter))
	}
	if c.SessionTTL <= 0 {
		result = multierror.Append(result, fmt.Errorf("session ttl not greater than zero: %w", ErrInvalidParameter))
	}
	for name, endpoint := range map[string]string{
		"auth endpoint":  c.AuthEndpoint,
		"token endpoint": c.TokenEndpoint,
		"jwks uri":       c.JWKSURI,
	} {
		if endpoint == "" {
			result = multierror.Append(result, fmt.Errorf("%s is empty: %w", name, ErrInvalidParameter))
			continue
		}
		u, err := url.Parse(endpoint)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s %s is invalid: %w", name, endpoint, ErrInvalidParameter))
			continue
		}
		if !strutils.StrListContains([]string{"https", "http"}, u.Scheme) {
			result = multierror.Append(result, fmt.Errorf("%s %s schema is not http or https: %w", name, endpoint, ErrInvalidParameter))
		}
	}
	if len(c.SupportedSigningAlgs) == 0 {
		result = multierror.Append(result, fmt.Errorf("supported algorithms is empty: %w", ErrInvalidParameter))
	}
	for _, a := range c.SupportedSigningAlgs {
		if !supportedAlgorithms[a] {
			result = multierror.Append(result, fmt.Errorf("unsupported algorithm %s: %w", a, ErrInvalidParameter))
		}
	}
	return result.ErrorOrNil()
}

// HTTPClient returns an http client for the IdP, using the optional
// provider CA if configured and a bounded request timeout.
func (c *Config) HTTPClient() (*http.Client, error) {
	const op = "oidc.Config.HTTPClient"
	tr := cleanhttp.DefaultPooledTransport()
	if c.ProviderCA != "" {
		certPool := x509.NewCertPool()
		if ok := certPool.AppendCertsFromPEM([]byte(c.ProviderCA)); !ok {
			return nil, fmt.Errorf("%s: could not parse CA PEM value: %w", op, ErrInvalidCACert)
		}
		tr.TLSClientConfig = &tls.Config{
			RootCAs: certPool,
		}
	}
	return &http.Client{
		Transport: tr,
		Timeout:   DefaultRequestTimeout,
	}, nil
}

// configOptions is the set of available options for Config functions
type configOptions struct {
	withScope              string
	withSessionTTL         time.Duration
	withEnforceMultifactor bool
	withProductionMode     bool
	withAuthEndpoint       string
	withTokenEndpoint      string
	withJWKSURI            string
	withSupportedAlgs      []Alg
	withProviderCA         string
}

// configDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func configDefaults() configOptions {
	return configOptions{
		withScope:         DefaultScope,
		withSessionTTL:    DefaultSessionTTL,
		withSupportedAlgs: []Alg{RS256, RS384, RS512},
	}
}

func getConfigOpts(opt ...Option) configOptions {
	opts := configDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithScope provides an optional scope for the config
func WithScope(scope string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withScope = scope
		}
	}
}

// WithSessionTTL provides an optional authentication session time limit
func WithSessionTTL(ttl time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withSessionTTL = ttl
		}
	}
}

// WithEnforceMultifactor requires multifactor authentication markers in
// the id_token's amr claim
func WithEnforceMultifactor() Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withEnforceMultifactor = true
		}
	}
}

// WithProductionMode selects the BindID production endpoint set
func WithProductionMode() Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withProductionMode = true
		}
	}
}

// WithEndpoints overrides the environment endpoint set with explicit
// authorization, token and jwks endpoints
func WithEndpoints(authEndpoint, tokenEndpoint, jwksURI string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withAuthEndpoint = authEndpoint
			o.withTokenEndpoint = tokenEndpoint
			o.withJWKSURI = jwksURI
		}
	}
}

// WithSupportedAlgs provides an optional list of allowed id_token signing
// algorithms
func WithSupportedAlgs(algs ...Alg) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withSupportedAlgs = algs
		}
	}
}

// WithProviderCA provides an optional CA cert PEM for the IdP's endpoints
func WithProviderCA(cert string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withProviderCA = cert
		}
	}
}
