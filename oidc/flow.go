package oidc

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/oauth2"
	jose "gopkg.in/square/go-jose.v2"

	"github.com/transmitsecurity/bindid-go/internal/strutils"
)

// ACRValues is the fixed authentication-context-class parameter sent with
// every authorization request, signaling the assurance level BindID must
// provide.
const ACRValues = "ts.bindid.iac.email"

// MultifactorAMRValues are the amr markers BindID reports for
// multifactor-grade authentications.  When Config.EnforceMultifactor is
// set, the id_token's amr claim must carry at least one of them.
var MultifactorAMRValues = []string{"ts.bind_id.mfuva", "ts.bind_id.mfca"}

// FlowState identifies where an authentication attempt is in its
// lifecycle.  Complete and Failed are terminal.
type FlowState string

const (
	FlowIdle             FlowState = "Idle"
	FlowAuthRequested    FlowState = "AuthRequested"
	FlowCallbackReceived FlowState = "CallbackReceived"
	FlowCodeValidated    FlowState = "CodeValidated"
	FlowTokenExchanged   FlowState = "TokenExchanged"
	FlowTokenValidated   FlowState = "TokenValidated"
	FlowClaimsExtracted  FlowState = "ClaimsExtracted"
	FlowClaimsValidated  FlowState = "ClaimsValidated"
	FlowIdentityResolved FlowState = "IdentityResolved"
	FlowComplete         FlowState = "Complete"
	FlowFailed           FlowState = "Failed"
)

// CallbackRequest carries the query parameters of the IdP's redirect back
// to the relying party.
type CallbackRequest struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// CallbackRequestFromValues builds a CallbackRequest from callback query
// parameters.
func CallbackRequestFromValues(q url.Values) CallbackRequest {
	return CallbackRequest{
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	}
}

// Result is the outcome of one callback invocation.  On success State is
// FlowComplete and User, SubjectIdentity, Claims and Token are populated.
// On failure State is FlowFailed and only State is meaningful.
type Result struct {
	State           FlowState
	User            *User
	SubjectIdentity string
	Claims          Claims
	Token           *TokenResponse
}

// Authenticator drives the BindID authorization code flow: it builds
// single-use authentication URLs and processes redirect URI callbacks
// through to a verified local identity.  All collaborators are injected at
// construction; an Authenticator holds no per-attempt state and is safe
// for concurrent use.
type Authenticator struct {
	config   *Config
	store    SessionStore
	binder   IdentityBinder
	client   *http.Client
	resolver KeySetResolver
	logger   hclog.Logger
	nowFunc  func() time.Time
}

// NewAuthenticator creates an Authenticator for the given config, session
// store and identity binder.
//
// Supported options: WithLogger, WithKeySetResolver, WithNow
func NewAuthenticator(c *Config, store SessionStore, binder IdentityBinder, opt ...Option) (*Authenticator, error) {
	const op = "oidc.NewAuthenticator"
	if c == nil {
		return nil, fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: config is invalid: %w", op, err)
	}
	if store == nil {
		return nil, fmt.Errorf("%s: session store is nil: %w", op, ErrNilParameter)
	}
	if binder == nil {
		return nil, fmt.Errorf("%s: identity binder is nil: %w", op, ErrNilParameter)
	}
	opts := getAuthenticatorOpts(opt...)

	client, err := c.HTTPClient()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create http client: %w", op, err)
	}
	a := &Authenticator{
		config:   c,
		store:    store,
		binder:   binder,
		client:   client,
		resolver: opts.withKeySetResolver,
		logger:   opts.withLogger,
		nowFunc:  opts.withNowFunc,
	}
	if a.resolver == nil {
		a.resolver = func(ctx context.Context, jwksURI string) (*jose.JSONWebKeySet, error) {
			return ResolveKeySet(ctx, a.client, jwksURI)
		}
	}
	if a.logger == nil {
		a.logger = hclog.NewNullLogger()
	}
	return a, nil
}

func (a *Authenticator) now() time.Time {
	if a.nowFunc != nil {
		return a.nowFunc()
	}
	return time.Now()
}

// AuthURL builds a single-use authentication URL: it generates fresh state
// and nonce values, persists them as an AuthSession, and composes the
// authorization endpoint URL with response_type=code, scope, client_id,
// state, nonce, redirect_uri and acr_values.
func (a *Authenticator) AuthURL(ctx context.Context) (string, error) {
	const op = "oidc.Authenticator.AuthURL"
	state, err := NewID()
	if err != nil {
		return "", fmt.Errorf("%s: unable to generate state: %w", op, err)
	}
	nonce, err := NewID()
	if err != nil {
		return "", fmt.Errorf("%s: unable to generate nonce: %w", op, err)
	}
	if state == nonce {
		return "", fmt.Errorf("%s: state and nonce cannot be equal: %w", op, ErrInvalidParameter)
	}

	session := AuthSession{
		State:     state,
		Nonce:     nonce,
		CreatedAt: a.now(),
	}
	if err := a.store.Create(ctx, session, a.config.SessionTTL); err != nil {
		a.logger.Error("failed to create bindid session", "error", err)
		return "", fmt.Errorf("%s: failed to create bindid session: %w", op, ErrSessionCreationFailed)
	}

	oauth2Config := oauth2.Config{
		ClientID:    a.config.ClientID,
		RedirectURL: a.config.RedirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:  a.config.AuthEndpoint,
			TokenURL: a.config.TokenEndpoint,
		},
		Scopes: strings.Fields(a.config.Scope),
	}
	authCodeOpts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("nonce", nonce),
		oauth2.SetAuthURLParam("acr_values", ACRValues),
	}
	u := oauth2Config.AuthCodeURL(state, authCodeOpts...)
	a.logger.Debug("built authentication url", "state", state)
	return u, nil
}

// Callback processes the IdP's redirect back to the relying party and
// drives the flow through to a verified local identity.  Each invocation
// is an independent single-use flow.  On failure the returned Result's
// State is FlowFailed and the error maps to an opaque user-facing code via
// ErrorCode/ErrorMessage; see ErrorRedirectURL.
func (a *Authenticator) Callback(ctx context.Context, req CallbackRequest) (*Result, error) {
	f := &flow{a: a, state: FlowAuthRequested}
	res, err := f.run(ctx, req)
	if err != nil {
		a.logger.Error("bindid authentication failed", "state", string(f.state), "error", err)
		return &Result{State: FlowFailed}, err
	}
	a.logger.Info("successful login", "login", res.User.Login, "user_id", res.User.ID)
	return res, nil
}

// flow is the per-callback state machine.  It is single-use: one callback
// invocation creates one flow, which ends in FlowComplete or FlowFailed.
type flow struct {
	a     *Authenticator
	state FlowState
}

func (f *flow) advance(next FlowState) {
	f.state = next
}

func (f *flow) fail(err error) error {
	f.state = FlowFailed
	return err
}

func (f *flow) run(ctx context.Context, req CallbackRequest) (*Result, error) {
	const op = "oidc.flow.run"
	cfg := f.a.config

	// Look for an existing error of some kind before anything else.
	if req.Error != "" {
		return nil, f.fail(fmt.Errorf("%s: authentication response reported %q: %w", op, req.Error, ErrAuthResponse))
	}
	if req.Code == "" {
		return nil, f.fail(fmt.Errorf("%s: no authentication code present in the request: %w", op, ErrMissingCode))
	}
	if req.State == "" {
		return nil, f.fail(fmt.Errorf("%s: no state present in the request: %w", op, ErrMissingState))
	}
	state := sanitizeToken(req.State)
	code := sanitizeToken(req.Code)
	f.advance(FlowCallbackReceived)

	session, err := f.a.store.Consume(ctx, state)
	if err != nil {
		return nil, f.fail(fmt.Errorf("%s: unable to consume session: %w", op, err))
	}
	f.advance(FlowCodeValidated)

	tokenResp, err := exchangeCode(ctx, f.a.client, cfg, code)
	if err != nil {
		return nil, f.fail(err)
	}
	f.advance(FlowTokenExchanged)

	if err := tokenResp.validate(); err != nil {
		return nil, f.fail(err)
	}
	f.advance(FlowTokenValidated)

	keys, err := f.a.resolver(ctx, cfg.JWKSURI)
	if err != nil {
		return nil, f.fail(err)
	}
	claims, err := verifyIDToken(tokenResp.IDToken, keys, cfg.SupportedSigningAlgs, f.a.now())
	if err != nil {
		return nil, f.fail(err)
	}
	f.advance(FlowClaimsExtracted)

	if err := f.validateClaims(session, claims); err != nil {
		return nil, f.fail(err)
	}
	f.advance(FlowClaimsValidated)

	subjectIdentity := SubjectIdentity(claims)
	user, err := f.a.binder.FindUserBySubjectIdentity(ctx, subjectIdentity)
	if err != nil {
		return nil, f.fail(fmt.Errorf("%s: user lookup failed: %w", op, err))
	}
	if user == nil {
		user, err = f.a.binder.CreateUser(ctx, subjectIdentity, claims)
		if err != nil {
			return nil, f.fail(fmt.Errorf("%s: unable to create user: %w", op, err))
		}
	}
	if user == nil || user.ID == "" {
		return nil, f.fail(fmt.Errorf("%s: binder returned an invalid user: %w", op, ErrInvalidUser))
	}
	f.advance(FlowIdentityResolved)

	if err := f.a.binder.EstablishLocalSession(ctx, user, tokenResp, claims); err != nil {
		return nil, f.fail(fmt.Errorf("%s: unable to establish local session: %w", op, err))
	}
	f.advance(FlowComplete)

	return &Result{
		State:           f.state,
		User:            user,
		SubjectIdentity: subjectIdentity,
		Claims:          claims,
		Token:           tokenResp,
	}, nil
}

// validateClaims enforces the claim-level invariants, in order: nonce
// presence, nonce equality with the session, the multifactor policy,
// audience, and subject presence.  All of these gate on a claim set that
// already passed signature verification.
func (f *flow) validateClaims(session *AuthSession, claims Claims) error {
	const op = "oidc.flow.validateClaims"
	cfg := f.a.config

	nonce := claims.Nonce()
	if nonce == "" {
		return fmt.Errorf("%s: id_token has no nonce claim: %w", op, ErrNoNonce)
	}
	if session.Nonce == "" {
		return fmt.Errorf("%s: session has no nonce: %w", op, ErrNoNonce)
	}
	if nonce != session.Nonce {
		return fmt.Errorf("%s: id_token nonce and session nonce are not equal: %w", op, ErrInvalidNonce)
	}

	if cfg.EnforceMultifactor {
		amr := claims.AMR()
		if len(amr) == 0 {
			return fmt.Errorf("%s: id_token has no amr claim: %w", op, ErrNoMultifactorAuth)
		}
		multifactor := false
		for _, v := range amr {
			if strutils.StrListContains(MultifactorAMRValues, v) {
				multifactor = true
				break
			}
		}
		if !multifactor {
			return fmt.Errorf("%s: no multifactor method in amr claim: %w", op, ErrNoMultifactorAuth)
		}
	}

	audience := claims.Audience()
	if audience == "" {
		return fmt.Errorf("%s: id_token has no audience claim: %w", op, ErrInvalidAudience)
	}
	if audience != cfg.ClientID {
		return fmt.Errorf("%s: id_token audience and client id are not equal: %w", op, ErrInvalidAudience)
	}

	if claims.Subject() == "" {
		return fmt.Errorf("%s: id_token has no subject claim: %w", op, ErrNoSubjectIdentity)
	}
	return nil
}

var tokenSanitizer = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// sanitizeToken strips any character outside [A-Za-z0-9_-] from a state or
// code value received on the callback.
func sanitizeToken(s string) string {
	return tokenSanitizer.ReplaceAllString(s, "")
}

// ErrorRedirectURL builds the redirect back to the login entry point for a
// failed flow, carrying only the opaque error code and a short message.
func ErrorRedirectURL(loginURL string, err error) string {
	separator := "?"
	if strings.Contains(loginURL, "?") {
		separator = "&"
	}
	return loginURL + separator +
		"bindid-error-code=" + url.QueryEscape(ErrorCode(err)) +
		"&bindid-error-message=" + url.QueryEscape(ErrorMessage(err))
}

// authenticatorOptions is the set of available options for NewAuthenticator
type authenticatorOptions struct {
	withLogger         hclog.Logger
	withKeySetResolver KeySetResolver
	withNowFunc        func() time.Time
}

func authenticatorDefaults() authenticatorOptions {
	return authenticatorOptions{}
}

func getAuthenticatorOpts(opt ...Option) authenticatorOptions {
	opts := authenticatorDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithLogger provides an optional hclog.Logger for flow observability
// events
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*authenticatorOptions); ok {
			o.withLogger = l
		}
	}
}

// WithKeySetResolver overrides how the authenticator fetches the IdP's
// signing keys, e.g. to add a time-bounded cache
func WithKeySetResolver(r KeySetResolver) Option {
	return func(o interface{}) {
		if o, ok := o.(*authenticatorOptions); ok {
			o.withKeySetResolver = r
		}
	}
}
