package oidc

import (
	"bytes"
	"crypto/rsa"
	"encoding/json"
	"encoding/pem"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	jose "gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"

	"github.com/transmitsecurity/bindid-go/internal/strutils"
)

// TestProviderKeyID is the key id the TestProvider publishes in its jwks
// document and embeds in the id_tokens it signs.
const TestProviderKeyID = "bindid-test-key"

// TestProvider is a local server posing as a BindID environment, which
// makes writing relying-party tests much easier.  It serves the
// authorization, token and jwks endpoints and signs RS256 id_tokens that
// verify against its own jwks document.  Its shape follows Consul's
// oauthtest package by way of hashicorp/cap's test provider.
type TestProvider struct {
	httpServer *httptest.Server
	caCert     string

	jwks     *jose.JSONWebKeySet
	signKey  *rsa.PrivateKey
	rogueKey *rsa.PrivateKey

	mu                  sync.Mutex
	clientID            string
	clientSecret        string
	allowedRedirectURIs []string
	expectedAuthCode    string
	idTokenNonce        string
	replySubject        string
	customClaims        map[string]interface{}
	customAudience      []string
	tokenType           string
	omitIDToken         bool
	signWithRogueKey    bool
	tokenErrorCode      string
	tokenErrorDesc      string
	tokenRequestCount   int

	t *testing.T
}

// StartTestProvider creates a disposable TestProvider on a random local
// port.
func StartTestProvider(t *testing.T) *TestProvider {
	t.Helper()
	require := require.New(t)

	_, signKey := TestGenerateKeys(t)
	_, rogueKey := TestGenerateKeys(t)
	p := &TestProvider{
		t:        t,
		signKey:  signKey,
		rogueKey: rogueKey,
		jwks:     TestJWKS(t, []string{TestProviderKeyID}, &signKey.PublicKey),
		allowedRedirectURIs: []string{
			"https://example.com/callback",
		},
		replySubject: "u1",
		tokenType:    "Bearer",
	}

	p.httpServer = httptest.NewUnstartedServer(p)
	p.httpServer.Config.ErrorLog = log.New(io.Discard, "", 0)
	p.httpServer.StartTLS()
	t.Cleanup(p.httpServer.Close)

	cert := p.httpServer.Certificate()
	var buf bytes.Buffer
	err := pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
	require.NoError(err)
	p.caCert = buf.String()

	return p
}

// Stop stops the running TestProvider.
func (p *TestProvider) Stop() {
	p.httpServer.Close()
}

// Addr returns the current base URL for the test provider's webserver.
func (p *TestProvider) Addr() string { return p.httpServer.URL }

// CACert returns the pem-encoded CA certificate used by the test
// provider's HTTPS server.
func (p *TestProvider) CACert() string { return p.caCert }

// AuthEndpoint returns the test provider's authorization endpoint.
func (p *TestProvider) AuthEndpoint() string { return p.Addr() + "/authorize" }

// TokenEndpoint returns the test provider's token endpoint.
func (p *TestProvider) TokenEndpoint() string { return p.Addr() + "/token" }

// JWKSURI returns the test provider's jwks uri.
func (p *TestProvider) JWKSURI() string { return p.Addr() + "/jwks" }

// SetClientCreds configures the client information required for the token
// exchange.
func (p *TestProvider) SetClientCreds(clientID, clientSecret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientID = clientID
	p.clientSecret = clientSecret
}

// SetAllowedRedirectURIs configures the allowed redirect URIs for the
// token exchange.
func (p *TestProvider) SetAllowedRedirectURIs(uris []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowedRedirectURIs = uris
}

// SetExpectedAuthCode configures the auth code returned from /authorize
// and the only code /token will accept.
func (p *TestProvider) SetExpectedAuthCode(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedAuthCode = code
}

// SetIDTokenNonce configures the nonce claim embedded in issued
// id_tokens.  Tests typically copy the nonce out of a freshly built
// authentication URL.
func (p *TestProvider) SetIDTokenNonce(nonce string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idTokenNonce = nonce
}

// SetReplySubject configures the sub claim of issued id_tokens.
func (p *TestProvider) SetReplySubject(sub string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replySubject = sub
}

// SetCustomClaims lets you set additional claims (amr, email, names) to
// embed in issued id_tokens.
func (p *TestProvider) SetCustomClaims(customClaims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customClaims = customClaims
}

// SetCustomAudience overrides the aud claim of issued id_tokens.  A single
// value serializes as a string, multiple values as an array.
func (p *TestProvider) SetCustomAudience(aud ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customAudience = aud
}

// SetTokenType overrides the token_type of the token response.
func (p *TestProvider) SetTokenType(tokenType string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenType = tokenType
}

// OmitIDTokens forces an error state where the /token endpoint does not
// return an id_token.
func (p *TestProvider) OmitIDTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitIDToken = true
}

// SignWithRogueKey makes the provider sign id_tokens with a key that is
// not in its published jwks, under the same key id.
func (p *TestProvider) SignWithRogueKey() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signWithRogueKey = true
}

// SetTokenErrorResponse makes /token reply with an oauth2 error body.
func (p *TestProvider) SetTokenErrorResponse(code, description string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenErrorCode = code
	p.tokenErrorDesc = description
}

// TokenRequestCount reports how many times the token endpoint was called.
func (p *TestProvider) TokenRequestCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokenRequestCount
}

func (p *TestProvider) writeJSON(w http.ResponseWriter, out interface{}) error {
	enc := json.NewEncoder(w)
	return enc.Encode(out)
}

func (p *TestProvider) writeAuthErrorResponse(w http.ResponseWriter, req *http.Request, errorCode, errorMessage string) {
	qv := req.URL.Query()

	redirectURI := qv.Get("redirect_uri") +
		"?state=" + url.QueryEscape(qv.Get("state")) +
		"&error=" + url.QueryEscape(errorCode)

	if errorMessage != "" {
		redirectURI += "&error_description=" + url.QueryEscape(errorMessage)
	}

	http.Redirect(w, req, redirectURI, http.StatusFound)
}

func (p *TestProvider) writeTokenErrorResponse(w http.ResponseWriter, statusCode int, errorCode, errorMessage string) error {
	body := struct {
		Code string `json:"error"`
		Desc string `json:"error_description,omitempty"`
	}{
		Code: errorCode,
		Desc: errorMessage,
	}

	w.WriteHeader(statusCode)
	return p.writeJSON(w, &body)
}

// ServeHTTP implements the test provider's http.Handler.
func (p *TestProvider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.t.Helper()

	w.Header().Set("Content-Type", "application/json")

	switch req.URL.Path {
	case "/authorize":
		if req.Method != "GET" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		qv := req.URL.Query()

		if qv.Get("response_type") != "code" {
			p.writeAuthErrorResponse(w, req, "unsupported_response_type", "")
			return
		}
		if p.expectedAuthCode == "" {
			p.writeAuthErrorResponse(w, req, "access_denied", "")
			return
		}
		state := qv.Get("state")
		if state == "" {
			p.writeAuthErrorResponse(w, req, "invalid_request", "missing state parameter")
			return
		}
		redirectURI := qv.Get("redirect_uri")
		if redirectURI == "" {
			p.writeAuthErrorResponse(w, req, "invalid_request", "missing redirect_uri parameter")
			return
		}

		redirectURI += "?state=" + url.QueryEscape(state) +
			"&code=" + url.QueryEscape(p.expectedAuthCode)

		http.Redirect(w, req, redirectURI, http.StatusFound)

	case "/jwks":
		if req.Method != "GET" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if err := p.writeJSON(w, p.jwks); err != nil {
			return
		}

	case "/jwks_missing":
		w.WriteHeader(http.StatusNotFound)

	case "/jwks_invalid":
		_, _ = w.Write([]byte("It's not a keyset!"))

	case "/token":
		if req.Method != "POST" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p.tokenRequestCount++

		if p.tokenErrorCode != "" {
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, p.tokenErrorCode, p.tokenErrorDesc)
			return
		}

		switch {
		case req.FormValue("grant_type") != "authorization_code":
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request", "bad grant_type")
			return
		case p.clientID != "" && req.FormValue("client_id") != p.clientID:
			_ = p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_client", "unexpected client_id")
			return
		case p.clientSecret != "" && req.FormValue("client_secret") != p.clientSecret:
			_ = p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_client", "unexpected client_secret")
			return
		case !strutils.StrListContains(p.allowedRedirectURIs, req.FormValue("redirect_uri")):
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request", "redirect_uri is not allowed")
			return
		case req.FormValue("code") != p.expectedAuthCode:
			_ = p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_grant", "unexpected auth code")
			return
		}

		stdClaims := jwt.Claims{
			Subject:   p.replySubject,
			Issuer:    p.Addr(),
			NotBefore: jwt.NewNumericDate(time.Now().Add(-5 * time.Second)),
			Expiry:    jwt.NewNumericDate(time.Now().Add(1 * time.Minute)),
			Audience:  jwt.Audience{req.FormValue("client_id")},
		}
		if len(p.customAudience) != 0 {
			stdClaims.Audience = jwt.Audience(p.customAudience)
		}

		privateClaims := map[string]interface{}{}
		if p.idTokenNonce != "" {
			privateClaims["nonce"] = p.idTokenNonce
		}
		for k, v := range p.customClaims {
			privateClaims[k] = v
		}

		signKey := p.signKey
		if p.signWithRogueKey {
			signKey = p.rogueKey
		}
		jwtData := TestSignJWT(p.t, signKey, TestProviderKeyID, stdClaims, privateClaims)

		reply := struct {
			AccessToken string `json:"access_token"`
			IDToken     string `json:"id_token,omitempty"`
			TokenType   string `json:"token_type"`
			ExpiresIn   int    `json:"expires_in"`
		}{
			AccessToken: jwtData,
			IDToken:     jwtData,
			TokenType:   p.tokenType,
			ExpiresIn:   60,
		}
		if p.omitIDToken {
			reply.IDToken = ""
		}
		if err := p.writeJSON(w, &reply); err != nil {
			return
		}

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}
