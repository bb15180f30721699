package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// TokenResponse is the decoded JSON body of a successful token endpoint
// exchange.  Only IDToken and TokenType are required; the rest depend on
// the IdP and the requested scope.  A TokenResponse is transient: it is
// handed to the identity binder and never persisted by this package.
type TokenResponse struct {
	IDToken     IDToken `json:"id_token"`
	TokenType   string  `json:"token_type"`
	AccessToken string  `json:"access_token,omitempty"`
	ExpiresIn   int     `json:"expires_in,omitempty"`
	Scope       string  `json:"scope,omitempty"`
}

// validate ensures the two items required to proceed with confidence are
// present: an id_token and a token_type of Bearer (case-insensitive).
func (t *TokenResponse) validate() error {
	const op = "oidc.TokenResponse.validate"
	if t == nil {
		return fmt.Errorf("%s: token response is nil: %w", op, ErrInvalidTokenResponse)
	}
	if t.IDToken == "" {
		return fmt.Errorf("%s: id_token is missing: %w", op, ErrInvalidTokenResponse)
	}
	if !strings.EqualFold(t.TokenType, "Bearer") {
		return fmt.Errorf("%s: token_type %q is not Bearer: %w", op, t.TokenType, ErrInvalidTokenResponse)
	}
	return nil
}

// exchangeCode exchanges an authorization code for a token response at the
// config's token endpoint.  The request is a form-encoded POST carrying
// code, client_id, client_secret, redirect_uri, grant_type and scope, with
// the Host header set explicitly to the token endpoint's hostname so the
// exchange works when the endpoint sits behind a reverse proxy.
func exchangeCode(ctx context.Context, client *http.Client, c *Config, code string) (*TokenResponse, error) {
	const op = "oidc.exchangeCode"
	if client == nil {
		return nil, fmt.Errorf("%s: http client is nil: %w", op, ErrNilParameter)
	}
	if c == nil {
		return nil, fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	if code == "" {
		return nil, fmt.Errorf("%s: authorization code is empty: %w", op, ErrInvalidParameter)
	}

	form := url.Values{
		"code":          {code},
		"client_id":     {c.ClientID},
		"client_secret": {string(c.ClientSecret)},
		"redirect_uri":  {c.RedirectURL},
		"grant_type":    {"authorization_code"},
		"scope":         {c.Scope},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.TokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create token request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if u, err := url.Parse(c.TokenEndpoint); err == nil {
		req.Host = u.Host
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: request for authentication token failed: %w", op, ErrNetwork)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to read token response body: %w", op, ErrNetwork)
	}

	// The IdP reports failures in the body regardless of HTTP status, so
	// the body is parsed before the status is considered.
	var envelope struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%s: unable to parse token response body: %w", op, ErrInvalidResponse)
	}
	if envelope.Error != "" {
		return nil, fmt.Errorf("%s: token endpoint returned an error: %w", op, &IdPError{
			Code:        envelope.Error,
			Description: envelope.ErrorDescription,
		})
	}

	var tr TokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("%s: unable to parse token response body: %w", op, ErrInvalidResponse)
	}
	return &tr, nil
}
