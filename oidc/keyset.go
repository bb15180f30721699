package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	jose "gopkg.in/square/go-jose.v2"
)

// KeySetResolver fetches the IdP's published signing keys.  The
// authenticator resolves keys once per token validation; callers wanting a
// time-bounded cache can wrap a resolver without touching the flow.
type KeySetResolver func(ctx context.Context, jwksURI string) (*jose.JSONWebKeySet, error)

// ResolveKeySet fetches and parses the jwks document at jwksURI into a
// verifiable key set.  A transport failure or non-2xx status is
// ErrNetwork; a document that is not a well-formed key set, or that
// contains an unusable key entry, is ErrKeyParse.  A single attempt is
// made; retries are a caller concern.
func ResolveKeySet(ctx context.Context, client *http.Client, jwksURI string) (*jose.JSONWebKeySet, error) {
	const op = "oidc.ResolveKeySet"
	if client == nil {
		return nil, fmt.Errorf("%s: http client is nil: %w", op, ErrNilParameter)
	}
	if jwksURI == "" {
		return nil, fmt.Errorf("%s: jwks uri is empty: %w", op, ErrInvalidParameter)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jwksURI, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create jwks request: %w", op, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to get jwks: %w", op, ErrNetwork)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s: jwks request returned status %d: %w", op, resp.StatusCode, ErrNetwork)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to read jwks body: %w", op, ErrNetwork)
	}

	var keySet jose.JSONWebKeySet
	if err := json.Unmarshal(body, &keySet); err != nil {
		return nil, fmt.Errorf("%s: failed to decode jwks document: %w", op, ErrKeyParse)
	}
	if len(keySet.Keys) == 0 {
		return nil, fmt.Errorf("%s: jwks document contains no keys: %w", op, ErrKeyParse)
	}
	for _, k := range keySet.Keys {
		if !k.Valid() {
			return nil, fmt.Errorf("%s: jwks document contains an invalid key entry: %w", op, ErrKeyParse)
		}
	}
	return &keySet, nil
}
