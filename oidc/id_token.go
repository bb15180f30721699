package oidc

import (
	"encoding/json"
	"fmt"
	"time"

	jose "gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"

	"github.com/transmitsecurity/bindid-go/internal/strutils"
)

// IDToken is an oidc id_token in compact serialized form.
type IDToken string

// RedactedIDToken is the redacted string or json for an oidc id_token
const RedactedIDToken = "[REDACTED: id_token]"

// String will redact the token
func (t IDToken) String() string {
	return RedactedIDToken
}

// MarshalJSON will redact the token
func (t IDToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedIDToken)
}

// verifyIDToken verifies the id_token's signature against the resolved
// signing key set and returns its decoded claims.  Verification happens
// before any claim is inspected: the header's key id selects the key
// (ErrUnknownSigningKey if absent), the header's algorithm must be in the
// allowed set, and the signature plus standard expiry/not-before claims
// must check out (ErrSignatureInvalid otherwise).  Claims from a token
// that failed any of these checks are never returned.
func verifyIDToken(t IDToken, keys *jose.JSONWebKeySet, algs []Alg, now time.Time) (Claims, error) {
	const op = "oidc.verifyIDToken"
	if t == "" {
		return nil, fmt.Errorf("%s: id_token is empty: %w", op, ErrInvalidParameter)
	}
	if keys == nil {
		return nil, fmt.Errorf("%s: signing key set is nil: %w", op, ErrNilParameter)
	}
	if len(algs) == 0 {
		return nil, fmt.Errorf("%s: allowed algorithms is empty: %w", op, ErrInvalidParameter)
	}

	parsed, err := jwt.ParseSigned(string(t))
	if err != nil {
		return nil, fmt.Errorf("%s: malformed id_token: %w", op, ErrSignatureInvalid)
	}
	if len(parsed.Headers) != 1 {
		return nil, fmt.Errorf("%s: id_token must have exactly one signature: %w", op, ErrSignatureInvalid)
	}
	header := parsed.Headers[0]

	allowed := make([]string, 0, len(algs))
	for _, a := range algs {
		allowed = append(allowed, string(a))
	}
	if !strutils.StrListContains(allowed, header.Algorithm) {
		return nil, fmt.Errorf("%s: id_token algorithm %q is not allowed: %w", op, header.Algorithm, ErrSignatureInvalid)
	}

	matching := keys.Key(header.KeyID)
	if len(matching) == 0 {
		return nil, fmt.Errorf("%s: no key with id %q in key set: %w", op, header.KeyID, ErrUnknownSigningKey)
	}

	var claims Claims
	var std jwt.Claims
	verified := false
	for _, key := range matching {
		var c Claims
		var s jwt.Claims
		if err := parsed.Claims(key, &s, &c); err == nil {
			claims, std, verified = c, s, true
			break
		}
	}
	if !verified {
		return nil, fmt.Errorf("%s: invalid id_token signature: %w", op, ErrSignatureInvalid)
	}
	if err := std.ValidateWithLeeway(jwt.Expected{Time: now}, jwt.DefaultLeeway); err != nil {
		return nil, fmt.Errorf("%s: id_token time claims are invalid: %w", op, ErrSignatureInvalid)
	}
	return claims, nil
}
