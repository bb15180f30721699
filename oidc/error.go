package oidc

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidParameter  = errors.New("invalid parameter")
	ErrNilParameter      = errors.New("nil parameter")
	ErrInvalidCACert     = errors.New("invalid CA certificate")
	ErrIDGeneratorFailed = errors.New("id generation failed")

	// ErrSessionCreationFailed is returned when the session store cannot
	// persist a new authentication session.
	ErrSessionCreationFailed = errors.New("session creation failed")

	// ErrAuthResponse is returned when the IdP's authentication response
	// carries an error parameter.
	ErrAuthResponse = errors.New("authentication response error")

	ErrMissingCode  = errors.New("missing authentication code")
	ErrMissingState = errors.New("missing state")

	// ErrInvalidState is returned when the callback state is unknown,
	// expired or already consumed.  The three cases are indistinguishable
	// to the caller: a replayed callback learns nothing from the failure
	// mode.
	ErrInvalidState = errors.New("invalid state")

	// ErrNetwork is returned for transport-level failures when calling the
	// IdP's token or jwks endpoints, including timeouts.
	ErrNetwork = errors.New("network error")

	// ErrInvalidResponse is returned when an IdP response body cannot be
	// parsed.
	ErrInvalidResponse = errors.New("invalid response")

	// ErrInvalidTokenResponse is returned when a parsed token response is
	// missing its id_token or its token_type is not Bearer.
	ErrInvalidTokenResponse = errors.New("invalid token response")

	// ErrUnknownSigningKey is returned when the id_token's key id is not
	// present in the resolved signing key set.
	ErrUnknownSigningKey = errors.New("unknown signing key")

	// ErrSignatureInvalid is returned when id_token verification fails for
	// any reason: bad serialization, disallowed algorithm, signature
	// mismatch, or expiry/not-before violations.  Claims from a token that
	// failed this check are never returned.
	ErrSignatureInvalid = errors.New("id_token signature verification failed")

	// ErrKeyParse is returned when a jwks document or one of its key
	// entries is malformed.
	ErrKeyParse = errors.New("unable to parse jwks")

	ErrNoNonce            = errors.New("no nonce claim")
	ErrInvalidNonce       = errors.New("invalid nonce")
	ErrNoMultifactorAuth  = errors.New("no multifactor authentication")
	ErrInvalidAudience    = errors.New("invalid audience")
	ErrNoSubjectIdentity  = errors.New("no subject identity")
	ErrNoVerifiedEmail    = errors.New("no verified email")
	ErrUserCreationFailed = errors.New("user creation failed")
	ErrInvalidUser        = errors.New("invalid user")

	ErrLoginFailed = errors.New("login failed")
)

// IdPError represents an error response body returned by the IdP's token
// endpoint: {"error": "...", "error_description": "..."}.
type IdPError struct {
	Code        string
	Description string
}

func (e *IdPError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("idp error %s: %s", e.Code, e.Description)
	}
	return fmt.Sprintf("idp error %s", e.Code)
}

// errorCodes maps sentinel errors to the opaque code and short message
// surfaced to the browser on an error redirect.  Internal detail (wrapped
// errors, raw IdP payloads) is only ever written to the operator log.
var errorCodes = []struct {
	err  error
	code string
	msg  string
}{
	{ErrSessionCreationFailed, "bindid-session-creation-failed", "Failed to create bindid session."},
	{ErrAuthResponse, "auth-response-validation-failed", "An unknown error occurred."},
	{ErrMissingCode, "missing-authentication-code", "Missing authentication code."},
	{ErrMissingState, "missing-state", "Missing state."},
	{ErrInvalidState, "invalid-state", "Invalid state."},
	{ErrInvalidTokenResponse, "invalid-token-response", "Invalid token response."},
	{ErrInvalidResponse, "invalid-token", "Invalid token."},
	{ErrUnknownSigningKey, "id-token-validation", "Failed to validate id-token."},
	{ErrSignatureInvalid, "id-token-validation", "Failed to validate id-token."},
	{ErrKeyParse, "jwks-parsing-failure", "Failed to parse Jwks."},
	{ErrNetwork, "request-failed", "Request to the identity provider failed."},
	{ErrNoNonce, "no-nonce", "No nonce claim."},
	{ErrInvalidNonce, "invalid-nonce", "Invalid nonce."},
	{ErrNoMultifactorAuth, "no-multifactor-auth", "No multifactor authentication."},
	{ErrInvalidAudience, "invalid-audience", "Invalid audience."},
	{ErrNoSubjectIdentity, "no-subject-identity", "No subject identity."},
	{ErrNoVerifiedEmail, "no-verified-email-claim", "No verified email."},
	{ErrUserCreationFailed, "user-creation-failed", "Failed user creation."},
	{ErrInvalidUser, "invalid-user", "Invalid user."},
}

// ErrorCode returns the opaque error code for err, suitable for a
// user-facing redirect.  IdP token endpoint errors surface their own code
// (for example "invalid_grant").  Unrecognized errors map to a generic
// login failure.
func ErrorCode(err error) string {
	var idpErr *IdPError
	if errors.As(err, &idpErr) {
		return idpErr.Code
	}
	for _, m := range errorCodes {
		if errors.Is(err, m.err) {
			return m.code
		}
	}
	return "login-failed"
}

// ErrorMessage returns a short human-readable message for err.  Like
// ErrorCode, it never exposes internal error detail.
func ErrorMessage(err error) string {
	var idpErr *IdPError
	if errors.As(err, &idpErr) {
		if idpErr.Description != "" {
			return idpErr.Description
		}
		return idpErr.Code
	}
	for _, m := range errorCodes {
		if errors.Is(err, m.err) {
			return m.msg
		}
	}
	return "Login failed."
}
