package oidc

import "context"

// Claims is the decoded claim set of a signature-validated id_token.  The
// typed accessors below tolerate missing or differently-typed values by
// returning zero values; the flow decides which absences are fatal.
type Claims map[string]interface{}

func (c Claims) stringClaim(name string) string {
	v, _ := c[name].(string)
	return v
}

// Issuer returns the iss claim.
func (c Claims) Issuer() string { return c.stringClaim("iss") }

// Subject returns the sub claim.
func (c Claims) Subject() string { return c.stringClaim("sub") }

// Nonce returns the nonce claim.
func (c Claims) Nonce() string { return c.stringClaim("nonce") }

// GivenName returns the given_name claim.
func (c Claims) GivenName() string { return c.stringClaim("given_name") }

// FamilyName returns the family_name claim.
func (c Claims) FamilyName() string { return c.stringClaim("family_name") }

// Audience returns the aud claim.  When aud is an array only its first
// element is returned; additional audiences are ignored, matching the
// behavior the BindID integration has always had.
func (c Claims) Audience() string {
	switch v := c["aud"].(type) {
	case string:
		return v
	case []interface{}:
		if len(v) > 0 {
			s, _ := v[0].(string)
			return s
		}
	}
	return ""
}

// AMR returns the amr claim, the list of authentication method references
// the IdP reports for this authentication.
func (c Claims) AMR() []string {
	raw, ok := c["amr"].([]interface{})
	if !ok {
		return nil
	}
	amr := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			amr = append(amr, s)
		}
	}
	return amr
}

// VerifiedEmail returns the email claim, but only when the IdP also
// asserts email_verified is true.  Returns "" otherwise.
func (c Claims) VerifiedEmail() string {
	verified, _ := c["email_verified"].(bool)
	if !verified {
		return ""
	}
	return c.stringClaim("email")
}

// SubjectIdentity derives the stable external identifier used to map an
// authenticated subject to a local account: issuer + "@" + sub.  Only ever
// computed from a signature-validated claim set.
func SubjectIdentity(c Claims) string {
	return c.Issuer() + "@" + c.Subject()
}

// User is a local account resolved from a subject identity.
type User struct {
	ID    string
	Login string
	Email string
}

// IdentityBinder maps verified subject identities to local users and
// establishes local sessions for them.  It is implemented by the host
// application; see the userstore package for a sqlite-backed
// implementation.
type IdentityBinder interface {
	// FindUserBySubjectIdentity returns the user mapped to
	// subjectIdentity, or nil when no mapping exists.
	FindUserBySubjectIdentity(ctx context.Context, subjectIdentity string) (*User, error)

	// CreateUser creates a local user for subjectIdentity from the claim
	// set and persists the mapping for future lookups.  It must fail with
	// an error wrapping ErrNoVerifiedEmail when no claim carries a
	// verified email address.
	CreateUser(ctx context.Context, subjectIdentity string, claims Claims) (*User, error)

	// EstablishLocalSession sets up whatever local session mechanism
	// represents "this browser is now authenticated as user".
	EstablishLocalSession(ctx context.Context, user *User, t *TokenResponse, claims Claims) error
}
