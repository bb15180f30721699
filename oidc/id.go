package oidc

import (
	"encoding/base64"
	"fmt"

	"github.com/hashicorp/go-uuid"
)

// idNumBytes is the number of random bytes in a generated ID, giving 256
// bits of entropy.
const idNumBytes = 32

// NewID generates a cryptographically secure, URL-safe opaque string
// suitable for use as an oidc state or nonce: 32 random bytes, base64url
// encoded without padding.
func NewID() (string, error) {
	const op = "oidc.NewID"
	b, err := uuid.GenerateRandomBytes(idNumBytes)
	if err != nil {
		return "", fmt.Errorf("%s: unable to generate id: %w", op, ErrIDGeneratorFailed)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
