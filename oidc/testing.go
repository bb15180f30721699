package oidc

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	jose "gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

// TestGenerateKeys will generate a test RSA pub/priv key pair, suitable
// for signing id_tokens with the default RS256 algorithm.
func TestGenerateKeys(t *testing.T) (*rsa.PublicKey, *rsa.PrivateKey) {
	t.Helper()
	require := require.New(t)
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(err)
	return &privateKey.PublicKey, privateKey
}

// TestSignJWT will bundle the provided claims into a test RS256 signed JWT
// with the given key id in its header.
func TestSignJWT(t *testing.T, privKey *rsa.PrivateKey, keyID string, claims jwt.Claims, privateClaims interface{}) string {
	t.Helper()
	require := require.New(t)

	sig, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: privKey},
		(&jose.SignerOptions{}).WithType("JWT").WithHeader("kid", keyID),
	)
	require.NoError(err)

	raw, err := jwt.Signed(sig).
		Claims(claims).
		Claims(privateClaims).
		CompactSerialize()
	require.NoError(err)

	return raw
}

// TestJWKS converts RSA public keys into a jwks key set, keyed in header
// order by the provided key ids.
func TestJWKS(t *testing.T, keyIDs []string, pubKeys ...*rsa.PublicKey) *jose.JSONWebKeySet {
	t.Helper()
	require := require.New(t)
	require.Equal(len(keyIDs), len(pubKeys))

	ks := &jose.JSONWebKeySet{}
	for i, pub := range pubKeys {
		ks.Keys = append(ks.Keys, jose.JSONWebKey{
			Key:       pub,
			KeyID:     keyIDs[i],
			Algorithm: string(RS256),
			Use:       "sig",
		})
	}
	return ks
}

// testDefaultClaims returns a standard/private claim pair for a plausible
// BindID id_token.  Callers override or extend via additionalClaims.
func testDefaultClaims(issuer, clientID, subject, nonce string, expireIn time.Duration, additionalClaims map[string]interface{}) (jwt.Claims, map[string]interface{}) {
	now := time.Now()
	claims := jwt.Claims{
		Issuer:    issuer,
		Subject:   subject,
		Audience:  jwt.Audience{clientID},
		NotBefore: jwt.NewNumericDate(now.Add(-5 * time.Second)),
		Expiry:    jwt.NewNumericDate(now.Add(expireIn)),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	privateClaims := map[string]interface{}{
		"nonce": nonce,
	}
	for k, v := range additionalClaims {
		privateClaims[k] = v
	}
	return claims, privateClaims
}

// TestEncodePublicKeyPEM encodes an RSA public key as PKIX PEM.  Handy for
// key set fixtures.
func TestEncodePublicKeyPEM(t *testing.T, pub *rsa.PublicKey) string {
	t.Helper()
	require := require.New(t)
	derBytes, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: derBytes}))
}
