package userstore

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transmitsecurity/bindid-go/oidc"
)

// testBinder opens a binder on a file in a per-test temp dir.  A shared
// in-memory dsn is unreliable here: each pooled connection would get its
// own database.
func testBinder(t *testing.T) *SQLiteBinder {
	t.Helper()
	b, err := NewSQLiteBinder(filepath.Join(t.TempDir(), "users.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func testVerifiedClaims(email string) oidc.Claims {
	return oidc.Claims{
		"iss":            "https://issuer.example",
		"sub":            "u1",
		"email":          email,
		"email_verified": true,
		"given_name":     "Pat",
		"family_name":    "Doe",
	}
}

func TestSQLiteBinder_FindUserBySubjectIdentity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("absent", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		b := testBinder(t)
		u, err := b.FindUserBySubjectIdentity(ctx, "https://issuer.example@u1")
		require.NoError(err)
		assert.Nil(u)
	})
	t.Run("roundtrip", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		b := testBinder(t)
		created, err := b.CreateUser(ctx, "https://issuer.example@u1", testVerifiedClaims("u1@example.com"))
		require.NoError(err)
		require.NotNil(created)
		assert.NotEmpty(created.ID)
		assert.Equal("u1@example.com", created.Login)
		assert.Equal("u1@example.com", created.Email)

		found, err := b.FindUserBySubjectIdentity(ctx, "https://issuer.example@u1")
		require.NoError(err)
		require.NotNil(found)
		assert.Equal(created.ID, found.ID)
	})
}

func TestSQLiteBinder_CreateUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("requires-verified-email", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		b := testBinder(t)
		claims := testVerifiedClaims("u1@example.com")
		claims["email_verified"] = false

		_, err := b.CreateUser(ctx, "https://issuer.example@u1", claims)
		require.Error(err)
		assert.True(errors.Is(err, oidc.ErrNoVerifiedEmail))
	})
	t.Run("adopts-existing-account-by-email", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		b := testBinder(t)
		first, err := b.CreateUser(ctx, "https://issuer.example@u1", testVerifiedClaims("u1@example.com"))
		require.NoError(err)

		// same email authenticating from a different issuer must not
		// create a duplicate account
		second, err := b.CreateUser(ctx, "https://other.example@z9", testVerifiedClaims("u1@example.com"))
		require.NoError(err)
		assert.Equal(first.ID, second.ID)

		adopted, err := b.FindUserBySubjectIdentity(ctx, "https://other.example@z9")
		require.NoError(err)
		require.NotNil(adopted)
		assert.Equal(first.ID, adopted.ID)
	})
}

func TestSQLiteBinder_Sessions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("roundtrip", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		dsn := filepath.Join(t.TempDir(), "users.db")
		b, err := NewSQLiteBinder(dsn)
		require.NoError(err)
		t.Cleanup(func() { _ = b.Close() })

		user, err := b.CreateUser(ctx, "https://issuer.example@u1", testVerifiedClaims("u1@example.com"))
		require.NoError(err)
		require.NoError(b.EstablishLocalSession(ctx, user, nil, nil))

		// the token is browser-side state; read it back out of band
		db, err := sql.Open("sqlite", dsn)
		require.NoError(err)
		t.Cleanup(func() { _ = db.Close() })
		var token string
		require.NoError(db.QueryRowContext(ctx,
			`SELECT token FROM local_sessions WHERE user_id = ?`, user.ID).Scan(&token))

		got, err := b.SessionUser(ctx, token)
		require.NoError(err)
		require.NotNil(got)
		assert.Equal(user.ID, got.ID)
	})
	t.Run("unknown-token", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		b := testBinder(t)
		u, err := b.SessionUser(ctx, "unknown-token")
		require.NoError(err)
		assert.Nil(u)
	})
	t.Run("invalid-user", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		b := testBinder(t)
		err := b.EstablishLocalSession(ctx, nil, nil, nil)
		require.Error(err)
		assert.True(errors.Is(err, oidc.ErrInvalidUser))

		err = b.EstablishLocalSession(ctx, &oidc.User{}, nil, nil)
		require.Error(err)
		assert.True(errors.Is(err, oidc.ErrInvalidUser))
	})
}
