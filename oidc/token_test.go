package oidc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTokenConfig(t *testing.T, tokenEndpoint string) *Config {
	t.Helper()
	c, err := NewConfig("client-id", "client-secret", "https://example.com/callback",
		WithEndpoints(tokenEndpoint+"/authorize", tokenEndpoint, tokenEndpoint+"/jwks"))
	require.NoError(t, err)
	return c
}

func TestExchangeCode(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("sends-required-form-fields", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		var gotForm url.Values
		var gotHost, gotContentType string
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			require.NoError(req.ParseForm())
			gotForm = req.PostForm
			gotHost = req.Host
			gotContentType = req.Header.Get("Content-Type")
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id_token":"header.payload.sig","token_type":"Bearer","access_token":"at","expires_in":60}`))
		}))
		defer ts.Close()

		c := testTokenConfig(t, ts.URL)
		client, err := c.HTTPClient()
		require.NoError(err)

		got, err := exchangeCode(ctx, client, c, "c1")
		require.NoError(err)
		assert.Equal(IDToken("header.payload.sig"), got.IDToken)
		assert.Equal("Bearer", got.TokenType)
		assert.Equal("at", got.AccessToken)
		assert.Equal(60, got.ExpiresIn)

		assert.Equal("c1", gotForm.Get("code"))
		assert.Equal("client-id", gotForm.Get("client_id"))
		assert.Equal("client-secret", gotForm.Get("client_secret"))
		assert.Equal("https://example.com/callback", gotForm.Get("redirect_uri"))
		assert.Equal("authorization_code", gotForm.Get("grant_type"))
		assert.Equal(DefaultScope, gotForm.Get("scope"))
		assert.Equal("application/x-www-form-urlencoded", gotContentType)

		u, err := url.Parse(ts.URL)
		require.NoError(err)
		assert.Equal(u.Host, gotHost)
	})
	t.Run("idp-error-body", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"unexpected auth code"}`))
		}))
		defer ts.Close()

		c := testTokenConfig(t, ts.URL)
		client, err := c.HTTPClient()
		require.NoError(err)

		_, err = exchangeCode(ctx, client, c, "c1")
		require.Error(err)
		var idpErr *IdPError
		require.True(errors.As(err, &idpErr))
		assert.Equal("invalid_grant", idpErr.Code)
		assert.Equal("unexpected auth code", idpErr.Description)
	})
	t.Run("unparsable-body", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			_, _ = w.Write([]byte("<html>so sorry</html>"))
		}))
		defer ts.Close()

		c := testTokenConfig(t, ts.URL)
		client, err := c.HTTPClient()
		require.NoError(err)

		_, err = exchangeCode(ctx, client, c, "c1")
		require.Error(err)
		assert.True(errors.Is(err, ErrInvalidResponse))
	})
	t.Run("network-error", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {}))
		c := testTokenConfig(t, ts.URL)
		ts.Close() // connection refused from here on

		client, err := c.HTTPClient()
		require.NoError(err)

		_, err = exchangeCode(ctx, client, c, "c1")
		require.Error(err)
		assert.True(errors.Is(err, ErrNetwork))
	})
	t.Run("empty-code", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c := testTokenConfig(t, "https://idp.test/token")
		client, err := c.HTTPClient()
		require.NoError(err)
		_, err = exchangeCode(ctx, client, c, "")
		require.Error(err)
		assert.True(errors.Is(err, ErrInvalidParameter))
	})
}

func TestTokenResponse_validate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		tr      *TokenResponse
		wantErr bool
	}{
		{
			name: "valid",
			tr:   &TokenResponse{IDToken: "x.y.z", TokenType: "Bearer"},
		},
		{
			name: "bearer-case-insensitive",
			tr:   &TokenResponse{IDToken: "x.y.z", TokenType: "bearer"},
		},
		{
			name:    "missing-id-token",
			tr:      &TokenResponse{TokenType: "Bearer"},
			wantErr: true,
		},
		{
			name:    "wrong-token-type",
			tr:      &TokenResponse{IDToken: "x.y.z", TokenType: "mac"},
			wantErr: true,
		},
		{
			name:    "missing-token-type",
			tr:      &TokenResponse{IDToken: "x.y.z"},
			wantErr: true,
		},
		{
			name:    "nil",
			tr:      nil,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			err := tt.tr.validate()
			if tt.wantErr {
				require.Error(err)
				assert.True(errors.Is(err, ErrInvalidTokenResponse))
				return
			}
			require.NoError(err)
		})
	}
}

func TestIDToken_Redaction(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	tk := IDToken("header.payload.sig")
	assert.Equal(RedactedIDToken, tk.String())
	j, err := tk.MarshalJSON()
	assert.NoError(err)
	assert.Contains(string(j), "REDACTED")
	assert.NotContains(string(j), "payload")
}
