package oidc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClaims_Audience(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		claims Claims
		want   string
	}{
		{
			name:   "string",
			claims: Claims{"aud": "client-id"},
			want:   "client-id",
		},
		{
			// when aud is an array only the first element counts
			name:   "array-first-element",
			claims: Claims{"aud": []interface{}{"client-id", "other"}},
			want:   "client-id",
		},
		{
			name:   "empty-array",
			claims: Claims{"aud": []interface{}{}},
			want:   "",
		},
		{
			name:   "missing",
			claims: Claims{},
			want:   "",
		},
		{
			name:   "wrong-type",
			claims: Claims{"aud": 42},
			want:   "",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.claims.Audience())
		})
	}
}

func TestClaims_AMR(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		claims Claims
		want   []string
	}{
		{
			name:   "values",
			claims: Claims{"amr": []interface{}{"pwd", "ts.bind_id.mfca"}},
			want:   []string{"pwd", "ts.bind_id.mfca"},
		},
		{
			name:   "missing",
			claims: Claims{},
			want:   nil,
		},
		{
			name:   "wrong-type",
			claims: Claims{"amr": "pwd"},
			want:   nil,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.claims.AMR())
		})
	}
}

func TestClaims_VerifiedEmail(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		claims Claims
		want   string
	}{
		{
			name:   "verified",
			claims: Claims{"email": "u1@example.com", "email_verified": true},
			want:   "u1@example.com",
		},
		{
			name:   "unverified",
			claims: Claims{"email": "u1@example.com", "email_verified": false},
			want:   "",
		},
		{
			name:   "no-verified-flag",
			claims: Claims{"email": "u1@example.com"},
			want:   "",
		},
		{
			name:   "no-email",
			claims: Claims{"email_verified": true},
			want:   "",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.claims.VerifiedEmail())
		})
	}
}

func TestSubjectIdentity(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	claims := Claims{"iss": "https://issuer.example", "sub": "u1"}
	assert.Equal("https://issuer.example@u1", SubjectIdentity(claims))
}
