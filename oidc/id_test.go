package oidc

import (
	"encoding/base64"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID(t *testing.T) {
	t.Parallel()
	t.Run("shape", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		id, err := NewID()
		require.NoError(err)
		b, err := base64.RawURLEncoding.DecodeString(id)
		require.NoError(err)
		assert.Len(b, idNumBytes)
		assert.Regexp(regexp.MustCompile(`^[A-Za-z0-9_-]+$`), id)
	})
	t.Run("unique", func(t *testing.T) {
		require := require.New(t)
		seen := map[string]bool{}
		for i := 0; i < 100; i++ {
			id, err := NewID()
			require.NoError(err)
			require.Falsef(seen[id], "generated a duplicate id %s", id)
			seen[id] = true
		}
	})
}
