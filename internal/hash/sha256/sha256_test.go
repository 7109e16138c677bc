package sha256

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helloDigest = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"

func TestHashDeterministic(t *testing.T) {
	t.Parallel()

	h := New()
	got, err := h.Hash([]byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, helloDigest, got)

	again, err := h.Hash([]byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestShort(t *testing.T) {
	t.Parallel()

	assert.Equal(t, helloDigest[:12], Short("hello world", 12))
	assert.Equal(t, helloDigest, Short("hello world", 0))
	assert.Equal(t, helloDigest, Short("hello world", 500))
}
