package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/tokenfactory-client/pkg/solana"
)

func TestWriteKeypairFile(t *testing.T) {
	kp := NewRandomKeypair(t)

	loaded, err := solana.LoadKeypairFile(WriteKeypairFile(t, kp))
	require.NoError(t, err)
	assert.EqualValues(t, kp.PublicKey(), loaded.PublicKey())
}

func TestGenerateSolanaKeys(t *testing.T) {
	keys := GenerateSolanaKeys(t, 3)
	require.Len(t, keys, 3)
	assert.NotEqual(t, keys[0], keys[1])
	assert.NotEqual(t, keys[1], keys[2])
}
