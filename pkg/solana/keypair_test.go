package solana

import (
	"crypto/ed25519"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeKeypairFile(t *testing.T, key []byte) string {
	values := make([]int, len(key))
	for i, b := range key {
		values[i] = int(b)
	}

	raw, err := json.Marshal(values)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "id.json")
	require.NoError(t, os.WriteFile(path, raw, 0600))
	return path
}

func TestLoadKeypairFile(t *testing.T) {
	kp, err := NewRandomKeypair()
	require.NoError(t, err)

	loaded, err := LoadKeypairFile(writeKeypairFile(t, kp.PrivateKey()))
	require.NoError(t, err)
	assert.Equal(t, kp.PublicKey(), loaded.PublicKey())
	assert.Equal(t, kp.String(), loaded.String())

	sig, err := loaded.Sign([]byte("message"))
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(kp.PublicKey(), []byte("message"), sig))
}

func TestLoadKeypairFile_Invalid(t *testing.T) {
	kp, err := NewRandomKeypair()
	require.NoError(t, err)
	other, err := NewRandomKeypair()
	require.NoError(t, err)

	_, err = LoadKeypairFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = LoadKeypairFile(writeKeypairFile(t, kp.PrivateKey()[:32]))
	assert.Error(t, err)

	mismatched := append(append([]byte{}, kp.PrivateKey()[:32]...), other.PublicKey()...)
	_, err = LoadKeypairFile(writeKeypairFile(t, mismatched))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`[1, 2, 300]`), 0600))
	_, err = LoadKeypairFile(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`not json`), 0600))
	_, err = LoadKeypairFile(path)
	assert.Error(t, err)
}
