package testutil

import (
	"crypto/ed25519"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/code-payments/tokenfactory-client/pkg/solana"
)

func GenerateSolanaKeys(t *testing.T, n int) []ed25519.PublicKey {
	keys := make([]ed25519.PublicKey, n)
	for i := 0; i < n; i++ {
		p, _, err := ed25519.GenerateKey(nil)
		require.NoError(t, err)
		keys[i] = p
	}
	return keys
}

func NewRandomKeypair(t *testing.T) *solana.Keypair {
	kp, err := solana.NewRandomKeypair()
	require.NoError(t, err)
	return kp
}

// WriteKeypairFile stores kp in the Solana CLI keypair format under a
// temporary directory and returns the file's path.
func WriteKeypairFile(t *testing.T, kp *solana.Keypair) string {
	values := make([]int, len(kp.PrivateKey()))
	for i, b := range kp.PrivateKey() {
		values[i] = int(b)
	}

	encoded, err := json.Marshal(values)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "id.json")
	require.NoError(t, os.WriteFile(path, encoded, 0600))
	return path
}
