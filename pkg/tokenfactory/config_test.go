package tokenfactory

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, env := range envBindings {
		t.Setenv(env, "")
		require.NoError(t, os.Unsetenv(env))
	}

	config, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), *config)
	assert.Equal(t, "http://127.0.0.1:8899", config.RPCEndpoint)
	assert.Equal(t, "5DPHC1PjRftRHJLKD4WSSXt83h1AChJy2pHXUqGdKD9X", config.ProgramAddress)
	assert.Equal(t, "confirmed", config.Commitment)
	assert.Equal(t, time.Minute, config.ConfirmationTimeout)
	assert.EqualValues(t, 3, config.MaxStaleResubmits)
	assert.Zero(t, config.ComputeUnitPrice)
}

func TestLoadConfig_Environment(t *testing.T) {
	t.Setenv("SOLANA_RPC_ENDPOINT", "https://api.devnet.solana.com")
	t.Setenv("SOLANA_COMMITMENT", "finalized")
	t.Setenv("CONFIRMATION_TIMEOUT", "90s")
	t.Setenv("MAX_STALE_RESUBMITS", "5")
	t.Setenv("COMPUTE_UNIT_PRICE", "2500")
	t.Setenv("SOLANA_RPC_RATE_LIMIT", "12.5")
	t.Setenv("TRANSACTION_MEMO", "issued by tokenfactory")

	config, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "https://api.devnet.solana.com", config.RPCEndpoint)
	assert.Equal(t, "finalized", config.Commitment)
	assert.Equal(t, 90*time.Second, config.ConfirmationTimeout)
	assert.EqualValues(t, 5, config.MaxStaleResubmits)
	assert.EqualValues(t, 2500, config.ComputeUnitPrice)
	assert.Equal(t, 12.5, config.RPCRateLimit)
	assert.Equal(t, "issued by tokenfactory", config.Memo)
	assert.Equal(t, DefaultConfig().ProgramAddress, config.ProgramAddress)
}

func TestLoadConfig_File(t *testing.T) {
	t.Setenv("SOLANA_COMMITMENT", "processed")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rpc_endpoint: http://localhost:8899
keypair_path: /tmp/payer.json
commitment: finalized
confirmation_timeout: 30s
`), 0600))

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8899", config.RPCEndpoint)
	assert.Equal(t, "/tmp/payer.json", config.KeypairPath)
	assert.Equal(t, 30*time.Second, config.ConfirmationTimeout)

	// The environment wins over the file.
	assert.Equal(t, "processed", config.Commitment)
}

func TestLoadConfig_Invalid(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app_name: \"\"\n"), 0600))

	t.Setenv("APP_NAME", "")
	_, err = LoadConfig(path)
	assert.Error(t, err)
}
