package tokenfactory

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/tokenfactory-client/pkg/solana"
	compute_budget "github.com/code-payments/tokenfactory-client/pkg/solana/computebudget"
	"github.com/code-payments/tokenfactory-client/pkg/solana/memo"
	"github.com/code-payments/tokenfactory-client/pkg/solana/memory"
	"github.com/code-payments/tokenfactory-client/pkg/solana/submit"
	"github.com/code-payments/tokenfactory-client/pkg/solana/token"
	"github.com/code-payments/tokenfactory-client/pkg/solana/tokenfactory"
	"github.com/code-payments/tokenfactory-client/pkg/solana/verify"
	"github.com/code-payments/tokenfactory-client/pkg/testutil"
)

type testEnv struct {
	network *memory.Network
	payer   *solana.Keypair
	mint    *solana.Keypair
	client  *Client
}

func setup(t *testing.T, opts ...Option) testEnv {
	env := testEnv{
		network: memory.New(tokenfactory.DefaultProgramKey),
		payer:   testutil.NewRandomKeypair(t),
		mint:    testutil.NewRandomKeypair(t),
	}

	_, err := env.network.RequestAirdrop(env.payer.PublicKey(), 1_000_000_000, solana.CommitmentFinalized)
	require.NoError(t, err)

	env.client = newTestClient(env.network, env.payer, opts...)
	return env
}

func newTestClient(rpc solana.Client, payer solana.Signer, opts ...Option) *Client {
	opts = append([]Option{
		WithCommitment(solana.CommitmentFinalized),
		WithConfirmationTimeout(200 * time.Millisecond),
		WithPollInterval(10 * time.Millisecond),
	}, opts...)
	return NewClient(rpc, payer, tokenfactory.DefaultProgramKey, opts...)
}

// staleNetwork expires every blockhash right before the first n submissions,
// so each of them is refused as stale.
type staleNetwork struct {
	*memory.Network

	mu    sync.Mutex
	stale int
}

func (n *staleNetwork) SubmitTransaction(txn solana.Transaction, commitment solana.Commitment) (solana.Signature, error) {
	n.mu.Lock()
	if n.stale > 0 {
		n.stale--
		n.Network.ExpireBlockhashes()
	}
	n.mu.Unlock()

	return n.Network.SubmitTransaction(txn, commitment)
}

func TestCreateToken(t *testing.T) {
	env := setup(t)

	_, err := env.client.Supply(env.mint.PublicKey())
	assert.Equal(t, verify.ErrNotFound, err)

	result, err := env.client.CreateToken(context.Background(), env.mint, env.payer.PublicKey(), 6)
	require.NoError(t, err)
	require.True(t, result.Confirmed())

	assert.EqualValues(t, env.mint.PublicKey(), result.Mint)
	assert.Equal(t, solana.TokenAmount{Amount: 0, Decimals: 6}, result.Supply)
	assert.Zero(t, result.StaleResubmits)

	supply, err := env.client.Supply(env.mint.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, "0.000000", supply.UIString())
}

func TestCreateToken_AlreadyExists(t *testing.T) {
	env := setup(t)

	result, err := env.client.CreateToken(context.Background(), env.mint, env.payer.PublicKey(), 6)
	require.NoError(t, err)
	require.True(t, result.Confirmed())

	env.network.ExpireBlockhashes()

	result, err = env.client.CreateToken(context.Background(), env.mint, env.payer.PublicKey(), 9)
	require.NoError(t, err)
	assert.False(t, result.Confirmed())
	assert.Equal(t, submit.OutcomeRejected, result.Outcome.Kind)
	require.NotNil(t, result.Outcome.Err)
	assert.Equal(t, memory.ErrorAccountAlreadyInUse, *result.Outcome.Err.InstructionError().CustomError())

	supply, err := env.client.Supply(env.mint.PublicKey())
	require.NoError(t, err)
	assert.EqualValues(t, 6, supply.Decimals)
}

func TestMintTo(t *testing.T) {
	env := setup(t)

	_, err := env.client.CreateToken(context.Background(), env.mint, env.payer.PublicKey(), 6)
	require.NoError(t, err)

	_, err = env.client.Balance(env.payer.PublicKey(), env.mint.PublicKey())
	assert.Equal(t, verify.ErrNotFound, err)

	result, err := env.client.MintTo(context.Background(), env.mint, env.payer.PublicKey(), 1_500_000)
	require.NoError(t, err)
	require.True(t, result.Confirmed())

	ata, err := token.GetAssociatedAccount(env.payer.PublicKey(), env.mint.PublicKey())
	require.NoError(t, err)
	assert.EqualValues(t, ata, result.TokenAccount)
	assert.EqualValues(t, 1_500_000, result.Supply.Amount)
	assert.EqualValues(t, 1_500_000, result.Balance.Amount)
	assert.Equal(t, "1.500000", result.Balance.UIString())

	env.network.ExpireBlockhashes()

	result, err = env.client.MintTo(context.Background(), env.mint, env.payer.PublicKey(), 500_000)
	require.NoError(t, err)
	require.True(t, result.Confirmed())
	assert.EqualValues(t, 2_000_000, result.Supply.Amount)

	balance, err := env.client.Balance(env.payer.PublicKey(), env.mint.PublicKey())
	require.NoError(t, err)
	assert.EqualValues(t, 2_000_000, balance.Amount)
}

func TestMintTo_UnknownMint(t *testing.T) {
	env := setup(t)

	result, err := env.client.MintTo(context.Background(), env.mint, env.payer.PublicKey(), 1)
	require.NoError(t, err)
	assert.Equal(t, submit.OutcomeRejected, result.Outcome.Kind)
	assert.Zero(t, result.Supply)
	assert.Zero(t, result.Balance)
}

func TestMintTo_OtherOwner(t *testing.T) {
	env := setup(t)

	_, err := env.client.CreateToken(context.Background(), env.mint, env.payer.PublicKey(), 6)
	require.NoError(t, err)

	owner := testutil.NewRandomKeypair(t)
	result, err := env.client.MintTo(context.Background(), env.mint, owner.PublicKey(), 10)
	require.NoError(t, err)
	assert.Equal(t, submit.OutcomeRejected, result.Outcome.Kind)

	supply, err := env.client.Supply(env.mint.PublicKey())
	require.NoError(t, err)
	assert.Zero(t, supply.Amount)
}

func TestSend_StaleResubmit(t *testing.T) {
	network := &staleNetwork{Network: memory.New(tokenfactory.DefaultProgramKey), stale: 2}
	payer, mint := testutil.NewRandomKeypair(t), testutil.NewRandomKeypair(t)

	_, err := network.RequestAirdrop(payer.PublicKey(), 1_000_000_000, solana.CommitmentFinalized)
	require.NoError(t, err)

	client := newTestClient(network, payer, WithMaxStaleResubmits(2))

	result, err := client.CreateToken(context.Background(), mint, payer.PublicKey(), 6)
	require.NoError(t, err)
	require.True(t, result.Confirmed())
	assert.EqualValues(t, 2, result.StaleResubmits)
	assert.Len(t, network.Submitted(), 3)
}

func TestSend_StaleResubmitsExhausted(t *testing.T) {
	network := &staleNetwork{Network: memory.New(tokenfactory.DefaultProgramKey), stale: 3}
	payer, mint := testutil.NewRandomKeypair(t), testutil.NewRandomKeypair(t)

	_, err := network.RequestAirdrop(payer.PublicKey(), 1_000_000_000, solana.CommitmentFinalized)
	require.NoError(t, err)

	client := newTestClient(network, payer, WithMaxStaleResubmits(2))

	_, err = client.CreateToken(context.Background(), mint, payer.PublicKey(), 6)
	assert.ErrorIs(t, err, submit.ErrStaleBlockhash)
	require.Len(t, network.Submitted(), 3)

	// The error names the last attempt.
	last := network.Submitted()[2]
	assert.Contains(t, err.Error(), last.Message.RecentBlockhash.String())

	_, err = client.Supply(mint.PublicKey())
	assert.Equal(t, verify.ErrNotFound, err)
}

func TestSend_TimeoutNotResubmitted(t *testing.T) {
	env := setup(t)
	env.network.SetDropTransactions(true)

	result, err := env.client.CreateToken(context.Background(), env.mint, env.payer.PublicKey(), 6)
	require.NoError(t, err)
	assert.Equal(t, submit.OutcomeTimeout, result.Outcome.Kind)
	assert.True(t, result.Outcome.BlockhashValid)
	assert.Len(t, env.network.Submitted(), 1)
}

func TestSend_ComputeUnitPriceAndMemo(t *testing.T) {
	env := setup(t, WithComputeUnitPrice(1_000), WithMemo("tokenfactory"))

	result, err := env.client.CreateToken(context.Background(), env.mint, env.payer.PublicKey(), 6)
	require.NoError(t, err)
	require.True(t, result.Confirmed())

	submitted := env.network.Submitted()
	require.Len(t, submitted, 1)
	require.Len(t, submitted[0].Message.Instructions, 3)

	price, err := compute_budget.DecompileSetComputeUnitPrice(submitted[0].Message, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1_000, price)

	_, err = tokenfactory.DecompileCreateToken(submitted[0].Message, 1, tokenfactory.DefaultProgramKey)
	assert.NoError(t, err)

	text, err := memo.DecompileMemo(submitted[0].Message, 2)
	require.NoError(t, err)
	assert.Equal(t, "tokenfactory", text)
}

func TestSend_InvalidMemo(t *testing.T) {
	env := setup(t, WithMemo(string([]byte{0xff})))

	_, err := env.client.CreateToken(context.Background(), env.mint, env.payer.PublicKey(), 6)
	assert.Equal(t, memo.ErrInvalidMemo, err)
	assert.Empty(t, env.network.Submitted())
}

func TestNewClientFromConfig(t *testing.T) {
	// Loading the config points logrus at stdout.
	resetOutput := testutil.DisableLogging()
	logger := logrus.StandardLogger()
	formatter, level := logger.Formatter, logger.GetLevel()
	defer func() {
		logrus.SetFormatter(formatter)
		logrus.SetLevel(level)
		resetOutput()
	}()

	payer := testutil.NewRandomKeypair(t)

	config := DefaultConfig()
	config.KeypairPath = testutil.WriteKeypairFile(t, payer)
	config.Commitment = "finalized"
	config.RPCRateLimit = 5

	client, err := NewClientFromConfig(&config)
	require.NoError(t, err)
	assert.EqualValues(t, payer.PublicKey(), client.Payer())
	assert.EqualValues(t, tokenfactory.DefaultProgramKey, client.program)
	assert.Equal(t, solana.CommitmentFinalized, client.commitment)
	assert.EqualValues(t, 3, client.maxStaleResubmits)
	assert.Equal(t, os.Stdout, logger.Out)

	for _, mutate := range []func(*Config){
		func(c *Config) { c.Commitment = "eventually" },
		func(c *Config) { c.ProgramAddress = "not-an-address" },
		func(c *Config) { c.KeypairPath = "/does/not/exist.json" },
	} {
		invalid := config
		mutate(&invalid)

		_, err := NewClientFromConfig(&invalid)
		assert.Error(t, err)
	}
}
