package submit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/tokenfactory-client/pkg/solana"
	"github.com/code-payments/tokenfactory-client/pkg/solana/memory"
	"github.com/code-payments/tokenfactory-client/pkg/solana/tokenfactory"
	"github.com/code-payments/tokenfactory-client/pkg/testutil"
)

type testEnv struct {
	network   *memory.Network
	submitter *Submitter
	payer     *solana.Keypair
	mint      *solana.Keypair
}

func setup(t *testing.T) testEnv {
	network := memory.New(tokenfactory.DefaultProgramKey)

	env := testEnv{
		network: network,
		submitter: New(
			network,
			WithCommitment(solana.CommitmentFinalized),
			WithTimeout(200*time.Millisecond),
			WithPollInterval(10*time.Millisecond),
		),
		payer: testutil.NewRandomKeypair(t),
		mint:  testutil.NewRandomKeypair(t),
	}

	_, err := network.RequestAirdrop(env.payer.PublicKey(), 1_000_000_000, solana.CommitmentFinalized)
	require.NoError(t, err)

	return env
}

func (e testEnv) createToken(t *testing.T) solana.Transaction {
	ix, err := tokenfactory.NewCreateTokenInstruction(tokenfactory.DefaultProgramKey, tokenfactory.BindContext{
		Mint:          e.mint.PublicKey(),
		MintAuthority: e.payer.PublicKey(),
		Payer:         e.payer.PublicKey(),
	}, 6)
	require.NoError(t, err)

	bh, err := e.network.GetLatestBlockhash(solana.CommitmentFinalized)
	require.NoError(t, err)

	txn, err := solana.Assemble(e.payer.PublicKey(), bh, []solana.Signer{e.payer, e.mint}, ix)
	require.NoError(t, err)
	return txn
}

func TestSubmit_Confirmed(t *testing.T) {
	env := setup(t)

	txn := env.createToken(t)
	outcome, err := env.submitter.Submit(context.Background(), txn)
	require.NoError(t, err)

	assert.Equal(t, OutcomeConfirmed, outcome.Kind)
	assert.Equal(t, txn.Signature(), outcome.Signature)
	assert.Equal(t, txn.Message.RecentBlockhash, outcome.Blockhash)
	assert.NotZero(t, outcome.Slot)
	assert.Nil(t, outcome.Err)
}

func TestSubmit_RejectedAtPreflight(t *testing.T) {
	env := setup(t)

	outcome, err := env.submitter.Submit(context.Background(), env.createToken(t))
	require.NoError(t, err)
	require.Equal(t, OutcomeConfirmed, outcome.Kind)

	env.network.ExpireBlockhashes()

	outcome, err = env.submitter.Submit(context.Background(), env.createToken(t))
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, outcome.Kind)
	require.NotNil(t, outcome.Err)
	assert.Equal(t, solana.TransactionErrorInstructionError, outcome.Err.ErrorKey())
	assert.Equal(t, memory.ErrorAccountAlreadyInUse, *outcome.Err.InstructionError().CustomError())
}

func TestSubmit_RejectedOnChain(t *testing.T) {
	env := setup(t)

	_, err := env.submitter.Submit(context.Background(), env.createToken(t))
	require.NoError(t, err)

	env.network.ExpireBlockhashes()
	env.network.SetPreflight(false)

	outcome, err := env.submitter.Submit(context.Background(), env.createToken(t))
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, outcome.Kind)
	assert.NotZero(t, outcome.Slot)
	require.NotNil(t, outcome.Err)
	assert.Equal(t, 0, outcome.Err.InstructionError().Index)
}

func TestSubmit_StaleBlockhash(t *testing.T) {
	env := setup(t)

	txn := env.createToken(t)
	env.network.ExpireBlockhashes()

	outcome, err := env.submitter.Submit(context.Background(), txn)
	assert.ErrorIs(t, err, ErrStaleBlockhash)
	assert.Nil(t, outcome)

	require.Error(t, err)
	assert.Contains(t, err.Error(), txn.Signature().String())
	assert.Contains(t, err.Error(), txn.Message.RecentBlockhash.String())
}

func TestSubmit_Timeout(t *testing.T) {
	env := setup(t)
	env.network.SetHoldConfirmations(true)

	txn := env.createToken(t)

	start := time.Now()
	outcome, err := env.submitter.Submit(context.Background(), txn)
	require.NoError(t, err)
	assert.True(t, time.Since(start) >= 200*time.Millisecond)

	assert.Equal(t, OutcomeTimeout, outcome.Kind)
	assert.True(t, outcome.BlockhashValid)
	assert.NotZero(t, outcome.Slot)

	env.network.ExpireBlockhashes()
	env.network.SetDropTransactions(true)

	outcome, err = env.submitter.Submit(context.Background(), env.createToken(t))
	require.NoError(t, err)
	assert.Equal(t, OutcomeTimeout, outcome.Kind)
	assert.True(t, outcome.BlockhashValid)
	assert.Zero(t, outcome.Slot)
}

func TestSubmit_TimeoutAfterExpiry(t *testing.T) {
	env := setup(t)
	env.network.SetDropTransactions(true)

	txn := env.createToken(t)

	go func() {
		time.Sleep(50 * time.Millisecond)
		env.network.ExpireBlockhashes()
	}()

	outcome, err := env.submitter.Submit(context.Background(), txn)
	require.NoError(t, err)
	assert.Equal(t, OutcomeTimeout, outcome.Kind)
	assert.False(t, outcome.BlockhashValid)
}

func TestSubmit_ContextCancelled(t *testing.T) {
	env := setup(t)
	env.network.SetDropTransactions(true)

	submitter := New(env.network, WithTimeout(time.Hour), WithPollInterval(10*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	outcome, err := submitter.Submit(ctx, env.createToken(t))
	require.NoError(t, err)
	assert.Equal(t, OutcomeTimeout, outcome.Kind)
	assert.True(t, time.Since(start) < 5*time.Second)
}

func TestSubmit_HeldThenReleased(t *testing.T) {
	env := setup(t)
	env.network.SetHoldConfirmations(true)

	submitter := New(env.network, WithTimeout(5*time.Second), WithPollInterval(10*time.Millisecond))

	released := make(chan error, 1)
	go func() {
		err := testutil.WaitFor(time.Second, 5*time.Millisecond, func() bool {
			return len(env.network.Submitted()) == 1
		})
		if err == nil {
			time.Sleep(30 * time.Millisecond)
			env.network.Release()
		}
		released <- err
	}()

	outcome, err := submitter.Submit(context.Background(), env.createToken(t))
	require.NoError(t, <-released, "transaction was never submitted")
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, outcome.Kind)
}

func TestOutcomeKind_String(t *testing.T) {
	assert.Equal(t, "Confirmed", OutcomeConfirmed.String())
	assert.Equal(t, "Rejected", OutcomeRejected.String())
	assert.Equal(t, "Timeout", OutcomeTimeout.String())
	assert.Equal(t, "OutcomeKind(7)", OutcomeKind(7).String())
}
