package tokenfactory

import (
	"crypto/sha256"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/tokenfactory-client/pkg/solana"
	"github.com/code-payments/tokenfactory-client/pkg/solana/token"
	"github.com/code-payments/tokenfactory-client/pkg/testutil"
)

func TestDefaultProgramKey(t *testing.T) {
	assert.Equal(t, "5DPHC1PjRftRHJLKD4WSSXt83h1AChJy2pHXUqGdKD9X", base58.Encode(DefaultProgramKey))
}

func TestCreateToken_Decompile(t *testing.T) {
	payer, mint := testutil.NewRandomKeypair(t), testutil.NewRandomKeypair(t)
	authority := newKey(t)

	ix, err := NewCreateTokenInstruction(DefaultProgramKey, BindContext{
		Mint:          mint.PublicKey(),
		MintAuthority: authority,
		Payer:         payer.PublicKey(),
	}, 6)
	require.NoError(t, err)
	assert.EqualValues(t, DefaultProgramKey, ix.Program)
	assert.Equal(t, []byte{0, 6}, ix.Data)

	txn, err := solana.Assemble(payer.PublicKey(), blockhash("create"), []solana.Signer{payer, mint}, ix)
	require.NoError(t, err)
	require.NoError(t, txn.VerifySignatures())

	decompiled, err := DecompileCreateToken(txn.Message, 0, DefaultProgramKey)
	require.NoError(t, err)
	assert.EqualValues(t, mint.PublicKey(), decompiled.Mint)
	assert.EqualValues(t, authority, decompiled.MintAuthority)
	assert.EqualValues(t, payer.PublicKey(), decompiled.Payer)
	assert.EqualValues(t, 6, decompiled.Decimals)

	_, err = DecompileMint(txn.Message, 0, DefaultProgramKey)
	assert.Equal(t, solana.ErrIncorrectInstruction, err)

	_, err = DecompileCreateToken(txn.Message, 0, newKey(t))
	assert.Equal(t, solana.ErrIncorrectProgram, err)

	_, err = DecompileCreateToken(txn.Message, 1, DefaultProgramKey)
	assert.Error(t, err)
}

func TestCreateToken_MissingMintSigner(t *testing.T) {
	payer, mint := testutil.NewRandomKeypair(t), testutil.NewRandomKeypair(t)

	ix, err := NewCreateTokenInstruction(DefaultProgramKey, BindContext{
		Mint:          mint.PublicKey(),
		MintAuthority: payer.PublicKey(),
		Payer:         payer.PublicKey(),
	}, 9)
	require.NoError(t, err)

	_, err = solana.Assemble(payer.PublicKey(), blockhash("create"), []solana.Signer{payer}, ix)
	assert.ErrorIs(t, err, solana.ErrMissingSigner)
}

func TestMint_Decompile(t *testing.T) {
	payer, mint := testutil.NewRandomKeypair(t), testutil.NewRandomKeypair(t)
	owner := newKey(t)

	ata, err := token.GetAssociatedAccount(owner, mint.PublicKey())
	require.NoError(t, err)

	ix, err := NewMintInstruction(DefaultProgramKey, BindContext{
		Mint:  mint.PublicKey(),
		Payer: payer.PublicKey(),
		Owner: owner,
	}, 100_000_000)
	require.NoError(t, err)

	txn, err := solana.Assemble(payer.PublicKey(), blockhash("mint"), []solana.Signer{payer, mint}, ix)
	require.NoError(t, err)

	decompiled, err := DecompileMint(txn.Message, 0, DefaultProgramKey)
	require.NoError(t, err)
	assert.EqualValues(t, mint.PublicKey(), decompiled.Mint)
	assert.EqualValues(t, ata, decompiled.AssociatedTokenAccount)
	assert.EqualValues(t, payer.PublicKey(), decompiled.Payer)
	assert.EqualValues(t, 100_000_000, decompiled.Amount)

	_, err = DecompileCreateToken(txn.Message, 0, DefaultProgramKey)
	assert.Equal(t, solana.ErrIncorrectInstruction, err)
}

func TestDecompile_InvalidAccounts(t *testing.T) {
	payer, mint := testutil.NewRandomKeypair(t), testutil.NewRandomKeypair(t)

	ix, err := NewCreateTokenInstruction(DefaultProgramKey, BindContext{
		Mint:          mint.PublicKey(),
		MintAuthority: payer.PublicKey(),
		Payer:         payer.PublicKey(),
	}, 6)
	require.NoError(t, err)

	// Swapping the rent sysvar for some other account.
	tampered := ix
	tampered.Accounts = append([]solana.AccountMeta(nil), ix.Accounts...)
	tampered.Accounts[3] = solana.NewReadonlyAccountMeta(newKey(t), false)

	txn := solana.NewTransaction(payer.PublicKey(), tampered)
	_, err = DecompileCreateToken(txn.Message, 0, DefaultProgramKey)
	assert.Error(t, err)

	// Dropping an account.
	short := ix
	short.Accounts = ix.Accounts[:5]

	txn = solana.NewTransaction(payer.PublicKey(), short)
	_, err = DecompileCreateToken(txn.Message, 0, DefaultProgramKey)
	assert.Error(t, err)

	// Malformed payload.
	garbled := ix
	garbled.Data = []byte{0, 6, 1}

	txn = solana.NewTransaction(payer.PublicKey(), garbled)
	_, err = DecompileCreateToken(txn.Message, 0, DefaultProgramKey)
	assert.ErrorIs(t, err, ErrTrailingBytes)

	// Mint that is no longer a signer.
	unsigned := ix
	unsigned.Accounts = append([]solana.AccountMeta(nil), ix.Accounts...)
	unsigned.Accounts[0].IsSigner = false

	txn = solana.NewTransaction(payer.PublicKey(), unsigned)
	_, err = DecompileCreateToken(txn.Message, 0, DefaultProgramKey)
	assert.Error(t, err)
}

func blockhash(seed string) solana.Blockhash {
	return solana.Blockhash(sha256.Sum256([]byte(seed)))
}
