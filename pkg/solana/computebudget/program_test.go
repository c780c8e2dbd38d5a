package compute_budget

import (
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/tokenfactory-client/pkg/solana"
)

func TestSetComputeUnitPrice(t *testing.T) {
	assert.Equal(t, "ComputeBudget111111111111111111111111111111", base58.Encode(ProgramKey))

	payer, err := solana.NewRandomKeypair()
	require.NoError(t, err)

	instruction := SetComputeUnitPrice(10_000)
	assert.Equal(t, []byte{3, 0x10, 0x27, 0, 0, 0, 0, 0, 0}, instruction.Data)
	assert.Empty(t, instruction.Accounts)

	tx := solana.NewTransaction(payer.PublicKey(), instruction, solana.NewInstruction(payer.PublicKey(), nil))

	price, err := DecompileSetComputeUnitPrice(tx.Message, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 10_000, price)

	_, err = DecompileSetComputeUnitPrice(tx.Message, 1)
	assert.Equal(t, solana.ErrIncorrectProgram, err)

	_, err = DecompileSetComputeUnitPrice(tx.Message, 2)
	assert.Error(t, err)
}
