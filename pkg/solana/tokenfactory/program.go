package tokenfactory

import (
	"bytes"
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/code-payments/tokenfactory-client/pkg/solana"
	"github.com/code-payments/tokenfactory-client/pkg/solana/system"
	"github.com/code-payments/tokenfactory-client/pkg/solana/token"
)

// DefaultProgramKey is the address the token factory program was deployed to
// on the local test validator. Deployments elsewhere configure their own.
//
// Current key: 5DPHC1PjRftRHJLKD4WSSXt83h1AChJy2pHXUqGdKD9X
var DefaultProgramKey = solana.MustPublicKeyFromBase58("5DPHC1PjRftRHJLKD4WSSXt83h1AChJy2pHXUqGdKD9X")

// NewInstruction encodes ix and binds it to the accounts of its layout.
func NewInstruction(program ed25519.PublicKey, ix Instruction, accounts BindContext) (solana.Instruction, error) {
	data, err := Encode(ix)
	if err != nil {
		return solana.Instruction{}, err
	}

	metas, err := Bind(InstructionKind(data[0]), accounts)
	if err != nil {
		return solana.Instruction{}, err
	}

	return solana.NewInstruction(program, data, metas...), nil
}

// NewCreateTokenInstruction creates a mint at accounts.Mint, which must sign
// the transaction.
//
// Accounts expected by this instruction:
//
//  0. `[writable, signer]` The mint to create.
//  1. `[]` The mint authority.
//  2. `[signer]` The payer of the mint's rent.
//  3. `[]` Rent sysvar.
//  4. `[]` System program.
//  5. `[]` Token program.
func NewCreateTokenInstruction(program ed25519.PublicKey, accounts BindContext, decimals uint8) (solana.Instruction, error) {
	return NewInstruction(program, CreateToken{Decimals: decimals}, accounts)
}

// NewMintInstruction mints amount into the associated token account of
// accounts.Owner.
//
// Accounts expected by this instruction:
//
//  0. `[writable, signer]` The mint.
//  1. `[writable]` The destination associated token account.
//  2. `[]` Rent sysvar.
//  3. `[signer]` The payer, who is also the mint authority.
//  4. `[]` System program.
//  5. `[]` Token program.
//  6. `[]` Associated token account program.
func NewMintInstruction(program ed25519.PublicKey, accounts BindContext, amount uint64) (solana.Instruction, error) {
	return NewInstruction(program, Mint{Amount: amount}, accounts)
}

type DecompiledCreateToken struct {
	Mint          ed25519.PublicKey
	MintAuthority ed25519.PublicKey
	Payer         ed25519.PublicKey

	Decimals uint8
}

func DecompileCreateToken(m solana.Message, index int, program ed25519.PublicKey) (*DecompiledCreateToken, error) {
	ix, accounts, err := decompile(m, index, program, KindCreateToken)
	if err != nil {
		return nil, err
	}

	return &DecompiledCreateToken{
		Mint:          accounts[RoleMint],
		MintAuthority: accounts[RoleMintAuthority],
		Payer:         accounts[RolePayer],
		Decimals:      ix.(CreateToken).Decimals,
	}, nil
}

type DecompiledMint struct {
	Mint                   ed25519.PublicKey
	AssociatedTokenAccount ed25519.PublicKey
	Payer                  ed25519.PublicKey

	Amount uint64
}

func DecompileMint(m solana.Message, index int, program ed25519.PublicKey) (*DecompiledMint, error) {
	ix, accounts, err := decompile(m, index, program, KindMint)
	if err != nil {
		return nil, err
	}

	return &DecompiledMint{
		Mint:                   accounts[RoleMint],
		AssociatedTokenAccount: accounts[RoleAssociatedTokenAccount],
		Payer:                  accounts[RolePayer],
		Amount:                 ix.(Mint).Amount,
	}, nil
}

// wellKnown are the roles whose address is fixed by the network.
var wellKnown = map[Role]ed25519.PublicKey{
	RoleRentSysvar:             system.RentSysVar,
	RoleSystemProgram:          system.ProgramKey,
	RoleTokenProgram:           token.ProgramKey,
	RoleAssociatedTokenProgram: token.AssociatedTokenAccountProgramKey,
}

func decompile(m solana.Message, index int, program ed25519.PublicKey, kind InstructionKind) (Instruction, map[Role]ed25519.PublicKey, error) {
	if index >= len(m.Instructions) {
		return nil, nil, errors.Errorf("instruction doesn't exist at %d", index)
	}

	i := m.Instructions[index]

	if !bytes.Equal(m.Accounts[i.ProgramIndex], program) {
		return nil, nil, solana.ErrIncorrectProgram
	}

	ix, err := Decode(i.Data)
	if err != nil {
		return nil, nil, err
	}
	if ix.Kind() != kind {
		return nil, nil, solana.ErrIncorrectInstruction
	}

	layout := Layouts[kind]
	if len(i.Accounts) != len(layout) {
		return nil, nil, errors.Errorf("invalid number of accounts: %d (expected %d)", len(i.Accounts), len(layout))
	}

	accounts := make(map[Role]ed25519.PublicKey, len(layout))
	for pos, slot := range layout {
		idx := int(i.Accounts[pos])
		key := m.Accounts[idx]

		if expected, ok := wellKnown[slot.Role]; ok && !bytes.Equal(key, expected) {
			return nil, nil, errors.Errorf("invalid %s account at position %d", slot.Role, pos)
		}
		if slot.IsSigner && !m.IsSigner(idx) {
			return nil, nil, errors.Errorf("%s account at position %d is not a signer", slot.Role, pos)
		}
		if slot.IsWritable && !m.IsWritable(idx) {
			return nil, nil, errors.Errorf("%s account at position %d is not writable", slot.Role, pos)
		}

		accounts[slot.Role] = key
	}

	return ix, accounts, nil
}
