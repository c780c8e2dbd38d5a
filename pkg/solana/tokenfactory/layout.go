package tokenfactory

import (
	"crypto/ed25519"
	"fmt"

	"github.com/pkg/errors"

	"github.com/code-payments/tokenfactory-client/pkg/solana"
	"github.com/code-payments/tokenfactory-client/pkg/solana/system"
	"github.com/code-payments/tokenfactory-client/pkg/solana/token"
)

var (
	ErrMissingAccount     = errors.New("missing account for role")
	ErrUnknownInstruction = errors.New("unknown instruction kind")
)

// Role is the meaning of an account position in a token factory
// instruction.
type Role uint8

const (
	RoleMint Role = iota
	RoleMintAuthority
	RolePayer
	RoleRentSysvar
	RoleSystemProgram
	RoleTokenProgram
	RoleAssociatedTokenAccount
	RoleAssociatedTokenProgram
)

func (r Role) String() string {
	switch r {
	case RoleMint:
		return "mint"
	case RoleMintAuthority:
		return "mint authority"
	case RolePayer:
		return "payer"
	case RoleRentSysvar:
		return "rent sysvar"
	case RoleSystemProgram:
		return "system program"
	case RoleTokenProgram:
		return "token program"
	case RoleAssociatedTokenAccount:
		return "associated token account"
	case RoleAssociatedTokenProgram:
		return "associated token program"
	}
	return fmt.Sprintf("Role(%d)", uint8(r))
}

// Slot is a single position of an instruction's account list.
type Slot struct {
	Role       Role
	IsWritable bool
	IsSigner   bool
}

// Layouts is the positional account contract of the token factory program.
// The program dereferences accounts by index, so any change here has to
// match a change in the deployed program.
var Layouts = map[InstructionKind][]Slot{
	KindCreateToken: {
		{Role: RoleMint, IsWritable: true, IsSigner: true},
		{Role: RoleMintAuthority},
		{Role: RolePayer, IsSigner: true},
		{Role: RoleRentSysvar},
		{Role: RoleSystemProgram},
		{Role: RoleTokenProgram},
	},
	KindMint: {
		{Role: RoleMint, IsWritable: true, IsSigner: true},
		{Role: RoleAssociatedTokenAccount, IsWritable: true},
		{Role: RoleRentSysvar},
		{Role: RolePayer, IsSigner: true},
		{Role: RoleSystemProgram},
		{Role: RoleTokenProgram},
		{Role: RoleAssociatedTokenProgram},
	},
}

// BindContext carries the caller supplied addresses of a binding. Owner is
// the holder of the associated token account and defaults to Payer.
type BindContext struct {
	Mint          ed25519.PublicKey
	MintAuthority ed25519.PublicKey
	Payer         ed25519.PublicKey
	Owner         ed25519.PublicKey
}

func (c BindContext) resolve(role Role) (ed25519.PublicKey, error) {
	var key ed25519.PublicKey

	switch role {
	case RoleMint:
		key = c.Mint
	case RoleMintAuthority:
		key = c.MintAuthority
	case RolePayer:
		key = c.Payer
	case RoleRentSysvar:
		key = system.RentSysVar
	case RoleSystemProgram:
		key = system.ProgramKey
	case RoleTokenProgram:
		key = token.ProgramKey
	case RoleAssociatedTokenProgram:
		key = token.AssociatedTokenAccountProgramKey
	case RoleAssociatedTokenAccount:
		owner := c.Owner
		if len(owner) == 0 {
			owner = c.Payer
		}
		if len(owner) != ed25519.PublicKeySize || len(c.Mint) != ed25519.PublicKeySize {
			return nil, errors.Wrapf(ErrMissingAccount, "%s needs an owner and a mint", role)
		}

		ata, err := token.GetAssociatedAccount(owner, c.Mint)
		if err != nil {
			return nil, errors.Wrap(err, "failed to derive associated token account")
		}
		key = ata
	default:
		return nil, errors.Errorf("unhandled role %s", role)
	}

	if len(key) != ed25519.PublicKeySize {
		return nil, errors.Wrapf(ErrMissingAccount, "%s", role)
	}
	return key, nil
}

// Bind returns the ordered account list for an instruction of the given
// kind.
func Bind(kind InstructionKind, ctx BindContext) ([]solana.AccountMeta, error) {
	layout, ok := Layouts[kind]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownInstruction, "%s", kind)
	}

	accounts := make([]solana.AccountMeta, len(layout))
	for i, slot := range layout {
		key, err := ctx.resolve(slot.Role)
		if err != nil {
			return nil, err
		}

		accounts[i] = solana.AccountMeta{
			PublicKey:  key,
			IsSigner:   slot.IsSigner,
			IsWritable: slot.IsWritable,
		}
	}

	return accounts, nil
}
