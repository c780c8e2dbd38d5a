package verify

import (
	"bytes"
	"crypto/ed25519"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/code-payments/tokenfactory-client/pkg/solana"
	"github.com/code-payments/tokenfactory-client/pkg/solana/token"
)

// ErrNotFound is returned when the queried account does not exist. It is a
// valid answer, for example before a mint has been created.
var ErrNotFound = errors.New("account not found")

// Snapshot is the state of an account at the time it was queried.
type Snapshot struct {
	Address    ed25519.PublicKey
	Owner      ed25519.PublicKey
	Lamports   uint64
	DataLen    int
	Executable bool

	// Set when the account is owned by the token program and its data
	// decodes as a mint or token account respectively.
	Mint         *token.Mint
	TokenAccount *token.Account
}

// IsMint reports whether the snapshot is of an initialized mint.
func (s *Snapshot) IsMint() bool {
	return s.Mint != nil && s.Mint.IsInitialized
}

// IsTokenAccount reports whether the snapshot is of an initialized token
// account.
func (s *Snapshot) IsTokenAccount() bool {
	return s.TokenAccount != nil && s.TokenAccount.State != token.AccountStateUninitialized
}

// Verifier reads on-chain state. Nothing is cached, every call queries the
// network.
type Verifier struct {
	client     solana.Client
	commitment solana.Commitment
}

func New(client solana.Client, commitment solana.Commitment) *Verifier {
	return &Verifier{
		client:     client,
		commitment: commitment,
	}
}

func (v *Verifier) Snapshot(address ed25519.PublicKey) (*Snapshot, error) {
	info, err := v.client.GetAccountInfo(address, v.commitment)
	if err == solana.ErrNoAccountInfo {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, errors.Wrapf(err, "failed to get account info for %s", base58.Encode(address))
	}

	snapshot := &Snapshot{
		Address:    address,
		Owner:      info.Owner,
		Lamports:   info.Lamports,
		DataLen:    len(info.Data),
		Executable: info.Executable,
	}

	if !bytes.Equal(info.Owner, token.ProgramKey) {
		return snapshot, nil
	}

	switch len(info.Data) {
	case token.MintSize:
		var mint token.Mint
		if mint.Unmarshal(info.Data) {
			snapshot.Mint = &mint
		}
	case token.AccountSize:
		var account token.Account
		if account.Unmarshal(info.Data) {
			snapshot.TokenAccount = &account
		}
	}

	return snapshot, nil
}

// Exists reports whether an account is present at address.
func (v *Verifier) Exists(address ed25519.PublicKey) (bool, error) {
	_, err := v.Snapshot(address)
	if err == ErrNotFound {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, nil
}

// TokenBalance returns the balance of a token account, scaled by its mint's
// decimals.
func (v *Verifier) TokenBalance(tokenAccount ed25519.PublicKey) (solana.TokenAmount, error) {
	amount, err := v.client.GetTokenAccountBalance(tokenAccount, v.commitment)
	if err == solana.ErrNoAccountInfo {
		return solana.TokenAmount{}, ErrNotFound
	} else if err != nil {
		return solana.TokenAmount{}, errors.Wrapf(err, "failed to get token balance of %s", base58.Encode(tokenAccount))
	}
	return amount, nil
}

// TokenSupply returns the total supply of a mint.
func (v *Verifier) TokenSupply(mint ed25519.PublicKey) (solana.TokenAmount, error) {
	amount, err := v.client.GetTokenSupply(mint, v.commitment)
	if err == solana.ErrNoAccountInfo {
		return solana.TokenAmount{}, ErrNotFound
	} else if err != nil {
		return solana.TokenAmount{}, errors.Wrapf(err, "failed to get token supply of %s", base58.Encode(mint))
	}
	return amount, nil
}

// OwnerBalance returns the balance held in owner's associated token account
// for mint.
func (v *Verifier) OwnerBalance(owner, mint ed25519.PublicKey) (solana.TokenAmount, error) {
	ata, err := token.GetAssociatedAccount(owner, mint)
	if err != nil {
		return solana.TokenAmount{}, errors.Wrap(err, "failed to derive associated token account")
	}
	return v.TokenBalance(ata)
}
