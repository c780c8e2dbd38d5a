package system

import (
	"crypto/ed25519"

	"github.com/code-payments/tokenfactory-client/pkg/solana"
)

// ProgramKey is the address of the system program, which owns every plain
// wallet account.
//
// https://explorer.solana.com/address/11111111111111111111111111111111
var ProgramKey = make(ed25519.PublicKey, ed25519.PublicKeySize)

// RentSysVar points to the system variable "Rent"
//
// Source: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/sdk/src/sysvar/rent.rs#L11
var RentSysVar = solana.MustPublicKeyFromBase58("SysvarRent111111111111111111111111111111111")
