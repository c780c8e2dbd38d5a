package solana

import (
	"bytes"
	"crypto/ed25519"
	"errors"
)

var (
	ErrIncorrectProgram     = errors.New("incorrect program")
	ErrIncorrectInstruction = errors.New("incorrect instruction")
)

// AccountMeta is a single account reference of an instruction. The position of
// an AccountMeta within Instruction.Accounts is part of the program's contract.
type AccountMeta struct {
	PublicKey  ed25519.PublicKey
	IsSigner   bool
	IsWritable bool
	isPayer    bool
	isProgram  bool
}

// NewAccountMeta creates a new AccountMeta representing a writable
// account.
func NewAccountMeta(pub ed25519.PublicKey, isSigner bool) AccountMeta {
	return AccountMeta{
		PublicKey:  pub,
		IsSigner:   isSigner,
		IsWritable: true,
	}
}

// NewReadonlyAccountMeta creates a new AccountMeta representing a readonly
// account.
func NewReadonlyAccountMeta(pub ed25519.PublicKey, isSigner bool) AccountMeta {
	return AccountMeta{
		PublicKey:  pub,
		IsSigner:   isSigner,
		IsWritable: false,
	}
}

// accountOrder sorts message accounts by the legacy message rules:
// payer, then signers, then writable, then programs last.
//
// Reference: https://docs.solana.com/developing/programming-model/transactions#account-addresses-format
type accountOrder []AccountMeta

func (s accountOrder) Len() int {
	return len(s)
}

func (s accountOrder) Less(i int, j int) bool {
	if s[i].isPayer != s[j].isPayer {
		return s[i].isPayer
	}
	if s[i].isProgram != s[j].isProgram {
		return !s[i].isProgram
	}
	if s[i].IsSigner != s[j].IsSigner {
		return s[i].IsSigner
	}
	if s[i].IsWritable != s[j].IsWritable {
		return s[i].IsWritable
	}

	return bytes.Compare(s[i].PublicKey, s[j].PublicKey) < 0
}

func (s accountOrder) Swap(i int, j int) {
	s[i], s[j] = s[j], s[i]
}

// Instruction is a program invocation: the program address, its ordered
// account references and the encoded payload.
type Instruction struct {
	Program  ed25519.PublicKey
	Accounts []AccountMeta
	Data     []byte
}

// NewInstruction creates a new instruction.
func NewInstruction(program ed25519.PublicKey, data []byte, accounts ...AccountMeta) Instruction {
	return Instruction{
		Program:  program,
		Data:     data,
		Accounts: accounts,
	}
}

// CompiledInstruction represents an instruction that has been compiled into a transaction.
type CompiledInstruction struct {
	ProgramIndex byte
	Accounts     []byte
	Data         []byte
}
