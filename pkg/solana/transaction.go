package solana

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

const (
	// MaxTransactionSize taken from: https://github.com/solana-labs/solana/blob/39b3ac6a8d29e14faa1de73d8b46d390ad41797b/sdk/src/packet.rs#L9-L13
	MaxTransactionSize = 1232
)

var (
	ErrMissingSigner       = errors.New("missing signer")
	ErrUnexpectedSigner    = errors.New("signer is not required by the transaction")
	ErrMissingBlockhash    = errors.New("missing recent blockhash")
	ErrTransactionTooLarge = errors.New("transaction exceeds max size")
	ErrNoInstructions      = errors.New("transaction has no instructions")
)

type Signature [ed25519.SignatureSize]byte
type Blockhash [sha256.Size]byte

func (s Signature) String() string {
	return base58.Encode(s[:])
}

func (b Blockhash) String() string {
	return base58.Encode(b[:])
}

type Header struct {
	NumSignatures     byte
	NumReadonlySigned byte
	NumReadOnly       byte
}

// Message is a compiled legacy message.
type Message struct {
	Header          Header
	Accounts        []ed25519.PublicKey
	RecentBlockhash Blockhash
	Instructions    []CompiledInstruction
}

type Transaction struct {
	Signatures []Signature
	Message    Message
}

// NewTransaction compiles instructions into an unsigned legacy transaction
// paid for by payer.
func NewTransaction(payer ed25519.PublicKey, instructions ...Instruction) Transaction {
	accounts := []AccountMeta{
		{
			PublicKey:  payer,
			IsSigner:   true,
			IsWritable: true,
			isPayer:    true,
		},
	}

	for _, i := range instructions {
		accounts = append(accounts, AccountMeta{
			PublicKey: i.Program,
			isProgram: true,
		})
		accounts = append(accounts, i.Accounts...)
	}

	accounts = mergeAccounts(accounts)
	sort.Stable(accountOrder(accounts))

	var m Message
	for _, account := range accounts {
		m.Accounts = append(m.Accounts, account.PublicKey)

		if account.IsSigner {
			m.Header.NumSignatures++
			if !account.IsWritable {
				m.Header.NumReadonlySigned++
			}
		} else if !account.IsWritable {
			m.Header.NumReadOnly++
		}
	}

	for _, i := range instructions {
		c := CompiledInstruction{
			ProgramIndex: byte(indexOf(m.Accounts, i.Program)),
			Data:         i.Data,
		}
		for _, a := range i.Accounts {
			c.Accounts = append(c.Accounts, byte(indexOf(m.Accounts, a.PublicKey)))
		}
		m.Instructions = append(m.Instructions, c)
	}

	for i := range m.Accounts {
		if len(m.Accounts[i]) == 0 {
			m.Accounts[i] = make([]byte, ed25519.PublicKeySize)
		}
	}

	return Transaction{
		Signatures: make([]Signature, m.Header.NumSignatures),
		Message:    m,
	}
}

// Assemble compiles instructions into a transaction for payer, stamps it with
// the recent blockhash and signs it with every signer.
//
// Every address the message requires a signature from must be covered by
// signers, otherwise ErrMissingSigner is returned. No network I/O happens here.
func Assemble(payer ed25519.PublicKey, blockhash Blockhash, signers []Signer, instructions ...Instruction) (Transaction, error) {
	if len(instructions) == 0 {
		return Transaction{}, ErrNoInstructions
	}
	if blockhash == (Blockhash{}) {
		return Transaction{}, ErrMissingBlockhash
	}

	txn := NewTransaction(payer, instructions...)
	txn.SetBlockhash(blockhash)

	for _, required := range txn.RequiredSigners() {
		if !hasSigner(signers, required) {
			return Transaction{}, errors.Wrapf(ErrMissingSigner, "no signer for %s", base58.Encode(required))
		}
	}

	if err := txn.Sign(signers...); err != nil {
		return Transaction{}, err
	}

	raw, err := txn.Encode()
	if err != nil {
		return Transaction{}, err
	}
	if len(raw) > MaxTransactionSize {
		return Transaction{}, errors.Wrapf(ErrTransactionTooLarge, "%d bytes (max %d)", len(raw), MaxTransactionSize)
	}

	return txn, nil
}

// RequiredSigners returns the addresses whose signatures the message requires,
// in signature order.
func (t *Transaction) RequiredSigners() []ed25519.PublicKey {
	return t.Message.Accounts[:t.Message.Header.NumSignatures]
}

// Signature returns the transaction id, the fee payer's signature.
func (t *Transaction) Signature() Signature {
	if len(t.Signatures) == 0 {
		return Signature{}
	}
	return t.Signatures[0]
}

func (t *Transaction) SetBlockhash(bh Blockhash) {
	t.Message.RecentBlockhash = bh
}

// Sign signs the message with each signer. A signer whose address is not one
// of the required signers results in ErrUnexpectedSigner, and a message that
// cannot be encoded results in ErrTransactionTooLarge.
func (t *Transaction) Sign(signers ...Signer) error {
	messageBytes, err := t.Message.Encode()
	if err != nil {
		return err
	}

	for _, s := range signers {
		pub := s.PublicKey()
		index := indexOf(t.Message.Accounts, pub)
		if index < 0 || index >= len(t.Signatures) {
			return errors.Wrapf(ErrUnexpectedSigner, "signer %s", base58.Encode(pub))
		}

		sig, err := s.Sign(messageBytes)
		if err != nil {
			return errors.Wrapf(err, "failed to sign with %s", base58.Encode(pub))
		}
		if len(sig) != ed25519.SignatureSize {
			return errors.Errorf("signer %s produced a %d byte signature", base58.Encode(pub), len(sig))
		}

		copy(t.Signatures[index][:], sig)
	}

	return nil
}

// VerifySignatures checks every signature slot against its account.
func (t *Transaction) VerifySignatures() error {
	messageBytes, err := t.Message.Encode()
	if err != nil {
		return err
	}
	for i, sig := range t.Signatures {
		if i >= len(t.Message.Accounts) {
			return errors.Errorf("signature %d has no account", i)
		}
		if !ed25519.Verify(t.Message.Accounts[i], messageBytes, sig[:]) {
			return errors.Errorf("invalid signature for %s", base58.Encode(t.Message.Accounts[i]))
		}
	}
	return nil
}

// IsSigner reports whether the account at index must sign.
func (m *Message) IsSigner(index int) bool {
	return index < int(m.Header.NumSignatures)
}

// IsWritable reports whether the account at index is writable, as encoded by
// the header counts.
func (m *Message) IsWritable(index int) bool {
	if index < int(m.Header.NumSignatures) {
		return index < int(m.Header.NumSignatures-m.Header.NumReadonlySigned)
	}
	return index < len(m.Accounts)-int(m.Header.NumReadOnly)
}

func (t *Transaction) String() string {
	var sb strings.Builder
	sb.WriteString("Signatures:\n")
	for i, s := range t.Signatures {
		sb.WriteString(fmt.Sprintf("  %d: %s\n", i, s))
	}
	sb.WriteString("Message:\n")
	sb.WriteString("  Header:\n")
	sb.WriteString(fmt.Sprintf("    NumSignatures: %d\n", t.Message.Header.NumSignatures))
	sb.WriteString(fmt.Sprintf("    NumReadOnly: %d\n", t.Message.Header.NumReadOnly))
	sb.WriteString(fmt.Sprintf("    NumReadOnlySigned: %d\n", t.Message.Header.NumReadonlySigned))
	sb.WriteString(fmt.Sprintf("  RecentBlockhash: %s\n", t.Message.RecentBlockhash))
	sb.WriteString("  Accounts:\n")
	for i, a := range t.Message.Accounts {
		sb.WriteString(fmt.Sprintf("    %d: %s\n", i, base58.Encode(a)))
	}
	sb.WriteString("  Instructions:\n")
	for i, c := range t.Message.Instructions {
		sb.WriteString(fmt.Sprintf("    %d:\n", i))
		sb.WriteString(fmt.Sprintf("      ProgramIndex: %d\n", c.ProgramIndex))
		sb.WriteString(fmt.Sprintf("      Accounts: %v\n", c.Accounts))
		sb.WriteString(fmt.Sprintf("      Data: %v\n", c.Data))
	}
	return sb.String()
}

// mergeAccounts drops duplicate keys, promoting the surviving entry to the
// union of the duplicates' permissions.
func mergeAccounts(accounts []AccountMeta) []AccountMeta {
	merged := make([]AccountMeta, 0, len(accounts))

outer:
	for _, a := range accounts {
		for j := range merged {
			if !bytes.Equal(a.PublicKey, merged[j].PublicKey) {
				continue
			}

			merged[j].IsSigner = merged[j].IsSigner || a.IsSigner
			merged[j].IsWritable = merged[j].IsWritable || a.IsWritable
			merged[j].isPayer = merged[j].isPayer || a.isPayer
			continue outer
		}

		merged = append(merged, a)
	}

	return merged
}

func hasSigner(signers []Signer, pub ed25519.PublicKey) bool {
	for _, s := range signers {
		if bytes.Equal(s.PublicKey(), pub) {
			return true
		}
	}
	return false
}

func indexOf(slice []ed25519.PublicKey, item ed25519.PublicKey) int {
	for i, val := range slice {
		if bytes.Equal(val, item) {
			return i
		}
	}

	return -1
}
