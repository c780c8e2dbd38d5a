package solana

import (
	"bytes"
	"crypto/ed25519"
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/code-payments/tokenfactory-client/pkg/solana/shortvec"
)

// legacy messages never set the top bit of the first header byte
const versionedMessageFlag = 0x80

// Marshal returns the wire encoding of t, or nil if one of its lengths cannot
// be carried by a compact-u16 prefix. Encode reports that case as an error.
func (t Transaction) Marshal() []byte {
	b, err := t.Encode()
	if err != nil {
		return nil
	}
	return b
}

// Encode returns the wire encoding of t. A signature, account, instruction or
// data length above shortvec.MaxLen results in ErrTransactionTooLarge.
func (t Transaction) Encode() ([]byte, error) {
	b := bytes.NewBuffer(nil)

	if err := encodeLen(b, len(t.Signatures), "signatures"); err != nil {
		return nil, err
	}
	for _, s := range t.Signatures {
		b.Write(s[:])
	}

	if err := t.Message.encode(b); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

func (t *Transaction) Unmarshal(b []byte) error {
	buf := bytes.NewBuffer(b)

	sigLen, err := shortvec.DecodeLen(buf)
	if err != nil {
		return errors.Wrap(err, "failed to read signature length")
	}

	t.Signatures = make([]Signature, sigLen)
	for i := 0; i < sigLen; i++ {
		if _, err = io.ReadFull(buf, t.Signatures[i][:]); err != nil {
			return errors.Wrapf(err, "failed to read signature at %d", i)
		}
	}

	if err := t.Message.Unmarshal(buf.Bytes()); err != nil {
		return err
	}
	if int(t.Message.Header.NumSignatures) != sigLen {
		return errors.Errorf("signature count mismatch: %d signatures, header requires %d", sigLen, t.Message.Header.NumSignatures)
	}
	return nil
}

// Marshal produces the legacy message bytes, which is also the payload every
// signer signs. Like Transaction.Marshal it returns nil when a length cannot
// be encoded.
func (m Message) Marshal() []byte {
	b, err := m.Encode()
	if err != nil {
		return nil
	}
	return b
}

// Encode is Marshal with the encoding error reported.
func (m Message) Encode() ([]byte, error) {
	b := bytes.NewBuffer(nil)
	if err := m.encode(b); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func (m Message) encode(b *bytes.Buffer) error {
	b.WriteByte(m.Header.NumSignatures)
	b.WriteByte(m.Header.NumReadonlySigned)
	b.WriteByte(m.Header.NumReadOnly)

	if err := encodeLen(b, len(m.Accounts), "accounts"); err != nil {
		return err
	}
	for _, a := range m.Accounts {
		b.Write(a)
	}

	b.Write(m.RecentBlockhash[:])

	if err := encodeLen(b, len(m.Instructions), "instructions"); err != nil {
		return err
	}
	for i, instruction := range m.Instructions {
		b.WriteByte(instruction.ProgramIndex)

		if err := encodeLen(b, len(instruction.Accounts), fmt.Sprintf("instruction[%d] accounts", i)); err != nil {
			return err
		}
		b.Write(instruction.Accounts)

		if err := encodeLen(b, len(instruction.Data), fmt.Sprintf("instruction[%d] data", i)); err != nil {
			return err
		}
		b.Write(instruction.Data)
	}

	return nil
}

func (m *Message) Unmarshal(b []byte) (err error) {
	if len(b) == 0 {
		return errors.New("empty message")
	}
	if b[0]&versionedMessageFlag != 0 {
		return errors.New("versioned messages not supported")
	}

	buf := bytes.NewBuffer(b)

	if m.Header.NumSignatures, err = buf.ReadByte(); err != nil {
		return errors.Wrap(err, "failed to read num signatures")
	}
	if m.Header.NumReadonlySigned, err = buf.ReadByte(); err != nil {
		return errors.Wrap(err, "failed to read num readonly signatures")
	}
	if m.Header.NumReadOnly, err = buf.ReadByte(); err != nil {
		return errors.Wrap(err, "failed to read num readonly")
	}

	accountLen, err := shortvec.DecodeLen(buf)
	if err != nil {
		return errors.Wrap(err, "failed to read account len")
	}
	m.Accounts = make([]ed25519.PublicKey, accountLen)
	for i := 0; i < accountLen; i++ {
		m.Accounts[i] = make([]byte, ed25519.PublicKeySize)
		if _, err = io.ReadFull(buf, m.Accounts[i]); err != nil {
			return errors.Wrapf(err, "failed to read account at index %d", i)
		}
	}

	if _, err = io.ReadFull(buf, m.RecentBlockhash[:]); err != nil {
		return errors.Wrap(err, "failed to read recent block hash")
	}

	instructionLen, err := shortvec.DecodeLen(buf)
	if err != nil {
		return errors.Wrap(err, "failed to read instruction len")
	}
	m.Instructions = make([]CompiledInstruction, instructionLen)
	for i := 0; i < instructionLen; i++ {
		var c CompiledInstruction

		if c.ProgramIndex, err = buf.ReadByte(); err != nil {
			return errors.Wrapf(err, "failed to read instruction[%d] program index", i)
		}
		if int(c.ProgramIndex) >= len(m.Accounts) {
			return errors.Errorf("program index out of range: %d:%d", i, c.ProgramIndex)
		}

		indexLen, err := shortvec.DecodeLen(buf)
		if err != nil {
			return errors.Wrapf(err, "failed to read instruction[%d] account len", i)
		}
		c.Accounts = make([]byte, indexLen)
		if _, err = io.ReadFull(buf, c.Accounts); err != nil {
			return errors.Wrapf(err, "failed to read instruction[%d] accounts", i)
		}
		for _, index := range c.Accounts {
			if int(index) >= len(m.Accounts) {
				return errors.Errorf("account index out of range: %d:%d", i, index)
			}
		}

		dataLen, err := shortvec.DecodeLen(buf)
		if err != nil {
			return errors.Wrapf(err, "failed to read instruction[%d] data len", i)
		}
		c.Data = make([]byte, dataLen)
		if _, err = io.ReadFull(buf, c.Data); err != nil {
			return errors.Wrapf(err, "failed to read instruction[%d] data", i)
		}

		m.Instructions[i] = c
	}

	return nil
}

func encodeLen(b *bytes.Buffer, n int, field string) error {
	if _, err := shortvec.EncodeLen(b, n); err != nil {
		return errors.Wrapf(ErrTransactionTooLarge, "%s: %v", field, err)
	}
	return nil
}
