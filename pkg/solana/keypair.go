package solana

import (
	"crypto/ed25519"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

// Signer is a signing capability for a single address. Key storage is up to
// the implementation.
type Signer interface {
	PublicKey() ed25519.PublicKey
	Sign(message []byte) ([]byte, error)
}

// Keypair is an in-memory ed25519 Signer.
type Keypair struct {
	private ed25519.PrivateKey
}

// NewKeypair wraps an existing private key.
func NewKeypair(private ed25519.PrivateKey) (*Keypair, error) {
	if len(private) != ed25519.PrivateKeySize {
		return nil, errors.Errorf("invalid private key size: %d", len(private))
	}
	return &Keypair{private: private}, nil
}

// NewRandomKeypair generates a fresh keypair, typically for a new mint account.
func NewRandomKeypair() (*Keypair, error) {
	_, private, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate keypair")
	}
	return &Keypair{private: private}, nil
}

// LoadKeypairFile reads a keypair stored in the Solana CLI format, a JSON
// array of the 64 private key bytes. A leading "~/" expands to the home
// directory.
func LoadKeypairFile(path string) (*Keypair, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.Wrap(err, "failed to resolve home directory")
		}
		path = filepath.Join(home, path[2:])
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read keypair file %s", path)
	}

	var values []byte
	var ints []int
	if err := json.Unmarshal(raw, &ints); err != nil {
		return nil, errors.Wrapf(err, "invalid keypair file %s", path)
	}
	for _, v := range ints {
		if v < 0 || v > 255 {
			return nil, errors.Errorf("invalid keypair file %s: byte value %d out of range", path, v)
		}
		values = append(values, byte(v))
	}

	kp, err := NewKeypair(values)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid keypair file %s", path)
	}

	// The second half of the file is the public key, which has to agree with
	// the seed in the first half.
	if !ed25519.NewKeyFromSeed(values[:ed25519.SeedSize]).Equal(kp.private) {
		return nil, errors.Errorf("invalid keypair file %s: public key does not match seed", path)
	}

	return kp, nil
}

// PublicKey implements Signer.PublicKey.
func (k *Keypair) PublicKey() ed25519.PublicKey {
	return k.private.Public().(ed25519.PublicKey)
}

// Sign implements Signer.Sign.
func (k *Keypair) Sign(message []byte) ([]byte, error) {
	return ed25519.Sign(k.private, message), nil
}

// PrivateKey exposes the raw key, mainly for tests.
func (k *Keypair) PrivateKey() ed25519.PrivateKey {
	return k.private
}

func (k *Keypair) String() string {
	return base58.Encode(k.PublicKey())
}
