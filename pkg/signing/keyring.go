// Package signing provides Ed25519 signatures for evidence bundle
// manifests, so an exported bundle can be verified against the signer's
// public key after it leaves the service.
package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

var ErrEmptyScope = errors.New("signing: scope must not be empty")

// KeyProvider abstracts the signing backend so the in-memory keypair can
// be swapped for an HSM or KMS.
type KeyProvider interface {
	Sign(msg []byte) ([]byte, error)
	PublicKey() ed25519.PublicKey
}

// MemoryKeyProvider holds an Ed25519 keypair in process memory.
type MemoryKeyProvider struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

// NewMemoryKeyProvider generates a fresh random keypair.
func NewMemoryKeyProvider() (*MemoryKeyProvider, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &MemoryKeyProvider{pub: pub, priv: priv}, nil
}

func (m *MemoryKeyProvider) Sign(msg []byte) ([]byte, error) {
	return ed25519.Sign(m.priv, msg), nil
}

func (m *MemoryKeyProvider) PublicKey() ed25519.PublicKey {
	return m.pub
}

// Keyring signs manifest bytes through a provider.
type Keyring struct {
	provider KeyProvider
}

// NewKeyring wraps a provider; a nil provider gets an ephemeral
// in-memory keypair.
func NewKeyring(p KeyProvider) *Keyring {
	if p == nil {
		p, _ = NewMemoryKeyProvider()
	}
	return &Keyring{provider: p}
}

// Sign returns the hex-encoded signature over msg.
func (k *Keyring) Sign(msg []byte) (string, error) {
	sig, err := k.provider.Sign(msg)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sig), nil
}

// PublicKeyHex returns the hex-encoded verification key.
func (k *Keyring) PublicKeyHex() string {
	return hex.EncodeToString(k.provider.PublicKey())
}

// Verify checks a hex signature over msg against the keyring's key.
func (k *Keyring) Verify(msg []byte, sigHex string) bool {
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}
	return ed25519.Verify(k.provider.PublicKey(), msg, sig)
}

// DeriveForScope derives a deterministic per-scope keyring via
// HKDF-SHA256 from the master seed, so each export scope (per tenant or
// per policy version) signs with its own keypair.
func (k *Keyring) DeriveForScope(scope string) (*Keyring, error) {
	if scope == "" {
		return nil, ErrEmptyScope
	}
	master, ok := k.provider.(*MemoryKeyProvider)
	if !ok {
		return nil, fmt.Errorf("signing: scope derivation requires MemoryKeyProvider")
	}

	reader := hkdf.New(sha256.New, master.priv.Seed(), []byte("geogov-scope-kdf"), []byte(scope))
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(reader, seed); err != nil {
		return nil, fmt.Errorf("signing: hkdf derivation: %w", err)
	}

	priv := ed25519.NewKeyFromSeed(seed)
	return NewKeyring(&MemoryKeyProvider{
		pub:  priv.Public().(ed25519.PublicKey),
		priv: priv,
	}), nil
}
