package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
)

// AddressPrefix is the human-readable prefix of a textual address.
type AddressPrefix string

// MarketPrefix is the prefix used for every marketplace identity.
const MarketPrefix AddressPrefix = "mkt"

// AddressLength is the width of a raw identity in bytes.
const AddressLength = 32

// Address represents a 32-byte marketplace identity with a bech32 text form.
type Address struct {
	prefix AddressPrefix
	bytes  [AddressLength]byte
}

func NewAddress(prefix AddressPrefix, b []byte) (Address, error) {
	if len(b) != AddressLength {
		return Address{}, fmt.Errorf("crypto: address must be %d bytes, got %d", AddressLength, len(b))
	}
	addr := Address{prefix: prefix}
	copy(addr.bytes[:], b)
	return addr, nil
}

// MustNewAddress is a helper for fixed inputs whose length is known to be
// correct (test fixtures, derived hashes).
func MustNewAddress(prefix AddressPrefix, b []byte) Address {
	addr, err := NewAddress(prefix, b)
	if err != nil {
		panic(err)
	}
	return addr
}

func (a Address) Bytes() []byte {
	out := make([]byte, AddressLength)
	copy(out, a.bytes[:])
	return out
}

// Raw returns the identity as a fixed-size array usable as a map key.
func (a Address) Raw() [AddressLength]byte {
	return a.bytes
}

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

// --- Key Management ---

type PrivateKey struct {
	key ed25519.PrivateKey
}

type PublicKey struct {
	key ed25519.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromBytes restores a key from its serialized form.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("crypto: private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(b))
	}
	return &PrivateKey{key: ed25519.PrivateKey(append([]byte(nil), b...))}, nil
}

// Bytes returns the serialized key for storage in a local wallet file.
func (p *PrivateKey) Bytes() []byte {
	return append([]byte(nil), p.key...)
}

func (p *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{key: p.key.Public().(ed25519.PublicKey)}
}

func (p *PrivateKey) Sign(message []byte) []byte {
	return ed25519.Sign(p.key, message)
}

// Address returns the marketplace identity for the key: the public key bytes
// themselves, as identities live on the same edwards25519 key space the
// derivation off-curve check excludes.
func (p *PublicKey) Address() Address {
	return MustNewAddress(MarketPrefix, p.key)
}

func (p *PublicKey) Verify(message, sig []byte) bool {
	return ed25519.Verify(p.key, message, sig)
}
