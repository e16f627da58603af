// Package market implements the escrow-based marketplace ledger: the Listing
// and Escrow records, their fixed-layout account codec, deterministic address
// derivation, and the settlement engine that moves value and transfers the
// asset unit between the parties.
package market

import (
	"crypto/sha256"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"marketplaced/crypto"
)

var programSeed = sha256.Sum256([]byte("marketplaced/program/marketplace/v1"))

// DefaultProgram returns the identity that owns every Listing and Escrow
// account written by the engine.
func DefaultProgram() crypto.Address {
	return crypto.MustNewAddress(crypto.MarketPrefix, programSeed[:])
}

// DeriveAssetID computes the deterministic identifier for an indivisible
// asset unit registered by a creator.
func DeriveAssetID(creator [32]byte, symbol string) [32]byte {
	return ethcrypto.Keccak256Hash(creator[:], []byte(symbol))
}
