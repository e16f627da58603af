package market

import "marketplaced/crypto"

// Derivation seed tags. A listing address is derived from the asset and
// seller identities; an escrow address solely from its listing's address, so
// at most one escrow can exist per listing.
var (
	listingSeed = []byte("listing")
	escrowSeed  = []byte("escrow")
)

// DeriveListingAddress returns the deterministic account address for the
// (asset, seller) pair together with the bump that made it valid.
func DeriveListingAddress(program crypto.Address, asset, seller [32]byte) (crypto.Address, uint8, error) {
	return crypto.DeriveAddress(program, listingSeed, asset[:], seller[:])
}

// DeriveEscrowAddress returns the deterministic account address for the
// escrow attached to a listing.
func DeriveEscrowAddress(program crypto.Address, listing [32]byte) (crypto.Address, uint8, error) {
	return crypto.DeriveAddress(program, escrowSeed, listing[:])
}
