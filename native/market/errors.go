package market

import "errors"

// Validation and settlement failures. Every operation aborts with one of
// these before mutating any state.
var (
	ErrInvalidPrice      = errors.New("market: price must be greater than zero")
	ErrInvalidRoyalty    = errors.New("market: royalty basis points must be <= 10000")
	ErrListingInactive   = errors.New("market: listing is not active")
	ErrMissingBuyer      = errors.New("market: buyer is required when escrow exists")
	ErrListingNotFound   = errors.New("market: listing not found")
	ErrEscrowNotFound    = errors.New("market: escrow not found")
	ErrListingExists     = errors.New("market: listing address already occupied")
	ErrEscrowExists      = errors.New("market: escrow address already occupied")
	ErrEscrowSettled     = errors.New("market: escrow already settled")
	ErrEscrowMismatch    = errors.New("market: escrow does not reference this listing and buyer")
	ErrListingMismatch   = errors.New("market: listing fields do not match supplied identities")
	ErrAssetNotHeld      = errors.New("market: seller does not hold the asset unit")
	ErrInsufficientFunds = errors.New("market: insufficient balance")
	ErrUnauthorized      = errors.New("market: caller is not authorized")
)

// Codec failures, ordered by how early decoding aborts.
var (
	ErrTooShort              = errors.New("market: account data too short")
	ErrDiscriminatorMismatch = errors.New("market: account discriminator mismatch")
	ErrMalformedFields       = errors.New("market: malformed account fields")
)
