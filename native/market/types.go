package market

import "fmt"

// MaxRoyaltyBps caps the royalty rate at 100%.
const MaxRoyaltyBps uint16 = 10_000

// Listing describes an open offer to sell one unit of an indivisible asset
// at a fixed price with a fixed-ratio royalty owed to the creator. The
// record's account address is derived solely from (asset, seller), so at
// most one listing exists per pair.
type Listing struct {
	Seller     [32]byte
	Asset      [32]byte
	Price      uint64
	RoyaltyBps uint16
	Creator    [32]byte
	Active     bool
	Bump       uint8
}

// Escrow holds the funds a buyer pledged against a specific listing. The
// listing field is a back-reference by address, not an owning pointer: the
// escrow is settled or refunded independently and validation re-derives the
// link instead of trusting it.
type Escrow struct {
	Listing [32]byte
	Buyer   [32]byte
	Amount  uint64
	Settled bool
	Bump    uint8
}

// SanitizeListing checks the listing's own invariants. It is applied before
// every store so corrupt records never reach the codec.
func SanitizeListing(l *Listing) error {
	if l == nil {
		return fmt.Errorf("market: nil listing")
	}
	if l.Price == 0 {
		return ErrInvalidPrice
	}
	if l.RoyaltyBps > MaxRoyaltyBps {
		return ErrInvalidRoyalty
	}
	return nil
}

// SanitizeEscrow checks the escrow's own invariants.
func SanitizeEscrow(e *Escrow) error {
	if e == nil {
		return fmt.Errorf("market: nil escrow")
	}
	if e.Amount == 0 {
		return ErrInvalidPrice
	}
	return nil
}
