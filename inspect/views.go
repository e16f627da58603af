package inspect

import (
	"marketplaced/crypto"
	"marketplaced/native/market"
)

// ListingView is the transport-facing snapshot of a Listing account.
type ListingView struct {
	Address    string `json:"listing_address"`
	Seller     string `json:"seller"`
	Asset      string `json:"asset"`
	Price      uint64 `json:"price"`
	RoyaltyBps uint16 `json:"royalty_bps"`
	Creator    string `json:"creator"`
	Active     bool   `json:"active"`
	Bump       uint8  `json:"bump"`
}

// EscrowView is the transport-facing snapshot of an Escrow account.
type EscrowView struct {
	Address string `json:"escrow_address"`
	Listing string `json:"listing"`
	Buyer   string `json:"buyer"`
	Amount  uint64 `json:"amount"`
	Settled bool   `json:"settled"`
	Bump    uint8  `json:"bump"`
}

// Simulation is the purchase breakdown for a listing snapshot.
type Simulation struct {
	ListingActive bool   `json:"listing_active"`
	TotalPrice    uint64 `json:"total_price"`
	RoyaltyAmount uint64 `json:"royalty_amount"`
	SellerPayout  uint64 `json:"seller_payout"`
	RoyaltyBps    uint16 `json:"royalty_bps"`
}

// Issue is one diagnostic finding from validation.
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationReport aggregates the validation flags and findings for one
// listing. IsValid is true when no issues were recorded and the address
// re-derivation matched; the escrow flags are reported but deliberately do
// not feed the boolean except through recorded issues.
type ValidationReport struct {
	IsValid          bool    `json:"is_valid"`
	PDACorrect       bool    `json:"pda_correct"`
	EscrowExists     bool    `json:"escrow_exists"`
	EscrowConsistent bool    `json:"escrow_consistent"`
	ListingActive    bool    `json:"listing_active"`
	Issues           []Issue `json:"issues"`
}

func identityString(raw [32]byte) string {
	return crypto.MustNewAddress(crypto.MarketPrefix, raw[:]).String()
}

func newListingView(addr crypto.Address, l *market.Listing) *ListingView {
	return &ListingView{
		Address:    addr.String(),
		Seller:     identityString(l.Seller),
		Asset:      identityString(l.Asset),
		Price:      l.Price,
		RoyaltyBps: l.RoyaltyBps,
		Creator:    identityString(l.Creator),
		Active:     l.Active,
		Bump:       l.Bump,
	}
}

func newEscrowView(addr crypto.Address, e *market.Escrow) *EscrowView {
	return &EscrowView{
		Address: addr.String(),
		Listing: identityString(e.Listing),
		Buyer:   identityString(e.Buyer),
		Amount:  e.Amount,
		Settled: e.Settled,
		Bump:    e.Bump,
	}
}
