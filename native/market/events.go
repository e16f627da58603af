package market

import (
	"encoding/hex"
	"strconv"

	"marketplaced/core/types"
)

const (
	EventTypeListingCreated   = "market.listing.created"
	EventTypeEscrowFunded     = "market.escrow.funded"
	EventTypeListingPurchased = "market.listing.purchased"
	EventTypeTradeSettled     = "market.trade.settled"
	EventTypeListingCancelled = "market.listing.cancelled"
)

// NewListingCreatedEvent returns the canonical payload for a new listing.
func NewListingCreatedEvent(addr [32]byte, l *Listing) *types.Event {
	attrs := listingAttrs(addr, l)
	return &types.Event{Type: EventTypeListingCreated, Attributes: attrs}
}

// NewEscrowFundedEvent returns the canonical payload emitted when a buyer
// funds an escrow against a listing.
func NewEscrowFundedEvent(addr [32]byte, e *Escrow) *types.Event {
	attrs := escrowAttrs(addr, e)
	return &types.Event{Type: EventTypeEscrowFunded, Attributes: attrs}
}

// NewListingPurchasedEvent returns the payload for a direct buy, including
// the royalty split actually paid.
func NewListingPurchasedEvent(addr [32]byte, l *Listing, buyer [32]byte, royalty, sellerAmount uint64) *types.Event {
	attrs := listingAttrs(addr, l)
	attrs["buyer"] = hex.EncodeToString(buyer[:])
	attrs["royaltyAmount"] = strconv.FormatUint(royalty, 10)
	attrs["sellerAmount"] = strconv.FormatUint(sellerAmount, 10)
	return &types.Event{Type: EventTypeListingPurchased, Attributes: attrs}
}

// NewTradeSettledEvent returns the payload for an escrow settlement.
func NewTradeSettledEvent(listingAddr, escrowAddr [32]byte, l *Listing, e *Escrow, royalty, sellerAmount uint64) *types.Event {
	attrs := listingAttrs(listingAddr, l)
	attrs["escrow"] = hex.EncodeToString(escrowAddr[:])
	if e != nil {
		attrs["buyer"] = hex.EncodeToString(e.Buyer[:])
		attrs["amount"] = strconv.FormatUint(e.Amount, 10)
	}
	attrs["royaltyAmount"] = strconv.FormatUint(royalty, 10)
	attrs["sellerAmount"] = strconv.FormatUint(sellerAmount, 10)
	return &types.Event{Type: EventTypeTradeSettled, Attributes: attrs}
}

// NewListingCancelledEvent returns the payload for a cancellation. When an
// escrow was refunded as part of the cancel its details are included.
func NewListingCancelledEvent(addr [32]byte, l *Listing, refunded *Escrow) *types.Event {
	attrs := listingAttrs(addr, l)
	if refunded != nil {
		attrs["refundedBuyer"] = hex.EncodeToString(refunded.Buyer[:])
		attrs["refundedAmount"] = strconv.FormatUint(refunded.Amount, 10)
	}
	return &types.Event{Type: EventTypeListingCancelled, Attributes: attrs}
}

func listingAttrs(addr [32]byte, l *Listing) map[string]string {
	attrs := make(map[string]string)
	attrs["listing"] = hex.EncodeToString(addr[:])
	if l == nil {
		return attrs
	}
	attrs["seller"] = hex.EncodeToString(l.Seller[:])
	attrs["asset"] = hex.EncodeToString(l.Asset[:])
	attrs["price"] = strconv.FormatUint(l.Price, 10)
	attrs["royaltyBps"] = strconv.FormatUint(uint64(l.RoyaltyBps), 10)
	attrs["creator"] = hex.EncodeToString(l.Creator[:])
	attrs["active"] = strconv.FormatBool(l.Active)
	return attrs
}

func escrowAttrs(addr [32]byte, e *Escrow) map[string]string {
	attrs := make(map[string]string)
	attrs["escrow"] = hex.EncodeToString(addr[:])
	if e == nil {
		return attrs
	}
	attrs["listing"] = hex.EncodeToString(e.Listing[:])
	attrs["buyer"] = hex.EncodeToString(e.Buyer[:])
	attrs["amount"] = strconv.FormatUint(e.Amount, 10)
	attrs["settled"] = strconv.FormatBool(e.Settled)
	return attrs
}
