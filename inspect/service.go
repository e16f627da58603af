// Package inspect provides the read-only marketplace views: account state
// queries, purchase simulation and listing validation. It works on account
// snapshots fetched through an AccountSource and never mutates ledger state.
package inspect

import (
	"bytes"
	"errors"
	"fmt"

	"marketplaced/core/types"
	"marketplaced/crypto"
	"marketplaced/native/market"
)

var (
	// ErrNotFound is returned when no account exists at the queried address.
	ErrNotFound = errors.New("inspect: account not found")
	// ErrNotOwnedByProgram is returned when the account exists but is not
	// owned by the marketplace program.
	ErrNotOwnedByProgram = errors.New("inspect: account not owned by marketplace program")
)

// AccountSource fetches account snapshots. Implementations must return
// copies; the service never sees references into live state. A nil account
// with a nil error means the address is unoccupied.
type AccountSource interface {
	AccountInfo(addr [32]byte) (*types.Account, error)
}

// Service answers read-only marketplace queries.
type Service struct {
	src     AccountSource
	program crypto.Address
}

// NewService builds an inspection service over the given account source,
// validating ownership against the supplied program identity.
func NewService(src AccountSource, program crypto.Address) *Service {
	return &Service{src: src, program: program}
}

func (s *Service) fetchRecord(addr [32]byte) ([]byte, error) {
	account, err := s.src.AccountInfo(addr)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrNotFound
	}
	if !bytes.Equal(account.Owner, s.program.Bytes()) {
		return nil, ErrNotOwnedByProgram
	}
	return account.Data, nil
}

func (s *Service) fetchListing(addr [32]byte) (*market.Listing, error) {
	data, err := s.fetchRecord(addr)
	if err != nil {
		return nil, err
	}
	return market.DecodeListing(data)
}

func (s *Service) fetchEscrow(addr [32]byte) (*market.Escrow, error) {
	data, err := s.fetchRecord(addr)
	if err != nil {
		return nil, err
	}
	return market.DecodeEscrow(data)
}

// GetListingState fetches and decodes the listing stored at addr.
func (s *Service) GetListingState(addr crypto.Address) (*ListingView, error) {
	listing, err := s.fetchListing(addr.Raw())
	if err != nil {
		return nil, err
	}
	return newListingView(addr, listing), nil
}

// GetEscrowState fetches and decodes the escrow stored at addr.
func (s *Service) GetEscrowState(addr crypto.Address) (*EscrowView, error) {
	escrow, err := s.fetchEscrow(addr.Raw())
	if err != nil {
		return nil, err
	}
	return newEscrowView(addr, escrow), nil
}

// GetListingSummary derives the listing address for (asset, seller) and
// returns its state.
func (s *Service) GetListingSummary(asset, seller [32]byte) (*ListingView, error) {
	addr, _, err := market.DeriveListingAddress(s.program, asset, seller)
	if err != nil {
		return nil, err
	}
	return s.GetListingState(addr)
}

// SimulatePurchase reproduces the settlement math for the listing at addr
// without side effects. It shares the split function with the settlement
// engine, so the breakdown matches a direct buy bit for bit.
func (s *Service) SimulatePurchase(addr crypto.Address) (*Simulation, error) {
	listing, err := s.fetchListing(addr.Raw())
	if err != nil {
		return nil, err
	}
	royalty, sellerPayout, err := market.SplitPrice(listing.Price, listing.RoyaltyBps)
	if err != nil {
		return nil, err
	}
	return &Simulation{
		ListingActive: listing.Active,
		TotalPrice:    listing.Price,
		RoyaltyAmount: royalty,
		SellerPayout:  sellerPayout,
		RoyaltyBps:    listing.RoyaltyBps,
	}, nil
}

// ValidateListing checks the listing at addr for derivation and
// cross-record consistency. It short-circuits only on fetch failure;
// otherwise independent problems accumulate in the issues list. Escrow
// absence is not an issue: listings without escrows are valid.
func (s *Service) ValidateListing(addr crypto.Address) *ValidationReport {
	report := &ValidationReport{Issues: []Issue{}}

	raw := addr.Raw()
	listing, err := s.fetchListing(raw)
	if err != nil {
		report.Issues = append(report.Issues, Issue{
			Field:   "listing",
			Message: fmt.Sprintf("failed to fetch listing: %v", err),
		})
		return report
	}
	report.ListingActive = listing.Active

	derived, derivedBump, err := market.DeriveListingAddress(s.program, listing.Asset, listing.Seller)
	if err != nil {
		report.Issues = append(report.Issues, Issue{
			Field:   "pda_derivation",
			Message: fmt.Sprintf("failed to derive listing address: %v", err),
		})
	} else {
		if derived.Raw() == raw {
			report.PDACorrect = true
		} else {
			report.Issues = append(report.Issues, Issue{
				Field:   "pda",
				Message: fmt.Sprintf("address mismatch: expected %s, got %s", derived, addr),
			})
		}
		// The stored bump can drift independently of the address, so it is
		// checked as a separate issue.
		if derivedBump != listing.Bump {
			report.Issues = append(report.Issues, Issue{
				Field:   "bump",
				Message: fmt.Sprintf("bump mismatch: expected %d, got %d", derivedBump, listing.Bump),
			})
		}
	}

	escrowAddr, _, err := market.DeriveEscrowAddress(s.program, raw)
	if err != nil {
		report.Issues = append(report.Issues, Issue{
			Field:   "escrow_pda_derivation",
			Message: fmt.Sprintf("failed to derive escrow address: %v", err),
		})
	} else if escrow, err := s.fetchEscrow(escrowAddr.Raw()); err == nil {
		report.EscrowExists = true
		if escrow.Listing == raw {
			report.EscrowConsistent = true
		} else {
			report.Issues = append(report.Issues, Issue{
				Field:   "escrow_listing",
				Message: "escrow listing reference mismatch",
			})
		}
		if escrow.Amount != listing.Price {
			report.Issues = append(report.Issues, Issue{
				Field:   "escrow_amount",
				Message: fmt.Sprintf("escrow amount %d does not match listing price %d", escrow.Amount, listing.Price),
			})
		}
		if escrow.Settled && listing.Active {
			report.Issues = append(report.Issues, Issue{
				Field:   "state_consistency",
				Message: "escrow is settled but listing is still active",
			})
		}
	}
	// A failed escrow fetch is fine: listings without escrows are valid.

	report.IsValid = len(report.Issues) == 0 && report.PDACorrect
	return report
}
