package market

import (
	"bytes"
	"errors"
	"math/big"

	"marketplaced/core/events"
	"marketplaced/core/types"
	"marketplaced/crypto"
)

var (
	errNilState = errors.New("market engine: state not configured")
)

type engineState interface {
	GetAccount(addr [32]byte) (*types.Account, error)
	PutAccount(addr [32]byte, account *types.Account) error
	AccountExists(addr [32]byte) (bool, error)
	AssetHolder(asset [32]byte) ([32]byte, bool, error)
	SetAssetHolder(asset, holder [32]byte) error
}

type marketEvent struct {
	evt *types.Event
}

func (e marketEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e marketEvent) Event() *types.Event { return e.evt }

// Engine executes the five marketplace state transitions against an external
// state backend. Each operation runs under the caller's atomic-transaction
// guarantee: the engine validates every precondition, including balances and
// asset custody, before the first mutation, so a transition either fully
// applies or leaves no trace.
type Engine struct {
	state   engineState
	emitter events.Emitter
	program crypto.Address
}

// NewEngine creates a market engine owned by the given program identity,
// with a no-op emitter. Callers can override the emitter via SetEmitter.
func NewEngine(program crypto.Address) *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		program: program,
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Program returns the identity owning every record the engine writes.
func (e *Engine) Program() crypto.Address { return e.program }

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(marketEvent{evt: event})
}

func ensureAccount(acc *types.Account) *types.Account {
	if acc == nil {
		return &types.Account{Balance: big.NewInt(0)}
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc
}

func (e *Engine) account(addr [32]byte) (*types.Account, error) {
	acc, err := e.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	return ensureAccount(acc), nil
}

// balanceCovers reports whether the account at addr can pay amount. Used to
// validate transfers before any mutation happens.
func (e *Engine) balanceCovers(addr [32]byte, amount uint64) (bool, error) {
	acc, err := e.account(addr)
	if err != nil {
		return false, err
	}
	return acc.Balance.Cmp(new(big.Int).SetUint64(amount)) >= 0, nil
}

// transfer moves amount from one account balance to another. Zero-amount
// transfers are skipped. A self-transfer only checks that the balance
// covers the amount; debiting and crediting the same account through two
// loaded copies would let the credit clobber the debit.
func (e *Engine) transfer(from, to [32]byte, amount uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if amount == 0 {
		return nil
	}
	amt := new(big.Int).SetUint64(amount)
	if from == to {
		covered, err := e.balanceCovers(from, amount)
		if err != nil {
			return err
		}
		if !covered {
			return ErrInsufficientFunds
		}
		return nil
	}
	fromAcc, err := e.account(from)
	if err != nil {
		return err
	}
	toAcc, err := e.account(to)
	if err != nil {
		return err
	}
	if fromAcc.Balance.Cmp(amt) < 0 {
		return ErrInsufficientFunds
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amt)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amt)
	if err := e.state.PutAccount(from, fromAcc); err != nil {
		return err
	}
	return e.state.PutAccount(to, toAcc)
}

func (e *Engine) loadListing(addr [32]byte) (*Listing, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	acc, err := e.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if acc == nil || len(acc.Data) == 0 {
		return nil, ErrListingNotFound
	}
	if !bytes.Equal(acc.Owner, e.program.Bytes()) {
		return nil, ErrListingNotFound
	}
	return DecodeListing(acc.Data)
}

func (e *Engine) loadEscrow(addr [32]byte) (*Escrow, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	acc, err := e.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if acc == nil || len(acc.Data) == 0 {
		return nil, ErrEscrowNotFound
	}
	if !bytes.Equal(acc.Owner, e.program.Bytes()) {
		return nil, ErrEscrowNotFound
	}
	return DecodeEscrow(acc.Data)
}

// storeRecord writes encoded record bytes into the account at addr, claiming
// it for the program while preserving any balance the account carries.
func (e *Engine) storeRecord(addr [32]byte, data []byte) error {
	acc, err := e.account(addr)
	if err != nil {
		return err
	}
	acc.Owner = e.program.Bytes()
	acc.Data = data
	return e.state.PutAccount(addr, acc)
}

func (e *Engine) storeListing(addr [32]byte, l *Listing) error {
	if err := SanitizeListing(l); err != nil {
		return err
	}
	return e.storeRecord(addr, EncodeListing(l))
}

func (e *Engine) storeEscrow(addr [32]byte, esc *Escrow) error {
	if err := SanitizeEscrow(esc); err != nil {
		return err
	}
	return e.storeRecord(addr, EncodeEscrow(esc))
}

// List creates a new active listing for one unit of asset at the given
// price. The creator defaults to the seller until creator metadata is wired
// in. Returns the stored listing and its derived address.
func (e *Engine) List(seller, asset [32]byte, price uint64, royaltyBps uint16) (*Listing, [32]byte, error) {
	if e == nil || e.state == nil {
		return nil, [32]byte{}, errNilState
	}
	if price == 0 {
		return nil, [32]byte{}, ErrInvalidPrice
	}
	if royaltyBps > MaxRoyaltyBps {
		return nil, [32]byte{}, ErrInvalidRoyalty
	}
	holder, held, err := e.state.AssetHolder(asset)
	if err != nil {
		return nil, [32]byte{}, err
	}
	if !held || holder != seller {
		return nil, [32]byte{}, ErrAssetNotHeld
	}
	addr, bump, err := DeriveListingAddress(e.program, asset, seller)
	if err != nil {
		return nil, [32]byte{}, err
	}
	raw := addr.Raw()
	occupied, err := e.state.AccountExists(raw)
	if err != nil {
		return nil, [32]byte{}, err
	}
	if occupied {
		return nil, [32]byte{}, ErrListingExists
	}
	listing := &Listing{
		Seller:     seller,
		Asset:      asset,
		Price:      price,
		RoyaltyBps: royaltyBps,
		Creator:    seller,
		Active:     true,
		Bump:       bump,
	}
	if err := e.storeListing(raw, listing); err != nil {
		return nil, [32]byte{}, err
	}
	e.emit(NewListingCreatedEvent(raw, listing))
	return listing, raw, nil
}

// FundEscrow moves the listing price from the buyer into a freshly created
// escrow account derived from the listing address.
func (e *Engine) FundEscrow(buyer, listingAddr [32]byte) (*Escrow, [32]byte, error) {
	if e == nil || e.state == nil {
		return nil, [32]byte{}, errNilState
	}
	listing, err := e.loadListing(listingAddr)
	if err != nil {
		return nil, [32]byte{}, err
	}
	if !listing.Active {
		return nil, [32]byte{}, ErrListingInactive
	}
	addr, bump, err := DeriveEscrowAddress(e.program, listingAddr)
	if err != nil {
		return nil, [32]byte{}, err
	}
	raw := addr.Raw()
	occupied, err := e.state.AccountExists(raw)
	if err != nil {
		return nil, [32]byte{}, err
	}
	if occupied {
		return nil, [32]byte{}, ErrEscrowExists
	}
	covered, err := e.balanceCovers(buyer, listing.Price)
	if err != nil {
		return nil, [32]byte{}, err
	}
	if !covered {
		return nil, [32]byte{}, ErrInsufficientFunds
	}
	if err := e.transfer(buyer, raw, listing.Price); err != nil {
		return nil, [32]byte{}, err
	}
	escrow := &Escrow{
		Listing: listingAddr,
		Buyer:   buyer,
		Amount:  listing.Price,
		Settled: false,
		Bump:    bump,
	}
	if err := e.storeEscrow(raw, escrow); err != nil {
		return nil, [32]byte{}, err
	}
	e.emit(NewEscrowFundedEvent(raw, escrow))
	return escrow, raw, nil
}

// BuyDirect settles a purchase without an escrow: royalty to the creator
// (skipped when zero), remainder to the seller, then the asset unit to the
// buyer, in that order. The ordering is part of the observable contract.
func (e *Engine) BuyDirect(buyer, seller, creator, listingAddr [32]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	listing, err := e.loadListing(listingAddr)
	if err != nil {
		return err
	}
	if !listing.Active {
		return ErrListingInactive
	}
	if listing.Seller != seller || listing.Creator != creator {
		return ErrListingMismatch
	}
	holder, held, err := e.state.AssetHolder(listing.Asset)
	if err != nil {
		return err
	}
	if !held || holder != seller {
		return ErrAssetNotHeld
	}
	royalty, sellerAmount, err := SplitPrice(listing.Price, listing.RoyaltyBps)
	if err != nil {
		return err
	}
	covered, err := e.balanceCovers(buyer, listing.Price)
	if err != nil {
		return err
	}
	if !covered {
		return ErrInsufficientFunds
	}
	if royalty > 0 {
		if err := e.transfer(buyer, creator, royalty); err != nil {
			return err
		}
	}
	if err := e.transfer(buyer, seller, sellerAmount); err != nil {
		return err
	}
	if err := e.state.SetAssetHolder(listing.Asset, buyer); err != nil {
		return err
	}
	listing.Active = false
	if err := e.storeListing(listingAddr, listing); err != nil {
		return err
	}
	e.emit(NewListingPurchasedEvent(listingAddr, listing, buyer, royalty, sellerAmount))
	return nil
}

// SettleTrade disburses a funded escrow: the asset unit moves first, then
// the royalty and seller legs are paid out of the escrow's held balance.
// Deactivates the listing and marks the escrow settled.
func (e *Engine) SettleTrade(buyer, seller, creator, listingAddr [32]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	listing, err := e.loadListing(listingAddr)
	if err != nil {
		return err
	}
	if !listing.Active {
		return ErrListingInactive
	}
	if listing.Seller != seller || listing.Creator != creator {
		return ErrListingMismatch
	}
	escrowAddr, _, err := DeriveEscrowAddress(e.program, listingAddr)
	if err != nil {
		return err
	}
	rawEscrow := escrowAddr.Raw()
	escrow, err := e.loadEscrow(rawEscrow)
	if err != nil {
		return err
	}
	if escrow.Settled {
		return ErrEscrowSettled
	}
	if escrow.Listing != listingAddr || escrow.Buyer != buyer {
		return ErrEscrowMismatch
	}
	if escrow.Amount != listing.Price {
		return ErrInvalidPrice
	}
	covered, err := e.balanceCovers(rawEscrow, escrow.Amount)
	if err != nil {
		return err
	}
	if !covered {
		return ErrInvalidPrice
	}
	holder, held, err := e.state.AssetHolder(listing.Asset)
	if err != nil {
		return err
	}
	if !held || holder != seller {
		return ErrAssetNotHeld
	}
	royalty, sellerAmount, err := SplitPrice(escrow.Amount, listing.RoyaltyBps)
	if err != nil {
		return err
	}
	if err := e.state.SetAssetHolder(listing.Asset, buyer); err != nil {
		return err
	}
	if royalty > 0 {
		if err := e.transfer(rawEscrow, creator, royalty); err != nil {
			return err
		}
	}
	if err := e.transfer(rawEscrow, seller, sellerAmount); err != nil {
		return err
	}
	listing.Active = false
	escrow.Settled = true
	if err := e.storeListing(listingAddr, listing); err != nil {
		return err
	}
	if err := e.storeEscrow(rawEscrow, escrow); err != nil {
		return err
	}
	e.emit(NewTradeSettledEvent(listingAddr, rawEscrow, listing, escrow, royalty, sellerAmount))
	return nil
}

// CancelListing deactivates an active listing. When an unsettled escrow
// exists its full amount is refunded to the recorded buyer and the escrow is
// marked settled-by-refund.
func (e *Engine) CancelListing(seller, listingAddr [32]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	listing, err := e.loadListing(listingAddr)
	if err != nil {
		return err
	}
	if !listing.Active {
		return ErrListingInactive
	}
	if listing.Seller != seller {
		return ErrUnauthorized
	}
	escrowAddr, _, err := DeriveEscrowAddress(e.program, listingAddr)
	if err != nil {
		return err
	}
	rawEscrow := escrowAddr.Raw()
	escrow, err := e.loadEscrow(rawEscrow)
	switch {
	case errors.Is(err, ErrEscrowNotFound):
		escrow = nil
	case err != nil:
		return err
	}
	if escrow != nil {
		if escrow.Settled {
			return ErrEscrowSettled
		}
		if escrow.Buyer == ([32]byte{}) {
			return ErrMissingBuyer
		}
		if err := e.transfer(rawEscrow, escrow.Buyer, escrow.Amount); err != nil {
			return err
		}
		escrow.Settled = true
		if err := e.storeEscrow(rawEscrow, escrow); err != nil {
			return err
		}
	}
	listing.Active = false
	if err := e.storeListing(listingAddr, listing); err != nil {
		return err
	}
	e.emit(NewListingCancelledEvent(listingAddr, listing, escrow))
	return nil
}
