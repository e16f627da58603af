package market

import (
	"errors"
	"math/big"
	"testing"

	"marketplaced/core/events"
	"marketplaced/core/types"
)

type mockState struct {
	accounts map[[32]byte]*types.Account
	assets   map[[32]byte][32]byte
}

func newMockState() *mockState {
	return &mockState{
		accounts: make(map[[32]byte]*types.Account),
		assets:   make(map[[32]byte][32]byte),
	}
}

func (m *mockState) GetAccount(addr [32]byte) (*types.Account, error) {
	acc, ok := m.accounts[addr]
	if !ok {
		return nil, nil
	}
	return acc.Clone(), nil
}

func (m *mockState) PutAccount(addr [32]byte, account *types.Account) error {
	m.accounts[addr] = account.Clone()
	return nil
}

func (m *mockState) AccountExists(addr [32]byte) (bool, error) {
	_, ok := m.accounts[addr]
	return ok, nil
}

func (m *mockState) AssetHolder(asset [32]byte) ([32]byte, bool, error) {
	holder, ok := m.assets[asset]
	return holder, ok, nil
}

func (m *mockState) SetAssetHolder(asset, holder [32]byte) error {
	m.assets[asset] = holder
	return nil
}

func (m *mockState) setBalance(addr [32]byte, amount uint64) {
	acc := m.accounts[addr]
	if acc == nil {
		acc = &types.Account{Balance: big.NewInt(0)}
	}
	acc.Balance = new(big.Int).SetUint64(amount)
	m.accounts[addr] = acc
}

func (m *mockState) balance(addr [32]byte) uint64 {
	acc, ok := m.accounts[addr]
	if !ok || acc.Balance == nil {
		return 0
	}
	return acc.Balance.Uint64()
}

type capturingEmitter struct {
	events []events.Event
}

func (c *capturingEmitter) Emit(evt events.Event) { c.events = append(c.events, evt) }

func eventSeen(emitter *capturingEmitter, eventType string) bool {
	for _, evt := range emitter.events {
		if evt.EventType() == eventType {
			return true
		}
	}
	return false
}

func newTestAddress(b byte) [32]byte {
	var addr [32]byte
	for i := range addr {
		addr[i] = b
	}
	return addr
}

func setupEngine(t *testing.T) (*Engine, *mockState, *capturingEmitter) {
	t.Helper()
	state := newMockState()
	engine := NewEngine(DefaultProgram())
	engine.SetState(state)
	emitter := &capturingEmitter{}
	engine.SetEmitter(emitter)
	return engine, state, emitter
}

func TestListCreatesActiveListing(t *testing.T) {
	engine, state, emitter := setupEngine(t)
	seller := newTestAddress(0x01)
	asset := DeriveAssetID(seller, "unit-1")
	state.assets[asset] = seller

	listing, addr, err := engine.List(seller, asset, 1_000_000, 250)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if !listing.Active || listing.Creator != seller || listing.Price != 1_000_000 {
		t.Fatalf("unexpected listing %+v", listing)
	}

	want, bump, err := DeriveListingAddress(DefaultProgram(), asset, seller)
	if err != nil {
		t.Fatalf("DeriveListingAddress error: %v", err)
	}
	if addr != want.Raw() {
		t.Fatalf("listing stored at %x, want %x", addr, want.Raw())
	}
	if listing.Bump != bump {
		t.Fatalf("stored bump %d, derived %d", listing.Bump, bump)
	}

	stored, err := engine.loadListing(addr)
	if err != nil {
		t.Fatalf("loadListing error: %v", err)
	}
	if *stored != *listing {
		t.Fatalf("stored listing %+v differs from returned %+v", stored, listing)
	}
	if !eventSeen(emitter, EventTypeListingCreated) {
		t.Fatalf("expected listing created event")
	}
}

func TestListPreconditions(t *testing.T) {
	engine, state, _ := setupEngine(t)
	seller := newTestAddress(0x01)
	asset := DeriveAssetID(seller, "unit-1")
	state.assets[asset] = seller

	if _, _, err := engine.List(seller, asset, 0, 250); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
	if _, _, err := engine.List(seller, asset, 100, 10_001); !errors.Is(err, ErrInvalidRoyalty) {
		t.Fatalf("expected ErrInvalidRoyalty, got %v", err)
	}

	other := DeriveAssetID(seller, "unit-2")
	if _, _, err := engine.List(seller, other, 100, 0); !errors.Is(err, ErrAssetNotHeld) {
		t.Fatalf("expected ErrAssetNotHeld for unregistered asset, got %v", err)
	}

	if _, _, err := engine.List(seller, asset, 100, 0); err != nil {
		t.Fatalf("List error: %v", err)
	}
	if _, _, err := engine.List(seller, asset, 100, 0); !errors.Is(err, ErrListingExists) {
		t.Fatalf("expected ErrListingExists, got %v", err)
	}
}

func TestFundEscrowMovesPriceIntoEscrow(t *testing.T) {
	engine, state, emitter := setupEngine(t)
	seller := newTestAddress(0x01)
	buyer := newTestAddress(0x02)
	asset := DeriveAssetID(seller, "unit-1")
	state.assets[asset] = seller
	state.setBalance(buyer, 2_000_000)

	_, listingAddr, err := engine.List(seller, asset, 1_000_000, 250)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}

	escrow, escrowAddr, err := engine.FundEscrow(buyer, listingAddr)
	if err != nil {
		t.Fatalf("FundEscrow error: %v", err)
	}
	if escrow.Amount != 1_000_000 || escrow.Settled || escrow.Listing != listingAddr || escrow.Buyer != buyer {
		t.Fatalf("unexpected escrow %+v", escrow)
	}
	if got := state.balance(buyer); got != 1_000_000 {
		t.Fatalf("buyer balance %d after funding, want 1000000", got)
	}
	if got := state.balance(escrowAddr); got != 1_000_000 {
		t.Fatalf("escrow balance %d after funding, want 1000000", got)
	}
	if !eventSeen(emitter, EventTypeEscrowFunded) {
		t.Fatalf("expected escrow funded event")
	}

	if _, _, err := engine.FundEscrow(buyer, listingAddr); !errors.Is(err, ErrEscrowExists) {
		t.Fatalf("expected ErrEscrowExists, got %v", err)
	}
}

func TestFundEscrowInsufficientFunds(t *testing.T) {
	engine, state, _ := setupEngine(t)
	seller := newTestAddress(0x01)
	buyer := newTestAddress(0x02)
	asset := DeriveAssetID(seller, "unit-1")
	state.assets[asset] = seller
	state.setBalance(buyer, 999_999)

	_, listingAddr, err := engine.List(seller, asset, 1_000_000, 250)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if _, _, err := engine.FundEscrow(buyer, listingAddr); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if got := state.balance(buyer); got != 999_999 {
		t.Fatalf("buyer balance mutated to %d on failed fund", got)
	}
}

// storeTestListing writes a listing record directly, bypassing List, so tests
// can exercise listings whose creator differs from the seller.
func storeTestListing(t *testing.T, engine *Engine, state *mockState, l *Listing) [32]byte {
	t.Helper()
	addr, bump, err := DeriveListingAddress(DefaultProgram(), l.Asset, l.Seller)
	if err != nil {
		t.Fatalf("DeriveListingAddress error: %v", err)
	}
	l.Bump = bump
	state.accounts[addr.Raw()] = &types.Account{
		Balance: big.NewInt(0),
		Owner:   DefaultProgram().Bytes(),
		Data:    EncodeListing(l),
	}
	return addr.Raw()
}

func TestBuyDirectSplitsRoyalty(t *testing.T) {
	engine, state, emitter := setupEngine(t)
	seller := newTestAddress(0x01)
	buyer := newTestAddress(0x02)
	creator := newTestAddress(0x03)
	asset := DeriveAssetID(creator, "unit-1")
	state.assets[asset] = seller
	state.setBalance(buyer, 1_500_000)

	listingAddr := storeTestListing(t, engine, state, &Listing{
		Seller:     seller,
		Asset:      asset,
		Price:      1_000_000,
		RoyaltyBps: 250,
		Creator:    creator,
		Active:     true,
	})

	if err := engine.BuyDirect(buyer, seller, creator, listingAddr); err != nil {
		t.Fatalf("BuyDirect error: %v", err)
	}
	if got := state.balance(creator); got != 25_000 {
		t.Fatalf("creator received %d, want 25000", got)
	}
	if got := state.balance(seller); got != 975_000 {
		t.Fatalf("seller received %d, want 975000", got)
	}
	if got := state.balance(buyer); got != 500_000 {
		t.Fatalf("buyer left with %d, want 500000", got)
	}
	if holder := state.assets[asset]; holder != buyer {
		t.Fatalf("asset holder %x, want buyer", holder)
	}
	listing, err := engine.loadListing(listingAddr)
	if err != nil {
		t.Fatalf("loadListing error: %v", err)
	}
	if listing.Active {
		t.Fatalf("listing still active after buy")
	}
	if !eventSeen(emitter, EventTypeListingPurchased) {
		t.Fatalf("expected purchase event")
	}

	if err := engine.BuyDirect(buyer, seller, creator, listingAddr); !errors.Is(err, ErrListingInactive) {
		t.Fatalf("expected ErrListingInactive on second buy, got %v", err)
	}
}

func TestBuyDirectZeroRoyaltySkipsCreatorLeg(t *testing.T) {
	engine, state, _ := setupEngine(t)
	seller := newTestAddress(0x01)
	buyer := newTestAddress(0x02)
	creator := newTestAddress(0x03)
	asset := DeriveAssetID(creator, "unit-1")
	state.assets[asset] = seller
	state.setBalance(buyer, 1_000_000)

	listingAddr := storeTestListing(t, engine, state, &Listing{
		Seller:     seller,
		Asset:      asset,
		Price:      1_000_000,
		RoyaltyBps: 0,
		Creator:    creator,
		Active:     true,
	})

	if err := engine.BuyDirect(buyer, seller, creator, listingAddr); err != nil {
		t.Fatalf("BuyDirect error: %v", err)
	}
	if _, ok := state.accounts[creator]; ok {
		t.Fatalf("creator account touched despite zero royalty")
	}
	if got := state.balance(seller); got != 1_000_000 {
		t.Fatalf("seller received %d, want full price", got)
	}
}

func TestBuyDirectSelfPurchaseConservesValue(t *testing.T) {
	engine, state, _ := setupEngine(t)
	seller := newTestAddress(0x01)
	asset := DeriveAssetID(seller, "unit-1")
	state.assets[asset] = seller
	state.setBalance(seller, 1_000_000)

	listingAddr := storeTestListing(t, engine, state, &Listing{
		Seller:     seller,
		Asset:      asset,
		Price:      1_000_000,
		RoyaltyBps: 250,
		Creator:    seller,
		Active:     true,
	})

	if err := engine.BuyDirect(seller, seller, seller, listingAddr); err != nil {
		t.Fatalf("BuyDirect error: %v", err)
	}
	if got := state.balance(seller); got != 1_000_000 {
		t.Fatalf("seller balance %d after self-purchase, want 1000000", got)
	}
	if holder := state.assets[asset]; holder != seller {
		t.Fatalf("asset holder %x, want seller", holder)
	}
	listing, err := engine.loadListing(listingAddr)
	if err != nil {
		t.Fatalf("loadListing error: %v", err)
	}
	if listing.Active {
		t.Fatalf("listing still active after self-purchase")
	}
}

func TestBuyDirectBuyerIsCreator(t *testing.T) {
	engine, state, _ := setupEngine(t)
	seller := newTestAddress(0x01)
	buyer := newTestAddress(0x02)
	asset := DeriveAssetID(buyer, "unit-1")
	state.assets[asset] = seller
	state.setBalance(buyer, 1_000_000)

	listingAddr := storeTestListing(t, engine, state, &Listing{
		Seller:     seller,
		Asset:      asset,
		Price:      1_000_000,
		RoyaltyBps: 250,
		Creator:    buyer,
		Active:     true,
	})

	if err := engine.BuyDirect(buyer, seller, buyer, listingAddr); err != nil {
		t.Fatalf("BuyDirect error: %v", err)
	}
	if got := state.balance(buyer); got != 25_000 {
		t.Fatalf("buyer balance %d, want royalty of 25000 back", got)
	}
	if got := state.balance(seller); got != 975_000 {
		t.Fatalf("seller received %d, want 975000", got)
	}
}

func TestBuyDirectInsufficientFundsLeavesStateUntouched(t *testing.T) {
	engine, state, _ := setupEngine(t)
	seller := newTestAddress(0x01)
	buyer := newTestAddress(0x02)
	asset := DeriveAssetID(seller, "unit-1")
	state.assets[asset] = seller
	state.setBalance(buyer, 10)

	_, listingAddr, err := engine.List(seller, asset, 1_000_000, 250)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if err := engine.BuyDirect(buyer, seller, seller, listingAddr); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	listing, err := engine.loadListing(listingAddr)
	if err != nil {
		t.Fatalf("loadListing error: %v", err)
	}
	if !listing.Active {
		t.Fatalf("listing deactivated by failed buy")
	}
	if holder := state.assets[asset]; holder != seller {
		t.Fatalf("asset moved by failed buy")
	}
}

func TestSettleTradeDisbursesEscrow(t *testing.T) {
	engine, state, emitter := setupEngine(t)
	seller := newTestAddress(0x01)
	buyer := newTestAddress(0x02)
	creator := newTestAddress(0x03)
	asset := DeriveAssetID(creator, "unit-1")
	state.assets[asset] = seller
	state.setBalance(buyer, 1_000_000)

	listingAddr := storeTestListing(t, engine, state, &Listing{
		Seller:     seller,
		Asset:      asset,
		Price:      1_000_000,
		RoyaltyBps: 250,
		Creator:    creator,
		Active:     true,
	})
	_, escrowAddr, err := engine.FundEscrow(buyer, listingAddr)
	if err != nil {
		t.Fatalf("FundEscrow error: %v", err)
	}

	if err := engine.SettleTrade(buyer, seller, creator, listingAddr); err != nil {
		t.Fatalf("SettleTrade error: %v", err)
	}
	if got := state.balance(creator); got != 25_000 {
		t.Fatalf("creator received %d, want 25000", got)
	}
	if got := state.balance(seller); got != 975_000 {
		t.Fatalf("seller received %d, want 975000", got)
	}
	if got := state.balance(escrowAddr); got != 0 {
		t.Fatalf("escrow retains %d after settlement", got)
	}
	if holder := state.assets[asset]; holder != buyer {
		t.Fatalf("asset holder %x, want buyer", holder)
	}
	listing, err := engine.loadListing(listingAddr)
	if err != nil {
		t.Fatalf("loadListing error: %v", err)
	}
	escrow, err := engine.loadEscrow(escrowAddr)
	if err != nil {
		t.Fatalf("loadEscrow error: %v", err)
	}
	if listing.Active || !escrow.Settled {
		t.Fatalf("terminal flags wrong: active=%v settled=%v", listing.Active, escrow.Settled)
	}
	if !eventSeen(emitter, EventTypeTradeSettled) {
		t.Fatalf("expected trade settled event")
	}

	if err := engine.SettleTrade(buyer, seller, creator, listingAddr); !errors.Is(err, ErrListingInactive) {
		t.Fatalf("expected ErrListingInactive on re-settle, got %v", err)
	}
}

func TestSettleTradeAmountMismatchTransfersNothing(t *testing.T) {
	engine, state, _ := setupEngine(t)
	seller := newTestAddress(0x01)
	buyer := newTestAddress(0x02)
	asset := DeriveAssetID(seller, "unit-1")
	state.assets[asset] = seller
	state.setBalance(buyer, 1_000_000)

	_, listingAddr, err := engine.List(seller, asset, 1_000_000, 250)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	escrow, escrowAddr, err := engine.FundEscrow(buyer, listingAddr)
	if err != nil {
		t.Fatalf("FundEscrow error: %v", err)
	}

	// Corrupt the stored escrow amount so it no longer matches the price.
	escrow.Amount = 900_000
	acc := state.accounts[escrowAddr]
	acc.Data = EncodeEscrow(escrow)

	if err := engine.SettleTrade(buyer, seller, seller, listingAddr); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
	if got := state.balance(seller); got != 0 {
		t.Fatalf("seller received %d from failed settlement", got)
	}
	if got := state.balance(escrowAddr); got != 1_000_000 {
		t.Fatalf("escrow balance %d mutated by failed settlement", got)
	}
	listing, err := engine.loadListing(listingAddr)
	if err != nil {
		t.Fatalf("loadListing error: %v", err)
	}
	stored, err := engine.loadEscrow(escrowAddr)
	if err != nil {
		t.Fatalf("loadEscrow error: %v", err)
	}
	if !listing.Active || stored.Settled {
		t.Fatalf("flags mutated by failed settlement: active=%v settled=%v", listing.Active, stored.Settled)
	}
}

func TestCancelListingRefundsEscrow(t *testing.T) {
	engine, state, emitter := setupEngine(t)
	seller := newTestAddress(0x01)
	buyer := newTestAddress(0x02)
	asset := DeriveAssetID(seller, "unit-1")
	state.assets[asset] = seller
	state.setBalance(buyer, 1_000_000)

	_, listingAddr, err := engine.List(seller, asset, 1_000_000, 250)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	_, escrowAddr, err := engine.FundEscrow(buyer, listingAddr)
	if err != nil {
		t.Fatalf("FundEscrow error: %v", err)
	}

	if err := engine.CancelListing(seller, listingAddr); err != nil {
		t.Fatalf("CancelListing error: %v", err)
	}
	if got := state.balance(buyer); got != 1_000_000 {
		t.Fatalf("buyer refunded %d, want full amount", got)
	}
	if got := state.balance(escrowAddr); got != 0 {
		t.Fatalf("escrow retains %d after refund", got)
	}
	listing, err := engine.loadListing(listingAddr)
	if err != nil {
		t.Fatalf("loadListing error: %v", err)
	}
	escrow, err := engine.loadEscrow(escrowAddr)
	if err != nil {
		t.Fatalf("loadEscrow error: %v", err)
	}
	if listing.Active || !escrow.Settled {
		t.Fatalf("terminal flags wrong: active=%v settled=%v", listing.Active, escrow.Settled)
	}
	if !eventSeen(emitter, EventTypeListingCancelled) {
		t.Fatalf("expected cancellation event")
	}
}

func TestCancelListingWithoutEscrow(t *testing.T) {
	engine, state, _ := setupEngine(t)
	seller := newTestAddress(0x01)
	asset := DeriveAssetID(seller, "unit-1")
	state.assets[asset] = seller

	_, listingAddr, err := engine.List(seller, asset, 500, 0)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if err := engine.CancelListing(seller, listingAddr); err != nil {
		t.Fatalf("CancelListing error: %v", err)
	}
	listing, err := engine.loadListing(listingAddr)
	if err != nil {
		t.Fatalf("loadListing error: %v", err)
	}
	if listing.Active {
		t.Fatalf("listing still active after cancel")
	}
}

func TestCancelListingAuthorization(t *testing.T) {
	engine, state, _ := setupEngine(t)
	seller := newTestAddress(0x01)
	stranger := newTestAddress(0x09)
	asset := DeriveAssetID(seller, "unit-1")
	state.assets[asset] = seller

	_, listingAddr, err := engine.List(seller, asset, 500, 0)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if err := engine.CancelListing(stranger, listingAddr); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestCancelListingSettledEscrow(t *testing.T) {
	engine, state, _ := setupEngine(t)
	seller := newTestAddress(0x01)
	buyer := newTestAddress(0x02)
	asset := DeriveAssetID(seller, "unit-1")
	state.assets[asset] = seller
	state.setBalance(buyer, 1_000)

	_, listingAddr, err := engine.List(seller, asset, 1_000, 0)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	escrow, escrowAddr, err := engine.FundEscrow(buyer, listingAddr)
	if err != nil {
		t.Fatalf("FundEscrow error: %v", err)
	}
	escrow.Settled = true
	state.accounts[escrowAddr].Data = EncodeEscrow(escrow)

	if err := engine.CancelListing(seller, listingAddr); !errors.Is(err, ErrEscrowSettled) {
		t.Fatalf("expected ErrEscrowSettled, got %v", err)
	}
}
