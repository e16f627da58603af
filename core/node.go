// Package core hosts the ledger node: keyed account and asset state over a
// storage backend, serialized execution of settlement operations, and event
// fan-out for streaming subscribers.
package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"sync"

	"marketplaced/core/events"
	"marketplaced/core/types"
	"marketplaced/crypto"
	"marketplaced/native/market"
	"marketplaced/observability"
	"marketplaced/storage"
)

var (
	accountKeyPrefix = []byte("acct/")
	assetKeyPrefix   = []byte("asset/")
)

// ErrFaucetDisabled is returned by Credit outside dev mode.
var ErrFaucetDisabled = errors.New("core: dev faucet is disabled")

// ErrAssetExists is returned when registering an asset id twice.
var ErrAssetExists = errors.New("core: asset already registered")

// Node owns the marketplace state. All settlement operations run under one
// mutex, which provides the atomic-transaction guarantee the engine relies
// on: conflicting operations on the same accounts never interleave.
type Node struct {
	db     storage.Database
	engine *market.Engine

	mu sync.Mutex

	subMu   sync.Mutex
	subs    map[uint64]chan types.Event
	nextSub uint64

	allowFaucet bool
}

// NodeOption customizes node construction.
type NodeOption func(*Node)

// WithDevFaucet enables the Credit operation used to seed balances in local
// development networks.
func WithDevFaucet() NodeOption {
	return func(n *Node) { n.allowFaucet = true }
}

// NewNode wires a market engine to the given storage backend.
func NewNode(db storage.Database, opts ...NodeOption) *Node {
	n := &Node{
		db:   db,
		subs: make(map[uint64]chan types.Event),
	}
	engine := market.NewEngine(market.DefaultProgram())
	engine.SetState(n)
	engine.SetEmitter(n)
	n.engine = engine
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Program returns the identity owning all marketplace records.
func (n *Node) Program() crypto.Address { return n.engine.Program() }

func accountKey(addr [32]byte) []byte {
	return append(append([]byte(nil), accountKeyPrefix...), addr[:]...)
}

func assetKey(asset [32]byte) []byte {
	return append(append([]byte(nil), assetKeyPrefix...), asset[:]...)
}

// --- engine state backend ---

// GetAccount returns the stored account at addr, or nil when none exists.
func (n *Node) GetAccount(addr [32]byte) (*types.Account, error) {
	raw, err := n.db.Get(accountKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	account := &types.Account{}
	if err := json.Unmarshal(raw, account); err != nil {
		return nil, fmt.Errorf("core: corrupt account record: %w", err)
	}
	return account, nil
}

// PutAccount persists the account at addr.
func (n *Node) PutAccount(addr [32]byte, account *types.Account) error {
	raw, err := json.Marshal(account)
	if err != nil {
		return err
	}
	return n.db.Put(accountKey(addr), raw)
}

// AccountExists reports whether any account record is stored at addr.
func (n *Node) AccountExists(addr [32]byte) (bool, error) {
	return n.db.Has(accountKey(addr))
}

// AssetHolder returns the current holder of the asset unit.
func (n *Node) AssetHolder(asset [32]byte) ([32]byte, bool, error) {
	raw, err := n.db.Get(assetKey(asset))
	if errors.Is(err, storage.ErrNotFound) {
		return [32]byte{}, false, nil
	}
	if err != nil {
		return [32]byte{}, false, err
	}
	if len(raw) != 32 {
		return [32]byte{}, false, fmt.Errorf("core: corrupt asset record")
	}
	var holder [32]byte
	copy(holder[:], raw)
	return holder, true, nil
}

// SetAssetHolder records the holder of the asset unit.
func (n *Node) SetAssetHolder(asset, holder [32]byte) error {
	return n.db.Put(assetKey(asset), holder[:])
}

// --- settlement operations ---

// CreateListing lists one unit of asset for sale.
func (n *Node) CreateListing(seller, asset [32]byte, price uint64, royaltyBps uint16) (*market.Listing, [32]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	listing, addr, err := n.engine.List(seller, asset, price, royaltyBps)
	observability.Market().RecordOperation("list", err)
	return listing, addr, err
}

// FundEscrow pledges the listing price from the buyer into escrow.
func (n *Node) FundEscrow(buyer, listingAddr [32]byte) (*market.Escrow, [32]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	escrow, addr, err := n.engine.FundEscrow(buyer, listingAddr)
	observability.Market().RecordOperation("fund_escrow", err)
	return escrow, addr, err
}

// BuyDirect settles a purchase straight from the buyer's balance.
func (n *Node) BuyDirect(buyer, seller, creator, listingAddr [32]byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	err := n.engine.BuyDirect(buyer, seller, creator, listingAddr)
	observability.Market().RecordOperation("buy_direct", err)
	return err
}

// SettleTrade disburses a funded escrow and transfers the asset unit.
func (n *Node) SettleTrade(buyer, seller, creator, listingAddr [32]byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	err := n.engine.SettleTrade(buyer, seller, creator, listingAddr)
	observability.Market().RecordOperation("settle_trade", err)
	return err
}

// CancelListing deactivates a listing, refunding any unsettled escrow.
func (n *Node) CancelListing(seller, listingAddr [32]byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	err := n.engine.CancelListing(seller, listingAddr)
	observability.Market().RecordOperation("cancel_listing", err)
	return err
}

// RegisterAsset mints a new indivisible asset unit held by its creator and
// returns the deterministic asset id.
func (n *Node) RegisterAsset(creator [32]byte, symbol string) ([32]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := market.DeriveAssetID(creator, symbol)
	if _, held, err := n.AssetHolder(id); err != nil {
		return [32]byte{}, err
	} else if held {
		return [32]byte{}, ErrAssetExists
	}
	if err := n.SetAssetHolder(id, creator); err != nil {
		return [32]byte{}, err
	}
	return id, nil
}

// Credit adds funds to an account. Only available when the dev faucet is
// enabled; production deployments fund accounts out of band.
func (n *Node) Credit(addr [32]byte, amount uint64) error {
	if !n.allowFaucet {
		return ErrFaucetDisabled
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	account, err := n.GetAccount(addr)
	if err != nil {
		return err
	}
	if account == nil {
		account = &types.Account{Balance: big.NewInt(0)}
	}
	if account.Balance == nil {
		account.Balance = big.NewInt(0)
	}
	account.Balance = new(big.Int).Add(account.Balance, new(big.Int).SetUint64(amount))
	return n.PutAccount(addr, account)
}

// Balance returns the spendable balance at addr (zero for unknown accounts).
func (n *Node) Balance(addr [32]byte) (*big.Int, error) {
	account, err := n.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if account == nil || account.Balance == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(account.Balance), nil
}

// AccountInfo returns a snapshot of the account at addr, or nil when absent.
// It backs the read-only inspection service, which must never receive
// references into live state.
func (n *Node) AccountInfo(addr [32]byte) (*types.Account, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	account, err := n.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	return account.Clone(), nil
}

// --- event fan-out ---

type eventPayload interface {
	Event() *types.Event
}

// Emit implements events.Emitter: engine events are fanned out to all
// subscribers. Slow subscribers drop events rather than block settlement.
func (n *Node) Emit(evt events.Event) {
	payload, ok := evt.(eventPayload)
	if !ok || payload.Event() == nil {
		return
	}
	event := payload.Event()
	observability.Events().RecordEvent(event.Type)
	recordMarketMetrics(event)
	n.subMu.Lock()
	defer n.subMu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- *event:
		default:
		}
	}
}

// recordMarketMetrics drives the engine-level collectors off the canonical
// event stream so the engine itself stays free of instrumentation.
func recordMarketMetrics(evt *types.Event) {
	m := observability.Market()
	switch evt.Type {
	case market.EventTypeListingCreated:
		m.ListingOpened()
	case market.EventTypeListingPurchased, market.EventTypeTradeSettled, market.EventTypeListingCancelled:
		m.ListingClosed()
	}
	legs := map[string]string{
		"royaltyAmount":  "royalty",
		"sellerAmount":   "seller",
		"refundedAmount": "refund",
	}
	for attr, leg := range legs {
		raw, ok := evt.Attributes[attr]
		if !ok {
			continue
		}
		if amount, err := strconv.ParseUint(raw, 10, 64); err == nil && amount > 0 {
			m.RecordPayout(leg, amount)
		}
	}
}

// SubscribeEvents registers a buffered subscriber for market events. The
// returned cancel function must be called to release the subscription.
func (n *Node) SubscribeEvents(buffer int) (<-chan types.Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan types.Event, buffer)
	n.subMu.Lock()
	id := n.nextSub
	n.nextSub++
	n.subs[id] = ch
	n.subMu.Unlock()
	cancel := func() {
		n.subMu.Lock()
		if stored, ok := n.subs[id]; ok {
			delete(n.subs, id)
			close(stored)
		}
		n.subMu.Unlock()
	}
	return ch, cancel
}
