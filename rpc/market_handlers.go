package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"marketplaced/core"
	"marketplaced/crypto"
	"marketplaced/inspect"
	"marketplaced/native/market"
)

// mutatingMethods require bearer authentication over HTTP. The stdio
// transport trusts its local operator and skips the check.
var mutatingMethods = map[string]bool{
	"market_registerAsset": true,
	"market_list":          true,
	"market_fundEscrow":    true,
	"market_buy":           true,
	"market_settle":        true,
	"market_cancel":        true,
	"market_faucet":        true,
}

func (s *Server) dispatch(req *RPCRequest) (interface{}, *RPCError) {
	switch req.Method {
	case "market_getListing":
		return s.handleGetListing(req)
	case "market_getEscrow":
		return s.handleGetEscrow(req)
	case "market_getListingSummary":
		return s.handleGetListingSummary(req)
	case "market_simulatePurchase":
		return s.handleSimulatePurchase(req)
	case "market_validateListing":
		return s.handleValidateListing(req)
	case "market_getBalance":
		return s.handleGetBalance(req)
	case "market_registerAsset":
		return s.handleRegisterAsset(req)
	case "market_list":
		return s.handleList(req)
	case "market_fundEscrow":
		return s.handleFundEscrow(req)
	case "market_buy":
		return s.handleBuy(req)
	case "market_settle":
		return s.handleSettle(req)
	case "market_cancel":
		return s.handleCancel(req)
	case "market_faucet":
		return s.handleFaucet(req)
	default:
		return nil, errObj(codeMethodNotFound, fmt.Sprintf("method %q not found", req.Method), nil)
	}
}

func parseParams(req *RPCRequest, out interface{}) *RPCError {
	if len(req.Params) == 0 {
		return errObj(codeInvalidParams, "parameter object required", nil)
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return errObj(codeInvalidParams, "invalid parameter object", err.Error())
	}
	return nil
}

func parseAddr(field, value string) (crypto.Address, *RPCError) {
	addr, err := crypto.DecodeAddress(value)
	if err != nil {
		return crypto.Address{}, errObj(codeInvalidParams, fmt.Sprintf("invalid %s address", field), err.Error())
	}
	return addr, nil
}

func parseHash(field, value string) ([32]byte, *RPCError) {
	raw, err := hex.DecodeString(value)
	if err != nil || len(raw) != 32 {
		return [32]byte{}, errObj(codeInvalidParams, fmt.Sprintf("%s must be 32 hex-encoded bytes", field), nil)
	}
	var out [32]byte
	copy(out[:], raw)
	return out, nil
}

// rpcErrorFor folds domain errors into the JSON-RPC error taxonomy.
func rpcErrorFor(err error) *RPCError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, market.ErrListingNotFound),
		errors.Is(err, market.ErrEscrowNotFound),
		errors.Is(err, inspect.ErrNotFound):
		return errObj(codeNotFound, err.Error(), nil)
	case errors.Is(err, market.ErrListingExists),
		errors.Is(err, market.ErrEscrowExists),
		errors.Is(err, core.ErrAssetExists):
		return errObj(codeConflict, err.Error(), nil)
	case errors.Is(err, market.ErrUnauthorized),
		errors.Is(err, core.ErrFaucetDisabled):
		return errObj(codeUnauthorized, err.Error(), nil)
	case errors.Is(err, market.ErrInvalidPrice),
		errors.Is(err, market.ErrInvalidRoyalty),
		errors.Is(err, market.ErrListingInactive),
		errors.Is(err, market.ErrMissingBuyer),
		errors.Is(err, market.ErrEscrowSettled),
		errors.Is(err, market.ErrEscrowMismatch),
		errors.Is(err, market.ErrListingMismatch),
		errors.Is(err, market.ErrAssetNotHeld),
		errors.Is(err, market.ErrInsufficientFunds),
		errors.Is(err, market.ErrTooShort),
		errors.Is(err, market.ErrDiscriminatorMismatch),
		errors.Is(err, market.ErrMalformedFields),
		errors.Is(err, inspect.ErrNotOwnedByProgram):
		return errObj(codeInvalidParams, err.Error(), nil)
	default:
		return errObj(codeServerError, "internal error", err.Error())
	}
}

// --- read methods ---

type listingAddressParams struct {
	ListingAddress string `json:"listing_address"`
}

func (s *Server) handleGetListing(req *RPCRequest) (interface{}, *RPCError) {
	var params listingAddressParams
	if rpcErr := parseParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddr("listing", params.ListingAddress)
	if rpcErr != nil {
		return nil, rpcErr
	}
	view, err := s.inspector.GetListingState(addr)
	if err != nil {
		return nil, rpcErrorFor(err)
	}
	return view, nil
}

func (s *Server) handleGetEscrow(req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		EscrowAddress string `json:"escrow_address"`
	}
	if rpcErr := parseParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddr("escrow", params.EscrowAddress)
	if rpcErr != nil {
		return nil, rpcErr
	}
	view, err := s.inspector.GetEscrowState(addr)
	if err != nil {
		return nil, rpcErrorFor(err)
	}
	return view, nil
}

func (s *Server) handleGetListingSummary(req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		Asset  string `json:"asset"`
		Seller string `json:"seller"`
	}
	if rpcErr := parseParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	asset, rpcErr := parseHash("asset", params.Asset)
	if rpcErr != nil {
		return nil, rpcErr
	}
	seller, rpcErr := parseAddr("seller", params.Seller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	view, err := s.inspector.GetListingSummary(asset, seller.Raw())
	if err != nil {
		return nil, rpcErrorFor(err)
	}
	return view, nil
}

func (s *Server) handleSimulatePurchase(req *RPCRequest) (interface{}, *RPCError) {
	var params listingAddressParams
	if rpcErr := parseParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddr("listing", params.ListingAddress)
	if rpcErr != nil {
		return nil, rpcErr
	}
	sim, err := s.inspector.SimulatePurchase(addr)
	if err != nil {
		return nil, rpcErrorFor(err)
	}
	return sim, nil
}

func (s *Server) handleValidateListing(req *RPCRequest) (interface{}, *RPCError) {
	var params listingAddressParams
	if rpcErr := parseParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddr("listing", params.ListingAddress)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return s.inspector.ValidateListing(addr), nil
}

func (s *Server) handleGetBalance(req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		Address string `json:"address"`
	}
	if rpcErr := parseParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddr("account", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	balance, err := s.node.Balance(addr.Raw())
	if err != nil {
		return nil, rpcErrorFor(err)
	}
	return map[string]interface{}{
		"address": params.Address,
		"balance": balance.String(),
	}, nil
}

// --- write methods ---

func (s *Server) handleRegisterAsset(req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		Creator string `json:"creator"`
		Symbol  string `json:"symbol"`
	}
	if rpcErr := parseParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	creator, rpcErr := parseAddr("creator", params.Creator)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if params.Symbol == "" {
		return nil, errObj(codeInvalidParams, "symbol required", nil)
	}
	asset, err := s.node.RegisterAsset(creator.Raw(), params.Symbol)
	if err != nil {
		return nil, rpcErrorFor(err)
	}
	return map[string]string{"asset": hex.EncodeToString(asset[:])}, nil
}

func (s *Server) handleList(req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		Seller     string `json:"seller"`
		Asset      string `json:"asset"`
		Price      uint64 `json:"price"`
		RoyaltyBps uint16 `json:"royalty_bps"`
	}
	if rpcErr := parseParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	seller, rpcErr := parseAddr("seller", params.Seller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	asset, rpcErr := parseHash("asset", params.Asset)
	if rpcErr != nil {
		return nil, rpcErr
	}
	listing, addr, err := s.node.CreateListing(seller.Raw(), asset, params.Price, params.RoyaltyBps)
	if err != nil {
		return nil, rpcErrorFor(err)
	}
	return map[string]interface{}{
		"listing_address": crypto.MustNewAddress(crypto.MarketPrefix, addr[:]).String(),
		"bump":            listing.Bump,
	}, nil
}

func (s *Server) handleFundEscrow(req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		Buyer          string `json:"buyer"`
		ListingAddress string `json:"listing_address"`
	}
	if rpcErr := parseParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	buyer, rpcErr := parseAddr("buyer", params.Buyer)
	if rpcErr != nil {
		return nil, rpcErr
	}
	listingAddr, rpcErr := parseAddr("listing", params.ListingAddress)
	if rpcErr != nil {
		return nil, rpcErr
	}
	escrow, addr, err := s.node.FundEscrow(buyer.Raw(), listingAddr.Raw())
	if err != nil {
		return nil, rpcErrorFor(err)
	}
	return map[string]interface{}{
		"escrow_address": crypto.MustNewAddress(crypto.MarketPrefix, addr[:]).String(),
		"amount":         escrow.Amount,
		"bump":           escrow.Bump,
	}, nil
}

type tradeParams struct {
	Buyer          string `json:"buyer"`
	Seller         string `json:"seller"`
	Creator        string `json:"creator"`
	ListingAddress string `json:"listing_address"`
}

func (p *tradeParams) resolve() (buyer, seller, creator, listing [32]byte, rpcErr *RPCError) {
	b, rpcErr := parseAddr("buyer", p.Buyer)
	if rpcErr != nil {
		return
	}
	sl, rpcErr := parseAddr("seller", p.Seller)
	if rpcErr != nil {
		return
	}
	c, rpcErr := parseAddr("creator", p.Creator)
	if rpcErr != nil {
		return
	}
	l, rpcErr := parseAddr("listing", p.ListingAddress)
	if rpcErr != nil {
		return
	}
	return b.Raw(), sl.Raw(), c.Raw(), l.Raw(), nil
}

func (s *Server) handleBuy(req *RPCRequest) (interface{}, *RPCError) {
	var params tradeParams
	if rpcErr := parseParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	buyer, seller, creator, listing, rpcErr := params.resolve()
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.node.BuyDirect(buyer, seller, creator, listing); err != nil {
		return nil, rpcErrorFor(err)
	}
	return map[string]string{"status": "purchased"}, nil
}

func (s *Server) handleSettle(req *RPCRequest) (interface{}, *RPCError) {
	var params tradeParams
	if rpcErr := parseParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	buyer, seller, creator, listing, rpcErr := params.resolve()
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.node.SettleTrade(buyer, seller, creator, listing); err != nil {
		return nil, rpcErrorFor(err)
	}
	return map[string]string{"status": "settled"}, nil
}

func (s *Server) handleCancel(req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		Seller         string `json:"seller"`
		ListingAddress string `json:"listing_address"`
	}
	if rpcErr := parseParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	seller, rpcErr := parseAddr("seller", params.Seller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	listingAddr, rpcErr := parseAddr("listing", params.ListingAddress)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.node.CancelListing(seller.Raw(), listingAddr.Raw()); err != nil {
		return nil, rpcErrorFor(err)
	}
	return map[string]string{"status": "cancelled"}, nil
}

func (s *Server) handleFaucet(req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		Address string `json:"address"`
		Amount  uint64 `json:"amount"`
	}
	if rpcErr := parseParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddr("account", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if params.Amount == 0 {
		return nil, errObj(codeInvalidParams, "amount must be positive", nil)
	}
	if err := s.node.Credit(addr.Raw(), params.Amount); err != nil {
		return nil, rpcErrorFor(err)
	}
	balance, err := s.node.Balance(addr.Raw())
	if err != nil {
		return nil, rpcErrorFor(err)
	}
	return map[string]string{"balance": balance.String()}, nil
}
