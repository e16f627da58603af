package types

import "math/big"

// Account is the persisted envelope for every address the ledger knows
// about: a spendable balance in the smallest currency unit, the program that
// owns the account's data (nil for plain system accounts) and the opaque
// data bytes themselves. Listing and Escrow records live in Data, encoded by
// the market codec.
type Account struct {
	Nonce   uint64   `json:"nonce"`
	Balance *big.Int `json:"balance"`
	Owner   []byte   `json:"owner,omitempty"`
	Data    []byte   `json:"data,omitempty"`
}

// Clone returns a deep copy so callers can mutate the result without
// touching the stored account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := &Account{Nonce: a.Nonce}
	if a.Balance != nil {
		clone.Balance = new(big.Int).Set(a.Balance)
	} else {
		clone.Balance = big.NewInt(0)
	}
	if a.Owner != nil {
		clone.Owner = append([]byte(nil), a.Owner...)
	}
	if a.Data != nil {
		clone.Data = append([]byte(nil), a.Data...)
	}
	return clone
}
