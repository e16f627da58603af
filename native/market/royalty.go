package market

import "math/big"

var bpsDenominator = big.NewInt(int64(MaxRoyaltyBps))

// SplitPrice computes the royalty owed to the creator and the remainder paid
// to the seller. The intermediate product price*royaltyBps is taken in a
// doubled-width integer before the truncating division by 10000, so the
// royalty is floor(price*bps/10000) and rounding always favours the seller.
// Both the settlement engine and the read-only simulation call this one
// function, keeping the two paths bit-for-bit identical.
func SplitPrice(price uint64, royaltyBps uint16) (royalty uint64, sellerAmount uint64, err error) {
	if royaltyBps > MaxRoyaltyBps {
		return 0, 0, ErrInvalidRoyalty
	}
	product := new(big.Int).Mul(
		new(big.Int).SetUint64(price),
		new(big.Int).SetUint64(uint64(royaltyBps)),
	)
	quotient := product.Div(product, bpsDenominator)
	if !quotient.IsUint64() {
		return 0, 0, ErrInvalidRoyalty
	}
	royalty = quotient.Uint64()
	if royalty > price {
		return 0, 0, ErrInvalidRoyalty
	}
	return royalty, price - royalty, nil
}
