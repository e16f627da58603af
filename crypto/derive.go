package crypto

import (
	"crypto/sha256"
	"errors"

	"filippo.io/edwards25519"
)

// derivedAddressTag domain-separates derived addresses from every other use
// of the hash.
const derivedAddressTag = "MarketDerivedAddress"

// ErrDerivationExhausted is returned when no bump in 0-255 yields an
// off-curve address. With a cryptographic hash this is astronomically
// unlikely, but it is a reportable error rather than a panic.
var ErrDerivationExhausted = errors.New("crypto: derived address space exhausted")

// DeriveAddress maps an ordered sequence of seed byte strings to a
// deterministic program-owned address plus the disambiguation bump that
// produced it. Bumps are searched from 255 downward and the first candidate
// that is not a valid edwards25519 point wins, guaranteeing the address has
// no corresponding private key.
func DeriveAddress(program Address, seeds ...[]byte) (Address, uint8, error) {
	for bump := 255; bump >= 0; bump-- {
		h := sha256.New()
		for _, seed := range seeds {
			h.Write(seed)
		}
		h.Write([]byte{byte(bump)})
		h.Write(program.Bytes())
		h.Write([]byte(derivedAddressTag))
		digest := h.Sum(nil)
		if isCurvePoint(digest) {
			continue
		}
		return MustNewAddress(MarketPrefix, digest), uint8(bump), nil
	}
	return Address{}, 0, ErrDerivationExhausted
}

func isCurvePoint(b []byte) bool {
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}
