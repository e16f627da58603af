package market

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
)

// Account byte layout: an 8-byte type discriminator followed by the
// fixed-width fields in declaration order, little-endian integers, one-byte
// booleans, no padding. The sizes are part of the wire contract and are used
// for space accounting at account creation time.
const (
	DiscriminatorSize = 8
	ListingDataSize   = 32 + 32 + 8 + 2 + 32 + 1 + 1
	EscrowDataSize    = 32 + 32 + 8 + 1 + 1
	ListingSize       = DiscriminatorSize + ListingDataSize // 116
	EscrowSize        = DiscriminatorSize + EscrowDataSize  // 82
)

// discriminator is the first 8 bytes of sha256("account:<TypeName>").
func discriminator(typeName string) [DiscriminatorSize]byte {
	sum := sha256.Sum256([]byte("account:" + typeName))
	var disc [DiscriminatorSize]byte
	copy(disc[:], sum[:DiscriminatorSize])
	return disc
}

var (
	listingDiscriminator = discriminator("Listing")
	escrowDiscriminator  = discriminator("Escrow")
)

// EncodeListing serializes the listing into its fixed account layout.
func EncodeListing(l *Listing) []byte {
	buf := make([]byte, 0, ListingSize)
	buf = append(buf, listingDiscriminator[:]...)
	buf = append(buf, l.Seller[:]...)
	buf = append(buf, l.Asset[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, l.Price)
	buf = binary.LittleEndian.AppendUint16(buf, l.RoyaltyBps)
	buf = append(buf, l.Creator[:]...)
	buf = append(buf, encodeBool(l.Active))
	buf = append(buf, l.Bump)
	return buf
}

// DecodeListing parses account bytes into a Listing, rejecting truncated
// buffers, type-confused discriminators and malformed field encodings.
func DecodeListing(data []byte) (*Listing, error) {
	body, err := checkedBody(data, listingDiscriminator, ListingDataSize)
	if err != nil {
		return nil, err
	}
	l := &Listing{}
	copy(l.Seller[:], body[0:32])
	copy(l.Asset[:], body[32:64])
	l.Price = binary.LittleEndian.Uint64(body[64:72])
	l.RoyaltyBps = binary.LittleEndian.Uint16(body[72:74])
	copy(l.Creator[:], body[74:106])
	l.Active, err = decodeBool(body[106])
	if err != nil {
		return nil, err
	}
	l.Bump = body[107]
	return l, nil
}

// EncodeEscrow serializes the escrow into its fixed account layout.
func EncodeEscrow(e *Escrow) []byte {
	buf := make([]byte, 0, EscrowSize)
	buf = append(buf, escrowDiscriminator[:]...)
	buf = append(buf, e.Listing[:]...)
	buf = append(buf, e.Buyer[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, e.Amount)
	buf = append(buf, encodeBool(e.Settled))
	buf = append(buf, e.Bump)
	return buf
}

// DecodeEscrow parses account bytes into an Escrow.
func DecodeEscrow(data []byte) (*Escrow, error) {
	body, err := checkedBody(data, escrowDiscriminator, EscrowDataSize)
	if err != nil {
		return nil, err
	}
	e := &Escrow{}
	copy(e.Listing[:], body[0:32])
	copy(e.Buyer[:], body[32:64])
	e.Amount = binary.LittleEndian.Uint64(body[64:72])
	e.Settled, err = decodeBool(body[72])
	if err != nil {
		return nil, err
	}
	e.Bump = body[73]
	return e, nil
}

// checkedBody validates the prefix and width, returning the field bytes.
// Order matters: a short buffer is reported before a wrong discriminator,
// which is reported before a wrong body length.
func checkedBody(data []byte, disc [DiscriminatorSize]byte, bodySize int) ([]byte, error) {
	if len(data) < DiscriminatorSize {
		return nil, ErrTooShort
	}
	if !bytes.Equal(data[:DiscriminatorSize], disc[:]) {
		return nil, ErrDiscriminatorMismatch
	}
	body := data[DiscriminatorSize:]
	if len(body) != bodySize {
		return nil, ErrMalformedFields
	}
	return body, nil
}

func encodeBool(v bool) byte {
	if v {
		return 1
	}
	return 0
}

func decodeBool(b byte) (bool, error) {
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, ErrMalformedFields
	}
}
